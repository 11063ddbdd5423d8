package webassets

import (
	"bytes"
	"unicode/utf8"
)

// Proxy is the per-category capability set: render one asset, merge several
// into a bundle, and name the content type of the result. Category plugins
// supply their own implementation at registration time; most categories use
// ConcatProxy or TextProxy as-is.
type Proxy interface {
	Render(path string) ([]byte, error)
	CreateBundle(paths []string) ([]byte, error)
	ContentType() string
}

// Bundler is an optional refinement of Proxy. A proxy reporting
// CanBundle() == false gets one URL per asset from LinkTargets instead of
// a single merged bundle URL.
type Bundler interface {
	CanBundle() bool
}

func canBundle(p Proxy) bool {
	if b, ok := p.(Bundler); ok {
		return b.CanBundle()
	}
	return true
}

// Transform post-processes rendered content before it leaves the proxy,
// e.g. macro expansion for a templated stylesheet dialect. It runs on
// single renders and on every bundle constituent.
type Transform func(path string, content []byte) ([]byte, error)

// ConcatProxy is the default bundling strategy: render each asset in the
// requested order and join the results with a category-defined separator.
// Order is contractual; [a,b] and [b,a] produce different bundles.
type ConcatProxy struct {
	Store     *Store
	Type      string
	Separator []byte
	Transform Transform
}

func (p *ConcatProxy) Render(path string) ([]byte, error) {
	b, err := p.Store.Render(path)
	if err != nil {
		return nil, err
	}
	if p.Transform != nil {
		b, err = p.Transform(path, b)
		if err != nil {
			return nil, &RenderError{Category: p.Store.Category(), Path: path, Err: err}
		}
	}
	return b, nil
}

// CreateBundle merges the rendered content of paths in order. Any failing
// constituent aborts the whole bundle; the returned error names it.
func (p *ConcatProxy) CreateBundle(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	for i, path := range paths {
		b, err := p.Render(path)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.Write(p.Separator)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func (p *ConcatProxy) ContentType() string { return p.Type }

// TextProxy is the simplified proxy variant for categories whose producer
// only supplies a "render one item" hook returning a text fragment. Bundles
// come for free: every fragment is wrapped with a fixed prefix/suffix rule.
type TextProxy struct {
	Store *Store
	Type  string

	// RenderItem overrides the store's renderer when set. The result must
	// be valid text; binary output is rejected with a RenderError.
	RenderItem func(path string) ([]byte, error)

	ItemPrefix string
	ItemSuffix string
}

func (p *TextProxy) Render(path string) ([]byte, error) {
	b, err := p.renderItem(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, &RenderError{
			Category: p.Store.Category(),
			Path:     path,
			Err:      errNotText,
		}
	}
	return b, nil
}

func (p *TextProxy) CreateBundle(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	for _, path := range paths {
		b, err := p.Render(path)
		if err != nil {
			return nil, err
		}
		buf.WriteString(p.ItemPrefix)
		buf.Write(b)
		buf.WriteString(p.ItemSuffix)
	}
	return buf.Bytes(), nil
}

func (p *TextProxy) ContentType() string { return p.Type }

func (p *TextProxy) renderItem(path string) ([]byte, error) {
	if p.RenderItem == nil {
		return p.Store.Render(path)
	}
	// the hook only renders; existence checks stay with the store
	if _, err := p.Store.Resolve(path); err != nil {
		return nil, err
	}
	b, err := p.RenderItem(path)
	if err != nil {
		return nil, &RenderError{Category: p.Store.Category(), Path: path, Err: err}
	}
	return b, nil
}

var errNotText = textError{}

type textError struct{}

func (textError) Error() string { return "producer returned non-text content" }
