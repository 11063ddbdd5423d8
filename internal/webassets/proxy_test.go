package webassets

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestConcatProxyBundleOrder(t *testing.T) {
	p := &ConcatProxy{
		Store:     NewStoreFS("css", testFS(), 0),
		Type:      "text/css",
		Separator: []byte("\n"),
	}

	ab, err := p.CreateBundle([]string{"reset.css", "site.css"})
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	want := "* { margin: 0 }\nbody { color: black }"
	if string(ab) != want {
		t.Errorf("bundle = %q, want %q", ab, want)
	}

	ba, err := p.CreateBundle([]string{"site.css", "reset.css"})
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	if bytes.Equal(ab, ba) {
		t.Error("reordered bundle produced identical content")
	}
}

func TestConcatProxyBundleAbortsOnFailure(t *testing.T) {
	p := &ConcatProxy{
		Store:     NewStoreFS("css", testFS(), 0),
		Type:      "text/css",
		Separator: []byte("\n"),
	}
	_, err := p.CreateBundle([]string{"reset.css", "missing.css", "site.css"})
	var nf *AssetNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("CreateBundle error = %v, want AssetNotFoundError", err)
	}
	if nf.Path != "missing.css" {
		t.Errorf("failing constituent = %q, want missing.css", nf.Path)
	}
}

func TestConcatProxyTransform(t *testing.T) {
	p := &ConcatProxy{
		Store:     NewStoreFS("css", testFS(), 0),
		Type:      "text/css",
		Separator: []byte("\n"),
		Transform: func(path string, content []byte) ([]byte, error) {
			return []byte("/* " + path + " */\n" + string(content)), nil
		},
	}
	b, err := p.Render("reset.css")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(b) != "/* reset.css */\n* { margin: 0 }" {
		t.Errorf("Render = %q", b)
	}
}

func TestConcatProxyTransformFailure(t *testing.T) {
	p := &ConcatProxy{
		Store:     NewStoreFS("css", testFS(), 0),
		Type:      "text/css",
		Separator: []byte("\n"),
		Transform: func(path string, content []byte) ([]byte, error) {
			return nil, errors.New("macro expansion failed")
		},
	}
	_, err := p.Render("reset.css")
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("Render error = %v, want RenderError", err)
	}
}

func TestTextProxyRenderItemHook(t *testing.T) {
	p := &TextProxy{
		Store: NewStoreFS("css", testFS(), 0),
		Type:  "text/css",
		RenderItem: func(path string) ([]byte, error) {
			return []byte(strings.ToUpper(path)), nil
		},
		ItemPrefix: "<",
		ItemSuffix: ">",
	}

	b, err := p.Render("reset.css")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(b) != "RESET.CSS" {
		t.Errorf("Render = %q", b)
	}

	// existence is still checked against the store even with a hook
	_, err = p.Render("missing.css")
	var nf *AssetNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Render error = %v, want AssetNotFoundError", err)
	}

	bundle, err := p.CreateBundle([]string{"reset.css", "site.css"})
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	if string(bundle) != "<RESET.CSS><SITE.CSS>" {
		t.Errorf("bundle = %q", bundle)
	}
}

func TestTextProxyRejectsBinary(t *testing.T) {
	p := &TextProxy{
		Store: NewStoreFS("css", testFS(), 0),
		Type:  "text/css",
		RenderItem: func(path string) ([]byte, error) {
			return []byte{0xff, 0xfe, 0x00}, nil
		},
	}
	_, err := p.Render("reset.css")
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("Render error = %v, want RenderError", err)
	}
	if !errors.Is(err, errNotText) {
		t.Error("RenderError does not wrap the non-text sentinel")
	}
}

func TestTextProxyDefaultsToStore(t *testing.T) {
	p := &TextProxy{
		Store: NewStoreFS("css", fstest.MapFS{
			"a.css": {Data: []byte(".a {}")},
		}, 0),
		Type: "text/css",
	}
	b, err := p.Render("a.css")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(b) != ".a {}" {
		t.Errorf("Render = %q", b)
	}
}

type noBundleProxy struct{ *ConcatProxy }

func (noBundleProxy) CanBundle() bool { return false }

func TestCanBundle(t *testing.T) {
	plain := &ConcatProxy{Store: NewStoreFS("css", testFS(), 0), Type: "text/css"}
	if !canBundle(plain) {
		t.Error("proxy without Bundler should default to bundleable")
	}
	if canBundle(noBundleProxy{plain}) {
		t.Error("CanBundle() == false was ignored")
	}
}
