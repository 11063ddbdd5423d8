package webassets

import (
	"context"
	"fmt"
	"sync"

	"github.com/keithlinneman/webassets/internal/log"
)

// Registry binds category names to their store/proxy pair and is the sole
// entry point for the HTTP and template layers. Categories are added during
// process startup and the registry is read-only afterward, so steady-state
// lookups need no synchronization. Bundle registrations trickle in as pages
// are rendered, hence the sync.Map.
type Registry struct {
	marker     byte
	versioner  *Versioner
	categories map[string]*category
	bundles    sync.Map // category + "\x00" + bundle name -> []string paths
	logger     log.Logger
}

type category struct {
	store *Store
	proxy Proxy
}

// Options configures a Registry. The zero value gives dynamic versioning
// with the default hidden marker.
type Options struct {
	Mode         Mode
	FixedToken   string
	HiddenMarker byte
	Logger       log.Logger
}

// New creates an empty registry; wire categories with AddCategory before
// serving.
func New(opts Options) (*Registry, error) {
	if opts.HiddenMarker == 0 {
		opts.HiddenMarker = DefaultHiddenMarker
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	v, err := NewVersioner(opts.Mode, opts.FixedToken)
	if err != nil {
		return nil, err
	}
	return &Registry{
		marker:     opts.HiddenMarker,
		versioner:  v,
		categories: make(map[string]*category),
		logger:     opts.Logger,
	}, nil
}

// Versioner exposes the registry's version manager for metrics wiring.
func (r *Registry) Versioner() *Versioner { return r.versioner }

// AddCategory registers a category with its root directory and a builder
// that turns the category's store into its Proxy. The builder indirection
// lets category plugins close over the store they will render from.
func (r *Registry) AddCategory(name, root string, build func(*Store) Proxy) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("add category: empty name")
	}
	if _, ok := r.categories[name]; ok {
		return nil, fmt.Errorf("add category: %s already registered", name)
	}
	store := NewStore(name, root, r.marker)
	proxy := build(store)
	if proxy == nil {
		return nil, fmt.Errorf("add category %s: builder returned nil proxy", name)
	}
	r.categories[name] = &category{store: store, proxy: proxy}
	return store, nil
}

// AddConcatCategory registers a category with the default concatenating
// proxy, the common case for stylesheets and scripts.
func (r *Registry) AddConcatCategory(name, root, contentType, separator string) (*Store, error) {
	return r.AddCategory(name, root, func(s *Store) Proxy {
		return &ConcatProxy{Store: s, Type: contentType, Separator: []byte(separator)}
	})
}

// Categories lists the registered category names.
func (r *Registry) Categories() []string {
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	return names
}

// Content renders one asset or, for multiple paths, the merged bundle, in
// the order given. No paths means the category's default listing. Returns
// the bytes and the category's content type.
func (r *Registry) Content(ctx context.Context, name string, paths ...string) ([]byte, string, error) {
	c, paths, err := r.resolveRequest(name, paths)
	if err != nil {
		return nil, "", err
	}
	var b []byte
	if len(paths) == 1 {
		b, err = c.proxy.Render(paths[0])
	} else {
		b, err = c.proxy.CreateBundle(paths)
	}
	if err != nil {
		r.logger.Error(ctx, err, "asset render failed", "category", name, "paths", paths)
		return nil, "", err
	}
	return b, c.proxy.ContentType(), nil
}

// Version returns the version token for the ordered paths under the
// configured strategy. The key is the ordered list: reordering a bundle
// yields a different token.
func (r *Registry) Version(ctx context.Context, name string, paths ...string) (string, error) {
	c, paths, err := r.resolveRequest(name, paths)
	if err != nil {
		return "", err
	}
	tok, err := r.versioner.Token(name, c.proxy, paths)
	if err != nil {
		r.logger.Error(ctx, err, "version token failed", "category", name, "paths", paths)
		return "", err
	}
	return tok, nil
}

// RegisterBundle records the path list behind a bundle name so a later
// request for /{category}/__bundle_{name}__ can be rebuilt from scratch.
// LinkTargets does this implicitly; explicit registration is for bundles
// baked ahead of time.
func (r *Registry) RegisterBundle(name string, paths []string) {
	key := name + "\x00" + BundleName(paths)
	ordered := make([]string, len(paths))
	copy(ordered, paths)
	r.bundles.Store(key, ordered)
}

// LookupBundle returns the ordered path list registered under a bundle name.
func (r *Registry) LookupBundle(name, bundle string) ([]string, bool) {
	v, ok := r.bundles.Load(name + "\x00" + bundle)
	if !ok {
		return nil, false
	}
	return v.([]string), true
}

// List enumerates a category's assets, hidden ones only when asked.
func (r *Registry) List(name string, includeHidden bool) ([]Asset, error) {
	c, ok := r.categories[name]
	if !ok {
		return nil, &UnknownCategoryError{Category: name}
	}
	return c.store.List(includeHidden)
}

// Resolve looks an asset up without rendering it.
func (r *Registry) Resolve(name, path string) (Asset, error) {
	c, ok := r.categories[name]
	if !ok {
		return Asset{}, &UnknownCategoryError{Category: name}
	}
	return c.store.Resolve(path)
}

// resolveRequest validates the category, fills in default paths, and checks
// that every requested path resolves, so bundle errors can point at the
// first missing asset before any rendering starts.
func (r *Registry) resolveRequest(name string, paths []string) (*category, []string, error) {
	c, ok := r.categories[name]
	if !ok {
		return nil, nil, &UnknownCategoryError{Category: name}
	}
	if len(paths) == 0 {
		assets, err := c.store.List(false)
		if err != nil {
			return nil, nil, err
		}
		paths = make([]string, len(assets))
		for i, a := range assets {
			paths[i] = a.Path
		}
	}
	if len(paths) == 0 {
		return nil, nil, &AssetNotFoundError{Category: name, Path: ""}
	}
	for _, p := range paths {
		if _, err := c.store.Resolve(p); err != nil {
			return nil, nil, err
		}
	}
	return c, paths, nil
}
