package webassets

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// Store is the per-category asset registry. It maps paths to either a file
// under the category root or a registered virtual generator. File-backed
// assets are discovered lazily on lookup, so files dropped into the root
// after startup are served without a restart.
//
// Virtual registration happens during process configuration; after that the
// store is only read, so no locking is needed on the lookup paths.
type Store struct {
	category string
	fsys     fs.FS
	marker   byte
	virtual  map[string]Generator
}

// NewStore creates a store for one category. root may be empty for a
// purely virtual category. marker 0 means DefaultHiddenMarker.
func NewStore(category, root string, marker byte) *Store {
	var fsys fs.FS
	if root != "" {
		fsys = os.DirFS(root)
	}
	if marker == 0 {
		marker = DefaultHiddenMarker
	}
	return &Store{
		category: category,
		fsys:     fsys,
		marker:   marker,
		virtual:  make(map[string]Generator),
	}
}

// NewStoreFS is NewStore over an existing fs.FS, used by tests and by
// callers that already hold a filesystem.
func NewStoreFS(category string, fsys fs.FS, marker byte) *Store {
	s := NewStore(category, "", marker)
	s.fsys = fsys
	return s
}

// Category returns the category name this store serves.
func (s *Store) Category() string { return s.category }

// RegisterVirtual adds a generator-backed asset at path. It fails with
// DuplicatePathError when the path is already registered or a file with the
// same path exists under the root: shadowing is always a configuration bug.
func (s *Store) RegisterVirtual(path string, gen Generator) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if gen == nil {
		return fmt.Errorf("register virtual /%s/%s: nil generator", s.category, path)
	}
	if _, ok := s.virtual[path]; ok {
		return &DuplicatePathError{Category: s.category, Path: path}
	}
	if s.statFile(path) {
		return &DuplicatePathError{Category: s.category, Path: path}
	}
	s.virtual[path] = gen
	return nil
}

// Resolve maps a path to an Asset, validating the path first. Virtual
// registrations win over files.
func (s *Store) Resolve(path string) (Asset, error) {
	if err := ValidatePath(path); err != nil {
		return Asset{}, err
	}
	if _, ok := s.virtual[path]; ok {
		return Asset{Category: s.category, Path: path, Virtual: true}, nil
	}
	if s.statFile(path) {
		return Asset{Category: s.category, Path: path}, nil
	}
	return Asset{}, &AssetNotFoundError{Category: s.category, Path: path}
}

// List enumerates every resolvable asset, virtual registrations and files
// under the root alike, sorted lexicographically by path. Hidden assets are
// filtered out unless includeHidden is set; that filter is what keeps
// conditional assets (a browser-specific stylesheet, say) out of
// "include everything" bulk operations.
func (s *Store) List(includeHidden bool) ([]Asset, error) {
	seen := make(map[string]bool, len(s.virtual))
	assets := make([]Asset, 0, len(s.virtual))

	for path := range s.virtual {
		seen[path] = true
		assets = append(assets, Asset{Category: s.category, Path: path, Virtual: true})
	}

	if s.fsys != nil {
		err := fs.WalkDir(s.fsys, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || seen[path] {
				return nil
			}
			// skip files whose names fall outside the asset grammar,
			// they are unreachable through Resolve anyway
			if ValidatePath(path) != nil {
				return nil
			}
			seen[path] = true
			assets = append(assets, Asset{Category: s.category, Path: path})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list category %s: %w", s.category, err)
		}
	}

	if !includeHidden {
		visible := assets[:0]
		for _, a := range assets {
			if !a.Hidden(s.marker) {
				visible = append(visible, a)
			}
		}
		assets = visible
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Path < assets[j].Path })
	return assets, nil
}

// Render produces the raw bytes of one asset: the generator's output for a
// virtual asset, the file contents otherwise. Rendering never caches; the
// version manager decides what to remember.
func (s *Store) Render(path string) ([]byte, error) {
	a, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	if a.Virtual {
		return s.renderVirtual(path)
	}
	b, err := fs.ReadFile(s.fsys, path)
	if err != nil {
		return nil, &RenderError{Category: s.category, Path: path, Err: err}
	}
	return b, nil
}

func (s *Store) renderVirtual(path string) (content []byte, err error) {
	// a misbehaving generator must surface as a RenderError, not take
	// down the serving process
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{
				Category: s.category,
				Path:     path,
				Err:      fmt.Errorf("generator panic: %v", r),
			}
		}
	}()
	b, err := s.virtual[path]()
	if err != nil {
		return nil, &RenderError{Category: s.category, Path: path, Err: err}
	}
	return b, nil
}

func (s *Store) statFile(path string) bool {
	if s.fsys == nil {
		return false
	}
	info, err := fs.Stat(s.fsys, path)
	return err == nil && !info.IsDir()
}
