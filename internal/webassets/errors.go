package webassets

import "fmt"

// InvalidPathError reports an asset path that fails the path grammar.
// Always a caller bug or hostile input; never worth retrying.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid asset path %q: %s", e.Path, e.Reason)
}

// AssetNotFoundError reports a category/path combination with neither a
// virtual registration nor a backing file. The HTTP layer maps this to 404.
type AssetNotFoundError struct {
	Category string
	Path     string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset not found: /%s/%s", e.Category, e.Path)
}

// DuplicatePathError reports a registration-time conflict, either a second
// virtual registration on the same path or a virtual path shadowing an
// existing file. Fatal at startup.
type DuplicatePathError struct {
	Category string
	Path     string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("duplicate asset path: /%s/%s", e.Category, e.Path)
}

// UnknownCategoryError reports a lookup against a category that was never
// registered.
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown asset category %q", e.Category)
}

// RenderError wraps the underlying cause of a failed render: an unreadable
// file, a generator error or panic, or non-text output where text was
// required. The HTTP layer maps this to 500.
type RenderError struct {
	Category string
	Path     string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render /%s/%s: %v", e.Category, e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
