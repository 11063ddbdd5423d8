package webassets

// Generator produces the content of a virtual asset. It takes no arguments:
// a virtual asset's identity carries everything the generator needs, and the
// store owns the generator for the life of the process.
type Generator func() ([]byte, error)

// Asset is the identity of one static or generated resource. Identity is
// immutable once created; the *content* behind it may change (a file edited
// on disk, a generator producing fresh output) without the identity moving.
type Asset struct {
	Category string
	Path     string

	// Virtual is true when the asset is backed by a Generator rather
	// than a file under the category root.
	Virtual bool
}

// Hidden reports whether the asset is excluded from default listings:
// its path, or any directory on the way to it, starts with the marker.
// Hidden assets remain individually addressable.
func (a Asset) Hidden(marker byte) bool {
	return hiddenPath(a.Path, marker)
}
