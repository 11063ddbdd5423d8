package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keithlinneman/webassets/internal/cryptoutil"
	"github.com/keithlinneman/webassets/internal/webassets"
	"github.com/keithlinneman/webassets/internal/xerrors"
)

const readmeName = "README.txt"

const readmeText = `This folder is managed automatically. Files in here are rendered asset
artifacts keyed by version token. Do not edit or add files by hand; the
whole folder can be deleted safely and will be regenerated on demand.
`

// Dir is the on-disk artifact store. Layout under the root is
// category/asset-path/token, with the asset path's own separators becoming
// directories.
type Dir struct {
	root string
}

// Open prepares root as a managed artifact folder, creating it and its
// marker file if needed.
func Open(root string) (*Dir, error) {
	if root == "" {
		return nil, xerrors.New("artifact: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, xerrors.Wrap(err, "artifact: create root")
	}
	marker := filepath.Join(root, readmeName)
	if _, err := os.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(marker, []byte(readmeText), 0o644); err != nil {
			return nil, xerrors.Wrap(err, "artifact: write marker")
		}
	} else if err != nil {
		return nil, xerrors.Wrap(err, "artifact: stat marker")
	}
	return &Dir{root: root}, nil
}

// Root returns the managed folder path.
func (d *Dir) Root() string { return d.root }

func (d *Dir) entryPath(category, path, token string) (string, error) {
	if err := checkName(category); err != nil {
		return "", err
	}
	if err := webassets.ValidatePath(path); err != nil {
		return "", err
	}
	if !cryptoutil.IsHex(token) {
		return "", xerrors.Newf("artifact: invalid token %q", token)
	}
	parts := append([]string{d.root, category}, strings.Split(path, "/")...)
	return filepath.Join(filepath.Join(parts...), token), nil
}

// Get implements Cache.
func (d *Dir) Get(ctx context.Context, category, path, token string) (string, []byte, time.Duration, error) {
	file, err := d.entryPath(category, path, token)
	if err != nil {
		return "", nil, 0, err
	}
	info, err := os.Stat(file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, 0, ErrNotFound
	}
	if err != nil {
		return "", nil, 0, xerrors.Wrap(err, "artifact: stat")
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return "", nil, 0, xerrors.Wrap(err, "artifact: read")
	}
	contentType, body, err := decode(raw)
	if err != nil {
		return "", nil, 0, xerrors.Wrap(err, "artifact: decode")
	}
	age := time.Since(info.ModTime())
	if age < 0 {
		age = 0
	}
	return contentType, body, age, nil
}

// Put implements Cache. An existing entry for the key is left untouched.
func (d *Dir) Put(ctx context.Context, category, path, token, contentType string, body []byte) error {
	file, err := d.entryPath(category, path, token)
	if err != nil {
		return err
	}
	if _, err := os.Stat(file); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrap(err, "artifact: stat")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return xerrors.Wrap(err, "artifact: create entry dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), "."+token+".*")
	if err != nil {
		return xerrors.Wrap(err, "artifact: create temp")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encode(contentType, body)); err != nil {
		tmp.Close()
		return xerrors.Wrap(err, "artifact: write temp")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, "artifact: close temp")
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		return xerrors.Wrap(err, "artifact: publish entry")
	}
	return nil
}

func checkName(category string) error {
	if category == "" {
		return xerrors.New("artifact: empty category")
	}
	for i := 0; i < len(category); i++ {
		c := category[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return xerrors.Newf("artifact: invalid category %q", category)
		}
	}
	return nil
}
