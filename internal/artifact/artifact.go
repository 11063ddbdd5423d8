// Package artifact is the token-addressed cache of rendered assets and
// bundles. An artifact is written once per distinct version token and served
// unchanged thereafter; because the token is derived from content, a stale
// entry cannot be served under a fresh token.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no artifact exists for the key.
var ErrNotFound = errors.New("artifact not found")

// Cache is the store surface the HTTP layer works against: the local
// directory store and the S3-backed mirror both satisfy it.
type Cache interface {
	// Get returns the artifact's content type, body, and age.
	Get(ctx context.Context, category, path, token string) (string, []byte, time.Duration, error)

	// Put stores an artifact. Storing the same key again is a no-op:
	// token-addressed content never changes under its token.
	Put(ctx context.Context, category, path, token, contentType string, body []byte) error
}

// Artifacts persist as contentType + "\n" + body so a single read recovers
// both without sidecar metadata files.

func encode(contentType string, body []byte) []byte {
	b := make([]byte, 0, len(contentType)+1+len(body))
	b = append(b, contentType...)
	b = append(b, '\n')
	return append(b, body...)
}

func decode(raw []byte) (contentType string, body []byte, err error) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return "", nil, errors.New("malformed artifact: missing content-type header")
	}
	return string(raw[:i]), raw[i+1:], nil
}
