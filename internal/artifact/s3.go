package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/xerrors"
)

// maxArtifactSize caps what the mirror will pull from S3.
const maxArtifactSize = 64 << 20

// Mirror backs a local Dir with an S3 bucket. Reads that miss locally are
// filled from the bucket; writes go to both so every instance sharing the
// bucket converges on the same artifacts.
type Mirror struct {
	local    *Dir
	s3Client *s3.Client
	bucket   string
	prefix   string
	logger   log.Logger
}

// NewMirror wraps local with an S3 remote. prefix may be empty; it is the
// key prefix under which artifacts are stored.
func NewMirror(local *Dir, client *s3.Client, bucket, prefix string, logger log.Logger) (*Mirror, error) {
	if local == nil {
		return nil, xerrors.New("artifact: nil local store")
	}
	if client == nil {
		return nil, xerrors.New("artifact: nil s3 client")
	}
	if bucket == "" {
		return nil, xerrors.New("artifact: empty bucket")
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Mirror{
		local:    local,
		s3Client: client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		logger:   logger,
	}, nil
}

func (m *Mirror) key(category, path, token string) string {
	parts := []string{category, path, token}
	if m.prefix != "" {
		parts = append([]string{m.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// Get implements Cache. A local miss falls through to the bucket and the
// downloaded artifact is written back to the local store.
func (m *Mirror) Get(ctx context.Context, category, path, token string) (string, []byte, time.Duration, error) {
	contentType, body, age, err := m.local.Get(ctx, category, path, token)
	if err == nil {
		return contentType, body, age, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", nil, 0, err
	}

	key := m.key(category, path, token)
	out, err := m.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", nil, 0, ErrNotFound
		}
		return "", nil, 0, xerrors.Wrapf(err, "get s3://%s/%s", m.bucket, key)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(out.Body, maxArtifactSize+1))
	if err != nil {
		return "", nil, 0, xerrors.Wrapf(err, "read s3://%s/%s", m.bucket, key)
	}
	if len(raw) > maxArtifactSize {
		return "", nil, 0, xerrors.Newf("s3://%s/%s exceeds size limit", m.bucket, key)
	}

	contentType, body, err = decode(raw)
	if err != nil {
		return "", nil, 0, xerrors.Wrapf(err, "decode s3://%s/%s", m.bucket, key)
	}

	if err := m.local.Put(ctx, category, path, token, contentType, body); err != nil {
		// The artifact itself is good; a write-back failure only costs
		// the next request another download.
		m.logger.Warn(ctx, "artifact mirror write-back failed",
			"category", category,
			"path", path,
			"token", token,
			"error", err.Error(),
		)
	}
	return contentType, body, 0, nil
}

// Put implements Cache, storing locally then uploading.
func (m *Mirror) Put(ctx context.Context, category, path, token, contentType string, body []byte) error {
	if err := m.local.Put(ctx, category, path, token, contentType, body); err != nil {
		return err
	}
	key := m.key(category, path, token)
	_, err := m.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(encode(contentType, body)),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", m.bucket, key)
	}
	return nil
}
