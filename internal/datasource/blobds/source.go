// Package blobds reads objects from gocloud.dev buckets (file://, mem://,
// s3://, gs://, azblob://).
package blobds

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// Source reads a single object. The bucket is opened per Open call unless
// the source was built over an existing bucket.
type Source struct {
	url    string
	key    string
	bucket *blob.Bucket
}

// New returns a source for key inside the bucket at url.
func New(url, key string) *Source { return &Source{url: url, key: key} }

// FromBucket returns a source over an already open bucket. The bucket stays
// owned by the caller.
func FromBucket(b *blob.Bucket, key string) *Source { return &Source{bucket: b, key: key} }

// Key returns the object key.
func (s *Source) Key() string { return s.key }

// Open returns a streaming reader for the object. Closing it also closes the
// bucket when Open opened it.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	b := s.bucket
	owned := false
	if b == nil {
		var err error
		b, err = blob.OpenBucket(ctx, s.url)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", s.url, err)
		}
		owned = true
	}

	r, err := b.NewReader(ctx, s.key, nil)
	if err != nil {
		if owned {
			b.Close()
		}
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("blob %s: %w", s.key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("blob %s: %w", s.key, err)
	}
	if !owned {
		return r, nil
	}
	return &bucketReader{Reader: r, bucket: b}, nil
}

type bucketReader struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (br *bucketReader) Close() error {
	err := br.Reader.Close()
	if cerr := br.bucket.Close(); err == nil {
		err = cerr
	}
	return err
}
