// Package datasource opens the raw byte streams a pipeline reads: the input
// document and script files referenced by path.
package datasource

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"scriptetl/internal/config"
	"scriptetl/internal/datasource/blobds"
	"scriptetl/internal/datasource/file"
)

// Source opens one readable object. Missing objects yield an error matching
// errors.Is(err, fs.ErrNotExist).
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FromConfig builds the input source of a pipeline. Relative file paths are
// resolved against baseDir.
func FromConfig(cfg config.Source, baseDir string) (Source, error) {
	switch cfg.Kind {
	case "file":
		return file.NewLocal(resolve(baseDir, cfg.File.Path)), nil
	case "blob":
		return blobds.New(cfg.Blob.Bucket, cfg.Blob.Key), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Kind)
	}
}

// ScriptSource returns the source of a script file. With an empty bucket the
// key is a filesystem path relative to baseDir.
func ScriptSource(bucket, key, baseDir string) Source {
	if bucket == "" {
		return file.NewLocal(resolve(baseDir, key))
	}
	return blobds.New(bucket, key)
}

// ReadAll opens src and reads it to the end.
func ReadAll(ctx context.Context, src Source) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func resolve(baseDir, p string) string {
	if baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
