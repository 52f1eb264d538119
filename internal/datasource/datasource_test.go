package datasource

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptetl/internal/config"
	"scriptetl/internal/datasource/blobds"
	"scriptetl/internal/datasource/file"
)

func TestFromConfig(t *testing.T) {
	src, err := FromConfig(config.Source{Kind: "file", File: config.SourceFile{Path: "in.csv"}}, "/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "in.csv"), src.(*file.Local).Path())

	src, err = FromConfig(config.Source{Kind: "file", File: config.SourceFile{Path: "/abs/in.csv"}}, "/data")
	require.NoError(t, err)
	assert.Equal(t, "/abs/in.csv", src.(*file.Local).Path())

	src, err = FromConfig(config.Source{Kind: "blob", Blob: config.SourceBlob{Bucket: "mem://", Key: "k"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "k", src.(*blobds.Source).Key())

	_, err = FromConfig(config.Source{Kind: "ftp"}, "")
	assert.Error(t, err)
}

func TestScriptSourceAndReadAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.lua"), []byte("total = a + b"), 0o644))
	ctx := context.Background()

	got, err := ReadAll(ctx, ScriptSource("", "calc.lua", dir))
	require.NoError(t, err)
	assert.Equal(t, "total = a + b", string(got))

	got, err = ReadAll(ctx, ScriptSource("file://"+filepath.ToSlash(dir), "calc.lua", "/ignored"))
	require.NoError(t, err)
	assert.Equal(t, "total = a + b", string(got))

	_, err = ReadAll(ctx, ScriptSource("", "missing.lua", dir))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
