package storage

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileHeader builds a real multipart upload so Open works like it does in a request
func fileHeader(t *testing.T, name string, body []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func TestNormalizeFilename(t *testing.T) {
	name := normalizeFilename("My Poster (final).JPG")
	assert.True(t, strings.HasPrefix(name, "My_Poster_final_"), name)
	assert.True(t, strings.HasSuffix(name, ".jpg"), name)
	assert.NotContains(t, name, " ")

	assert.True(t, strings.HasPrefix(normalizeFilename("???.png"), "file_"))
	assert.NotEqual(t, normalizeFilename("a.png"), normalizeFilename("a.png"))
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ls := NewLocalStorage(dir, "/uploads/")

	path, err := ls.Save(ctx, fileHeader(t, "cover.png", []byte("png-bytes")), KindPoster)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "/uploads/posters/cover_"), path)

	onDisk := filepath.Join(dir, "posters", filepath.Base(path))
	data, err := os.ReadFile(onDisk)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, ls.Remove(ctx, path))
	_, err = os.Stat(onDisk)
	assert.True(t, os.IsNotExist(err))

	// removing twice is fine
	require.NoError(t, ls.Remove(ctx, path))

	assert.Error(t, ls.Remove(ctx, "https://cdn.example.com/uploads/posters/x.png"))
	assert.Error(t, ls.Remove(ctx, "/uploads/../secrets.txt"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("a.JPEG"))
	assert.Equal(t, "video/mp4", ContentType("clip.mp4"))
	assert.Equal(t, "application/octet-stream", ContentType("notes.txt"))
}
