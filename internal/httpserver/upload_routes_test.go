package httpserver

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directchat/internal/domain"
)

// brokenFile serves a short prefix and then fails, like a client that drops
// mid-upload.
type brokenFile struct {
	r     *bytes.Reader
	reads int
}

func (f *brokenFile) Read(p []byte) (int, error) {
	f.reads++
	if f.reads > 2 {
		return 0, errors.New("connection reset")
	}
	return f.r.Read(p[:min(len(p), 8)])
}

func (f *brokenFile) ReadAt(p []byte, off int64) (int, error) { return f.r.ReadAt(p, off) }

func (f *brokenFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *brokenFile) Close() error { return nil }

func fileHeader(name, contentType string, size int64) *multipart.FileHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	return &multipart.FileHeader{Filename: name, Header: h, Size: size}
}

func TestFailedWriteRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, 1<<20)

	src := &brokenFile{r: bytes.NewReader(bytes.Repeat([]byte("a"), 4096))}
	_, err := fs.save(src, fileHeader("doc.txt", "text/plain", 4096))
	require.ErrorIs(t, err, domain.ErrInternal)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveStoredFile(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, 1<<20)

	in, err := fs.save(readerFile{bytes.NewReader([]byte("hello"))}, fileHeader("a.txt", "text/plain", 5))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, filepath.Base(in.URL)))
	require.NoError(t, err)

	require.NoError(t, fs.Remove(in.URL))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Already gone, foreign or malformed urls are ignored.
	assert.NoError(t, fs.Remove(in.URL))
	assert.NoError(t, fs.Remove("https://cdn.example/x.png"))
	assert.NoError(t, fs.Remove("/uploads/../chat.db"))
}

type readerFile struct{ *bytes.Reader }

func (readerFile) Close() error { return nil }

var (
	_ multipart.File = (*brokenFile)(nil)
	_ multipart.File = readerFile{}
)
