package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"directchat/internal/domain"
	"directchat/internal/service"
)

// FileStore keeps uploaded files on local disk and serves them under /uploads.
type FileStore struct {
	dir      string
	maxBytes int64
}

func NewFileStore(dir string, maxBytes int64) *FileStore {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &FileStore{dir: dir, maxBytes: maxBytes}
}

// Receive reads the multipart field named field (falling back to the other
// upload field), stores it and describes it as an attachment. The form's
// remaining values stay available on r.
func (fs *FileStore) Receive(w http.ResponseWriter, r *http.Request, field string) (service.AttachmentInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, fs.maxBytes+1<<20)
	if err := r.ParseMultipartForm(fs.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return service.AttachmentInput{}, domain.Invalid("file exceeds %d MB", fs.maxBytes>>20)
		}
		return service.AttachmentInput{}, domain.Invalid("failed to parse multipart form")
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		alt := "file"
		if field == "file" {
			alt = "image"
		}
		file, header, err = r.FormFile(alt)
	}
	if err != nil {
		return service.AttachmentInput{}, domain.Invalid("missing file")
	}
	defer file.Close()

	return fs.save(file, header)
}

func (fs *FileStore) save(file multipart.File, header *multipart.FileHeader) (service.AttachmentInput, error) {
	if header.Size > fs.maxBytes {
		return service.AttachmentInput{}, domain.Invalid("file exceeds %d MB", fs.maxBytes>>20)
	}

	sniff := make([]byte, 512)
	n, _ := io.ReadFull(file, sniff)
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(sniff[:n])
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return service.AttachmentInput{}, domain.Internal("rewind upload", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	name := uuid.NewString() + ext

	out, err := os.OpenFile(filepath.Join(fs.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return service.AttachmentInput{}, domain.Internal("create upload", err)
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		return service.AttachmentInput{}, domain.Internal("write upload", err)
	}

	return service.AttachmentInput{
		URL:      "/uploads/" + name,
		Name:     filepath.Base(header.Filename),
		MimeType: mimeType,
		Size:     size,
	}, nil
}

// Remove deletes a file previously stored under url. Unknown or foreign urls
// are ignored.
func (fs *FileStore) Remove(url string) error {
	name, ok := strings.CutPrefix(url, "/uploads/")
	if !ok {
		return nil
	}
	path, err := fs.Path(name)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Path resolves a served filename inside the upload directory.
func (fs *FileStore) Path(filename string) (string, error) {
	if filename == "" || filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("%w: invalid filename", domain.ErrValidation)
	}
	return filepath.Join(fs.dir, filename), nil
}

type uploadResponse struct {
	ImageURL string                `json:"imageUrl"`
	Kind     domain.AttachmentKind `json:"kind"`
	Name     string                `json:"name"`
	MimeType string                `json:"mimeType"`
	Size     int64                 `json:"size"`
}

// handleUpload stores a file without sending it. Clients post the returned
// descriptor to send-attachment.
func handleUpload(files *FileStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := files.Receive(w, r, "image")
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, uploadResponse{
			ImageURL: in.URL,
			Kind:     uploadKind(in.MimeType),
			Name:     in.Name,
			MimeType: in.MimeType,
			Size:     in.Size,
		})
	}
}

func uploadKind(mimeType string) domain.AttachmentKind {
	if strings.HasPrefix(mimeType, "image/") {
		return domain.KindImage
	}
	return domain.KindForMime(mimeType)
}

func handleServeUpload(files *FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := files.Path(chi.URLParam(r, "filename"))
		if err != nil {
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, path)
	}
}
