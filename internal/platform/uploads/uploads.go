// Package uploads provides attachment storage for chat messages. It defines
// the Store interface, disk-backed and in-memory implementations, and Echo
// HTTP handlers for multipart upload and download.
package uploads

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed attachment size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// AllowedContentTypes lists attachment MIME types accepted for chat uploads.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// Attachment describes a stored file exactly as it is embedded in a message.
type Attachment struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// Store defines the contract for attachment storage backends.
type Store interface {
	Save(originalName, mimeType string, content io.Reader) (*Attachment, error)
	Open(filename string) (io.ReadCloser, *Attachment, error)
}

// storedName derives the on-store filename: a uuid plus the original
// extension, so uploads never collide and never execute as scripts.
func storedName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return uuid.New().String() + ext
}

func validate(originalName, mimeType string) error {
	if strings.TrimSpace(originalName) == "" {
		return ErrMissingFileName
	}
	if !AllowedContentTypes[mimeType] {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, mimeType)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Disk-backed implementation
// ---------------------------------------------------------------------------

// DiskStore writes attachments under a base directory and serves them from a
// public base URL. Each file gets a sidecar descriptor under .meta/ so the
// original name and MIME type survive a process restart.
type DiskStore struct {
	dir     string
	baseURL string

	mu   sync.RWMutex
	meta map[string]Attachment // filename -> metadata
}

// NewDiskStore creates the upload directory if needed. baseURL is the public
// prefix under which files are served (e.g. "http://localhost:5000/uploads").
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, ".meta"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		meta:    make(map[string]Attachment),
	}, nil
}

func (s *DiskStore) metaPath(name string) string {
	return filepath.Join(s.dir, ".meta", name+".json")
}

func (s *DiskStore) Save(originalName, mimeType string, content io.Reader) (*Attachment, error) {
	if err := validate(originalName, mimeType); err != nil {
		return nil, err
	}

	name := storedName(originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	// +1 so a stream at exactly the limit is distinguishable from one over it
	n, err := io.Copy(f, io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if n > MaxFileSize {
		os.Remove(path)
		return nil, ErrFileTooLarge
	}

	att := Attachment{
		URL:          s.baseURL + "/" + name,
		Filename:     name,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         n,
	}

	encoded, err := json.Marshal(att)
	if err == nil {
		err = os.WriteFile(s.metaPath(name), encoded, 0o644)
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write metadata for %s: %w", name, err)
	}

	s.mu.Lock()
	s.meta[name] = att
	s.mu.Unlock()

	return &att, nil
}

func (s *DiskStore) Open(filename string) (io.ReadCloser, *Attachment, error) {
	// Reject path traversal before touching the filesystem
	if filename != filepath.Base(filename) {
		return nil, nil, ErrFileNotFound
	}

	s.mu.RLock()
	att, ok := s.meta[filename]
	s.mu.RUnlock()

	f, err := os.Open(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, nil, ErrFileNotFound
	}

	if !ok {
		// File predates this process; recover the descriptor from the
		// sidecar, or reconstruct what the filename alone can tell us.
		if data, readErr := os.ReadFile(s.metaPath(filename)); readErr != nil || json.Unmarshal(data, &att) != nil {
			mimeType := mime.TypeByExtension(filepath.Ext(filename))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			att = Attachment{
				URL:          s.baseURL + "/" + filename,
				Filename:     filename,
				OriginalName: filename,
				MimeType:     mimeType,
			}
			if info, statErr := f.Stat(); statErr == nil {
				att.Size = info.Size()
			}
		}
		s.mu.Lock()
		s.meta[filename] = att
		s.mu.Unlock()
	}

	return f, &att, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation (testing and development)
// ---------------------------------------------------------------------------

type memoryFile struct {
	att     Attachment
	content []byte
}

// MemoryStore keeps attachments in process memory.
type MemoryStore struct {
	baseURL string

	mu    sync.RWMutex
	files map[string]memoryFile
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		files:   make(map[string]memoryFile),
	}
}

func (s *MemoryStore) Save(originalName, mimeType string, content io.Reader) (*Attachment, error) {
	if err := validate(originalName, mimeType); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	name := storedName(originalName)
	att := Attachment{
		URL:          s.baseURL + "/" + name,
		Filename:     name,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         int64(len(data)),
	}

	s.mu.Lock()
	s.files[name] = memoryFile{att: att, content: data}
	s.mu.Unlock()

	return &att, nil
}

func (s *MemoryStore) Open(filename string) (io.ReadCloser, *Attachment, error) {
	s.mu.RLock()
	f, ok := s.files[filename]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrFileNotFound
	}
	att := f.att
	return io.NopCloser(bytes.NewReader(f.content)), &att, nil
}

// ---------------------------------------------------------------------------
// HTTP handlers
// ---------------------------------------------------------------------------

// Handler exposes upload/download endpoints over a Store.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the upload endpoint on the authenticated API group
// and the public download endpoint on the root.
func (h *Handler) RegisterRoutes(api *echo.Group, e *echo.Echo) {
	api.POST("/messages/upload", h.Upload)
	e.GET("/uploads/:filename", h.Download)
}

// Upload accepts a multipart form with a single "file" field and returns the
// attachment descriptor to embed in a subsequent message.
func (h *Handler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded")
	}
	if fileHeader.Size > MaxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer src.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	att, err := h.store.Save(fileHeader.Filename, mimeType, src)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidContentType), errors.Is(err, ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}

	return c.JSON(http.StatusOK, map[string]*Attachment{"attachment": att})
}

// Download streams a stored attachment.
func (h *Handler) Download(c echo.Context) error {
	reader, att, err := h.store.Open(c.Param("filename"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	defer reader.Close()

	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(c.Response(), c.Request(), att.Filename, time.Time{}, readSeeker(reader))
	return nil
}

// readSeeker adapts the reader for http.ServeContent; memory readers already
// seek, disk files do too.
func readSeeker(r io.Reader) io.ReadSeeker {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs
	}
	data, _ := io.ReadAll(r)
	return bytes.NewReader(data)
}
