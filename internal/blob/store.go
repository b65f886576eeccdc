// Package blob stores chat attachments on disk behind an extension
// allow-list and maps them to served URLs.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files outside the allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

// allowedExtensions is the upload allow-list. Matching is by extension
// only; content inspection is out of scope.
var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".pdf": {}, ".doc": {}, ".docx": {},
}

// Stored describes one written attachment.
type Stored struct {
	// DiskName is the opaque on-disk file name (uuid + extension).
	DiskName string
	// OriginalName is the client-supplied file name, base only.
	OriginalName string
	// URL is the path the file is served under.
	URL string
	// SizeBytes is the number of bytes written.
	SizeBytes int64
}

// Store writes attachments under a root directory and serves them
// under a URL prefix.
type Store struct {
	rootDir   string
	urlPrefix string
}

// NewStore creates the root directory if needed.
func NewStore(rootDir, urlPrefix string) (*Store, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("upload root directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &Store{rootDir: rootDir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir returns the on-disk root, for static file serving.
func (s *Store) Dir() string { return s.rootDir }

// Remove deletes a previously stored attachment by its disk name.
func (s *Store) Remove(diskName string) error {
	diskName = filepath.Base(diskName)
	if diskName == "" || diskName == "." {
		return fmt.Errorf("disk name is required")
	}
	return os.Remove(filepath.Join(s.rootDir, diskName))
}

// Allowed reports whether the original file name passes the allow-list.
func Allowed(originalName string) bool {
	ext := strings.ToLower(filepath.Ext(originalName))
	_, ok := allowedExtensions[ext]
	return ok
}

// Put writes one attachment. The original name only contributes its
// extension; the disk name is an opaque uuid so uploads can never
// collide or traverse paths.
func (s *Store) Put(originalName string, r io.Reader) (Stored, error) {
	originalName = filepath.Base(strings.TrimSpace(originalName))
	if originalName == "" || originalName == "." {
		return Stored{}, fmt.Errorf("original file name is required")
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExtensions[ext]; !ok {
		return Stored{}, fmt.Errorf("%q: %w", ext, ErrUnsupportedType)
	}

	diskName := uuid.NewString() + ext

	tempFile, err := os.CreateTemp(s.rootDir, ".upload-*")
	if err != nil {
		return Stored{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	size, copyErr := io.Copy(tempFile, r)
	closeErr := tempFile.Close()
	if copyErr != nil {
		_ = os.Remove(tempPath)
		return Stored{}, fmt.Errorf("write upload bytes: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return Stored{}, fmt.Errorf("close upload file: %w", closeErr)
	}

	finalPath := filepath.Join(s.rootDir, diskName)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return Stored{}, fmt.Errorf("move upload into place: %w", err)
	}

	return Stored{
		DiskName:     diskName,
		OriginalName: originalName,
		URL:          s.urlPrefix + "/" + diskName,
		SizeBytes:    size,
	}, nil
}
