package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// DefaultMaxBytes is the size ceiling of the filesystem fallback.
const DefaultMaxBytes = 10 * 1024 * 1024

// Backend is a filesystem implementation of the marketplace.BlobStore
// interface, used when no object store is configured.
type Backend struct {
	baseDir   string
	urlPrefix string
	maxBytes  int64
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // Public URL prefix files are served under
	MaxBytes  int64  // Size ceiling, DefaultMaxBytes when zero
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimRight(config.URLPrefix, "/"),
		maxBytes:  maxBytes,
	}, nil
}

var _ marketplace.BlobStore = (*Backend)(nil)

// Upload writes content to the filesystem. Content larger than the ceiling
// is rejected with marketplace.ErrObjectTooLarge and nothing is kept.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params marketplace.UploadParams) error {
	if params.Size > b.maxBytes {
		return marketplace.ErrObjectTooLarge
	}

	filePath, err := b.path(params.ObjectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(file, io.LimitReader(reader, b.maxBytes+1))
	closeErr := file.Close()
	if err == nil && n > b.maxBytes {
		err = marketplace.ErrObjectTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		if errors.Is(err, marketplace.ErrObjectTooLarge) {
			return err
		}
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Delete removes the file. Missing files are ignored.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// BaseURL returns the public URL prefix of stored files
func (b *Backend) BaseURL() string {
	return b.urlPrefix
}

// Handler serves stored files. Mount it under the path of URLPrefix.
func (b *Backend) Handler() http.Handler {
	return http.FileServer(http.Dir(b.baseDir))
}

func (b *Backend) path(objectKey string) (string, error) {
	clean := filepath.Clean("/" + objectKey)
	if clean == "/" {
		return "", errors.New("object key is required")
	}
	return filepath.Join(b.baseDir, clean), nil
}
