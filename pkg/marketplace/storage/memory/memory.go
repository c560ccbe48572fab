package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// DefaultBaseURL is the URL prefix of objects held in memory.
const DefaultBaseURL = "memory://objects"

type object struct {
	data     []byte
	mimeType string
}

// Backend is an in-memory implementation of the marketplace.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// New creates a new in-memory storage backend
func New() *Backend {
	return NewWithBaseURL(DefaultBaseURL)
}

// NewWithBaseURL creates an in-memory backend whose objects are addressed
// under baseURL.
func NewWithBaseURL(baseURL string) *Backend {
	return &Backend{
		objects: make(map[string]object),
		baseURL: baseURL,
	}
}

var _ marketplace.BlobStore = (*Backend)(nil)

// Upload stores content under params.ObjectKey
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params marketplace.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[params.ObjectKey] = object{data: data, mimeType: mimeType}
	return nil
}

// Delete deletes content. Missing objects are ignored.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectKey)
	return nil
}

// BaseURL returns the URL prefix of stored objects
func (b *Backend) BaseURL() string {
	return b.baseURL
}

// Download returns the stored content
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// MimeType returns the stored content type of an object
func (b *Backend) MimeType(objectKey string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[objectKey]
	return obj.mimeType, ok
}

// Exists reports whether an object is stored under objectKey
func (b *Backend) Exists(objectKey string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[objectKey]
	return ok
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
