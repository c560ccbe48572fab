package marketplace

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tendant/simple-marketplace/pkg/marketplace/imaging"
	"github.com/tendant/simple-marketplace/pkg/marketplace/objectkey"
)

// DefaultStorageTimeout bounds each call to the blob store.
const DefaultStorageTimeout = 30 * time.Second

// Storage puts attachments into a BlobStore. It names objects, shrinks
// images to the configured budget and maps between keys and public URLs.
type Storage struct {
	store     BlobStore
	backend   string
	keys      objectkey.Generator
	shrink    imaging.Options
	timeout   time.Duration
	logger    *slog.Logger
	observers []UploadObserver
}

// UploadObserver is notified after each stored upload.
type UploadObserver func(backend string, obj StoredObject, shrink imaging.Result)

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithKeyGenerator overrides the object key generator.
func WithKeyGenerator(g objectkey.Generator) StorageOption {
	return func(s *Storage) { s.keys = g }
}

// WithImageBudget sets the byte budget images are shrunk to.
func WithImageBudget(bytes int) StorageOption {
	return func(s *Storage) { s.shrink.Budget = bytes }
}

// WithStorageTimeout bounds each blob store call.
func WithStorageTimeout(d time.Duration) StorageOption {
	return func(s *Storage) { s.timeout = d }
}

// WithStorageLogger sets the logger.
func WithStorageLogger(l *slog.Logger) StorageOption {
	return func(s *Storage) { s.logger = l }
}

// WithUploadObserver registers a callback run after each upload.
func WithUploadObserver(o UploadObserver) StorageOption {
	return func(s *Storage) { s.observers = append(s.observers, o) }
}

// NewStorage wraps store. backend names the store in errors and logs.
func NewStorage(backend string, store BlobStore, opts ...StorageOption) *Storage {
	s := &Storage{
		store:   store,
		backend: backend,
		keys:    objectkey.NewRecommendedGenerator(),
		shrink:  imaging.Options{Budget: imaging.DefaultBudget},
		timeout: DefaultStorageTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend name.
func (s *Storage) Backend() string {
	return s.backend
}

// GenerateKey returns a fresh object key for an attachment.
func (s *Storage) GenerateKey(folder, field, filename string) string {
	return s.keys.GenerateKey(folder, field, filename)
}

// Upload stores data under key. Images above the budget are shrunk first;
// when shrinking cannot meet the budget the original bytes are stored.
func (s *Storage) Upload(ctx context.Context, data []byte, key, contentType, filename string) (*StoredObject, error) {
	if key == "" {
		return nil, &StorageError{Backend: s.backend, Op: "upload", Err: errors.New("object key is required")}
	}
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}

	result := imaging.Result{Data: data, Scale: 1}
	if strings.HasPrefix(contentType, "image/") {
		result = imaging.Shrink(data, s.shrink)
		switch {
		case result.Compressed:
			s.logger.Debug("image compressed", "key", key, "from", len(data), "to", len(result.Data),
				"quality", result.Quality, "level", result.Level, "scale", result.Scale)
		case result.Original:
			s.logger.Warn("image could not be compressed to budget, storing original",
				"key", key, "size", len(data), "budget", s.shrink.Budget, "format", result.Format)
		}
	}
	body := result.Data

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.Upload(ctx, bytes.NewReader(body), UploadParams{
		ObjectKey: key,
		MimeType:  contentType,
		Size:      int64(len(body)),
	})
	if err != nil {
		return nil, &StorageError{Backend: s.backend, Key: key, Op: "upload", Err: err}
	}

	obj := &StoredObject{
		Key:         key,
		URL:         s.URLFor(key),
		ContentType: contentType,
		Size:        int64(len(body)),
	}
	for _, o := range s.observers {
		o(s.backend, *obj, result)
	}
	return obj, nil
}

// Delete removes the object under key. Deleting a missing object succeeds.
func (s *Storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil {
		return &StorageError{Backend: s.backend, Key: key, Op: "delete", Err: err}
	}
	return nil
}

// DeleteURL removes the object a public URL points to. URLs that do not
// belong to this store are ignored.
func (s *Storage) DeleteURL(ctx context.Context, rawURL string) error {
	key, ok := s.KeyFromURL(rawURL)
	if !ok {
		return nil
	}
	return s.Delete(ctx, key)
}

// URLFor returns the public URL of key.
func (s *Storage) URLFor(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(s.store.BaseURL(), "/") + "/" + strings.Join(segments, "/")
}

// KeyFromURL maps a public URL back to its object key. It reports false
// for URLs outside the store's base URL.
func (s *Storage) KeyFromURL(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(strings.TrimRight(s.store.BaseURL(), "/"))
	if err != nil {
		return "", false
	}
	// A base without a host (e.g. "/files") serves root-relative URLs.
	if base.Host != "" || target.Host != "" {
		if !strings.EqualFold(target.Scheme, base.Scheme) || !strings.EqualFold(target.Host, base.Host) {
			return "", false
		}
	}

	prefix := base.Path + "/"
	if !strings.HasPrefix(target.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(target.Path, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".zip":  "application/zip",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

// ContentTypeFor guesses a content type from the filename extension,
// defaulting to application/octet-stream.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" && ext != "" {
		return ct
	}
	return "application/octet-stream"
}
