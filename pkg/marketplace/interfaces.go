package marketplace

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// UploadParams describes an object handed to a BlobStore.
type UploadParams struct {
	ObjectKey string
	MimeType  string
	Size      int64
}

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload writes the object under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Delete removes the object. Deleting a missing object succeeds.
	Delete(ctx context.Context, objectKey string) error

	// BaseURL is the public URL prefix objects are served under
	BaseURL() string
}

// ListQuery is the repository form of a list request. Filters are already
// restricted to filterable columns and coerced to column types.
type ListQuery struct {
	Filters   map[string]any
	Search    string
	Limit     int
	Offset    int
	OrderBy   string
	Direction string
}

// Repository defines the interface for entity persistence. One repository
// serves every entity; the schema selects the table.
type Repository interface {
	Insert(ctx context.Context, schema *Schema, rec *Record) error
	Get(ctx context.Context, schema *Schema, id uuid.UUID) (*Record, error)
	// Update writes every attribute of rec. Concurrent updates are last-write-wins.
	Update(ctx context.Context, schema *Schema, rec *Record) error
	Delete(ctx context.Context, schema *Schema, id uuid.UUID) error
	// List returns one page and the total row count for the same predicate.
	List(ctx context.Context, schema *Schema, q ListQuery) ([]*Record, int64, error)
}

// Notifier delivers emails. Failures are logged by callers and never fail
// the operation that triggered them.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

// Service is the entity service shared by every marketplace entity.
type Service interface {
	Create(ctx context.Context, schema *Schema, req CreateRequest) (*Record, error)
	Get(ctx context.Context, schema *Schema, id uuid.UUID) (*Record, error)
	List(ctx context.Context, schema *Schema, req ListRequest) (*Page, error)
	Update(ctx context.Context, schema *Schema, id uuid.UUID, req UpdateRequest) (*Record, error)
	Delete(ctx context.Context, schema *Schema, id uuid.UUID, actor Actor) error

	Approve(ctx context.Context, schema *Schema, id uuid.UUID, req ApproveRequest) (*Record, error)
	Reject(ctx context.Context, schema *Schema, id uuid.UUID, req RejectRequest) (*Record, error)
	BulkApprove(ctx context.Context, schema *Schema, ids []string, req ApproveRequest) (*BulkResult, error)
	BulkReject(ctx context.Context, schema *Schema, ids []string, req RejectRequest) (*BulkResult, error)

	ImportCSV(ctx context.Context, schema *Schema, r io.Reader, actor Actor) (*ImportResult, error)
	ExportCSV(ctx context.Context, schema *Schema, req ListRequest, w io.Writer) error
	WriteTemplate(schema *Schema, w io.Writer) error
}
