package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-marketplace/pkg/marketplace/query"
)

// DefaultNotifyTimeout bounds a single notification attempt.
const DefaultNotifyTimeout = 10 * time.Second

// service implements the Service interface
type service struct {
	repository    Repository
	storage       *Storage
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithStorage sets the attachment storage
func WithStorage(storage *Storage) Option {
	return func(s *service) {
		s.storage = storage
	}
}

// WithNotifier sets the email notifier
func WithNotifier(n Notifier) Option {
	return func(s *service) {
		s.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		s.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithNotifyTimeout bounds each notification attempt
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *service) {
		s.notifyTimeout = d
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		notifier:      NoopNotifier{},
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: DefaultNotifyTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, schema *Schema, req CreateRequest) (*Record, error) {
	if !schema.Moderated && !req.Actor.IsAdmin() {
		return nil, ErrForbidden
	}

	data, dropped := schema.Canonicalize(req.Data)
	if len(dropped) > 0 {
		s.logger.Debug("ignoring unknown fields", "entity", schema.Name, "fields", dropped)
	}

	uploaded, err := checkFiles(schema, req.Files)
	if err != nil {
		return nil, err
	}
	values, err := prepare(schema, data, uploaded, nil)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &Record{
		ID:         uuid.New(),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
		Attributes: values,
	}
	if schema.Moderated {
		if err := s.initialStatus(rec, req); err != nil {
			return nil, err
		}
	}

	stored, err := s.storeFiles(ctx, schema, rec, req.Files)
	if err != nil {
		return nil, err
	}

	if err := s.repository.Insert(ctx, schema, rec); err != nil {
		s.discard(ctx, stored)
		return nil, &RecordError{Entity: schema.Name, ID: rec.ID, Op: "create", Err: err}
	}

	s.logger.Info("record created", "entity", schema.Name, "id", rec.ID, "status", rec.Status, "actor", req.Actor.ID())
	if rec.Status == StatusPending {
		s.notify(ctx, schema, rec, eventSubmitted)
	}
	return rec, nil
}

// initialStatus sets the moderation columns of a new record. Admin records
// default to approved, user submissions are always pending.
func (s *service) initialStatus(rec *Record, req CreateRequest) error {
	if !req.Actor.IsAdmin() {
		rec.Status = StatusPending
		if req.Actor.UserID != "" {
			rec.Attributes[ColumnSubmittedBy] = req.Actor.UserID
		}
		return nil
	}

	status := StatusApproved
	if raw, ok := req.Data[ColumnStatus]; ok && !isEmpty(raw) {
		str, _ := toString(raw)
		status = Status(str)
		if status != StatusApproved && status != StatusPending {
			return NewValidationError(ColumnStatus, "must be approved or pending")
		}
	}
	rec.Status = status
	if status == StatusApproved {
		rec.Attributes[ColumnApprovedAt] = rec.CreatedAt
		rec.Attributes[ColumnApprovedBy] = req.Actor.AdminID
	}
	return nil
}

func (s *service) Get(ctx context.Context, schema *Schema, id uuid.UUID) (*Record, error) {
	rec, err := s.repository.Get(ctx, schema, id)
	if err != nil {
		return nil, &RecordError{Entity: schema.Name, ID: id, Op: "get", Err: err}
	}
	return rec, nil
}

func (s *service) List(ctx context.Context, schema *Schema, req ListRequest) (*Page, error) {
	filters, err := coerceFilters(schema, req.Filters)
	if err != nil {
		return nil, err
	}
	kept, dropped := query.Sanitize(filters, schema.FilterColumns())
	if len(dropped) > 0 {
		s.logger.Debug("ignoring unknown filters", "entity", schema.Name, "filters", dropped)
	}
	if _, ok := kept[ColumnIsActive]; !ok && !req.IncludeInactive {
		kept[ColumnIsActive] = true
	}

	page, limit, offset := query.Paginate(req.Page, req.Limit)
	items, total, err := s.repository.List(ctx, schema, ListQuery{
		Filters:   kept,
		Search:    req.Search,
		Limit:     limit,
		Offset:    offset,
		OrderBy:   req.OrderBy,
		Direction: req.Direction,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", schema.Name, err)
	}
	if items == nil {
		items = []*Record{}
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *service) Update(ctx context.Context, schema *Schema, id uuid.UUID, req UpdateRequest) (*Record, error) {
	existing, err := s.Get(ctx, schema, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(schema, existing, req.Actor); err != nil {
		return nil, err
	}
	// Owners edit a submission only until it is approved.
	if !req.Actor.IsAdmin() && existing.Status == StatusApproved {
		s.logger.Debug("owner edit of approved record refused", "entity", schema.Name, "id", id, "actor", req.Actor.ID())
		return nil, ErrForbidden
	}

	patch, dropped := schema.Canonicalize(req.Patch)
	if len(dropped) > 0 {
		s.logger.Debug("ignoring unknown fields", "entity", schema.Name, "id", id, "fields", dropped)
	}
	uploaded, err := checkFiles(schema, req.Files)
	if err != nil {
		return nil, err
	}
	values, err := prepare(schema, patch, uploaded, existing)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 && len(req.Files) == 0 {
		return existing, nil
	}

	rec := existing.Clone()
	for k, v := range values {
		rec.Attributes[k] = v
	}
	rec.UpdatedAt = s.now()

	stored, err := s.storeFiles(ctx, schema, rec, req.Files)
	if err != nil {
		return nil, err
	}

	if err := s.repository.Update(ctx, schema, rec); err != nil {
		s.discard(ctx, stored)
		return nil, &RecordError{Entity: schema.Name, ID: id, Op: "update", Err: err}
	}

	// Replaced or cleared attachments are removed after the row is written.
	for _, f := range schema.Attachments() {
		old := existing.String(f.Name)
		if old != "" && old != rec.String(f.Name) {
			s.cleanup(ctx, schema, id, old)
		}
	}

	s.logger.Info("record updated", "entity", schema.Name, "id", id, "actor", req.Actor.ID())
	return rec, nil
}

func (s *service) Delete(ctx context.Context, schema *Schema, id uuid.UUID, actor Actor) error {
	rec, err := s.Get(ctx, schema, id)
	if err != nil {
		return err
	}
	if err := authorizeOwner(schema, rec, actor); err != nil {
		return err
	}

	if schema.Moderated {
		if !rec.IsActive {
			return nil
		}
		rec = rec.Clone()
		rec.IsActive = false
		rec.UpdatedAt = s.now()
		if err := s.repository.Update(ctx, schema, rec); err != nil {
			return &RecordError{Entity: schema.Name, ID: id, Op: "delete", Err: err}
		}
		s.logger.Info("record deactivated", "entity", schema.Name, "id", id, "actor", actor.ID())
		return nil
	}

	if err := s.repository.Delete(ctx, schema, id); err != nil {
		return &RecordError{Entity: schema.Name, ID: id, Op: "delete", Err: err}
	}
	for _, f := range schema.Attachments() {
		if u := rec.String(f.Name); u != "" {
			s.cleanup(ctx, schema, id, u)
		}
	}
	s.logger.Info("record deleted", "entity", schema.Name, "id", id, "actor", actor.ID())
	return nil
}

// authorizeOwner allows admins everywhere and users only on moderated
// records they submitted.
func authorizeOwner(schema *Schema, rec *Record, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if !schema.Moderated || actor.UserID == "" || rec.String(ColumnSubmittedBy) != actor.UserID {
		return ErrForbidden
	}
	return nil
}

func checkFiles(schema *Schema, files []Upload) (map[string]bool, error) {
	uploaded := make(map[string]bool, len(files))
	errs := FieldErrors{}
	for _, f := range files {
		field, ok := schema.Field(f.Field)
		switch {
		case !ok || field.Kind != KindAttachment:
			errs[f.Field] = "is not an attachment field"
		case len(f.Data) == 0:
			errs[f.Field] = "file is empty"
		default:
			uploaded[f.Field] = true
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return uploaded, nil
}

// storeFiles uploads each file and writes its URL into rec. On failure the
// objects stored so far are removed.
func (s *service) storeFiles(ctx context.Context, schema *Schema, rec *Record, files []Upload) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.storage == nil {
		return nil, fmt.Errorf("%w: no storage configured", ErrUploadFailed)
	}

	var keys []string
	for _, f := range files {
		key := s.storage.GenerateKey(schema.Folder(), f.Field, f.Filename)
		obj, err := s.storage.Upload(ctx, f.Data, key, f.ContentType, f.Filename)
		if err != nil {
			s.discard(ctx, keys)
			return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, f.Field, err)
		}
		keys = append(keys, obj.Key)
		rec.Attributes[f.Field] = obj.URL
	}
	return keys, nil
}

// discard removes objects uploaded for a write that did not persist.
func (s *service) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("failed to remove orphaned object", "key", key, "err", err)
		}
	}
}

// cleanup deletes a replaced attachment. Failures are logged and never
// fail the operation that replaced it.
// failureMessage returns the per-row or per-id text reported for err.
// Failures the caller did not cause are logged and reported generically.
func (s *service) failureMessage(err error, attrs ...any) string {
	if msg, ok := clientMessage(err); ok {
		return msg
	}
	s.logger.Error("item failed", append(attrs, "err", err)...)
	return "internal error"
}

func (s *service) cleanup(ctx context.Context, schema *Schema, id uuid.UUID, rawURL string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.DeleteURL(context.WithoutCancel(ctx), rawURL); err != nil {
		s.logger.Warn("failed to delete previous attachment",
			"entity", schema.Name, "id", id, "url", rawURL, "err", err)
	}
}

func displayName(schema *Schema, rec *Record) string {
	for _, name := range []string{"name", "title", "full_name", "company_name"} {
		if v := strings.TrimSpace(rec.String(name)); v != "" {
			return v
		}
	}
	for _, f := range schema.Fields {
		if f.Kind == KindString {
			if v := strings.TrimSpace(rec.String(f.Name)); v != "" {
				return v
			}
		}
	}
	return rec.ID.String()
}
