package marketplace

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the moderation state of a moderated record.
type Status string

// Moderation status constants.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is one of the known moderation states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// System columns shared by every entity table.
const (
	ColumnID        = "id"
	ColumnStatus    = "status"
	ColumnIsActive  = "is_active"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// Moderation columns present on moderated entity tables.
const (
	ColumnSubmittedBy     = "submitted_by"
	ColumnApprovedAt      = "approved_at"
	ColumnApprovedBy      = "approved_by"
	ColumnAdminComments   = "admin_comments"
	ColumnRejectedAt      = "rejected_at"
	ColumnRejectedBy      = "rejected_by"
	ColumnRejectionReason = "rejection_reason"
)

// Record is one row of an entity table. Attributes holds the entity
// specific columns, including attachment URLs and moderation columns.
type Record struct {
	ID         uuid.UUID
	Status     Status
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Attributes map[string]any
}

// Get returns the attribute value for name.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}

// String returns the attribute as a string, or "" when absent or nil.
func (r *Record) String(name string) string {
	v, ok := r.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Clone returns a deep copy of the attribute map and a shallow copy of the rest.
func (r *Record) Clone() *Record {
	c := *r
	c.Attributes = make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		c.Attributes[k] = v
	}
	return &c
}

// MarshalJSON flattens the attributes next to the system columns.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attributes)+5)
	for k, v := range r.Attributes {
		out[k] = v
	}
	out[ColumnID] = r.ID
	out[ColumnIsActive] = r.IsActive
	out[ColumnCreatedAt] = r.CreatedAt
	out[ColumnUpdatedAt] = r.UpdatedAt
	if r.Status != "" {
		out[ColumnStatus] = r.Status
	}
	return json.Marshal(out)
}

// Page is one page of a list query.
type Page struct {
	Items []*Record `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// Pages returns the number of pages for the current limit. A page without a
// limit holds every row and counts as a single page.
func (p *Page) Pages() int {
	if p.Total == 0 {
		return 0
	}
	if p.Limit <= 0 {
		return 1
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID      string
	AdminID     string
	Email       string
	Permissions []string
}

// IsAdmin reports whether the actor carries an admin identity.
func (a Actor) IsAdmin() bool {
	return a.AdminID != ""
}

// ID returns the admin id for admins and the user id otherwise.
func (a Actor) ID() string {
	if a.AdminID != "" {
		return a.AdminID
	}
	return a.UserID
}

// Upload is an attachment file received with a create or update call.
type Upload struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// StoredObject describes an object written through Storage.
type StoredObject struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// CreateRequest carries the input of Service.Create.
type CreateRequest struct {
	Data  map[string]any
	Files []Upload
	Actor Actor
}

// UpdateRequest carries the input of Service.Update.
type UpdateRequest struct {
	Patch map[string]any
	Files []Upload
	Actor Actor
}

// ListRequest carries the input of Service.List. A Limit of zero or less
// returns every matching row.
type ListRequest struct {
	Filters         map[string]any
	Search          string
	Page            int
	Limit           int
	OrderBy         string
	Direction       string
	IncludeInactive bool
}

// ApproveRequest carries the input of Service.Approve.
type ApproveRequest struct {
	Actor         Actor
	AdminComments string
}

// RejectRequest carries the input of Service.Reject.
type RejectRequest struct {
	Actor           Actor
	RejectionReason string
}

// BulkError reports the failure of one id in a bulk operation.
type BulkError struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult summarises a bulk moderation call.
type BulkResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []BulkError `json:"errors"`
}

// ImportResult summarises a CSV import.
type ImportResult struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}
