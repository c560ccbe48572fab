package marketplace

import (
	"strings"
)

// FieldKind selects how an input value is coerced and stored.
type FieldKind int

const (
	KindString FieldKind = iota
	KindText
	KindInt
	KindNumber
	KindBool
	KindDate
	KindTime
	KindEmail
	KindURL
	KindEnum
	KindAttachment
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindInt:
		return "integer"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindTime:
		return "timestamp"
	case KindEmail:
		return "email"
	case KindURL:
		return "url"
	case KindEnum:
		return "enum"
	case KindAttachment:
		return "attachment"
	}
	return "unknown"
}

// Field describes one client-writable column of an entity.
type Field struct {
	Name       string
	Kind       FieldKind
	Required   bool
	Rules      string // extra validator tags, e.g. "max=255"
	Enum       []string
	Searchable bool
	Filterable bool
	Example    string
}

// Schema describes an entity: its table, writable fields and behaviour.
type Schema struct {
	// Name is the singular label used in messages, e.g. "award".
	Name string
	// Table is the backing table.
	Table string
	// Route is the path segment under /api/v1.
	Route string
	// Moderated entities carry a status and are soft deleted.
	Moderated bool
	// ContactField names the attribute holding the submitter email.
	ContactField string
	// AttachmentFolder is the object key prefix for uploads. Defaults to Table.
	AttachmentFolder string
	Fields           []Field
	// Aliases maps legacy input names to canonical field names.
	Aliases map[string]string
}

// Field returns the field named name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Folder returns the object key prefix for attachments.
func (s *Schema) Folder() string {
	if s.AttachmentFolder != "" {
		return s.AttachmentFolder
	}
	return s.Table
}

// SystemColumns returns the server-managed columns of the table.
func (s *Schema) SystemColumns() []string {
	cols := []string{ColumnID, ColumnIsActive, ColumnCreatedAt, ColumnUpdatedAt}
	if s.Moderated {
		cols = append(cols, ColumnStatus, ColumnSubmittedBy,
			ColumnApprovedAt, ColumnApprovedBy, ColumnAdminComments,
			ColumnRejectedAt, ColumnRejectedBy, ColumnRejectionReason)
	}
	return cols
}

// Columns returns every persisted column: system columns then fields.
func (s *Schema) Columns() []string {
	cols := s.SystemColumns()
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// AttributeColumns returns the columns stored in Record.Attributes.
func (s *Schema) AttributeColumns() []string {
	var cols []string
	if s.Moderated {
		cols = append(cols, ColumnSubmittedBy, ColumnApprovedAt, ColumnApprovedBy,
			ColumnAdminComments, ColumnRejectedAt, ColumnRejectedBy, ColumnRejectionReason)
	}
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// FilterColumns returns the columns clients may filter on.
func (s *Schema) FilterColumns() []string {
	cols := []string{ColumnIsActive}
	if s.Moderated {
		cols = append(cols, ColumnStatus, ColumnSubmittedBy)
	}
	for _, f := range s.Fields {
		if f.Filterable {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// SearchColumns returns the text columns matched by a search term.
func (s *Schema) SearchColumns() []string {
	var cols []string
	for _, f := range s.Fields {
		if f.Searchable {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Attachments returns the attachment fields.
func (s *Schema) Attachments() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Kind == KindAttachment {
			out = append(out, f)
		}
	}
	return out
}

// ImportColumns returns the header of the CSV import template. Attachments
// are uploaded, not imported, so they are left out.
func (s *Schema) ImportColumns() []string {
	var cols []string
	for _, f := range s.Fields {
		if f.Kind != KindAttachment {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// isAttachment reports whether key, or the field it aliases, is an
// attachment.
func (s *Schema) isAttachment(key string) bool {
	name := strings.TrimSpace(key)
	f, ok := s.Field(name)
	if !ok {
		canonical, aliased := s.Aliases[name]
		if !aliased {
			return false
		}
		f, ok = s.Field(canonical)
	}
	return ok && f.Kind == KindAttachment
}

// Canonicalize rewrites aliased keys to their canonical names and drops
// every key that is not a writable field. When both an alias and its
// canonical name are present the canonical value wins. The dropped keys are
// returned for logging.
func (s *Schema) Canonicalize(data map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(data))
	var dropped []string
	for key, value := range data {
		name := strings.TrimSpace(key)
		if _, ok := s.Field(name); ok {
			out[name] = value
		}
	}
	for key, value := range data {
		name := strings.TrimSpace(key)
		if _, ok := s.Field(name); ok {
			continue
		}
		canonical, ok := s.Aliases[name]
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		if _, ok := s.Field(canonical); !ok {
			dropped = append(dropped, key)
			continue
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = value
		}
	}
	return out, dropped
}
