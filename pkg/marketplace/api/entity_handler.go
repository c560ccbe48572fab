package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxRequestBytes bounds JSON and multipart request bodies.
	MaxRequestBytes = 32 << 20
	// MaxCSVBytes bounds bulk-upload payloads.
	MaxCSVBytes = 10 << 20
)

// Query parameters that are not filters.
var reservedParams = map[string]bool{
	"page":      true,
	"limit":     true,
	"search":    true,
	"sort":      true,
	"order_by":  true,
	"direction": true,
	"order":     true,
}

// PaginationResponse is the pagination block of a list response.
type PaginationResponse struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// ListResponse is the response body of a list call.
type ListResponse struct {
	Items      []*marketplace.Record `json:"items"`
	Pagination PaginationResponse    `json:"pagination"`
}

// ApproveBody is the request body of an approve call.
type ApproveBody struct {
	AdminComments string `json:"admin_comments"`
}

// RejectBody is the request body of a reject call.
type RejectBody struct {
	RejectionReason string `json:"rejection_reason"`
}

// BulkBody is the request body of the bulk moderation calls.
type BulkBody struct {
	IDs             []string `json:"ids"`
	AdminComments   string   `json:"admin_comments"`
	RejectionReason string   `json:"rejection_reason"`
}

// DeleteResponse is the response body of a delete call.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// EntityHandler serves one entity under its route.
type EntityHandler struct {
	service marketplace.Service
	schema  *marketplace.Schema
	logger  *slog.Logger
}

// NewEntityHandler creates a handler for schema.
func NewEntityHandler(service marketplace.Service, schema *marketplace.Schema, logger *slog.Logger) *EntityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityHandler{service: service, schema: schema, logger: logger}
}

// Routes returns the routes for the entity. Authentication must already
// have run.
func (h *EntityHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/template", h.Template)
	r.Get("/{id}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/bulk-upload", h.BulkUpload)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Put("/{id}/approve", h.Approve)
		r.Put("/{id}/reject", h.Reject)
		r.Post("/bulk-approve", h.BulkApprove)
		r.Post("/bulk-reject", h.BulkReject)
		r.Get("/export-csv", h.ExportCSV)
	})

	return r
}

// List returns one page of records. Anonymous callers and users only see
// approved, active records.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	req, err := h.listRequest(r, actor, true)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	page, err := h.service.List(r.Context(), h.schema, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, ListResponse{
		Items: page.Items,
		Pagination: PaginationResponse{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
			Pages: page.Pages(),
		},
	})
}

// Get returns one record.
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), h.schema, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	if !visible(h.schema, rec, actor) {
		writeError(w, r, h.logger, marketplace.ErrNotFound)
		return
	}
	render.JSON(w, r, rec)
}

// Create creates a record from a JSON or multipart body.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	data, files, err := readInput(w, r)
	if err != nil {
		h.writeInputError(w, r, err)
		return
	}

	rec, err := h.service.Create(r.Context(), h.schema, marketplace.CreateRequest{
		Data:  data,
		Files: files,
		Actor: actor,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rec)
}

// Update applies a whitelisted patch.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	patch, files, err := readInput(w, r)
	if err != nil {
		h.writeInputError(w, r, err)
		return
	}

	rec, err := h.service.Update(r.Context(), h.schema, id, marketplace.UpdateRequest{
		Patch: patch,
		Files: files,
		Actor: actor,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, rec)
}

// Delete soft deletes moderated records and hard deletes the rest.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), h.schema, id, actor); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, DeleteResponse{ID: id.String(), Deleted: true})
}

func (h *EntityHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var body ApproveBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	actor, _ := ActorFromContext(r.Context())

	rec, err := h.service.Approve(r.Context(), h.schema, id, marketplace.ApproveRequest{
		Actor:         actor,
		AdminComments: body.AdminComments,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, rec)
}

func (h *EntityHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var body RejectBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	actor, _ := ActorFromContext(r.Context())

	rec, err := h.service.Reject(r.Context(), h.schema, id, marketplace.RejectRequest{
		Actor:           actor,
		RejectionReason: body.RejectionReason,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, rec)
}

func (h *EntityHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var body BulkBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	actor, _ := ActorFromContext(r.Context())

	res, err := h.service.BulkApprove(r.Context(), h.schema, body.IDs, marketplace.ApproveRequest{
		Actor:         actor,
		AdminComments: body.AdminComments,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, res)
}

func (h *EntityHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	var body BulkBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	actor, _ := ActorFromContext(r.Context())

	res, err := h.service.BulkReject(r.Context(), h.schema, body.IDs, marketplace.RejectRequest{
		Actor:           actor,
		RejectionReason: body.RejectionReason,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, res)
}

// Template returns the CSV import template.
func (h *EntityHandler) Template(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.WriteTemplate(h.schema, &buf); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCSV(w, h.schema.Table+"_template.csv", buf.Bytes())
}

// BulkUpload imports the CSV file sent in the "file" form field.
func (h *EntityHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxCSVBytes)
	if err := r.ParseMultipartForm(MaxCSVBytes); err != nil {
		h.writeInputError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, marketplace.NewValidationError("file", "is required"))
		return
	}
	defer file.Close()

	actor, _ := ActorFromContext(r.Context())
	res, err := h.service.ImportCSV(r.Context(), h.schema, file, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, res)
}

// ExportCSV writes every record matching the query filters.
func (h *EntityHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	req, err := h.listRequest(r, actor, false)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), h.schema, req, &buf); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCSV(w, h.schema.Table+"_export.csv", buf.Bytes())
}

// listRequest builds a list request from the query string. paged selects
// whether page and limit are honoured.
func (h *EntityHandler) listRequest(r *http.Request, actor marketplace.Actor, paged bool) (marketplace.ListRequest, error) {
	q := r.URL.Query()
	req := marketplace.ListRequest{
		Filters:   map[string]any{},
		Search:    strings.TrimSpace(q.Get("search")),
		OrderBy:   firstNonEmpty(q.Get("sort"), q.Get("order_by")),
		Direction: firstNonEmpty(q.Get("direction"), q.Get("order")),
	}

	if paged {
		page, err := intParam(q.Get("page"), 1)
		if err != nil {
			return req, errors.New("page must be an integer")
		}
		if page < 1 {
			page = 1
		}
		limit, err := intParam(q.Get("limit"), DefaultPageLimit)
		if err != nil {
			return req, errors.New("limit must be an integer")
		}
		// no limit means the largest page served
		if limit <= 0 || limit > MaxPageLimit {
			limit = MaxPageLimit
		}
		req.Page = page
		req.Limit = limit
	}

	for key, values := range q {
		if reservedParams[key] || len(values) == 0 || values[0] == "" {
			continue
		}
		req.Filters[key] = values[0]
	}

	if !actor.IsAdmin() {
		delete(req.Filters, marketplace.ColumnIsActive)
		delete(req.Filters, marketplace.ColumnSubmittedBy)
		if h.schema.Moderated {
			req.Filters[marketplace.ColumnStatus] = string(marketplace.StatusApproved)
		}
	} else if _, ok := req.Filters[marketplace.ColumnIsActive]; ok {
		req.IncludeInactive = true
	}
	return req, nil
}

func (h *EntityHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, marketplace.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *EntityHandler) writeInputError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, h.logger, marketplace.ErrObjectTooLarge)
		return
	}
	writeBadRequest(w, r, err.Error())
}

// visible reports whether actor may read rec. Admins see everything, and
// submitters see their own records.
func visible(schema *marketplace.Schema, rec *marketplace.Record, actor marketplace.Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.UserID != "" && rec.String(marketplace.ColumnSubmittedBy) == actor.UserID {
		return true
	}
	if !rec.IsActive {
		return false
	}
	return !schema.Moderated || rec.Status == marketplace.StatusApproved
}

// readInput decodes a JSON object or a multipart form into field values
// and uploaded files.
func readInput(w http.ResponseWriter, r *http.Request) (map[string]any, []marketplace.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipart(r)
	}

	data := map[string]any{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return data, nil, nil
}

func readMultipart(r *http.Request) (map[string]any, []marketplace.Upload, error) {
	if err := r.ParseMultipartForm(MaxRequestBytes); err != nil {
		return nil, nil, err
	}
	defer r.MultipartForm.RemoveAll()

	data := make(map[string]any, len(r.MultipartForm.Value))
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			data[key] = values[0]
		}
	}

	var files []marketplace.Upload
	for field, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", field, err)
		}
		body, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", field, err)
		}
		files = append(files, marketplace.Upload{
			Field:       field,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        body,
		})
	}
	return data, files, nil
}

// decodeOptionalJSON decodes the body into v. An empty body leaves v
// untouched.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeCSV(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
