package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/render"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// Error kinds reported in error bodies.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_transition"
	KindUnauthorized      = "unauthorized"
	KindForbidden         = "forbidden"
	KindConflict          = "conflict"
	KindInvalidCSV        = "invalid_csv"
	KindTooLarge          = "too_large"
	KindStorage           = "storage"
	KindDelivery          = "delivery"
	KindBadRequest        = "bad_request"
	KindInternal          = "internal"
)

// FieldDetail is one rejected field of a validation error.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
	Details []FieldDetail `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody under an "error" key.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// classify maps a service error to a status code and error body. 5xx
// bodies never carry the underlying message.
func classify(err error) (int, ErrorBody) {
	var verr *marketplace.ValidationError
	if errors.As(err, &verr) {
		names := make([]string, 0, len(verr.Fields))
		for name := range verr.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		details := make([]FieldDetail, 0, len(names))
		for _, name := range names {
			details = append(details, FieldDetail{Field: name, Message: verr.Fields[name]})
		}
		return http.StatusBadRequest, ErrorBody{Kind: KindValidation, Message: "validation failed", Details: details}
	}

	switch {
	case errors.Is(err, marketplace.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Kind: KindNotFound, Message: "record not found"}
	case errors.Is(err, marketplace.ErrInvalidTransition), errors.Is(err, marketplace.ErrNotModerated):
		return http.StatusBadRequest, ErrorBody{Kind: KindInvalidTransition, Message: err.Error()}
	case errors.Is(err, marketplace.ErrForbidden):
		return http.StatusForbidden, ErrorBody{Kind: KindForbidden, Message: "forbidden"}
	case errors.Is(err, marketplace.ErrDuplicate):
		return http.StatusConflict, ErrorBody{Kind: KindConflict, Message: "record already exists"}
	case errors.Is(err, marketplace.ErrInvalidCSV):
		return http.StatusBadRequest, ErrorBody{Kind: KindInvalidCSV, Message: err.Error()}
	case errors.Is(err, marketplace.ErrObjectTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorBody{Kind: KindTooLarge, Message: "file too large"}
	case errors.Is(err, marketplace.ErrUploadFailed), isStorageError(err):
		return http.StatusBadGateway, ErrorBody{Kind: KindStorage, Message: "file storage unavailable"}
	case errors.Is(err, marketplace.ErrDeliveryFailed):
		return http.StatusBadGateway, ErrorBody{Kind: KindDelivery, Message: "message could not be delivered"}
	}
	return http.StatusInternalServerError, ErrorBody{Kind: KindInternal, Message: "internal server error"}
}

func isStorageError(err error) bool {
	var serr *marketplace.StorageError
	return errors.As(err, &serr)
}

// writeError renders err. Server-side failures are logged with the full
// error since the client only sees a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: body})
}

// writeBadRequest renders a 400 for malformed input that never reached the
// service.
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Kind: KindBadRequest, Message: message}})
}
