package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// CodeService issues and checks one-time codes.
type CodeService interface {
	Send(ctx context.Context, contact string) (string, error)
	Verify(ctx context.Context, codeID, code string) (bool, error)
}

type SendCodeRequest struct {
	Contact string `json:"contact"`
}

type SendCodeResponse struct {
	CodeID string `json:"code_id"`
}

type VerifyCodeRequest struct {
	CodeID string `json:"code_id"`
	Code   string `json:"code"`
}

type VerifyCodeResponse struct {
	Verified bool `json:"verified"`
}

// OTPHandler serves the one-time code endpoints.
type OTPHandler struct {
	codes  CodeService
	logger *slog.Logger
}

func NewOTPHandler(codes CodeService, logger *slog.Logger) *OTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OTPHandler{codes: codes, logger: logger}
}

func (h *OTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/send", h.Send)
	r.Post("/verify", h.Verify)
	return r
}

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	id, err := h.codes.Send(r.Context(), req.Contact)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, SendCodeResponse{CodeID: id})
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	errs := marketplace.FieldErrors{}
	if strings.TrimSpace(req.CodeID) == "" {
		errs["code_id"] = "is required"
	}
	if strings.TrimSpace(req.Code) == "" {
		errs["code"] = "is required"
	}
	if len(errs) > 0 {
		writeError(w, r, h.logger, &marketplace.ValidationError{Fields: errs})
		return
	}

	ok, err := h.codes.Verify(r.Context(), req.CodeID, req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, VerifyCodeResponse{Verified: ok})
}
