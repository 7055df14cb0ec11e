package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/logging"
	"github.com/kozaktomas/face-access/internal/validation"
)

// Validator runs the face validation pipeline.
type Validator interface {
	Validate(ctx context.Context, req validation.Request) validation.Result
}

// ValidateHandler serves the kiosk validation endpoint.
type ValidateHandler struct {
	validator Validator
	log       logging.Logger
}

// NewValidateHandler creates a validation handler.
func NewValidateHandler(validator Validator, log logging.Logger) *ValidateHandler {
	if log == nil {
		log = logging.Nop{}
	}
	return &ValidateHandler{validator: validator, log: log}
}

// Validate handles POST /api/v1/validate-user-face. Undecodable bodies are validated
// as empty requests so they are rejected and audited like any other invalid input.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxValidationBodySize)

	var req validation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn(r.Context(), "undecodable validation request", "error", err)
		req = validation.Request{}
	}

	res := h.validator.Validate(r.Context(), req)
	respondJSON(w, res.Status, res.Body)
}
