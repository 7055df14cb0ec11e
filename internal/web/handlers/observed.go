package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/logging"
	"github.com/kozaktomas/face-access/internal/observed"
)

// ObservedManager applies admin actions and lists observed users.
type ObservedManager interface {
	Apply(ctx context.Context, id string, action observed.Action) (string, error)
	List(ctx context.Context, q observed.ListQuery) (*observed.ListResult, error)
	Delete(ctx context.Context, id string) error
}

// ObservedHandler handles observed user administration.
type ObservedHandler struct {
	manager ObservedManager
	log     logging.Logger
}

// NewObservedHandler creates an observed users handler.
func NewObservedHandler(manager ObservedManager, log logging.Logger) *ObservedHandler {
	if log == nil {
		log = logging.Nop{}
	}
	return &ObservedHandler{manager: manager, log: log}
}

// ObservedActionRequest is the body of POST /api/v1/observed-users/actions.
type ObservedActionRequest struct {
	ObservedUserID string `json:"observedUserId"`
	ActionType     string `json:"actionType"`
}

// Action applies block, extend or register to an observed user.
func (h *ObservedHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req ObservedActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ObservedUserID == "" || req.ActionType == "" {
		respondError(w, http.StatusBadRequest, "Missing observedUserId or actionType.")
		return
	}

	message, err := h.manager.Apply(r.Context(), req.ObservedUserID, observed.Action(req.ActionType))
	if err != nil {
		switch {
		case errors.Is(err, observed.ErrInvalidAction):
			respondError(w, http.StatusBadRequest, "Invalid action type: "+req.ActionType)
		case errors.Is(err, observed.ErrNotImplemented):
			respondError(w, http.StatusNotImplemented,
				fmt.Sprintf("Action '%s' for user %s is not yet implemented.", req.ActionType, req.ObservedUserID))
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "Observed user not found.")
		default:
			h.log.Error(r.Context(), "observed user action failed",
				"observed_user_id", sanitizeForLog(req.ObservedUserID), "action", sanitizeForLog(req.ActionType), "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to update observed user: "+err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

// List handles GET /api/v1/observed-users.
func (h *ObservedHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.manager.List(r.Context(), observed.ListQuery{
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "pageSize", constants.DefaultHandlerPageSize),
		SearchTerm: q.Get("searchTerm"),
		FilterType: q.Get("filterType"),
	})
	if err != nil {
		if errors.Is(err, observed.ErrInvalidFilter) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error(r.Context(), "listing observed users failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/v1/observed-users/{id}.
func (h *ObservedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Delete(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Observed user not found.")
			return
		}
		h.log.Error(r.Context(), "deleting observed user failed", "observed_user_id", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Observed user %s deleted successfully.", id),
	})
}
