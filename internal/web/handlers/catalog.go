package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/logging"
)

// CatalogHandler serves the reference catalogs and registered user details.
type CatalogHandler struct {
	catalog database.CatalogReader
	users   database.UserReader
	log     logging.Logger
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(catalog database.CatalogReader, users database.UserReader, log logging.Logger) *CatalogHandler {
	if log == nil {
		log = logging.Nop{}
	}
	return &CatalogHandler{catalog: catalog, users: users, log: log}
}

func (h *CatalogHandler) respondCatalog(w http.ResponseWriter, r *http.Request, name string,
	list func(context.Context) ([]database.CatalogItem, error)) {
	items, err := list(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "loading catalog failed", "catalog", name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load "+name)
		return
	}
	if items == nil {
		items = []database.CatalogItem{}
	}
	respondJSON(w, http.StatusOK, items)
}

// Zones handles GET /api/v1/zones.
func (h *CatalogHandler) Zones(w http.ResponseWriter, r *http.Request) {
	h.respondCatalog(w, r, "zones", h.catalog.ListZones)
}

// Statuses handles GET /api/v1/user-statuses.
func (h *CatalogHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	h.respondCatalog(w, r, "user statuses", h.catalog.ListStatuses)
}

// Roles handles GET /api/v1/roles.
func (h *CatalogHandler) Roles(w http.ResponseWriter, r *http.Request) {
	h.respondCatalog(w, r, "roles", h.catalog.ListRoles)
}

// UserResponse is a registered user with resolved catalog details.
type UserResponse struct {
	ID                        string                 `json:"id"`
	FullName                  string                 `json:"fullName"`
	Role                      *database.CatalogItem  `json:"role"`
	Status                    *database.CatalogItem  `json:"status"`
	AccessZones               []database.CatalogItem `json:"accessZones"`
	ProfilePictureURL         string                 `json:"profilePictureUrl,omitempty"`
	AlertTriggered            bool                   `json:"alertTriggered"`
	ConsecutiveDeniedAccesses int                    `json:"consecutiveDeniedAccesses"`
}

// User handles GET /api/v1/users/{id}.
func (h *CatalogHandler) User(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := h.users.GetUser(r.Context(), id)
	if err != nil || u == nil {
		if err == nil || isNotFound(err) {
			respondError(w, http.StatusNotFound, "User not found.")
			return
		}
		h.log.Error(r.Context(), "loading user failed", "user_id", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	zones := u.AccessZones
	if zones == nil {
		zones = []database.CatalogItem{}
	}
	respondJSON(w, http.StatusOK, UserResponse{
		ID:                        u.ID,
		FullName:                  u.FullName,
		Role:                      u.Role,
		Status:                    u.Status,
		AccessZones:               zones,
		ProfilePictureURL:         u.ProfilePictureURL,
		AlertTriggered:            u.AlertTriggered,
		ConsecutiveDeniedAccesses: u.ConsecutiveDeniedAccesses,
	})
}
