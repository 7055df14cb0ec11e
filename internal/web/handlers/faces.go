package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-access/internal/ai"
	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
	"github.com/kozaktomas/face-access/internal/faces"
	"github.com/kozaktomas/face-access/internal/logging"
)

// FaceService enrolls faces and stores face images.
type FaceService interface {
	Enroll(ctx context.Context, req faces.EnrollRequest) (*faces.EnrollResult, error)
	UploadImage(ctx context.Context, id, imageData string, isObserved bool) (string, error)
}

// FacesHandler handles face enrollment, image uploads and index maintenance.
type FacesHandler struct {
	faces FaceService
	index database.HNSWRebuilder
	log   logging.Logger
}

// NewFacesHandler creates a faces handler. The index may be nil.
func NewFacesHandler(svc FaceService, index database.HNSWRebuilder, log logging.Logger) *FacesHandler {
	if log == nil {
		log = logging.Nop{}
	}
	return &FacesHandler{faces: svc, index: index, log: log}
}

// Enroll handles POST /api/v1/faces.
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxValidationBodySize)

	var req faces.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "Missing userId in request body.")
		return
	}

	res, err := h.faces.Enroll(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, facematch.ErrInvalidEmbedding):
			respondError(w, http.StatusBadRequest, "faceEmbedding must be an array of 128 numbers.")
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "User not found.")
		case errors.Is(err, faces.ErrDuplicateFace):
			respondError(w, http.StatusConflict,
				"A user with a very similar facial profile already exists. Please contact support if you believe this is an error.")
		default:
			h.log.Error(r.Context(), "face enrollment failed", "user_id", sanitizeForLog(req.UserID), "error", err)
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// UploadImageRequest is the body of POST /api/v1/face-images.
type UploadImageRequest struct {
	UserID         string `json:"userId"`
	ImageData      string `json:"imageData"`
	IsObservedUser bool   `json:"isObservedUser"`
}

// UploadImage stores a capture and records its URL on the owning user.
func (h *FacesHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxValidationBodySize)

	var req UploadImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == "" || req.ImageData == "" {
		respondError(w, http.StatusBadRequest, "Missing userId or imageData in request body.")
		return
	}

	url, err := h.faces.UploadImage(r.Context(), req.UserID, req.ImageData, req.IsObservedUser)
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrInvalidImageData):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, faces.ErrUploadDisabled):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "User not found.")
		default:
			h.log.Error(r.Context(), "face image upload failed", "user_id", sanitizeForLog(req.UserID), "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to upload image: "+err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":  "Image uploaded and URL updated successfully",
		"imageUrl": url,
	})
}

// RebuildIndexResponse represents the response for rebuilding the face index.
type RebuildIndexResponse struct {
	Success    bool  `json:"success"`
	FaceCount  int   `json:"face_count"`
	DurationMs int64 `json:"duration_ms"`
}

// RebuildIndex reloads the in-memory registered face index from PostgreSQL.
func (h *FacesHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		respondError(w, http.StatusConflict, "face index is not available")
		return
	}
	startTime := time.Now()

	if err := h.index.RebuildHNSW(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to rebuild face index: "+err.Error())
		return
	}
	if err := h.index.SaveHNSWIndex(); err != nil {
		// The rebuilt index is still usable in memory.
		h.log.Warn(r.Context(), "failed to save face index to disk", "error", err)
	}

	respondJSON(w, http.StatusOK, RebuildIndexResponse{
		Success:    true,
		FaceCount:  h.index.HNSWCount(),
		DurationMs: time.Since(startTime).Milliseconds(),
	})
}
