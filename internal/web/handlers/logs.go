package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/logging"
)

// LogsHandler serves the validation audit log.
type LogsHandler struct {
	logs database.LogReader
	log  logging.Logger
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler(logs database.LogReader, log logging.Logger) *LogsHandler {
	if log == nil {
		log = logging.Nop{}
	}
	return &LogsHandler{logs: logs, log: log}
}

// LogEntryResponse is one audit log entry.
type LogEntryResponse struct {
	ID              int64     `json:"id"`
	UserID          *string   `json:"user_id"`
	ObservedUserID  *string   `json:"observed_user_id"`
	CameraID        *string   `json:"camera_id"`
	Result          bool      `json:"result"`
	UserType        string    `json:"user_type"`
	MatchStatus     string    `json:"match_status"`
	Decision        string    `json:"decision"`
	Reason          string    `json:"reason"`
	ConfidenceScore *float64  `json:"confidence_score"`
	RequestedZoneID *string   `json:"requested_zone_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// List handles GET /api/v1/validation-logs.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := min(queryInt(r, "limit", constants.DefaultHandlerPageSize), constants.MaxHandlerPageSize)

	entries, err := h.logs.ListValidationLogs(r.Context(), limit)
	if err != nil {
		h.log.Error(r.Context(), "listing validation logs failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogEntryResponse{
			ID:              e.ID,
			UserID:          e.UserID,
			ObservedUserID:  e.ObservedUserID,
			CameraID:        e.CameraID,
			Result:          e.Result,
			UserType:        e.UserType,
			MatchStatus:     e.MatchStatus,
			Decision:        e.Decision,
			Reason:          e.Reason,
			ConfidenceScore: e.ConfidenceScore,
			RequestedZoneID: e.RequestedZoneID,
			CreatedAt:       e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
