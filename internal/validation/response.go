package validation

import (
	"net/http"
	"time"

	"github.com/kozaktomas/face-access/internal/database"
)

// Response types.
const (
	TypeRegisteredMatched         = "registered_user_matched"
	TypeRegisteredDenied          = "registered_user_access_denied"
	TypeRegisteredDetailsError    = "registered_user_details_error"
	TypeRegisteredRetrievalError  = "registered_user_details_retrieval_error"
	TypeObservedUpdated           = "observed_user_updated"
	TypeObservedDeniedBlocked     = "observed_user_access_denied_blocked"
	TypeObservedDeniedExpired     = "observed_user_access_denied_expired"
	TypeObservedDeniedOtherStatus = "observed_user_access_denied_other_status"
	TypeNewObserved               = "new_observed_user_registered"
	TypeNoMatch                   = "no_match_found"
	TypeClientError               = "client_error"
	TypeError                     = "error"
)

// Audit log match statuses that are not response types.
const (
	MatchStatusInvalidInput        = "invalid_input"
	MatchStatusRegistered          = "registered_match"
	MatchStatusDetailsError        = "registered_user_details_error_view"
	MatchStatusDetailsNull         = "registered_user_details_null_view"
	MatchStatusUnhandled           = "unhandled_exception"
	MatchStatusStatusIDMissing     = "status_id_missing"
	invalidEmbeddingMessage        = "Missing or invalid faceEmbedding in request body."
	noMatchReason                  = "No registered or observed user matched the face embedding within thresholds."
	unhandledReasonPrefix          = "Validation failed due to unhandled internal error: "
	newObservedReasonPrefix        = "New observed user registered for zone: "
	registeredGrantedReasonPrefix  = "Registered user matched, access granted for zone: "
	registeredDeniedReasonTemplate = "Registered user matched, but access denied for zone: %s (Status: %s, Has Zone Access: %t). Consecutive denied attempts: %d. Alert triggered: %t"
)

// Result is a response body together with its HTTP status.
type Result struct {
	Status int
	Body   Response
}

// Response is the validation payload. Field names are part of the public contract.
type Response struct {
	User    UserDetails `json:"user"`
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// UserDetails describes whoever the capture resolved to.
type UserDetails struct {
	ID                   string                 `json:"id"`
	FullName             *string                `json:"full_name"`
	UserType             string                 `json:"user_type"`
	HasAccess            bool                   `json:"hasAccess"`
	Similarity           float64                `json:"similarity"`
	RoleDetails          *database.CatalogItem  `json:"role_details"`
	StatusDetails        database.CatalogItem   `json:"status_details"`
	ZonesAccessedDetails []database.CatalogItem `json:"zones_accessed_details"`
	ObservedDetails      *ObservedDetails       `json:"observed_details,omitempty"`
}

// ObservedDetails is the observed-user block of a response.
type ObservedDetails struct {
	FirstSeenAt          time.Time `json:"firstSeenAt"`
	LastSeenAt           time.Time `json:"lastSeenAt"`
	AccessCount          int       `json:"accessCount"`
	AlertTriggered       bool      `json:"alertTriggered"`
	ExpiresAt            time.Time `json:"expiresAt"`
	PotentialMatchUserID *string   `json:"potentialMatchUserId"`
	Similarity           float64   `json:"similarity"`
	Distance             float64   `json:"distance"`
	FaceImageURL         *string   `json:"faceImageUrl"`
	AIAction             *string   `json:"aiAction"`
}

func strPtr(s string) *string {
	return &s
}

// optional maps blank strings to nil.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func placeholderUser(id, fullName, userType string, similarity float64, status database.CatalogItem) UserDetails {
	return UserDetails{
		ID:                   id,
		FullName:             strPtr(fullName),
		UserType:             userType,
		Similarity:           similarity,
		StatusDetails:        status,
		ZonesAccessedDetails: []database.CatalogItem{},
	}
}

func clientErrorResult() Result {
	return Result{
		Status: http.StatusBadRequest,
		Body: Response{
			User: placeholderUser("N/A", "Client Error", database.UserTypeUnknown, 0,
				database.CatalogItem{ID: "error", Name: "Invalid Input"}),
			Type:    TypeClientError,
			Message: invalidEmbeddingMessage,
			Error:   invalidEmbeddingMessage,
		},
	}
}

func noMatchResult() Result {
	return Result{
		Status: http.StatusNotFound,
		Body: Response{
			User: placeholderUser("N/A", "No Match", database.UserTypeUnknown, 0,
				database.CatalogItem{ID: "no_match", Name: "No Match"}),
			Type:    TypeNoMatch,
			Message: "No registered or observed user found matching the face.",
		},
	}
}

func systemErrorResult(err error) Result {
	return Result{
		Status: http.StatusInternalServerError,
		Body: Response{
			User: placeholderUser("N/A", "System Error", database.UserTypeUnknown, 0,
				database.CatalogItem{ID: "error", Name: "Error"}),
			Type:    TypeError,
			Message: "An internal server error occurred during validation.",
			Error:   err.Error(),
		},
	}
}

func observedDetails(u *database.ObservedUser, similarity, distance float64) *ObservedDetails {
	return &ObservedDetails{
		FirstSeenAt:          u.FirstSeenAt,
		LastSeenAt:           u.LastSeenAt,
		AccessCount:          u.AccessCount,
		AlertTriggered:       u.AlertTriggered,
		ExpiresAt:            u.ExpiresAt,
		PotentialMatchUserID: u.PotentialMatchUserID,
		Similarity:           similarity,
		Distance:             distance,
		FaceImageURL:         u.FaceImageURL,
		AIAction:             u.AIAction,
	}
}
