package database

import (
	"time"
)

// CatalogItem is an {id, name} reference row: zones, roles and user statuses.
type CatalogItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RegisteredFace is the single enrolled embedding of a registered user.
type RegisteredFace struct {
	UserID    string
	Embedding []float32
	CreatedAt time.Time
}

// RegisteredUser is an administratively enrolled identity with its catalog details resolved.
type RegisteredUser struct {
	ID                        string
	FullName                  string
	Role                      *CatalogItem
	Status                    *CatalogItem
	AccessZones               []CatalogItem
	ProfilePictureURL         string
	AlertTriggered            bool
	ConsecutiveDeniedAccesses int
}

// HasZone reports whether zoneID is one of the user's access zones.
func (u *RegisteredUser) HasZone(zoneID string) bool {
	for _, z := range u.AccessZones {
		if z.ID == zoneID {
			return true
		}
	}
	return false
}

// ObservedUser is an auto-created record for a face that matched no registered user.
// Embedding and FirstSeenAt never change after creation.
type ObservedUser struct {
	ID                        string
	Embedding                 []float32
	FirstSeenAt               time.Time
	LastSeenAt                time.Time
	AccessCount               int
	LastAccessedZones         []string
	StatusID                  string
	ExpiresAt                 time.Time
	AlertTriggered            bool
	ConsecutiveDeniedAccesses int
	PotentialMatchUserID      *string
	FaceImageURL              *string
	AIAction                  *string
}

// Clone returns a deep copy so callers can compute updates without aliasing the stored record.
func (u *ObservedUser) Clone() *ObservedUser {
	c := *u
	c.Embedding = append([]float32(nil), u.Embedding...)
	c.LastAccessedZones = append([]string(nil), u.LastAccessedZones...)
	return &c
}

// Audit log user types.
const (
	UserTypeRegistered  = "registered"
	UserTypeObserved    = "observed"
	UserTypeNewObserved = "new_observed"
	UserTypeUnknown     = "unknown"
)

// Audit log decisions.
const (
	DecisionUnknown = "unknown"
	DecisionGranted = "access_granted"
	DecisionDenied  = "access_denied"
	DecisionError   = "error"
)

// ValidationLogEntry is the immutable audit record written once per validation request.
// VectorAttempted keeps the raw request vector, which may be malformed.
type ValidationLogEntry struct {
	ID              int64
	UserID          *string
	ObservedUserID  *string
	CameraID        *string
	Result          bool
	UserType        string
	VectorAttempted []float64
	MatchStatus     string
	Decision        string
	Reason          string
	ConfidenceScore *float64
	RequestedZoneID *string
	CreatedAt       time.Time
}

// ObservedFilter narrows observed user listings. Zero values disable a condition.
type ObservedFilter struct {
	StatusID         string // status_id = StatusID
	ExcludeStatusID  string // status_id <> ExcludeStatusID
	MinAccessCountGT int    // access_count > MinAccessCountGT
	AlertOnly        bool   // alert_triggered
	Limit            int
	Offset           int
}

// Matches applies the filter to a record. Limit and Offset are ignored.
func (f ObservedFilter) Matches(u *ObservedUser) bool {
	if f.StatusID != "" && u.StatusID != f.StatusID {
		return false
	}
	if f.ExcludeStatusID != "" && u.StatusID == f.ExcludeStatusID {
		return false
	}
	if f.MinAccessCountGT > 0 && u.AccessCount <= f.MinAccessCountGT {
		return false
	}
	if f.AlertOnly && !u.AlertTriggered {
		return false
	}
	return true
}
