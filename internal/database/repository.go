package database

import (
	"context"
	"time"

	"github.com/kozaktomas/face-access/internal/facematch"
)

// FaceReader provides read-only access to registered face embeddings
type FaceReader interface {
	// GetFace returns the enrolled face of a user or ErrNotFound
	GetFace(ctx context.Context, userID string) (*RegisteredFace, error)
	// ListFaces returns every enrolled face
	ListFaces(ctx context.Context) ([]RegisteredFace, error)
	// CountFaces returns the number of enrolled faces
	CountFaces(ctx context.Context) (int, error)
	// FindClosestFace returns the registered face with the smallest L2 distance.
	// The bool is false when no faces are enrolled.
	FindClosestFace(ctx context.Context, embedding []float32) (facematch.Match, bool, error)
}

// FaceWriter provides write access to registered face embeddings
type FaceWriter interface {
	FaceReader

	// FindClosestFaceExcluding is FindClosestFace ignoring the face of excludeUserID
	FindClosestFaceExcluding(ctx context.Context, embedding []float32, excludeUserID string) (facematch.Match, bool, error)
	// SaveFace stores the face, replacing any previous embedding of the same user
	SaveFace(ctx context.Context, face RegisteredFace) error
	// DeleteFace removes the face of a user
	DeleteFace(ctx context.Context, userID string) error
}

// UserReader provides read access to registered users with resolved catalog details
type UserReader interface {
	// GetUser returns the user or ErrNotFound
	GetUser(ctx context.Context, id string) (*RegisteredUser, error)
}

// UserWriter provides the narrow write surface the validation pipeline needs on users
type UserWriter interface {
	UserReader

	// UpdateDenialState persists the consecutive denial counter and alert flag
	UpdateDenialState(ctx context.Context, id string, consecutiveDenied int, alertTriggered bool) error
	// SetProfilePictureURL stores the URL of an uploaded profile picture
	SetProfilePictureURL(ctx context.Context, id, url string) error
}

// ObservedReader provides read access to observed users
type ObservedReader interface {
	// GetObservedUser returns the observed user or ErrNotFound
	GetObservedUser(ctx context.Context, id string) (*ObservedUser, error)
	// FindClosestObserved returns the observed user with the smallest L2 distance.
	// The bool is false when there are no observed users.
	FindClosestObserved(ctx context.Context, embedding []float32) (facematch.Match, bool, error)
	// ListObservedUsers returns matching observed users, most recently seen first
	ListObservedUsers(ctx context.Context, filter ObservedFilter) ([]ObservedUser, error)
	// CountObservedUsers counts matching observed users, ignoring Limit and Offset
	CountObservedUsers(ctx context.Context, filter ObservedFilter) (int, error)
}

// ObservedWriter provides write access to observed users
type ObservedWriter interface {
	ObservedReader

	// CreateObservedUser inserts a new record, assigning an ID when empty
	CreateObservedUser(ctx context.Context, u *ObservedUser) error
	// UpdateObservedUser writes the mutable metadata of an existing record.
	// Embedding, FirstSeenAt and ExpiresAt are never written.
	UpdateObservedUser(ctx context.Context, u *ObservedUser) error
	// SetObservedFaceImage stores the URL of an uploaded capture
	SetObservedFaceImage(ctx context.Context, id, url string) error
	// SetObservedStatus changes the status only
	SetObservedStatus(ctx context.Context, id, statusID string) error
	// ExtendObservedUser sets a new status and expiry
	ExtendObservedUser(ctx context.Context, id, statusID string, expiresAt time.Time) error
	// DeleteObservedUser removes the record
	DeleteObservedUser(ctx context.Context, id string) error
}

// CatalogReader provides the shared reference catalogs
type CatalogReader interface {
	ListStatuses(ctx context.Context) ([]CatalogItem, error)
	ListRoles(ctx context.Context) ([]CatalogItem, error)
	ListZones(ctx context.Context) ([]CatalogItem, error)
}

// LogWriter is the append-only validation log sink
type LogWriter interface {
	InsertValidationLog(ctx context.Context, entry *ValidationLogEntry) error
}

// LogReader provides read access to the validation log
type LogReader interface {
	// ListValidationLogs returns the newest entries first
	ListValidationLogs(ctx context.Context, limit int) ([]ValidationLogEntry, error)
}

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}
