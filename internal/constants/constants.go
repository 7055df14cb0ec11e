// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Embedding constants
const (
	// EmbeddingDim is the fixed dimension of face embeddings produced by the capture client
	EmbeddingDim = 128
)

// Face matching constants
const (
	// RegisteredMatchThreshold is the maximum L2 distance for a capture to resolve to a
	// registered user
	RegisteredMatchThreshold = 0.5

	// ObservedUpdateThreshold is the maximum L2 distance for a capture to update an existing
	// observed user. Stricter than RegisteredMatchThreshold.
	ObservedUpdateThreshold = 0.35

	// DuplicateFaceThreshold is the maximum L2 distance at which enrollment rejects a face
	// as already belonging to another registered user
	DuplicateFaceThreshold = 0.4
)

// Access decision constants
const (
	// DeniedAttemptsThreshold is the number of consecutive denials that raises an alert
	DeniedAttemptsThreshold = 3

	// ObservedAccessTTL is how long temporary access lasts for a new or extended observed user
	ObservedAccessTTL = 24 * time.Hour

	// PendingReviewAccessCount is the access count above which an active observed user is
	// listed as pending review
	PendingReviewAccessCount = 5
)

// Image constants
const (
	// MaxSuggestionImageSize is the maximum dimension (width or height) of captures sent to
	// the suggestion provider
	MaxSuggestionImageSize = 512

	// FaceImageBucket is the default bucket for captured face images
	FaceImageBucket = "face-images"
)
