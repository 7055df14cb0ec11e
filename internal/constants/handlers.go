// Package constants provides shared constants used across the codebase.
package constants

// Handler pagination constants
const (
	// DefaultHandlerPageSize is the page size for paginated handler endpoints
	DefaultHandlerPageSize = 10

	// MaxHandlerPageSize caps the page size a client may request
	MaxHandlerPageSize = 100
)

// Request limits
const (
	// MaxValidationBodySize is the maximum validation request size in bytes (10MB).
	// Captures arrive as base64 data URLs inside the JSON body.
	MaxValidationBodySize = 10 << 20
)
