// Package access implements the access decision state machine shared by registered
// and observed users, and the observed user lifecycle transitions.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-access/internal/database"
)

// Status names stored in the user status catalog.
const (
	StatusActive         = "active"
	StatusActiveTemporal = "active_temporal"
	StatusExpired        = "expired"
	StatusBlocked        = "blocked"
	StatusInReviewAdmin  = "in_review_admin"
)

// ErrMissingStatus means the status catalog lacks a row the state machine depends on.
var ErrMissingStatus = errors.New("missing essential status in catalog")

// StatusCatalog maps status IDs to names. It is loaded once at startup and injected
// into everything that evaluates or changes observed users.
type StatusCatalog struct {
	names map[string]string
	ids   map[string]string

	ActiveTemporalID string
	ExpiredID        string
	BlockedID        string
	InReviewAdminID  string
}

// NewStatusCatalog builds a catalog from status rows. Every observed-user status must
// be present.
func NewStatusCatalog(items []database.CatalogItem) (*StatusCatalog, error) {
	c := &StatusCatalog{
		names: make(map[string]string, len(items)),
		ids:   make(map[string]string, len(items)),
	}
	for _, item := range items {
		c.names[item.ID] = item.Name
		c.ids[item.Name] = item.ID
	}

	var missing []string
	resolve := func(name string, dst *string) {
		id, ok := c.ids[name]
		if !ok {
			missing = append(missing, name)
			return
		}
		*dst = id
	}
	resolve(StatusActiveTemporal, &c.ActiveTemporalID)
	resolve(StatusExpired, &c.ExpiredID)
	resolve(StatusBlocked, &c.BlockedID)
	resolve(StatusInReviewAdmin, &c.InReviewAdminID)

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingStatus, missing)
	}
	return c, nil
}

// LoadStatusCatalog reads the status rows and builds the catalog.
func LoadStatusCatalog(ctx context.Context, reader database.CatalogReader) (*StatusCatalog, error) {
	items, err := reader.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status catalog: %w", err)
	}
	return NewStatusCatalog(items)
}

// Name returns the status name for an ID.
func (c *StatusCatalog) Name(id string) (string, bool) {
	name, ok := c.names[id]
	return name, ok
}

// ID returns the status ID for a name.
func (c *StatusCatalog) ID(name string) (string, error) {
	id, ok := c.ids[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingStatus, name)
	}
	return id, nil
}

// Details returns the {id, name} pair of a status, or {unknown, Unknown} when the ID
// is not in the catalog.
func (c *StatusCatalog) Details(id string) database.CatalogItem {
	if name, ok := c.names[id]; ok {
		return database.CatalogItem{ID: id, Name: name}
	}
	return database.CatalogItem{ID: "unknown", Name: "Unknown"}
}
