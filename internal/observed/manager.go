// Package observed implements the administrative actions and the dashboard listing
// for observed users.
package observed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-access/internal/access"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/logging"
)

var (
	// ErrNotImplemented is returned for the register action, which has no defined semantics yet.
	ErrNotImplemented = errors.New("action is not implemented")
	// ErrInvalidAction is returned for unknown action types.
	ErrInvalidAction = errors.New("invalid action type")
)

// Action is an administrative action on an observed user.
type Action string

const (
	ActionBlock    Action = "block"
	ActionExtend   Action = "extend"
	ActionRegister Action = "register"
)

// Manager applies admin actions to observed users.
type Manager struct {
	store    database.ObservedWriter
	catalog  database.CatalogReader
	statuses *access.StatusCatalog
	log      logging.Logger
	now      func() time.Time
}

// NewManager builds a Manager. A nil logger discards output.
func NewManager(store database.ObservedWriter, catalog database.CatalogReader, statuses *access.StatusCatalog, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop{}
	}
	return &Manager{
		store:    store,
		catalog:  catalog,
		statuses: statuses,
		log:      log,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Apply runs an action and returns the confirmation message shown to the operator.
func (m *Manager) Apply(ctx context.Context, id string, action Action) (string, error) {
	switch action {
	case ActionBlock:
		if err := m.Block(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Observed user %s blocked successfully.", id), nil
	case ActionExtend:
		expiresAt, err := m.Extend(ctx, id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Observed user %s access extended successfully. New expiry: %s",
			id, expiresAt.Format(time.RFC3339)), nil
	case ActionRegister:
		return "", m.Register(ctx, id)
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
}

// Block denies the observed user on every future match.
func (m *Manager) Block(ctx context.Context, id string) error {
	u, err := m.store.GetObservedUser(ctx, id)
	if err != nil {
		return fmt.Errorf("block observed user: %w", err)
	}
	m.statuses.Block(u)
	if err := m.store.SetObservedStatus(ctx, u.ID, u.StatusID); err != nil {
		return fmt.Errorf("block observed user: %w", err)
	}
	m.log.Info(ctx, "observed user blocked", "observed_user_id", id)
	return nil
}

// Extend restores temporary access and returns the new expiry.
func (m *Manager) Extend(ctx context.Context, id string) (time.Time, error) {
	u, err := m.store.GetObservedUser(ctx, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("extend observed user: %w", err)
	}
	m.statuses.Extend(u, m.now())
	if err := m.store.ExtendObservedUser(ctx, u.ID, u.StatusID, u.ExpiresAt); err != nil {
		return time.Time{}, fmt.Errorf("extend observed user: %w", err)
	}
	m.log.Info(ctx, "observed user access extended", "observed_user_id", id, "expires_at", u.ExpiresAt)
	return u.ExpiresAt, nil
}

// Register would promote an observed user to a registered one.
func (m *Manager) Register(ctx context.Context, id string) error {
	return fmt.Errorf("register observed user %s: %w", id, ErrNotImplemented)
}

// Delete removes the observed user record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteObservedUser(ctx, id); err != nil {
		return fmt.Errorf("delete observed user: %w", err)
	}
	m.log.Info(ctx, "observed user deleted", "observed_user_id", id)
	return nil
}
