package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-access/internal/database"
)

// UserRepository reads registered users and persists their denial state.
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetUser returns the user with role, status and access zones resolved.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*database.RegisteredUser, error) {
	query := `
		SELECT u.id, u.full_name, u.profile_picture_url, u.alert_triggered, u.consecutive_denied_accesses,
		       r.id, r.name, s.id, s.name
		FROM users u
		LEFT JOIN roles_catalog r ON r.id = u.role_id
		LEFT JOIN user_statuses_catalog s ON s.id = u.status_id
		WHERE u.id = $1
	`

	var u database.RegisteredUser
	var picture, roleID, roleName, statusID, statusName sql.NullString
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.FullName, &picture, &u.AlertTriggered, &u.ConsecutiveDeniedAccesses,
		&roleID, &roleName, &statusID, &statusName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.ProfilePictureURL = picture.String
	if roleID.Valid {
		u.Role = &database.CatalogItem{ID: roleID.String, Name: roleName.String}
	}
	if statusID.Valid {
		u.Status = &database.CatalogItem{ID: statusID.String, Name: statusName.String}
	}

	zones, err := r.userZones(ctx, id)
	if err != nil {
		return nil, err
	}
	u.AccessZones = zones
	return &u, nil
}

func (r *UserRepository) userZones(ctx context.Context, userID string) ([]database.CatalogItem, error) {
	query := `
		SELECT z.id, z.name
		FROM user_zone_access uz
		JOIN zones z ON z.id = uz.zone_id
		WHERE uz.user_id = $1
		ORDER BY z.name
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user zones: %w", err)
	}
	defer rows.Close()

	zones := []database.CatalogItem{}
	for rows.Next() {
		var z database.CatalogItem
		if err := rows.Scan(&z.ID, &z.Name); err != nil {
			return nil, fmt.Errorf("scan user zone: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user zones: %w", err)
	}
	return zones, nil
}

// UpdateDenialState persists the consecutive denial counter and alert flag.
func (r *UserRepository) UpdateDenialState(
	ctx context.Context, id string, consecutiveDenied int, alertTriggered bool,
) error {
	res, err := r.pool.Exec(ctx,
		"UPDATE users SET consecutive_denied_accesses = $2, alert_triggered = $3 WHERE id = $1",
		id, consecutiveDenied, alertTriggered,
	)
	if err != nil {
		return fmt.Errorf("update denial state: %w", err)
	}
	return rowsAffectedOrNotFound(res, "update denial state")
}

// SetProfilePictureURL stores the URL of an uploaded profile picture.
func (r *UserRepository) SetProfilePictureURL(ctx context.Context, id, url string) error {
	res, err := r.pool.Exec(ctx, "UPDATE users SET profile_picture_url = $2 WHERE id = $1", id, url)
	if err != nil {
		return fmt.Errorf("set profile picture: %w", err)
	}
	return rowsAffectedOrNotFound(res, "set profile picture")
}

var _ database.UserWriter = (*UserRepository)(nil)
