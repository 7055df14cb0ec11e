package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
)

const observedColumns = `id, embedding, first_seen_at, last_seen_at, access_count, last_accessed_zones,
	status_id, expires_at, alert_triggered, consecutive_denied_accesses, potential_match_user_id,
	face_image_url, ai_action`

// ObservedRepository stores auto-created records of unrecognized faces.
type ObservedRepository struct {
	pool *Pool
}

// NewObservedRepository creates a new PostgreSQL observed user repository.
func NewObservedRepository(pool *Pool) *ObservedRepository {
	return &ObservedRepository{pool: pool}
}

func scanObserved(scanner interface{ Scan(...any) error }) (database.ObservedUser, error) {
	var u database.ObservedUser
	var vec pgvector.Vector
	var zones pq.StringArray
	var potentialMatch, faceImage, aiAction sql.NullString
	err := scanner.Scan(
		&u.ID, &vec, &u.FirstSeenAt, &u.LastSeenAt, &u.AccessCount, &zones,
		&u.StatusID, &u.ExpiresAt, &u.AlertTriggered, &u.ConsecutiveDeniedAccesses, &potentialMatch,
		&faceImage, &aiAction,
	)
	if err != nil {
		return u, err
	}
	u.Embedding = vec.Slice()
	u.LastAccessedZones = []string(zones)
	u.PotentialMatchUserID = nullStringPtr(potentialMatch)
	u.FaceImageURL = nullStringPtr(faceImage)
	u.AIAction = nullStringPtr(aiAction)
	return u, nil
}

// GetObservedUser returns the observed user with the given ID.
func (r *ObservedRepository) GetObservedUser(ctx context.Context, id string) (*database.ObservedUser, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+observedColumns+" FROM observed_users WHERE id = $1", id)
	u, err := scanObserved(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("observed user %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get observed user: %w", err)
	}
	return &u, nil
}

// FindClosestObserved returns the observed user nearest to the embedding.
// Ties resolve to the earliest created record.
func (r *ObservedRepository) FindClosestObserved(
	ctx context.Context, embedding []float32,
) (facematch.Match, bool, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return facematch.Match{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return facematch.Match{}, false, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT id, embedding <-> $1::vector AS distance
		FROM observed_users
		ORDER BY embedding <-> $1::vector, first_seen_at, id
		LIMIT 1
	`

	var m facematch.Match
	err = tx.QueryRowContext(ctx, query, pgvector.NewVector(embedding)).Scan(&m.ID, &m.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return facematch.Match{}, false, nil
	}
	if err != nil {
		return facematch.Match{}, false, fmt.Errorf("query closest observed user: %w", err)
	}
	return m, true, nil
}

// observedWhere renders the filter as a WHERE clause with positional arguments.
func observedWhere(filter database.ObservedFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.StatusID != "" {
		add("status_id = $%d", filter.StatusID)
	}
	if filter.ExcludeStatusID != "" {
		add("status_id <> $%d", filter.ExcludeStatusID)
	}
	if filter.MinAccessCountGT > 0 {
		add("access_count > $%d", filter.MinAccessCountGT)
	}
	if filter.AlertOnly {
		conds = append(conds, "alert_triggered")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListObservedUsers returns matching observed users, most recently seen first.
func (r *ObservedRepository) ListObservedUsers(
	ctx context.Context, filter database.ObservedFilter,
) ([]database.ObservedUser, error) {
	where, args := observedWhere(filter)
	query := "SELECT " + observedColumns + " FROM observed_users" + where + " ORDER BY last_seen_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observed users: %w", err)
	}
	defer rows.Close()

	var users []database.ObservedUser
	for rows.Next() {
		u, err := scanObserved(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observed user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observed users: %w", err)
	}
	return users, nil
}

// CountObservedUsers counts matching observed users.
func (r *ObservedRepository) CountObservedUsers(ctx context.Context, filter database.ObservedFilter) (int, error) {
	where, args := observedWhere(filter)
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM observed_users"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count observed users: %w", err)
	}
	return count, nil
}

// zoneArray encodes zones as a text array, never NULL.
func zoneArray(zones []string) any {
	if zones == nil {
		zones = []string{}
	}
	return pq.Array(zones)
}

// CreateObservedUser inserts a new record, assigning a UUID when the ID is empty.
func (r *ObservedRepository) CreateObservedUser(ctx context.Context, u *database.ObservedUser) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `
		INSERT INTO observed_users (id, embedding, first_seen_at, last_seen_at, access_count,
			last_accessed_zones, status_id, expires_at, alert_triggered, consecutive_denied_accesses,
			potential_match_user_id, face_image_url, ai_action)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		u.ID, pgvector.NewVector(u.Embedding), u.FirstSeenAt, u.LastSeenAt, u.AccessCount,
		zoneArray(u.LastAccessedZones), u.StatusID, u.ExpiresAt, u.AlertTriggered, u.ConsecutiveDeniedAccesses,
		u.PotentialMatchUserID, u.FaceImageURL, u.AIAction,
	)
	if err != nil {
		return fmt.Errorf("insert observed user: %w", err)
	}
	return nil
}

// UpdateObservedUser writes the mutable metadata of an existing record.
func (r *ObservedRepository) UpdateObservedUser(ctx context.Context, u *database.ObservedUser) error {
	query := `
		UPDATE observed_users SET
			last_seen_at = $2,
			access_count = $3,
			last_accessed_zones = $4,
			status_id = $5,
			alert_triggered = $6,
			consecutive_denied_accesses = $7,
			face_image_url = $8,
			ai_action = $9
		WHERE id = $1
	`
	res, err := r.pool.Exec(ctx, query,
		u.ID, u.LastSeenAt, u.AccessCount, zoneArray(u.LastAccessedZones), u.StatusID,
		u.AlertTriggered, u.ConsecutiveDeniedAccesses, u.FaceImageURL, u.AIAction,
	)
	if err != nil {
		return fmt.Errorf("update observed user: %w", err)
	}
	return rowsAffectedOrNotFound(res, "update observed user")
}

// SetObservedFaceImage stores the URL of an uploaded capture.
func (r *ObservedRepository) SetObservedFaceImage(ctx context.Context, id, url string) error {
	res, err := r.pool.Exec(ctx, "UPDATE observed_users SET face_image_url = $2 WHERE id = $1", id, url)
	if err != nil {
		return fmt.Errorf("set observed face image: %w", err)
	}
	return rowsAffectedOrNotFound(res, "set observed face image")
}

// SetObservedStatus changes the status of a record.
func (r *ObservedRepository) SetObservedStatus(ctx context.Context, id, statusID string) error {
	res, err := r.pool.Exec(ctx, "UPDATE observed_users SET status_id = $2 WHERE id = $1", id, statusID)
	if err != nil {
		return fmt.Errorf("set observed status: %w", err)
	}
	return rowsAffectedOrNotFound(res, "set observed status")
}

// ExtendObservedUser sets a new status and expiry.
func (r *ObservedRepository) ExtendObservedUser(
	ctx context.Context, id, statusID string, expiresAt time.Time,
) error {
	res, err := r.pool.Exec(ctx,
		"UPDATE observed_users SET status_id = $2, expires_at = $3 WHERE id = $1",
		id, statusID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("extend observed user: %w", err)
	}
	return rowsAffectedOrNotFound(res, "extend observed user")
}

// DeleteObservedUser removes the record.
func (r *ObservedRepository) DeleteObservedUser(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, "DELETE FROM observed_users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete observed user: %w", err)
	}
	return rowsAffectedOrNotFound(res, "delete observed user")
}

var _ database.ObservedWriter = (*ObservedRepository)(nil)
