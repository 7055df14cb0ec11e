package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-access/internal/database"
)

// LogRepository is the append-only validation audit log.
type LogRepository struct {
	pool *Pool
}

// NewLogRepository creates a new PostgreSQL log repository.
func NewLogRepository(pool *Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// InsertValidationLog appends an entry, filling in its ID and creation time.
func (r *LogRepository) InsertValidationLog(ctx context.Context, entry *database.ValidationLogEntry) error {
	query := `
		INSERT INTO logs (user_id, observed_user_id, camera_id, result, user_type, vector_attempted,
		                  match_status, decision, reason, confidence_score, requested_zone_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	vector := entry.VectorAttempted
	if vector == nil {
		vector = []float64{}
	}

	err := r.pool.QueryRow(ctx, query,
		entry.UserID, entry.ObservedUserID, entry.CameraID, entry.Result, entry.UserType,
		pq.Float64Array(vector), entry.MatchStatus, entry.Decision, entry.Reason,
		entry.ConfidenceScore, entry.RequestedZoneID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert validation log: %w", err)
	}
	return nil
}

// ListValidationLogs returns the newest entries first.
func (r *LogRepository) ListValidationLogs(ctx context.Context, limit int) ([]database.ValidationLogEntry, error) {
	query := `
		SELECT id, user_id, observed_user_id, camera_id, result, user_type, vector_attempted,
		       match_status, decision, reason, confidence_score, requested_zone_id, created_at
		FROM logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query validation logs: %w", err)
	}
	defer rows.Close()

	var entries []database.ValidationLogEntry
	for rows.Next() {
		var e database.ValidationLogEntry
		var userID, observedID, cameraID, zoneID sql.NullString
		var confidence sql.NullFloat64
		var vector pq.Float64Array
		if err := rows.Scan(
			&e.ID, &userID, &observedID, &cameraID, &e.Result, &e.UserType, &vector,
			&e.MatchStatus, &e.Decision, &e.Reason, &confidence, &zoneID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan validation log: %w", err)
		}
		e.UserID = nullStringPtr(userID)
		e.ObservedUserID = nullStringPtr(observedID)
		e.CameraID = nullStringPtr(cameraID)
		e.RequestedZoneID = nullStringPtr(zoneID)
		if confidence.Valid {
			c := confidence.Float64
			e.ConfidenceScore = &c
		}
		e.VectorAttempted = []float64(vector)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation logs: %w", err)
	}
	return entries, nil
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

var _ database.LogWriter = (*LogRepository)(nil)
var _ database.LogReader = (*LogRepository)(nil)
