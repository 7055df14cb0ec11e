package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
)

// FaceRepository provides PostgreSQL-backed storage of registered face embeddings
// with an optional in-memory HNSW index for closest-face lookups.
type FaceRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

func scanFace(scanner interface{ Scan(...any) error }) (database.RegisteredFace, error) {
	var face database.RegisteredFace
	var vec pgvector.Vector
	if err := scanner.Scan(&face.UserID, &vec, &face.CreatedAt); err != nil {
		return face, err
	}
	face.Embedding = vec.Slice()
	return face, nil
}

// GetFace returns the enrolled face of a user.
func (r *FaceRepository) GetFace(ctx context.Context, userID string) (*database.RegisteredFace, error) {
	row := r.pool.QueryRow(ctx, "SELECT user_id, embedding, created_at FROM faces WHERE user_id = $1", userID)
	face, err := scanFace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("face of user %s: %w", userID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}
	return &face, nil
}

// ListFaces returns every enrolled face.
func (r *FaceRepository) ListFaces(ctx context.Context) ([]database.RegisteredFace, error) {
	rows, err := r.pool.Query(ctx, "SELECT user_id, embedding, created_at FROM faces ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var faces []database.RegisteredFace
	for rows.Next() {
		face, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// CountFaces returns the number of enrolled faces.
func (r *FaceRepository) CountFaces(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// FindClosestFace returns the registered face nearest to the embedding.
// Uses the in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *FaceRepository) FindClosestFace(
	ctx context.Context, embedding []float32,
) (facematch.Match, bool, error) {
	return r.FindClosestFaceExcluding(ctx, embedding, "")
}

// FindClosestFaceExcluding returns the registered face nearest to the embedding,
// ignoring the face of excludeUserID.
func (r *FaceRepository) FindClosestFaceExcluding(
	ctx context.Context, embedding []float32, excludeUserID string,
) (facematch.Match, bool, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled && index != nil
	r.hnswMu.RUnlock()

	if enabled {
		m, ok, err := index.ClosestExcluding(embedding, excludeUserID)
		if err != nil {
			return facematch.Match{}, false, fmt.Errorf("HNSW search: %w", err)
		}
		return m, ok, nil
	}
	return r.findClosestPostgres(ctx, embedding, excludeUserID)
}

// findClosestPostgres runs the L2 nearest neighbour query with ef_search raised to the
// in-memory graph setting.
func (r *FaceRepository) findClosestPostgres(
	ctx context.Context, embedding []float32, excludeUserID string,
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
		SELECT user_id, embedding <-> $1::vector AS distance
		FROM faces
		WHERE user_id <> $2
		ORDER BY embedding <-> $1::vector, user_id
		LIMIT 1
	`

	var m facematch.Match
	err = tx.QueryRowContext(ctx, query, pgvector.NewVector(embedding), excludeUserID).Scan(&m.ID, &m.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return facematch.Match{}, false, nil
	}
	if err != nil {
		return facematch.Match{}, false, fmt.Errorf("query closest face: %w", err)
	}
	return m, true, nil
}

// SaveFace stores the face, replacing any previous embedding of the user.
func (r *FaceRepository) SaveFace(ctx context.Context, face database.RegisteredFace) error {
	if face.CreatedAt.IsZero() {
		face.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO faces (user_id, embedding, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`
	if _, err := r.pool.Exec(ctx, query, face.UserID, pgvector.NewVector(face.Embedding), face.CreatedAt); err != nil {
		return fmt.Errorf("save face: %w", err)
	}

	r.hnswMu.Lock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(face)
	}
	r.hnswMu.Unlock()
	return nil
}

// DeleteFace removes the enrolled face of a user.
func (r *FaceRepository) DeleteFace(ctx context.Context, userID string) error {
	res, err := r.pool.Exec(ctx, "DELETE FROM faces WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("delete face: %w", err)
	}
	if err := rowsAffectedOrNotFound(res, "delete face"); err != nil {
		return err
	}

	r.hnswMu.Lock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Delete(userID)
	}
	r.hnswMu.Unlock()
	return nil
}

// faceStats returns the values a saved index is validated against.
func (r *FaceRepository) faceStats(ctx context.Context) (database.HNSWIndexMetadata, error) {
	var meta database.HNSWIndexMetadata
	var last sql.NullTime
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), MAX(created_at) FROM faces").Scan(&meta.FaceCount, &last)
	if err != nil {
		return meta, fmt.Errorf("failed to get face stats: %w", err)
	}
	if last.Valid {
		meta.LastEnrolled = last.Time.UTC()
	}
	return meta, nil
}

// tryLoadFaceIndex loads a saved index when its metadata still matches the database.
func (r *FaceRepository) tryLoadFaceIndex(indexPath string, stats database.HNSWIndexMetadata) bool {
	meta, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		return false
	}
	if meta.FaceCount != stats.FaceCount || !meta.LastEnrolled.Equal(stats.LastEnrolled) {
		return false
	}

	index := database.NewHNSWIndex()
	if err := index.Load(indexPath); err != nil {
		return false
	}
	r.hnswIndex = index
	return true
}

// EnableHNSW builds the in-memory index, reusing the saved one at indexPath when fresh.
func (r *FaceRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	stats, err := r.faceStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" && r.tryLoadFaceIndex(indexPath, stats) {
		r.hnswEnabled = true
		return nil
	}

	faces, err := r.ListFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load faces: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	r.hnswIndex.BuildFromFaces(faces)

	if indexPath != "" && len(faces) > 0 {
		stats.BuildTime = time.Now().UTC()
		if err := r.hnswIndex.Save(indexPath, stats); err != nil {
			return fmt.Errorf("failed to save HNSW index to disk: %w", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *FaceRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *FaceRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of faces in the HNSW index.
func (r *FaceRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (r *FaceRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *FaceRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	stats, err := r.faceStats(context.Background())
	if err != nil {
		return err
	}
	stats.BuildTime = time.Now().UTC()

	if err := r.hnswIndex.Save(r.hnswIndexPath, stats); err != nil {
		return fmt.Errorf("saving HNSW face index: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ database.FaceWriter = (*FaceRepository)(nil)
var _ database.HNSWRebuilder = (*FaceRepository)(nil)
