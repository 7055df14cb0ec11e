//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func embeddingAt(offset float32) []float32 {
	e := make([]float32, 128)
	for i := range e {
		e[i] = float32(i) / 1000
	}
	e[0] += offset
	return e
}

// seedUser inserts a registered user with the given status and zones.
func seedUser(t *testing.T, pool *Pool, id, name, status string, zones ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, full_name, status_id, role_id)
		VALUES ($1, $2,
			(SELECT id FROM user_statuses_catalog WHERE name = $3),
			(SELECT id FROM roles_catalog WHERE name = 'employee'))
	`, id, name, status)
	require.NoError(t, err)
	for _, z := range zones {
		_, err := pool.Exec(ctx, "INSERT INTO zones (id, name) VALUES ($1, $1) ON CONFLICT DO NOTHING", z)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, "INSERT INTO user_zone_access (user_id, zone_id) VALUES ($1, $2)", id, z)
		require.NoError(t, err)
	}
}

func TestMigrationsSeedCatalogs(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	applied, err := pool.MigrationsApplied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial_schema.sql", "002_seed_catalogs.sql"}, applied)

	// Running again is a no-op.
	again, err := pool.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	status, err := pool.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[1].Applied)
	assert.NotEmpty(t, status[1].AppliedAt)

	statuses, err := NewCatalogRepository(pool).ListStatuses(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t,
		[]string{"active", "inactive", "active_temporal", "expired", "blocked", "in_review_admin"}, names)
}

func TestFaceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seedUser(t, pool, "u1", "Alice", "active", "zoneA")
	seedUser(t, pool, "u2", "Bob", "active")

	repo := NewFaceRepository(pool)

	_, ok, err := repo.FindClosestFace(ctx, embeddingAt(0))
	require.NoError(t, err)
	assert.False(t, ok, "no faces enrolled yet")

	require.NoError(t, repo.SaveFace(ctx, database.RegisteredFace{UserID: "u1", Embedding: embeddingAt(0)}))
	require.NoError(t, repo.SaveFace(ctx, database.RegisteredFace{UserID: "u2", Embedding: embeddingAt(2)}))

	count, err := repo.CountFaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("PostgresClosest", func(t *testing.T) {
		m, ok, err := repo.FindClosestFace(ctx, embeddingAt(0.1))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "u1", m.ID)
		assert.InDelta(t, 0.1, m.Distance, 1e-4)
	})

	t.Run("HNSWClosestAndPersist", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "faces.hnsw")
		require.NoError(t, repo.EnableHNSW(ctx, path))
		assert.True(t, repo.IsHNSWEnabled())
		assert.Equal(t, 2, repo.HNSWCount())

		m, ok, err := repo.FindClosestFace(ctx, embeddingAt(1.9))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "u2", m.ID)

		_, err = os.Stat(path + ".meta")
		require.NoError(t, err)

		// A fresh repository reuses the saved index.
		other := NewFaceRepository(pool)
		require.NoError(t, other.EnableHNSW(ctx, path))
		assert.Equal(t, 2, other.HNSWCount())
	})

	t.Run("ReplaceAndDelete", func(t *testing.T) {
		require.NoError(t, repo.SaveFace(ctx, database.RegisteredFace{UserID: "u1", Embedding: embeddingAt(5)}))
		face, err := repo.GetFace(ctx, "u1")
		require.NoError(t, err)
		assert.InDelta(t, 5.0, face.Embedding[0], 1e-6)

		require.NoError(t, repo.DeleteFace(ctx, "u2"))
		_, err = repo.GetFace(ctx, "u2")
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteFace(ctx, "u2"), database.ErrNotFound)

		m, ok, err := repo.FindClosestFace(ctx, embeddingAt(2))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "u1", m.ID)
	})
}

func TestUserRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seedUser(t, pool, "u1", "Alice", "active", "zoneA", "zoneB")
	repo := NewUserRepository(pool)

	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.FullName)
	require.NotNil(t, u.Status)
	assert.Equal(t, "active", u.Status.Name)
	require.NotNil(t, u.Role)
	assert.Equal(t, "employee", u.Role.Name)
	assert.True(t, u.HasZone("zoneB"))
	assert.False(t, u.HasZone("zoneC"))

	require.NoError(t, repo.UpdateDenialState(ctx, "u1", 3, true))
	u, err = repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.ConsecutiveDeniedAccesses)
	assert.True(t, u.AlertTriggered)

	_, err = repo.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateDenialState(ctx, "missing", 1, false), database.ErrNotFound)
}

func TestObservedRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	statuses, err := NewCatalogRepository(pool).ListStatuses(ctx)
	require.NoError(t, err)
	ids := map[string]string{}
	for _, s := range statuses {
		ids[s.Name] = s.ID
	}

	repo := NewObservedRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &database.ObservedUser{
		Embedding:         embeddingAt(0),
		FirstSeenAt:       now,
		LastSeenAt:        now,
		AccessCount:       1,
		LastAccessedZones: []string{"zoneA"},
		StatusID:          ids["active_temporal"],
		ExpiresAt:         now.Add(24 * time.Hour),
	}
	require.NoError(t, repo.CreateObservedUser(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &database.ObservedUser{
		Embedding:   embeddingAt(3),
		FirstSeenAt: now,
		LastSeenAt:  now.Add(time.Minute),
		AccessCount: 7,
		StatusID:    ids["active_temporal"],
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	require.NoError(t, repo.CreateObservedUser(ctx, second))

	m, ok, err := repo.FindClosestObserved(ctx, embeddingAt(0.2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, m.ID)
	assert.InDelta(t, 0.2, m.Distance, 1e-4)

	got, err := repo.GetObservedUser(ctx, first.ID)
	require.NoError(t, err)
	got.AccessCount = 2
	got.LastAccessedZones = []string{"zoneA", "zoneB"}
	got.ConsecutiveDeniedAccesses = 0
	action := "Monitor closely"
	got.AIAction = &action
	require.NoError(t, repo.UpdateObservedUser(ctx, got))

	got, err = repo.GetObservedUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	assert.Equal(t, []string{"zoneA", "zoneB"}, got.LastAccessedZones)
	require.NotNil(t, got.AIAction)
	assert.Equal(t, action, *got.AIAction)
	assert.True(t, got.FirstSeenAt.Equal(now))

	users, err := repo.ListObservedUsers(ctx, database.ObservedFilter{})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, second.ID, users[0].ID, "most recently seen first")

	pending, err := repo.CountObservedUsers(ctx, database.ObservedFilter{
		StatusID: ids["active_temporal"], MinAccessCountGT: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	require.NoError(t, repo.SetObservedStatus(ctx, second.ID, ids["blocked"]))
	extended := now.Add(48 * time.Hour)
	require.NoError(t, repo.ExtendObservedUser(ctx, first.ID, ids["active_temporal"], extended))
	got, err = repo.GetObservedUser(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(extended))

	require.NoError(t, repo.DeleteObservedUser(ctx, second.ID))
	_, err = repo.GetObservedUser(ctx, second.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestLogRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewLogRepository(pool)

	zone := "zoneA"
	confidence := 0.9
	entry := &database.ValidationLogEntry{
		UserType:        database.UserTypeUnknown,
		VectorAttempted: []float64{1, 2},
		MatchStatus:     "invalid_input",
		Decision:        database.DecisionError,
		Reason:          "Invalid input",
		ConfidenceScore: &confidence,
		RequestedZoneID: &zone,
	}
	require.NoError(t, repo.InsertValidationLog(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, repo.InsertValidationLog(ctx, &database.ValidationLogEntry{
		UserType: database.UserTypeUnknown, MatchStatus: "no_match_found",
		Decision: database.DecisionDenied, Reason: "no match",
	}))

	entries, err := repo.ListValidationLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "no_match_found", entries[0].MatchStatus)
	assert.Equal(t, []float64{1, 2}, entries[1].VectorAttempted)
	require.NotNil(t, entries[1].RequestedZoneID)
	assert.Equal(t, zone, *entries[1].RequestedZoneID)
	assert.Nil(t, entries[0].UserID)
}
