// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
)

// MockFaceStore is a mock implementation of database.FaceWriter
type MockFaceStore struct {
	mu    sync.RWMutex
	faces map[string]database.RegisteredFace

	// Error injection
	GetError         error
	ListError        error
	FindClosestError error
	SaveError        error
	DeleteError      error
}

// NewMockFaceStore creates a new mock face store
func NewMockFaceStore() *MockFaceStore {
	return &MockFaceStore{faces: make(map[string]database.RegisteredFace)}
}

// AddFace adds a face to the mock store
func (m *MockFaceStore) AddFace(userID string, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[userID] = database.RegisteredFace{
		UserID:    userID,
		Embedding: append([]float32(nil), embedding...),
		CreatedAt: time.Now().UTC(),
	}
}

// GetFace returns the enrolled face of a user
func (m *MockFaceStore) GetFace(ctx context.Context, userID string) (*database.RegisteredFace, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	face, ok := m.faces[userID]
	if !ok {
		return nil, fmt.Errorf("face of user %s: %w", userID, database.ErrNotFound)
	}
	return &face, nil
}

// ListFaces returns every face ordered by user ID
func (m *MockFaceStore) ListFaces(ctx context.Context) ([]database.RegisteredFace, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	faces := make([]database.RegisteredFace, 0, len(m.faces))
	for _, f := range m.faces {
		faces = append(faces, f)
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].UserID < faces[j].UserID })
	return faces, nil
}

// CountFaces returns the number of faces
func (m *MockFaceStore) CountFaces(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

// FindClosestFace scans every face with exact L2 distance
func (m *MockFaceStore) FindClosestFace(ctx context.Context, embedding []float32) (facematch.Match, bool, error) {
	return m.FindClosestFaceExcluding(ctx, embedding, "")
}

// FindClosestFaceExcluding scans every face except the excluded user's
func (m *MockFaceStore) FindClosestFaceExcluding(
	ctx context.Context, embedding []float32, excludeUserID string,
) (facematch.Match, bool, error) {
	if m.FindClosestError != nil {
		return facematch.Match{}, false, m.FindClosestError
	}
	faces, _ := m.ListFaces(ctx)
	candidates := make([]facematch.Candidate, 0, len(faces))
	for _, f := range faces {
		if f.UserID == excludeUserID {
			continue
		}
		candidates = append(candidates, facematch.Candidate{ID: f.UserID, Embedding: f.Embedding})
	}
	match, ok := facematch.FindClosest(embedding, candidates)
	return match, ok, nil
}

// SaveFace stores or replaces a face
func (m *MockFaceStore) SaveFace(ctx context.Context, face database.RegisteredFace) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	if face.CreatedAt.IsZero() {
		face.CreatedAt = time.Now().UTC()
	}
	face.Embedding = append([]float32(nil), face.Embedding...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[face.UserID] = face
	return nil
}

// DeleteFace removes a face
func (m *MockFaceStore) DeleteFace(ctx context.Context, userID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.faces[userID]; !ok {
		return fmt.Errorf("face of user %s: %w", userID, database.ErrNotFound)
	}
	delete(m.faces, userID)
	return nil
}

// MockUserStore is a mock implementation of database.UserWriter
type MockUserStore struct {
	mu    sync.RWMutex
	users map[string]database.RegisteredUser

	// Error injection
	GetError    error
	UpdateError error

	// NilUser makes GetUser return (nil, nil), as a misbehaving backend might
	NilUser bool
}

// NewMockUserStore creates a new mock user store
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{users: make(map[string]database.RegisteredUser)}
}

// AddUser adds a user to the mock store
func (m *MockUserStore) AddUser(u database.RegisteredUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// GetUser returns a copy of the user
func (m *MockUserStore) GetUser(ctx context.Context, id string) (*database.RegisteredUser, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	if m.NilUser {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, database.ErrNotFound)
	}
	u.AccessZones = append([]database.CatalogItem(nil), u.AccessZones...)
	return &u, nil
}

// UpdateDenialState persists the denial counter and alert flag
func (m *MockUserStore) UpdateDenialState(
	ctx context.Context, id string, consecutiveDenied int, alertTriggered bool,
) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, database.ErrNotFound)
	}
	u.ConsecutiveDeniedAccesses = consecutiveDenied
	u.AlertTriggered = alertTriggered
	m.users[id] = u
	return nil
}

// SetProfilePictureURL stores the profile picture URL
func (m *MockUserStore) SetProfilePictureURL(ctx context.Context, id, url string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, database.ErrNotFound)
	}
	u.ProfilePictureURL = url
	m.users[id] = u
	return nil
}

// MockObservedStore is a mock implementation of database.ObservedWriter
type MockObservedStore struct {
	mu    sync.RWMutex
	users map[string]*database.ObservedUser

	// Error injection
	GetError         error
	FindClosestError error
	ListError        error
	CreateError      error
	UpdateError      error
	DeleteError      error
}

// NewMockObservedStore creates a new mock observed user store
func NewMockObservedStore() *MockObservedStore {
	return &MockObservedStore{users: make(map[string]*database.ObservedUser)}
}

// AddObservedUser adds a record to the mock store
func (m *MockObservedStore) AddObservedUser(u database.ObservedUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
}

// Len returns the number of stored records
func (m *MockObservedStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *MockObservedStore) get(id string) (*database.ObservedUser, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("observed user %s: %w", id, database.ErrNotFound)
	}
	return u, nil
}

// GetObservedUser returns a copy of the record
func (m *MockObservedStore) GetObservedUser(ctx context.Context, id string) (*database.ObservedUser, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

// FindClosestObserved scans every record, earliest first seen winning ties
func (m *MockObservedStore) FindClosestObserved(
	ctx context.Context, embedding []float32,
) (facematch.Match, bool, error) {
	if m.FindClosestError != nil {
		return facematch.Match{}, false, m.FindClosestError
	}
	m.mu.RLock()
	users := make([]*database.ObservedUser, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	m.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if !users[i].FirstSeenAt.Equal(users[j].FirstSeenAt) {
			return users[i].FirstSeenAt.Before(users[j].FirstSeenAt)
		}
		return users[i].ID < users[j].ID
	})
	candidates := make([]facematch.Candidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, facematch.Candidate{ID: u.ID, Embedding: u.Embedding})
	}
	match, ok := facematch.FindClosest(embedding, candidates)
	return match, ok, nil
}

func (m *MockObservedStore) filtered(filter database.ObservedFilter) []database.ObservedUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.ObservedUser
	for _, u := range m.users {
		if filter.Matches(u) {
			out = append(out, *u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListObservedUsers returns matching records, most recently seen first
func (m *MockObservedStore) ListObservedUsers(
	ctx context.Context, filter database.ObservedFilter,
) ([]database.ObservedUser, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	out := m.filtered(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountObservedUsers counts matching records
func (m *MockObservedStore) CountObservedUsers(ctx context.Context, filter database.ObservedFilter) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	return len(m.filtered(filter)), nil
}

// CreateObservedUser stores a new record
func (m *MockObservedStore) CreateObservedUser(ctx context.Context, u *database.ObservedUser) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
	return nil
}

// UpdateObservedUser writes the mutable fields, leaving embedding, first seen and expiry untouched
func (m *MockObservedStore) UpdateObservedUser(ctx context.Context, u *database.ObservedUser) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, err := m.get(u.ID)
	if err != nil {
		return err
	}
	next := u.Clone()
	next.Embedding = stored.Embedding
	next.FirstSeenAt = stored.FirstSeenAt
	next.ExpiresAt = stored.ExpiresAt
	next.PotentialMatchUserID = stored.PotentialMatchUserID
	m.users[u.ID] = next
	return nil
}

// SetObservedFaceImage stores the capture URL
func (m *MockObservedStore) SetObservedFaceImage(ctx context.Context, id, url string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.FaceImageURL = &url
	return nil
}

// SetObservedStatus changes the status
func (m *MockObservedStore) SetObservedStatus(ctx context.Context, id, statusID string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.StatusID = statusID
	return nil
}

// ExtendObservedUser sets status and expiry
func (m *MockObservedStore) ExtendObservedUser(
	ctx context.Context, id, statusID string, expiresAt time.Time,
) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.StatusID = statusID
	u.ExpiresAt = expiresAt
	return nil
}

// DeleteObservedUser removes a record
func (m *MockObservedStore) DeleteObservedUser(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.users, id)
	return nil
}

// MockCatalog is a mock implementation of database.CatalogReader
type MockCatalog struct {
	Statuses []database.CatalogItem
	Roles    []database.CatalogItem
	Zones    []database.CatalogItem

	// Error injection
	Error error
}

// DefaultStatuses is the seeded status catalog, with IDs equal to names
var DefaultStatuses = []database.CatalogItem{
	{ID: "active", Name: "active"},
	{ID: "inactive", Name: "inactive"},
	{ID: "active_temporal", Name: "active_temporal"},
	{ID: "expired", Name: "expired"},
	{ID: "blocked", Name: "blocked"},
	{ID: "in_review_admin", Name: "in_review_admin"},
}

// NewMockCatalog creates a catalog holding the default statuses
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{Statuses: append([]database.CatalogItem(nil), DefaultStatuses...)}
}

// ListStatuses returns the statuses
func (m *MockCatalog) ListStatuses(ctx context.Context) ([]database.CatalogItem, error) {
	return m.Statuses, m.Error
}

// ListRoles returns the roles
func (m *MockCatalog) ListRoles(ctx context.Context) ([]database.CatalogItem, error) {
	return m.Roles, m.Error
}

// ListZones returns the zones
func (m *MockCatalog) ListZones(ctx context.Context) ([]database.CatalogItem, error) {
	return m.Zones, m.Error
}

// MockLogStore is a mock implementation of database.LogWriter and database.LogReader
type MockLogStore struct {
	mu      sync.RWMutex
	entries []database.ValidationLogEntry
	nextID  int64

	// Error injection
	InsertError error
}

// NewMockLogStore creates a new mock log store
func NewMockLogStore() *MockLogStore {
	return &MockLogStore{}
}

// InsertValidationLog appends an entry
func (m *MockLogStore) InsertValidationLog(ctx context.Context, entry *database.ValidationLogEntry) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

// ListValidationLogs returns the newest entries first
func (m *MockLogStore) ListValidationLogs(ctx context.Context, limit int) ([]database.ValidationLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.ValidationLogEntry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Entries returns every entry in insertion order
func (m *MockLogStore) Entries() []database.ValidationLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.ValidationLogEntry(nil), m.entries...)
}

// Last returns the most recent entry, or nil when the log is empty
func (m *MockLogStore) Last() *database.ValidationLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return nil
	}
	e := m.entries[len(m.entries)-1]
	return &e
}

// Verify interface compliance
var (
	_ database.FaceWriter     = (*MockFaceStore)(nil)
	_ database.UserWriter     = (*MockUserStore)(nil)
	_ database.ObservedWriter = (*MockObservedStore)(nil)
	_ database.CatalogReader  = (*MockCatalog)(nil)
	_ database.LogWriter      = (*MockLogStore)(nil)
	_ database.LogReader      = (*MockLogStore)(nil)
)
