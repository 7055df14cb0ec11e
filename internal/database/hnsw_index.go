package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-access/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	FaceCount    int64     `json:"face_count"`
	LastEnrolled time.Time `json:"last_enrolled"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"`
}

const hnswMetadataVersion = 1

// HNSWIndex is an in-memory Euclidean HNSW graph over registered faces, keyed by user ID.
// Removed users stay in the graph until the next rebuild but are filtered out of results.
type HNSWIndex struct {
	graph *hnsw.Graph[string]
	faces map[string]*RegisteredFace
	mu    sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		faces: make(map[string]*RegisteredFace),
	}
}

func newFaceGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromFaces builds the index from a slice of faces.
func (h *HNSWIndex) BuildFromFaces(faces []RegisteredFace) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.faces = make(map[string]*RegisteredFace, len(faces))
	if len(faces) == 0 {
		h.graph = nil
		return
	}

	g := newFaceGraph()
	for i := range faces {
		face := &faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(face.UserID, face.Embedding))
		h.faces[face.UserID] = face
	}
	h.graph = g
}

// Add inserts or replaces a single face.
func (h *HNSWIndex) Add(face RegisteredFace) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(face.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newFaceGraph()
	}
	h.graph.Add(hnsw.MakeNode(face.UserID, face.Embedding))
	h.faces[face.UserID] = &face
}

// Delete removes a face from search results.
func (h *HNSWIndex) Delete(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.faces, userID)
}

// Closest returns the indexed face with the smallest exact L2 distance among the
// graph's nearest candidates.
func (h *HNSWIndex) Closest(query []float32) (facematch.Match, bool, error) {
	return h.ClosestExcluding(query, "")
}

// ClosestExcluding is Closest ignoring the face of excludeUserID.
// When every graph candidate is deleted or excluded it falls back to an exact scan.
func (h *HNSWIndex) ClosestExcluding(query []float32, excludeUserID string) (facematch.Match, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		if len(h.faces) == 0 {
			return facematch.Match{}, false, nil
		}
		return facematch.Match{}, false, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, HNSWSearchCandidates)
	candidates := make([]facematch.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		// The stored face is authoritative: a re-enrolled user may still have an
		// older vector in the graph.
		face, ok := h.faces[n.Key]
		if !ok || face.UserID == excludeUserID {
			continue
		}
		candidates = append(candidates, facematch.Candidate{ID: face.UserID, Embedding: face.Embedding})
	}
	if len(candidates) == 0 {
		candidates = h.liveCandidates(excludeUserID)
	}

	m, ok := facematch.FindClosest(query, candidates)
	return m, ok, nil
}

func (h *HNSWIndex) liveCandidates(excludeUserID string) []facematch.Candidate {
	out := make([]facematch.Candidate, 0, len(h.faces))
	for id, face := range h.faces {
		if id == excludeUserID {
			continue
		}
		out = append(out, facematch.Candidate{ID: id, Embedding: face.Embedding})
	}
	slices.SortFunc(out, func(a, b facematch.Candidate) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// GetFace returns the indexed face of a user.
func (h *HNSWIndex) GetFace(userID string) *RegisteredFace {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.faces[userID]
}

// Count returns the number of indexed faces.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.faces)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// saveFaces writes the indexed faces to a .faces file for fast loading at startup.
func saveFaces(path string, faces []RegisteredFace) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(faces); err != nil {
		return fmt.Errorf("failed to encode faces: %w", err)
	}
	if err := os.WriteFile(path+".faces", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write faces file: %w", err)
	}
	return nil
}

func loadFaces(path string) ([]RegisteredFace, error) {
	data, err := os.ReadFile(path + ".faces") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read faces file: %w", err)
	}

	var faces []RegisteredFace
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&faces); err != nil {
		return nil, fmt.Errorf("failed to decode faces: %w", err)
	}
	return faces, nil
}

// Load reads the graph and face metadata written by Save.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("HNSW index file not found: %s", path)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	faces, err := loadFaces(path)
	if err != nil {
		return fmt.Errorf("failed to load face metadata: %w", err)
	}

	h.graph = saved.Graph
	h.faces = make(map[string]*RegisteredFace, len(faces))
	for i := range faces {
		h.faces[faces[i].UserID] = &faces[i]
	}
	return nil
}

// Save persists the graph, the faces and the staleness metadata next to each other.
// An empty index removes any previously saved files.
func (h *HNSWIndex) Save(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".faces")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	faces := make([]RegisteredFace, 0, len(h.faces))
	for _, face := range h.faces {
		faces = append(faces, *face)
	}
	return saveFaces(path, faces)
}
