package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
)

// ErrDimensionMismatch is returned when a vector does not fit the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension does not match index")

// HNSWIndexMetadata is persisted next to the graph and maps node keys back to identities.
type HNSWIndexMetadata struct {
	Dim        int               `json:"dim"`
	Entries    map[string]string `json:"entries"` // node key -> identity ID
	BuildTime  time.Time         `json:"build_time"`
	Version    int               `json:"version"`
	Identities int               `json:"identities"`
}

const hnswMetadataVersion = 1

// IndexHit is one approximate nearest neighbour returned by the index.
type IndexHit struct {
	IdentityID string
	Distance   float64
}

// DescriptorIndex wraps an HNSW graph over face descriptors of a fixed dimension.
// Vectors must be added already prepared (normalized or not) by the caller.
type DescriptorIndex struct {
	graph   *hnsw.Graph[string]
	entries map[string]string // node key -> identity ID
	dim     int
	mu      sync.RWMutex
}

// NewDescriptorIndex creates an empty index for vectors of length dim.
func NewDescriptorIndex(dim int) *DescriptorIndex {
	return &DescriptorIndex{
		entries: make(map[string]string),
		dim:     dim,
	}
}

func newDescriptorGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Add inserts one descriptor of an identity.
func (h *DescriptorIndex) Add(identityID string, vec []float32) error {
	if len(vec) != h.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), h.dim)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newDescriptorGraph()
	}
	key := uuid.NewString()
	h.graph.Add(hnsw.MakeNode(key, vec))
	h.entries[key] = identityID
	return nil
}

// BuildFromIdentities replaces the index content with the descriptors of identities.
// Descriptors of another dimension are skipped. prepare may be nil.
// progress, if set, is called once per identity.
func (h *DescriptorIndex) BuildFromIdentities(identities []Identity, prepare func([]float32) []float32, progress func()) int {
	g := newDescriptorGraph()
	entries := make(map[string]string)

	for i := range identities {
		for _, d := range identities[i].Descriptors {
			if prepare != nil {
				d = prepare(d)
			}
			if len(d) != h.dim {
				continue
			}
			key := uuid.NewString()
			g.Add(hnsw.MakeNode(key, d))
			entries[key] = identities[i].ID
		}
		if progress != nil {
			progress()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(entries) == 0 {
		h.graph = nil
	} else {
		h.graph = g
	}
	h.entries = entries
	return len(entries)
}

// Search finds the k nearest descriptors to the query.
func (h *DescriptorIndex) Search(query []float32, k int) ([]IndexHit, error) {
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), h.dim)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.entries) == 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(query, k)
	hits := make([]IndexHit, 0, len(neighbors))
	for _, n := range neighbors {
		identityID, ok := h.entries[n.Key]
		if !ok {
			// Removed identity, still present in the graph.
			continue
		}
		hits = append(hits, IndexHit{
			IdentityID: identityID,
			Distance:   float64(hnsw.EuclideanDistance(query, n.Value)),
		})
	}
	return hits, nil
}

// RemoveIdentity hides all descriptors of an identity from search results.
func (h *DescriptorIndex) RemoveIdentity(identityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// HNSW nodes stay in the graph; dropping the mapping filters them out of Search.
	for key, id := range h.entries {
		if id == identityID {
			delete(h.entries, key)
		}
	}
}

// Count returns the number of searchable descriptors.
func (h *DescriptorIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Dim returns the vector dimension of the index.
func (h *DescriptorIndex) Dim() int {
	return h.dim
}

// Save persists the graph to path and the key mapping to path.meta.
func (h *DescriptorIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	identities := make(map[string]struct{})
	for _, id := range h.entries {
		identities[id] = struct{}{}
	}
	metadata := HNSWIndexMetadata{
		Dim:        h.dim,
		Entries:    h.entries,
		BuildTime:  time.Now(),
		Version:    hnswMetadataVersion,
		Identities: len(identities),
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
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

// Load replaces the index content with a graph previously written by Save.
func (h *DescriptorIndex) Load(path string) error {
	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if metadata.Version != hnswMetadataVersion {
		return fmt.Errorf("unsupported HNSW metadata version %d", metadata.Version)
	}
	if metadata.Dim != h.dim {
		return fmt.Errorf("%w: saved index has %d, want %d", ErrDimensionMismatch, metadata.Dim, h.dim)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}
	saved.Graph.Distance = hnsw.EuclideanDistance

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.entries = metadata.Entries
	if h.entries == nil {
		h.entries = make(map[string]string)
	}
	return nil
}
