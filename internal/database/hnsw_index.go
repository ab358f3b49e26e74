package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Count       int       `json:"count"`
	Fingerprint string    `json:"fingerprint"` // digest of the indexed names and image hashes
	Metric      string    `json:"metric"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

const hnswMetadataVersion = 1

// IndexedVector is one embedding to index, keyed by identity name.
type IndexedVector struct {
	Name      string
	Embedding []float32
}

// HNSWIndex wraps the HNSW graph for approximate nearest reference search.
type HNSWIndex struct {
	graph  *hnsw.Graph[string]
	metric string
	path   string // Path to persist the index, optional
	mu     sync.RWMutex
}

// NewHNSWIndex creates an empty index using "euclidean" or "cosine" distance.
func NewHNSWIndex(metric string) *HNSWIndex {
	return &HNSWIndex{metric: metric}
}

// SetPath sets the path for saving/loading the index.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	if h.metric == "cosine" {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}
	return g
}

// Build replaces the index content. When a persisted index with the same
// fingerprint exists at the configured path it is loaded instead of rebuilt,
// otherwise the fresh graph is written there.
func (h *HNSWIndex) Build(vectors []IndexedVector, fingerprint string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(vectors) == 0 {
		h.graph = nil
		return nil
	}

	if h.path != "" {
		if g, ok := h.loadIfFresh(len(vectors), fingerprint); ok {
			h.graph = g
			return nil
		}
	}

	// Names are unique keys, the last vector for a name wins.
	latest := make(map[string]int, len(vectors))
	for i, v := range vectors {
		if len(v.Embedding) > 0 {
			latest[v.Name] = i
		}
	}
	g := h.newGraph()
	for i, v := range vectors {
		if j, ok := latest[v.Name]; ok && j == i {
			g.Add(hnsw.MakeNode(v.Name, v.Embedding))
		}
	}
	h.graph = g

	if h.path != "" {
		meta := HNSWIndexMetadata{Count: len(vectors), Fingerprint: fingerprint, Metric: h.metric, BuildTime: time.Now()}
		if err := h.save(meta); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the names of the k nearest indexed references.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	names := make([]string, len(neighbors))
	for i, n := range neighbors {
		names[i] = n.Key
	}
	return names, nil
}

// Count returns the number of indexed references.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}

// save writes the graph and its metadata. Callers hold the lock.
func (h *HNSWIndex) save(meta HNSWIndexMetadata) error {
	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	meta.Version = hnswMetadataVersion
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", data, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// loadIfFresh imports the persisted graph when its metadata matches. Callers hold the lock.
func (h *HNSWIndex) loadIfFresh(count int, fingerprint string) (*hnsw.Graph[string], bool) {
	meta, err := LoadHNSWMetadata(h.path)
	if err != nil {
		return nil, false
	}
	if meta.Version != hnswMetadataVersion || meta.Count != count ||
		meta.Fingerprint != fingerprint || meta.Metric != h.metric {
		return nil, false
	}

	f, err := os.Open(h.path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	g := h.newGraph()
	if err := g.Import(f); err != nil {
		return nil, false
	}
	return g, true
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
