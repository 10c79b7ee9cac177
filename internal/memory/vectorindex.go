package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// vectorEntry is one in-memory indexed embedding.
type vectorEntry struct {
	projectID string
	vector    []float32
}

// VectorIndex is the in-memory float32 cosine-similarity index backed by
// the chunk_embeddings blob column. One instance is shared process-wide,
// guarded by a single reader-writer lock (the spec's "owned singleton per
// project" collapses to one lock here since a single process serves all
// projects sequentially — see DESIGN.md).
type VectorIndex struct {
	mu         sync.RWMutex
	entries    map[string]vectorEntry // chunk_id -> entry
	dimensions int
	db         *SQLiteMemoryDB
}

// NewVectorIndex builds an index bound to db, rebuilding its in-memory map
// from the persisted blob column. Reads block until the rebuild completes.
func NewVectorIndex(db *SQLiteMemoryDB, dimensions int) (*VectorIndex, error) {
	vi := &VectorIndex{
		entries:    make(map[string]vectorEntry),
		dimensions: dimensions,
		db:         db,
	}
	if err := vi.rebuild(); err != nil {
		return nil, err
	}
	return vi, nil
}

func (vi *VectorIndex) rebuild() error {
	rows, err := vi.db.db.Query(`SELECT chunk_id, project_id, vector FROM chunk_embeddings`)
	if err != nil {
		return fmt.Errorf("failed to rebuild vector index: %w", err)
	}
	defer rows.Close()

	vi.mu.Lock()
	defer vi.mu.Unlock()

	for rows.Next() {
		var chunkID, projectID string
		var blob []byte
		if err := rows.Scan(&chunkID, &projectID, &blob); err != nil {
			return fmt.Errorf("failed to scan embedding row: %w", err)
		}
		vi.entries[chunkID] = vectorEntry{projectID: projectID, vector: decodeVector(blob)}
	}
	return rows.Err()
}

// Store upserts a vector in memory and in the persisted store.
func (vi *VectorIndex) Store(chunkID, projectID string, vector []float32) error {
	if len(vector) != vi.dimensions {
		return ErrDimensionMismatch
	}

	blob := encodeVector(vector)
	_, err := vi.db.db.Exec(`INSERT INTO chunk_embeddings (chunk_id, project_id, vector, dimensions)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, project_id = excluded.project_id,
			dimensions = excluded.dimensions`,
		chunkID, projectID, blob, vi.dimensions)
	if err != nil {
		return fmt.Errorf("failed to persist embedding: %w", err)
	}

	vi.mu.Lock()
	vi.entries[chunkID] = vectorEntry{projectID: projectID, vector: vector}
	vi.mu.Unlock()
	return nil
}

// Remove deletes a vector from memory and the persisted store.
func (vi *VectorIndex) Remove(chunkID string) error {
	if _, err := vi.db.db.Exec(`DELETE FROM chunk_embeddings WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("failed to remove embedding: %w", err)
	}
	vi.mu.Lock()
	delete(vi.entries, chunkID)
	vi.mu.Unlock()
	return nil
}

// VectorHit is one cosine-similarity search result.
type VectorHit struct {
	ChunkID    string
	Similarity float64
}

// Search returns the top-k chunks in project by cosine similarity to q,
// restricted to sim >= minSim, descending. O(N_project * D).
func (vi *VectorIndex) Search(projectID string, q []float32, k int, minSim float64) ([]VectorHit, error) {
	if len(q) != vi.dimensions {
		return nil, ErrDimensionMismatch
	}

	vi.mu.RLock()
	defer vi.mu.RUnlock()

	var hits []VectorHit
	for chunkID, entry := range vi.entries {
		if entry.projectID != projectID {
			continue
		}
		sim := cosineSimilarity(q, entry.vector)
		if sim >= minSim {
			hits = append(hits, VectorHit{ChunkID: chunkID, Similarity: sim})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Dimensions reports the fixed dimensionality enforced by this index.
func (vi *VectorIndex) Dimensions() int { return vi.dimensions }

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors, returning 0 if either is the zero vector.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	n := len(blob) / 4
	v := make([]float32, n)
	buf := bytes.NewReader(blob)
	binary.Read(buf, binary.LittleEndian, &v)
	return v
}
