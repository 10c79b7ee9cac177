package memory

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// stopWords is the tokenizer's stop-word set; lowercase English function
// words carry no discriminative weight for keyword search.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "it": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "we": true,
}

// tokenize lowercases, splits on Unicode word boundaries, and drops
// stop-words and tokens shorter than 2 bytes.
func tokenize(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

type bm25Doc struct {
	projectID string
	chunkType ChunkType
	termFreq  map[string]int
	length    int
}

// BM25Index is the in-memory inverted index over chunk content, scored
// with standard BM25 (k1≈1.2, b≈0.75). Guarded by a single reader-writer
// lock, mirroring VectorIndex.
type BM25Index struct {
	mu          sync.RWMutex
	docs        map[string]*bm25Doc // chunk_id -> doc
	df          map[string]int      // term -> document frequency, per project keyed as "project\x00term"
	totalLength map[string]int      // project_id -> sum of doc lengths
	docCount    map[string]int      // project_id -> number of docs
	db          *SQLiteMemoryDB
}

// NewBM25Index builds an index bound to db, rebuilding from persisted
// chunk content.
func NewBM25Index(db *SQLiteMemoryDB) (*BM25Index, error) {
	idx := &BM25Index{
		docs:        make(map[string]*bm25Doc),
		df:          make(map[string]int),
		totalLength: make(map[string]int),
		docCount:    make(map[string]int),
		db:          db,
	}
	if err := idx.Rebuild(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Rebuild repopulates the index from every non-tombstoned chunk's content.
// Deterministic: same input chunks always produce the same index state.
func (idx *BM25Index) Rebuild() error {
	rows, err := idx.db.db.Query(`SELECT id, project_id, type, content FROM chunks WHERE status != 'tombstone'`)
	if err != nil {
		return fmt.Errorf("failed to rebuild bm25 index: %w", err)
	}
	defer rows.Close()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docs = make(map[string]*bm25Doc)
	idx.df = make(map[string]int)
	idx.totalLength = make(map[string]int)
	idx.docCount = make(map[string]int)

	for rows.Next() {
		var id, projectID, chunkType, content string
		if err := rows.Scan(&id, &projectID, &chunkType, &content); err != nil {
			return fmt.Errorf("failed to scan chunk row: %w", err)
		}
		idx.indexLocked(id, projectID, ChunkType(chunkType), content)
	}
	return rows.Err()
}

func (idx *BM25Index) indexLocked(chunkID, projectID string, chunkType ChunkType, content string) {
	tokens := tokenize(content)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	idx.docs[chunkID] = &bm25Doc{projectID: projectID, chunkType: chunkType, termFreq: tf, length: len(tokens)}
	idx.totalLength[projectID] += len(tokens)
	idx.docCount[projectID]++
	for term := range tf {
		idx.df[projectID+"\x00"+term]++
	}
}

// Insert adds or replaces one document's content in the index.
func (idx *BM25Index) Insert(chunkID, projectID string, chunkType ChunkType, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.docs[chunkID]; exists {
		idx.removeLocked(chunkID)
	}
	idx.indexLocked(chunkID, projectID, chunkType, content)
}

// Remove deletes a document from the index.
func (idx *BM25Index) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)
}

func (idx *BM25Index) removeLocked(chunkID string) {
	doc, exists := idx.docs[chunkID]
	if !exists {
		return
	}
	idx.totalLength[doc.projectID] -= doc.length
	idx.docCount[doc.projectID]--
	for term := range doc.termFreq {
		key := doc.projectID + "\x00" + term
		idx.df[key]--
		if idx.df[key] <= 0 {
			delete(idx.df, key)
		}
	}
	delete(idx.docs, chunkID)
}

// BM25Hit is one keyword search result.
type BM25Hit struct {
	ChunkID string
	Score   float64
}

// Search scores every doc in project against queryText's tokens using
// BM25, optionally restricted to a set of chunk types.
func (idx *BM25Index) Search(projectID, queryText string, k int, types []ChunkType) []BM25Hit {
	queryTokens := tokenize(queryText)
	if len(queryTokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.docCount[projectID]
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalLength[projectID]) / float64(n)

	var typeFilter map[ChunkType]bool
	if len(types) > 0 {
		typeFilter = make(map[ChunkType]bool, len(types))
		for _, t := range types {
			typeFilter[t] = true
		}
	}

	var hits []BM25Hit
	for chunkID, doc := range idx.docs {
		if doc.projectID != projectID {
			continue
		}
		if typeFilter != nil && !typeFilter[doc.chunkType] {
			continue
		}
		var score float64
		for _, term := range queryTokens {
			tf, ok := doc.termFreq[term]
			if !ok {
				continue
			}
			df := idx.df[projectID+"\x00"+term]
			if df == 0 {
				continue
			}
			idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
			numerator := float64(tf) * (bm25K1 + 1)
			denominator := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen)
			score += idf * numerator / denominator
		}
		if score > 0 {
			hits = append(hits, BM25Hit{ChunkID: chunkID, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
