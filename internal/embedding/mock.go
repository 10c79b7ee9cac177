package embedding

import (
	"hash/fnv"
	"math"
)

// Mock is a deterministic, hash-based embedding provider for tests and
// offline development; no network calls.
type Mock struct {
	dims int
}

// NewMock returns a Mock provider producing vectors of the given dimension.
func NewMock(dims int) *Mock {
	if dims <= 0 {
		dims = 32
	}
	return &Mock{dims: dims}
}

func (m *Mock) Name() string      { return "mock" }
func (m *Mock) Dimensions() int   { return m.dims }

// Embed hashes text into a deterministic unit vector so identical inputs
// always embed to the same point. The whole text seeds the hash, so text
// that differs by even one character gets an unrelated vector.
func (m *Mock) Embed(text string) ([]float32, error) {
	v := make([]float32, m.dims)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>11)%1000) / 1000.0
	}

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v, nil
}

// EmbedBatch embeds each text independently.
func (m *Mock) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
