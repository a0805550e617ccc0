package index

import (
	"errors"
	"math"
	"sort"

	"github.com/docpal/docpal/internal/model/doc"
)

// Index is one user's persisted retrievable index: the document's chunks
// alongside their L2-normalized embedding vectors, searched by brute-force
// cosine similarity. At a few hundred chunks per document this beats
// carrying a vector database.
type Index struct {
	Dimension int         `json:"dimension"`
	Chunks    []doc.Chunk `json:"chunks"`
	Vectors   [][]float64 `json:"vectors"`
}

func (idx *Index) validate() error {
	if idx.Dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if len(idx.Chunks) == 0 {
		return errors.New("index holds no chunks")
	}
	if len(idx.Chunks) != len(idx.Vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	for _, v := range idx.Vectors {
		if len(v) != idx.Dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	return nil
}

// search returns the topK chunks by cosine score in descending order.
// Vectors are normalized at build time, so the dot product is the cosine.
func (idx *Index) search(vector []float64, topK int) []doc.ScoredChunk {
	scored := make([]doc.ScoredChunk, len(idx.Vectors))
	for i, v := range idx.Vectors {
		scored[i] = doc.ScoredChunk{Chunk: idx.Chunks[i], Score: dot(v, vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize scales v to unit length in place. Zero vectors stay zero.
func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}
