package rag

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// Vector is one corpus entry to score against a query.
type Vector struct {
	ID     uuid.UUID
	Values []float32
}

// Match is one ranked corpus entry.
type Match struct {
	ID    uuid.UUID
	Score float64
}

// Ranker scores a query vector against a corpus by exact brute-force
// cosine similarity. Every call is a full O(corpus x dimension) scan; this
// is the intended scalability ceiling of the design, and any approximate
// index would be a separate extension, not a drop-in change here.
type Ranker struct{}

func NewRanker() *Ranker {
	return &Ranker{}
}

// Rank returns the topK highest-scoring corpus entries in descending score
// order. Ties keep the corpus input order, so identical inputs always
// produce identical output. A corpus vector whose dimension differs from
// the query aborts the call: the corpus was built with an incompatible
// vectorizer configuration.
func (r *Ranker) Rank(query []float32, corpus []Vector, topK int) ([]Match, error) {
	if topK < 0 {
		topK = 0
	}

	matches := make([]Match, 0, len(corpus))
	for _, v := range corpus {
		if len(v.Values) != len(query) {
			return nil, &DimensionMismatchError{Want: len(query), Got: len(v.Values)}
		}
		matches = append(matches, Match{ID: v.ID, Score: Cosine(query, v.Values)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of two equal-length vectors in
// [-1, 1]. A zero-norm vector has no direction; similarity against it is
// defined as 0.
func Cosine(a, b []float32) float64 {
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
