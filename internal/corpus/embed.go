package corpus

import (
	"hash/fnv"
	"math"
	"strings"
)

// EmbedDim is the dimensionality of corpus embeddings. Documents may ship
// precomputed vectors of this size; anything else is embedded locally.
const EmbedDim = 64

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
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

// EmbedText produces a deterministic bag-of-words embedding by hashing
// lowercase tokens into EmbedDim buckets and L2-normalizing. It is a stand-in
// for a model-backed embedder with the one property the ranking pipeline
// needs: identical text always maps to the identical vector.
func EmbedText(text string) []float32 {
	vec := make([]float32, EmbedDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]\"'")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// Sign bit from the hash spreads tokens across both directions.
		idx := int(sum % EmbedDim)
		if sum&(1<<31) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// EmbeddingFor returns the philosophy's stored embedding when present and
// correctly sized, otherwise an embedding of its summary text.
func EmbeddingFor(p *Philosophy) []float32 {
	if len(p.Embedding) == EmbedDim {
		return p.Embedding
	}
	return EmbedText(p.Summary)
}
