package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"SafeMap/internal/ports"
)

// DefaultDimension matches the output size of all-MiniLM-L6-v2 so stores and caches stay interchangeable.
const DefaultDimension = 384

// HashingModel identifies vectors produced by HashingEmbedder.
const HashingModel = "hashing-v1"

// HashingEmbedder is an offline, deterministic embedder based on signed feature hashing
// of unigrams and bigrams.
type HashingEmbedder struct {
	dim int
}

var _ ports.Embedder = (*HashingEmbedder)(nil)

// NewHashingEmbedder returns an embedder with dim buckets; dim <= 0 selects DefaultDimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingEmbedder{dim: dim}
}

// Model implements ports.Embedder.
func (h *HashingEmbedder) Model() string { return HashingModel }

// Embed implements ports.Embedder.
func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		h.add(v, "u:"+tok)
		if i > 0 {
			h.add(v, "b:"+tokens[i-1]+" "+tok)
		}
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func (h *HashingEmbedder) add(v []float32, feature string) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		v[bucket]--
		return
	}
	v[bucket]++
}

// Tokenize NFKC-normalizes text, lowercases it and splits on anything that is not a letter or digit.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
