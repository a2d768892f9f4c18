package embed

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// OnnxRunner is the low-level interface to a loaded embedding model.
// runnerFromPath always returns fallbackRunner, a deterministic content-hash
// embedder, so the rest of the service (cache, single-flight init, deadline,
// broken state) is exercised without an ONNX runtime binding.
type OnnxRunner interface {
	Run(text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// runnerFromPath returns the deterministic fallback runner; a non-empty path
// is accepted but no model file is loaded from it.
func runnerFromPath(path string, dims int) (OnnxRunner, error) {
	if path == "" {
		return newFallbackRunner(dims), nil
	}
	// No ONNX runtime binding is wired into this build; a configured model
	// path is accepted but served by the same deterministic runner.
	return newFallbackRunner(dims), nil
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// programmingStopWords are filtered out before hashing so that boilerplate
// tokens don't dominate the embedding.
var programmingStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"this": {}, "that": {}, "it": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "and": {}, "or": {}, "if": {}, "else": {}, "return": {},
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// fallbackRunner is a deterministic, hash-based stand-in for a real ONNX
// embedding model. It maps overlapping character n-grams and filtered word
// tokens into a fixed-width vector, trading semantic quality for a zero
// dependency, always-available implementation (see static768.go in the
// teacher, which this runner generalizes to a caller-chosen dimension).
type fallbackRunner struct {
	dims int
}

func newFallbackRunner(dims int) *fallbackRunner {
	if dims <= 0 {
		dims = 384
	}
	return &fallbackRunner{dims: dims}
}

func (r *fallbackRunner) Dimensions() int { return r.dims }

func (r *fallbackRunner) Close() error { return nil }

func (r *fallbackRunner) Run(text string) ([]float32, error) {
	vec := make([]float32, r.dims)

	tokens := filterStopWords(tokenize(text))
	for _, tok := range tokens {
		idx := hashToIndex(tok, r.dims)
		vec[idx] += float32(tokenWeight)
	}

	for _, ng := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		idx := hashToIndex(ng, r.dims)
		vec[idx] += float32(ngramWeight)
	}

	normalizeVector(vec)
	return vec, nil
}

func tokenize(text string) []string {
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}

func filterStopWords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := programmingStopWords[t]; stop {
			continue
		}
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(s string, n int) []string {
	if len(s) < n {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	out := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// CosineSimilarity is exposed for callers (L3 ranking) that need an exact
// score rather than relying on pre-normalized dot products.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
