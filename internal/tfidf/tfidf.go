// Package tfidf provides the TF-IDF (Term Frequency-Inverse Document Frequency) feature
// extractor that turns normalised text into fixed-width sparse vectors.
//
// A Vectorizer is fitted once on the training corpus. Fitting builds the vocabulary of
// unigrams and bigrams and captures one inverse document frequency weight per term;
// both are then frozen, so every later Transform projects text onto the same columns.
//
// The weighting combines:
//   - Term Frequency (TF): the raw count of a term in a document
//   - Inverse Document Frequency (IDF): ln((1+n)/(1+df)) + 1, where n is the number of
//     training documents and df the number containing the term
//
// Each row is scaled to unit L2 length.
//
// Usage Example:
//
//	vec := tfidf.New(tfidf.DefaultOptions())
//	train, err := vec.FitTransform(trainTexts)
//	test, err := vec.Transform(testTexts)
package tfidf

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

// tokenRegex is compiled once at package initialization for efficient tokenization
var tokenRegex = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Options controls vocabulary selection.
type Options struct {
	MaxFeatures int     `yaml:"max_features" json:"max_features"` // keep at most this many terms, 0 for no cap
	MinDF       int     `yaml:"min_df" json:"min_df"`             // drop terms found in fewer documents
	MaxDF       float64 `yaml:"max_df" json:"max_df"`             // drop terms found in more than this fraction of documents
	NgramMin    int     `yaml:"ngram_min" json:"ngram_min"`
	NgramMax    int     `yaml:"ngram_max" json:"ngram_max"`
}

// DefaultOptions returns unigrams and bigrams, at most 5000 terms, each found in at
// least 2 and at most 80% of the documents.
func DefaultOptions() Options {
	return Options{
		MaxFeatures: 5000,
		MinDF:       2,
		MaxDF:       0.8,
		NgramMin:    1,
		NgramMax:    2,
	}
}

// Validate reports whether the options describe a usable vocabulary.
func (o Options) Validate() error {
	switch {
	case o.MaxFeatures < 0:
		return fmt.Errorf("max_features %d is negative: %w", o.MaxFeatures, moderr.ErrInvalidInput)
	case o.MinDF < 1:
		return fmt.Errorf("min_df %d must be at least 1: %w", o.MinDF, moderr.ErrInvalidInput)
	case o.MaxDF <= 0 || o.MaxDF > 1:
		return fmt.Errorf("max_df %g must be in (0, 1]: %w", o.MaxDF, moderr.ErrInvalidInput)
	case o.NgramMin < 1 || o.NgramMax < o.NgramMin:
		return fmt.Errorf("ngram range [%d, %d] is invalid: %w", o.NgramMin, o.NgramMax, moderr.ErrInvalidInput)
	}
	return nil
}

// Vector is a sparse feature row. Indices are ascending.
type Vector struct {
	Indices []int
	Values  []float64
}

// Dot returns the inner product of v with a dense weight vector.
func (v Vector) Dot(weights []float64) float64 {
	var sum float64
	for k, i := range v.Indices {
		sum += v.Values[k] * weights[i]
	}
	return sum
}

// NNZ returns the number of non-zero cells.
func (v Vector) NNZ() int { return len(v.Indices) }

// Matrix is a set of rows over a vocabulary of Cols terms.
type Matrix struct {
	Rows []Vector
	Cols int
}

// Len returns the number of rows.
func (m Matrix) Len() int { return len(m.Rows) }

// Vectorizer learns a vocabulary and IDF weights and projects text onto them.
// A fitted Vectorizer is read-only and safe for concurrent Transform calls.
type Vectorizer struct {
	opts  Options
	terms []string       // column -> term, alphabetical
	index map[string]int // term -> column
	idf   []float64      // column -> idf
}

// New creates an unfitted Vectorizer.
func New(opts Options) *Vectorizer {
	return &Vectorizer{opts: opts}
}

// Options returns the vocabulary options.
func (v *Vectorizer) Options() Options { return v.opts }

// Fitted reports whether Fit has succeeded.
func (v *Vectorizer) Fitted() bool { return v.index != nil }

// Vocabulary returns the fitted terms in column order.
func (v *Vectorizer) Vocabulary() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Fit builds the vocabulary and IDF weights from texts, replacing any earlier fit.
//
// Parameters:
//   - texts: normalised training documents
//
// Returns an error wrapping moderr.ErrInvalidInput when texts is empty, the options
// are invalid, or no term survives the document frequency filters.
func (v *Vectorizer) Fit(texts []string) error {
	if err := v.opts.Validate(); err != nil {
		return err
	}
	n := len(texts)
	if n == 0 {
		return fmt.Errorf("fit on empty corpus: %w", moderr.ErrInvalidInput)
	}

	maxDocs := v.opts.MaxDF * float64(n)
	if maxDocs < float64(v.opts.MinDF) {
		return fmt.Errorf("max_df %g of %d documents is below min_df %d: %w",
			v.opts.MaxDF, n, v.opts.MinDF, moderr.ErrInvalidInput)
	}

	// document frequency and corpus-wide count for every n-gram
	docFreq := make(map[string]int)
	termCount := make(map[string]int)
	for _, text := range texts {
		counts := v.count(text)
		for term, c := range counts {
			docFreq[term]++
			termCount[term] += c
		}
	}

	candidates := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df < v.opts.MinDF || float64(df) > maxDocs {
			continue
		}
		candidates = append(candidates, term)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no terms remain after min_df=%d max_df=%g on %d documents: %w",
			v.opts.MinDF, v.opts.MaxDF, n, moderr.ErrInvalidInput)
	}

	// keep the most frequent terms, ties broken alphabetically
	if v.opts.MaxFeatures > 0 && len(candidates) > v.opts.MaxFeatures {
		sort.Slice(candidates, func(i, j int) bool {
			ci, cj := termCount[candidates[i]], termCount[candidates[j]]
			if ci != cj {
				return ci > cj
			}
			return candidates[i] < candidates[j]
		})
		candidates = candidates[:v.opts.MaxFeatures]
	}
	sort.Strings(candidates)

	v.terms = candidates
	v.index = make(map[string]int, len(candidates))
	v.idf = make([]float64, len(candidates))
	for i, term := range candidates {
		v.index[term] = i
		v.idf[i] = math.Log(float64(1+n)/float64(1+docFreq[term])) + 1
	}

	slog.Debug("Fitted TF-IDF vocabulary",
		"documents", n, "candidateTerms", len(docFreq), "vocabulary", len(v.terms))
	return nil
}

// FitTransform fits on texts and returns their feature matrix.
func (v *Vectorizer) FitTransform(texts []string) (Matrix, error) {
	if err := v.Fit(texts); err != nil {
		return Matrix{}, err
	}
	return v.Transform(texts)
}

// Transform projects texts onto the fitted vocabulary. Terms outside the vocabulary
// contribute nothing; a text with no known term yields an all-zero row.
func (v *Vectorizer) Transform(texts []string) (Matrix, error) {
	if !v.Fitted() {
		return Matrix{}, fmt.Errorf("transform: %w", moderr.ErrNotFitted)
	}
	m := Matrix{Rows: make([]Vector, len(texts)), Cols: len(v.terms)}
	for i, text := range texts {
		m.Rows[i] = v.vector(text)
	}
	return m, nil
}

// TransformOne projects a single text.
func (v *Vectorizer) TransformOne(text string) (Vector, error) {
	if !v.Fitted() {
		return Vector{}, fmt.Errorf("transform: %w", moderr.ErrNotFitted)
	}
	return v.vector(text), nil
}

func (v *Vectorizer) vector(text string) Vector {
	counts := v.count(text)

	var vec Vector
	for term := range counts {
		if col, ok := v.index[term]; ok {
			vec.Indices = append(vec.Indices, col)
		}
	}
	if len(vec.Indices) == 0 {
		return vec
	}
	sort.Ints(vec.Indices)

	vec.Values = make([]float64, len(vec.Indices))
	var norm float64
	for k, col := range vec.Indices {
		w := float64(counts[v.terms[col]]) * v.idf[col]
		vec.Values[k] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for k := range vec.Values {
		vec.Values[k] /= norm
	}
	return vec
}

// count returns the n-gram counts of one document.
func (v *Vectorizer) count(text string) map[string]int {
	tokens := tokenize(text)
	counts := make(map[string]int)
	for size := v.opts.NgramMin; size <= v.opts.NgramMax; size++ {
		for i := 0; i+size <= len(tokens); i++ {
			if size == 1 {
				counts[tokens[i]]++
				continue
			}
			counts[strings.Join(tokens[i:i+size], " ")]++
		}
	}
	return counts
}

// tokenize lowercases text and splits it on non-word characters, keeping tokens of
// two or more characters.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	for _, token := range tokenRegex.Split(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(token) >= 2 {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// State is the serialisable form of a fitted Vectorizer.
type State struct {
	Options Options   `json:"options"`
	Terms   []string  `json:"terms"`
	IDF     []float64 `json:"idf"`
}

// State exports the fitted vocabulary and weights.
func (v *Vectorizer) State() (State, error) {
	if !v.Fitted() {
		return State{}, fmt.Errorf("export vectorizer: %w", moderr.ErrNotFitted)
	}
	s := State{
		Options: v.opts,
		Terms:   v.Vocabulary(),
		IDF:     make([]float64, len(v.idf)),
	}
	copy(s.IDF, v.idf)
	return s, nil
}

// FromState restores a fitted Vectorizer. Terms must be unique and sorted, with one
// positive IDF weight each.
func FromState(s State) (*Vectorizer, error) {
	if len(s.Terms) == 0 || len(s.Terms) != len(s.IDF) {
		return nil, fmt.Errorf("vectorizer state has %d terms and %d weights: %w",
			len(s.Terms), len(s.IDF), moderr.ErrInvalidInput)
	}

	v := &Vectorizer{
		opts:  s.Options,
		terms: make([]string, len(s.Terms)),
		index: make(map[string]int, len(s.Terms)),
		idf:   make([]float64, len(s.IDF)),
	}
	copy(v.terms, s.Terms)
	copy(v.idf, s.IDF)
	for i, term := range v.terms {
		if i > 0 && v.terms[i-1] >= term {
			return nil, fmt.Errorf("vectorizer terms not sorted at %q: %w", term, moderr.ErrInvalidInput)
		}
		if v.idf[i] <= 0 || math.IsNaN(v.idf[i]) {
			return nil, fmt.Errorf("vectorizer weight for %q is %g: %w", term, v.idf[i], moderr.ErrInvalidInput)
		}
		v.index[term] = i
	}
	return v, nil
}
