// Package counter measures text length for corpus statistics.
//
// Three counting strategies are available: tiktoken tokens (cl100k_base), whitespace
// separated words, and Unicode characters. Summarize applies one of them to a whole
// corpus so training runs can report how long the posts and comments are before and
// after normalisation.
//
// Usage Example:
//
//	c, _ := counter.NewCounter(counter.Words)
//	summary := counter.Summarize(c, texts)
package counter

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

// Counter defines the interface for different text counting strategies.
type Counter interface {
	// Count returns the number of units (tokens, words, or characters) in given text.
	Count(text string) int

	// Name returns a human-readable name for this counting method (for logging)
	Name() string
}

// CountingMethod represents the different available counting strategies.
type CountingMethod int

const (
	// Words counts whitespace separated words (default)
	Words CountingMethod = iota
	// Tokens uses tiktoken with cl100k_base encoding
	Tokens
	// Characters counts individual characters including whitespace
	Characters
)

// String returns the string representation of the counting method.
func (cm CountingMethod) String() string {
	switch cm {
	case Tokens:
		return "tokens"
	case Words:
		return "words"
	case Characters:
		return "characters"
	default:
		return "unknown"
	}
}

// ParseMethod maps "words", "tokens" or "characters" to a CountingMethod.
func ParseMethod(name string) (CountingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "words":
		return Words, nil
	case "tokens":
		return Tokens, nil
	case "characters", "chars":
		return Characters, nil
	default:
		return 0, fmt.Errorf("counting method %q: %w", name, moderr.ErrInvalidInput)
	}
}

// NewCounter creates a Counter for method. Token counting fails if the tiktoken
// encoding cannot be loaded.
func NewCounter(method CountingMethod) (Counter, error) {
	switch method {
	case Tokens:
		return NewTokenCounter()
	case Words:
		return WordCounter{}, nil
	case Characters:
		return CharCounter{}, nil
	default:
		return nil, fmt.Errorf("counting method %d: %w", int(method), moderr.ErrInvalidInput)
	}
}

// WordCounter counts words using strings.Fields.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (WordCounter) Name() string { return "words" }

// CharCounter counts UTF-8 runes, not bytes.
type CharCounter struct{}

func (CharCounter) Count(text string) int { return utf8.RuneCountInString(text) }

func (CharCounter) Name() string { return "characters" }

// Summary describes the length distribution of a set of texts.
type Summary struct {
	Method string
	Texts  int
	Empty  int // texts counting zero units
	Total  int
	Min    int
	Max    int
	Median int
	Mean   float64
}

func (s Summary) String() string {
	return fmt.Sprintf("%d texts, %d %s (mean %.1f, median %d, min %d, max %d, empty %d)",
		s.Texts, s.Total, s.Method, s.Mean, s.Median, s.Min, s.Max, s.Empty)
}

// Summarize counts every text with c.
func Summarize(c Counter, texts []string) Summary {
	s := Summary{Method: c.Name(), Texts: len(texts)}
	if len(texts) == 0 {
		return s
	}

	counts := make([]int, len(texts))
	for i, t := range texts {
		n := c.Count(t)
		counts[i] = n
		s.Total += n
		if n == 0 {
			s.Empty++
		}
	}
	sort.Ints(counts)

	s.Min = counts[0]
	s.Max = counts[len(counts)-1]
	s.Median = counts[len(counts)/2]
	s.Mean = float64(s.Total) / float64(len(texts))
	return s
}
