// Package spell provides a dictionary-based spelling corrector for the normaliser.
//
// Correction follows the edit-distance approach: a word already in the dictionary is
// kept, otherwise the most frequent dictionary word at edit distance 1 is used, then
// distance 2. Words with no candidate are left as they are.
package spell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vssut-vibes/hatefilter/internal/fetch"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// words longer than this are only tried at edit distance 1
const maxDistance2Length = 12

// CacheSize bounds the corrections remembered between calls.
const CacheSize = 1 << 16

// Corrector corrects lowercase ASCII words against a word frequency dictionary.
// Correct is safe for concurrent use; Learn and Add may run alongside it.
type Corrector struct {
	mu     sync.RWMutex
	counts map[string]int
	cache  *lru.Cache[string, string] // word -> correction
}

// New creates a Corrector with an empty dictionary.
func New() *Corrector {
	cache, _ := lru.New[string, string](CacheSize)
	return &Corrector{counts: make(map[string]int), cache: cache}
}

// FromCounts creates a Corrector from an exported dictionary.
func FromCounts(counts map[string]int) *Corrector {
	c := New()
	c.merge(counts)
	return c
}

// Add increases the frequency of word by n. Words that are not lowercase ASCII
// letters are ignored.
func (c *Corrector) Add(word string, n int) {
	c.merge(map[string]int{strings.ToLower(strings.TrimSpace(word)): n})
}

func (c *Corrector) merge(entries map[string]int) {
	c.mu.Lock()
	for w, n := range entries {
		if n > 0 && isCorrectable(w) {
			c.counts[w] += n
		}
	}
	c.mu.Unlock()
	c.cache.Purge()
}

// Learn adds every correctable word in texts to the dictionary.
func (c *Corrector) Learn(texts []string) {
	learned := make(map[string]int)
	for _, t := range texts {
		for _, w := range splitWords(strings.ToLower(t)) {
			if isCorrectable(w) {
				learned[w]++
			}
		}
	}

	c.merge(learned)
	slog.Debug("Learned spelling dictionary from corpus", "texts", len(texts), "words", len(learned))
}

// ReadDictionary adds entries from r. Each line is either "word count" or a single
// word, which counts once. Blank lines and lines starting with '#' are skipped.
func (c *Corrector) ReadDictionary(r io.Reader) error {
	entries := make(map[string]int)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		count := 1
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				return fmt.Errorf("dictionary line %d: invalid count %q: %w", line, fields[len(fields)-1], moderr.ErrInvalidInput)
			}
			count = n
		}
		entries[strings.ToLower(fields[0])] += count
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading dictionary: %w", err)
	}
	c.merge(entries)
	return nil
}

// LoadDictionary reads a dictionary from a file, URL, or "-" for stdin.
func (c *Corrector) LoadDictionary(ctx context.Context, path string) error {
	rc, err := fetch.GetContent(ctx, path)
	if err != nil {
		return fmt.Errorf("dictionary %s: %w", path, err)
	}
	defer rc.Close()

	if err := c.ReadDictionary(rc); err != nil {
		return fmt.Errorf("dictionary %s: %w", path, err)
	}
	slog.Debug("Loaded spelling dictionary", "source", path, "words", c.Len())
	return nil
}

// Len returns the number of distinct dictionary words.
func (c *Corrector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.counts)
}

// Counts returns a copy of the dictionary.
func (c *Corrector) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.counts))
	for w, n := range c.counts {
		out[w] = n
	}
	return out
}

// Correct replaces each misspelled word in text. Everything that is not a
// lowercase ASCII word (digits, spaces, other scripts) passes through unchanged.
// If anything goes wrong the input is returned as is.
func (c *Corrector) Correct(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Spelling correction failed", "panic", r)
			out = text
		}
	}()

	if c.Len() == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	start := -1
	flush := func(end int) {
		if start >= 0 {
			b.WriteString(c.word(text[start:end]))
			start = -1
		}
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if isWordByte(ch) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		b.WriteByte(ch)
	}
	flush(len(text))
	return b.String()
}

// word corrects a single token of word bytes.
func (c *Corrector) word(w string) string {
	if !isCorrectable(w) {
		return w
	}
	if v, ok := c.cache.Get(w); ok {
		return v
	}

	c.mu.RLock()
	best := c.candidate(w)
	c.mu.RUnlock()

	c.cache.Add(w, best)
	return best
}

// candidate must be called with mu held for reading.
func (c *Corrector) candidate(w string) string {
	if _, ok := c.counts[w]; ok {
		return w
	}

	e1 := edits(w)
	if best, ok := c.mostFrequent(e1); ok {
		return best
	}
	if len(w) > maxDistance2Length {
		return w
	}

	var e2 []string
	for _, e := range e1 {
		e2 = append(e2, edits(e)...)
	}
	if best, ok := c.mostFrequent(e2); ok {
		return best
	}
	return w
}

// mostFrequent picks the known word with the highest count, breaking ties
// alphabetically so results do not depend on map order.
func (c *Corrector) mostFrequent(words []string) (string, bool) {
	best, bestCount := "", 0
	for _, w := range words {
		n, ok := c.counts[w]
		if !ok {
			continue
		}
		if n > bestCount || (n == bestCount && w < best) {
			best, bestCount = w, n
		}
	}
	return best, bestCount > 0
}

// edits returns every string at edit distance 1 from w: deletions,
// transpositions, replacements and insertions.
func edits(w string) []string {
	out := make([]string, 0, 54*len(w)+25)
	for i := 0; i <= len(w); i++ {
		left, right := w[:i], w[i:]
		if len(right) > 0 {
			out = append(out, left+right[1:])
		}
		if len(right) > 1 {
			out = append(out, left+string(right[1])+string(right[0])+right[2:])
		}
		for j := 0; j < len(alphabet); j++ {
			if len(right) > 0 {
				out = append(out, left+string(alphabet[j])+right[1:])
			}
			out = append(out, left+string(alphabet[j])+right)
		}
	}
	return out
}

func isWordByte(ch byte) bool {
	return ch == '_' || ch >= 0x80 ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func isCorrectable(w string) bool {
	if w == "" {
		return false
	}
	for i := 0; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return false
		}
	}
	return true
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
}
