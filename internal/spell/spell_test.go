package spell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

func testCorrector() *Corrector {
	return FromCounts(map[string]int{
		"stupid": 10,
		"people": 5,
		"hate":   8,
		"those":  4,
		"car":    1,
		"cat":    1,
		"cap":    3,
	})
}

func TestCorrect(t *testing.T) {
	c := testCorrector()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"known words untouched", "those people", "those people"},
		{"distance one", "haate thoose", "hate those"},
		{"distance two", "stoopid", "stupid"},
		{"no candidate", "xyzzyq", "xyzzyq"},
		{"spacing preserved", "haate   those  ", "hate   those  "},
		{"digits not corrected", "route66 haate", "route66 hate"},
		{"highest count wins", "caz", "cap"},
		{"uppercase left alone", "HAATE", "HAATE"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Correct(tt.in); got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCorrectTieBreaksAlphabetically(t *testing.T) {
	c := FromCounts(map[string]int{"cat": 2, "car": 2})
	for i := 0; i < 10; i++ {
		if got := c.Correct("caz"); got != "car" {
			t.Fatalf("Correct(caz) = %q, want %q", got, "car")
		}
	}
}

func TestCorrectEmptyDictionary(t *testing.T) {
	c := New()
	if got := c.Correct("haate thoose"); got != "haate thoose" {
		t.Errorf("Correct() with empty dictionary = %q, want input unchanged", got)
	}
}

func TestReadDictionary(t *testing.T) {
	c := New()
	input := "hello 3\nworld\n# a comment\n\nHello 2\nnot-a-word 4\n"
	if err := c.ReadDictionary(strings.NewReader(input)); err != nil {
		t.Fatalf("ReadDictionary() error = %v", err)
	}

	counts := c.Counts()
	if counts["hello"] != 5 {
		t.Errorf("count[hello] = %d, want 5", counts["hello"])
	}
	if counts["world"] != 1 {
		t.Errorf("count[world] = %d, want 1", counts["world"])
	}
	if _, ok := counts["not-a-word"]; ok {
		t.Error("non-alphabetic entry should be ignored")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestReadDictionaryInvalidCount(t *testing.T) {
	c := New()
	err := c.ReadDictionary(strings.NewReader("hello many\n"))
	if !errors.Is(err, moderr.ErrInvalidInput) {
		t.Errorf("ReadDictionary() error = %v, want ErrInvalidInput", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed read, want 0", c.Len())
	}
}

func TestLoadDictionary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(path, []byte("stupid 10\nhate 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New()
	if err := c.LoadDictionary(context.Background(), path); err != nil {
		t.Fatalf("LoadDictionary() error = %v", err)
	}
	if got := c.Correct("haate"); got != "hate" {
		t.Errorf("Correct(haate) = %q, want %q", got, "hate")
	}

	err := c.LoadDictionary(context.Background(), filepath.Join(dir, "missing.txt"))
	if !errors.Is(err, moderr.ErrNotFound) {
		t.Errorf("LoadDictionary(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLearn(t *testing.T) {
	c := New()
	c.Learn([]string{"Hello hello world2", "it's fine"})

	counts := c.Counts()
	want := map[string]int{"hello": 2, "world": 1, "it": 1, "s": 1, "fine": 1}
	if len(counts) != len(want) {
		t.Fatalf("Counts() = %v, want %v", counts, want)
	}
	for w, n := range want {
		if counts[w] != n {
			t.Errorf("count[%s] = %d, want %d", w, counts[w], n)
		}
	}
}

func TestLearnInvalidatesCache(t *testing.T) {
	c := FromCounts(map[string]int{"cap": 1})
	if got := c.Correct("caz"); got != "cap" {
		t.Fatalf("Correct(caz) = %q, want %q", got, "cap")
	}
	c.Learn([]string{"caz"})
	if got := c.Correct("caz"); got != "caz" {
		t.Errorf("Correct(caz) after Learn = %q, want %q", got, "caz")
	}
}

func TestCountsIsCopy(t *testing.T) {
	c := testCorrector()
	counts := c.Counts()
	counts["hate"] = 0
	delete(counts, "those")
	if got := c.Counts(); got["hate"] != 8 || got["those"] != 4 {
		t.Error("mutating Counts() result changed the corrector")
	}
}

func TestCorrectConcurrent(t *testing.T) {
	c := testCorrector()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := c.Correct("haate thoose stoopid"); got != "hate those stupid" {
					t.Errorf("Correct() = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// letters spells i in base 26 with the letters a-z.
func letters(i int) string {
	b := []byte{'a' + byte(i%26)}
	for i /= 26; i > 0; i /= 26 {
		b = append(b, 'a'+byte(i%26))
	}
	return string(b)
}

func TestCacheIsBounded(t *testing.T) {
	n := CacheSize + 500
	counts := make(map[string]int, n)
	for i := 0; i < n; i++ {
		counts[letters(i)] = 1
	}
	c := FromCounts(counts)

	for i := 0; i < n; i++ {
		w := letters(i)
		if got := c.Correct(w); got != w {
			t.Fatalf("Correct(%q) = %q", w, got)
		}
	}
	if got := c.cache.Len(); got != CacheSize {
		t.Errorf("cache holds %d entries, want %d", got, CacheSize)
	}
}
