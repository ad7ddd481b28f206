package counter

import (
	"errors"
	"testing"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

func TestWordCounter(t *testing.T) {
	counter := WordCounter{}

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty string", "", 0},
		{"single word", "hello", 1},
		{"multiple words", "hello world test", 3},
		{"whitespace handling", "  hello   world  ", 2},
		{"unicode words", "café naïve résumé", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := counter.Count(tt.text)
			if result != tt.expected {
				t.Errorf("WordCounter.Count(%q) = %d, want %d", tt.text, result, tt.expected)
			}
		})
	}
}

func TestCharCounter(t *testing.T) {
	counter := CharCounter{}

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty string", "", 0},
		{"multiple chars", "hello", 5},
		{"unicode chars", "café", 4},
		{"whitespace included", "a b", 3},
		{"emoji", "hello 👋", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := counter.Count(tt.text)
			if result != tt.expected {
				t.Errorf("CharCounter.Count(%q) = %d, want %d", tt.text, result, tt.expected)
			}
		})
	}
}

func TestTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}

	if got := counter.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := counter.Count("hello world"); got != 2 {
		t.Errorf("Count(hello world) = %d, want 2", got)
	}
	if counter.Name() != "tokens" {
		t.Errorf("Name() = %q, want %q", counter.Name(), "tokens")
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		name    string
		want    CountingMethod
		wantErr bool
	}{
		{"", Words, false},
		{"words", Words, false},
		{"Tokens", Tokens, false},
		{"chars", Characters, false},
		{"characters", Characters, false},
		{"bytes", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMethod(tt.name)
			if tt.wantErr {
				if !errors.Is(err, moderr.ErrInvalidInput) {
					t.Errorf("ParseMethod(%q) error = %v, want ErrInvalidInput", tt.name, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMethod(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
			}
		})
	}
}

func TestNewCounter(t *testing.T) {
	for _, m := range []CountingMethod{Words, Characters} {
		c, err := NewCounter(m)
		if err != nil {
			t.Fatalf("NewCounter(%v) error = %v", m, err)
		}
		if c.Name() != m.String() {
			t.Errorf("NewCounter(%v).Name() = %q, want %q", m, c.Name(), m.String())
		}
	}
	if _, err := NewCounter(CountingMethod(99)); !errors.Is(err, moderr.ErrInvalidInput) {
		t.Errorf("NewCounter(99) error = %v, want ErrInvalidInput", err)
	}
}

func TestSummarize(t *testing.T) {
	texts := []string{"one two three", "", "four", "five six", "seven eight nine ten"}
	s := Summarize(WordCounter{}, texts)

	want := Summary{Method: "words", Texts: 5, Empty: 1, Total: 10, Min: 0, Max: 4, Median: 2, Mean: 2}
	if s != want {
		t.Errorf("Summarize() = %+v, want %+v", s, want)
	}
	if s.String() == "" {
		t.Error("String() is empty")
	}

	if empty := Summarize(WordCounter{}, nil); empty.Texts != 0 || empty.Total != 0 {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
