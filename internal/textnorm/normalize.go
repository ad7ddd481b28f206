// Package textnorm turns raw post and comment text into the token string the
// feature extractor consumes.
//
// The same Normalizer value must be used when fitting and when predicting. Every step
// is deterministic and stateless, so normalising a text twice with the same options
// always gives the same result:
//
//  1. lowercase
//  2. remove URLs (http..., https..., www...) and @mention / #hashtag tokens
//  3. collapse runs of 3+ identical word characters to 2 ("soooo" -> "soo")
//  4. replace every non-word, non-space character with a space
//  5. optional spelling correction
//  6. remove digits
//  7. collapse whitespace and trim
//  8. drop stopwords and tokens of 2 characters or fewer, lemmatize the rest
//  9. rejoin with single spaces
package textnorm

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// a URL runs to the next rune unicode.IsSpace reports; RE2's \S alone is ASCII-only
	urlRegex    = regexp.MustCompile(`(?:http|www|https)[^\s\x{0B}\x{85}\p{Z}]+`)
	markupRegex = regexp.MustCompile(`[@#][\p{L}\p{N}_]+`)
)

// MinTokenLength is the shortest token kept after filtering.
const MinTokenLength = 3

// Corrector is a best-effort spelling corrector applied at step 5.
type Corrector interface {
	Correct(text string) string
}

// Options configures a Normalizer. Nil fields take the defaults: the NLTK English
// stopwords, the dictionary lemmatizer, and no spelling correction.
type Options struct {
	Corrector   Corrector
	Lemmatizer  Lemmatizer
	Stopwords   StopwordSet
	StripMarkup bool // reduce HTML to text before step 1
}

// Normalizer applies the cleaning steps with one fixed configuration.
// It is safe for concurrent use when its Corrector and Lemmatizer are.
type Normalizer struct {
	corrector   Corrector
	lemmatizer  Lemmatizer
	stopwords   StopwordSet
	stripMarkup bool
}

// New creates a Normalizer from opts.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		corrector:   opts.Corrector,
		lemmatizer:  opts.Lemmatizer,
		stopwords:   opts.Stopwords,
		stripMarkup: opts.StripMarkup,
	}
	if n.lemmatizer == nil {
		n.lemmatizer = DictionaryLemmatizer{}
	}
	if n.stopwords == nil {
		n.stopwords = EnglishStopwords()
	}
	return n
}

// Lemmatizer returns the lemmatizer in use.
func (n *Normalizer) Lemmatizer() Lemmatizer { return n.lemmatizer }

// SpellingEnabled reports whether step 5 does anything.
func (n *Normalizer) SpellingEnabled() bool { return n.corrector != nil }

// StripsMarkup reports whether HTML is reduced to text first.
func (n *Normalizer) StripsMarkup() bool { return n.stripMarkup }

// Normalize cleans one text. Empty input gives an empty result.
//
// Normalizing the result again returns it unchanged, except when removing a digit
// joined characters into a new run or URL prefix: digits go after run collapsing and
// URL removal, so "aa1a" gives "aaa", which a second pass reduces to "".
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	if n.stripMarkup {
		text = StripMarkup(text)
	}

	text = cases.Lower(language.Und).String(text)
	text = urlRegex.ReplaceAllString(text, "")
	text = markupRegex.ReplaceAllString(text, "")
	text = CollapseRuns(text)
	text = replaceNonWord(text)

	if n.corrector != nil {
		text = n.correct(text)
	}

	text = removeDigits(text)

	tokens := strings.Fields(text)
	kept := tokens[:0]
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < MinTokenLength || n.stopwords.Contains(tok) {
			continue
		}
		lemma := n.lemmatizer.Lemmatize(tok)
		// a lemma that no longer passes the filter is dropped, keeping the output a fixed point
		if utf8.RuneCountInString(lemma) < MinTokenLength || n.stopwords.Contains(lemma) {
			continue
		}
		kept = append(kept, lemma)
	}
	return strings.Join(kept, " ")
}

// correct runs the corrector and falls back to the uncorrected text on panic.
func (n *Normalizer) correct(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Spelling correction failed, using uncorrected text", "panic", r)
			out = text
		}
	}()
	return n.corrector.Correct(text)
}

// NormalizeAll normalises texts with up to workers goroutines. Result i always
// belongs to texts[i]. workers <= 1 runs sequentially.
func (n *Normalizer) NormalizeAll(ctx context.Context, texts []string, workers int) ([]string, error) {
	out := make([]string, len(texts))
	if workers <= 1 {
		for i, t := range texts {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			out[i] = n.Normalize(t)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = n.Normalize(texts[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// CollapseRuns shortens every run of three or more identical word characters to two.
func CollapseRuns(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && isWordRune(r) {
			run++
		} else {
			prev = r
			run = 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func replaceNonWord(text string) string {
	return strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)
}

func removeDigits(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, text)
}
