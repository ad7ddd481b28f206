// Package dataset loads labelled text datasets into a canonical {content, label} schema.
//
// Sources arrive under several naming conventions (Content/text/Text for the text column,
// Label/is_offensive/label/hate_speech for the label column). The loader reconciles them,
// coerces labels to {0,1}, and drops anything it cannot coerce. The combiner merges several
// sources into one Corpus, deduplicated by exact content.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

// Label values
const (
	Normal = 0
	Hate   = 1
)

// Record is one canonical row; Label is always Normal or Hate.
type Record struct {
	Content string
	Label   int
}

// Stats summarises the label distribution of a collection of records.
type Stats struct {
	Rows   int
	Counts [2]int // indexed by label
}

// NewStats counts labels in records.
func NewStats(records []Record) Stats {
	s := Stats{Rows: len(records)}
	for _, r := range records {
		if r.Label == Normal || r.Label == Hate {
			s.Counts[r.Label]++
		}
	}
	return s
}

// Percent returns the share of label in percent, or 0 for an empty collection.
func (s Stats) Percent(label int) float64 {
	if s.Rows == 0 || label < 0 || label > 1 {
		return 0
	}
	return float64(s.Counts[label]) * 100 / float64(s.Rows)
}

func (s Stats) String() string {
	return fmt.Sprintf("rows=%d normal=%d (%.2f%%) hate=%d (%.2f%%)",
		s.Rows, s.Counts[Normal], s.Percent(Normal), s.Counts[Hate], s.Percent(Hate))
}

// Corpus is an ordered, content-deduplicated collection of records.
// It is immutable once built.
type Corpus struct {
	records []Record
}

// NewCorpus deduplicates records by exact content, keeping the first occurrence,
// and returns the corpus with the number of duplicates removed.
func NewCorpus(records []Record) (*Corpus, int) {
	kept, removed := Dedup(records)
	return &Corpus{records: kept}, removed
}

// Dedup keeps the first record for every distinct content string.
func Dedup(records []Record) ([]Record, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.Content]; dup {
			continue
		}
		seen[r.Content] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// Len returns the number of records.
func (c *Corpus) Len() int { return len(c.records) }

// Records returns a copy of the records in corpus order.
func (c *Corpus) Records() []Record {
	return append([]Record(nil), c.records...)
}

// Texts returns the content column in corpus order.
func (c *Corpus) Texts() []string {
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Content
	}
	return out
}

// Labels returns the label column in corpus order.
func (c *Corpus) Labels() []int {
	out := make([]int, len(c.records))
	for i, r := range c.records {
		out[i] = r.Label
	}
	return out
}

// Stats returns the label distribution of the corpus.
func (c *Corpus) Stats() Stats { return NewStats(c.records) }

// StratifiedSplit partitions records into train and test sets preserving the label ratio.
//
// Each label's rows are shuffled with a generator seeded by seed, and round(testSize*n)
// of them (at least one, never all) go to the test set. The two partitions are then
// shuffled again so labels interleave. The result depends only on the input order and seed.
func StratifiedSplit(records []Record, testSize float64, seed int64) (train, test []Record, err error) {
	trainIdx, testIdx, err := SplitIndices(records, testSize, seed)
	if err != nil {
		return nil, nil, err
	}
	return pick(records, trainIdx), pick(records, testIdx), nil
}

// SplitIndices is StratifiedSplit returning positions into records instead of copies.
func SplitIndices(records []Record, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, nil, fmt.Errorf("test size %v must be in (0, 1): %w", testSize, moderr.ErrInvalidInput)
	}

	byLabel := make(map[int][]int)
	for i, r := range records {
		byLabel[r.Label] = append(byLabel[r.Label], i)
	}
	labels := make([]int, 0, len(byLabel))
	for label, idx := range byLabel {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("label %d has %d record(s), need at least 2 to stratify: %w",
				label, len(idx), moderr.ErrInvalidInput)
		}
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewSource(seed))
	for _, label := range labels {
		idx := byLabel[label]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testSize * float64(len(idx))))
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(idx)-1 {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

func pick(records []Record, idx []int) []Record {
	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}
