package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/vssut-vibes/hatefilter/internal/fetch"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

// Column aliases in priority order; the first one present wins.
var (
	ContentColumns = []string{"Content", "text", "Text"}
	LabelColumns   = []string{"Label", "is_offensive", "label", "hate_speech"}
)

// HeaderSentinels are label values that are really header rows repeated inside
// concatenated files. "is_offensive" is both a label alias and a sentinel.
var HeaderSentinels = []string{"Label", "is_offensive"}

// SourceError reports why one source could not be loaded.
// Err wraps moderr.ErrNotFound, moderr.ErrSchema or moderr.ErrLoad.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("dataset %q: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// LoadReport describes what the loader did with one source.
type LoadReport struct {
	Source        string
	Columns       []string
	ContentColumn string
	LabelColumn   string
	RawRows       int // data rows read, excluding the header line
	HeaderRows    int // rows dropped because the label was a header sentinel
	Dropped       int // rows dropped for missing content or an uncoercible label
	Stats         Stats
}

// Load opens source and returns its canonical records.
func Load(ctx context.Context, source string) ([]Record, LoadReport, error) {
	reader, err := fetch.GetContent(ctx, source)
	if err != nil {
		return nil, LoadReport{Source: source}, sourceError(source, err)
	}
	defer reader.Close()

	comma := ','
	if strings.EqualFold(path.Ext(source), ".tsv") {
		comma = '\t'
	}
	return LoadReader(reader, source, comma)
}

// LoadReader parses delimited text from r. source is only used for reporting.
func LoadReader(r io.Reader, source string, comma rune) ([]Record, LoadReport, error) {
	report := LoadReport{Source: source}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, report, sourceError(source, fmt.Errorf("no header row: %w", moderr.ErrLoad))
	}
	if err != nil {
		return nil, report, sourceError(source, fmt.Errorf("read header: %w: %w", moderr.ErrLoad, err))
	}
	for i := range header {
		header[i] = cleanCell(header[i])
	}
	report.Columns = header

	contentIdx := findColumn(header, ContentColumns)
	labelIdx := findColumn(header, LabelColumns)
	if contentIdx < 0 || labelIdx < 0 {
		return nil, report, sourceError(source, fmt.Errorf("need text and label columns, found %v: %w", header, moderr.ErrSchema))
	}
	report.ContentColumn = header[contentIdx]
	report.LabelColumn = header[labelIdx]

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, sourceError(source, fmt.Errorf("read row %d: %w: %w", report.RawRows+1, moderr.ErrLoad, err))
		}
		report.RawRows++

		rawLabel := cell(row, labelIdx)
		if isHeaderSentinel(rawLabel) {
			report.HeaderRows++
			continue
		}

		label, ok := CoerceLabel(rawLabel)
		content := cell(row, contentIdx)
		if !ok || strings.TrimSpace(content) == "" {
			report.Dropped++
			continue
		}
		records = append(records, Record{Content: content, Label: label})
	}

	report.Stats = NewStats(records)
	slog.Info("Dataset loaded",
		"source", source,
		"columns", header,
		"content", report.ContentColumn,
		"label", report.LabelColumn,
		"rows", report.RawRows,
		"headerRows", report.HeaderRows,
		"dropped", report.Dropped,
		"normal", report.Stats.Counts[Normal],
		"hate", report.Stats.Counts[Hate])
	return records, report, nil
}

// CoerceLabel parses a raw label cell. Only decimal values numerically equal to 0 or 1
// are accepted; "1", "1.0" and " 1 " are all Hate, while "yes", "", "2" and "0x1p0"
// are rejected.
func CoerceLabel(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	digits := strings.TrimLeft(raw, "+-")
	if len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	switch v {
	case 0:
		return Normal, true
	case 1:
		return Hate, true
	default:
		return 0, false
	}
}

func isHeaderSentinel(v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range HeaderSentinels {
		if v == s {
			return true
		}
	}
	return false
}

// findColumn returns the index of the first candidate present in header, or -1.
// Candidate order is the priority; header order does not matter.
func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if col == cand {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, "\ufeff")
	return strings.TrimSpace(v)
}

func sourceError(source string, err error) error {
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	if !errors.Is(err, moderr.ErrNotFound) && !errors.Is(err, moderr.ErrSchema) && !errors.Is(err, moderr.ErrLoad) {
		err = fmt.Errorf("%w: %w", moderr.ErrLoad, err)
	}
	return &SourceError{Source: source, Err: err}
}
