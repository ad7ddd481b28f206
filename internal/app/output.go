package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vssut-vibes/hatefilter/internal/classify"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/store"
)

// OutputFormat defines the output format for results
type OutputFormat int

const (
	// plaintext output format (default)
	Text OutputFormat = iota
	// JSON output format
	JSON
)

// String returns the string representation of the output
func (f OutputFormat) String() string {
	switch f {
	case Text:
		return "Text"
	case JSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// verdictJSON is the wire form of a Verdict; a failed input carries its error in
// place of a label.
type verdictJSON struct {
	Text        string   `json:"text"`
	Normalized  string   `json:"normalized,omitempty"`
	Label       *int     `json:"label"`
	Class       string   `json:"class,omitempty"`
	Probability *float64 `json:"probability"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
}

// WriteVerdicts renders verdicts to w in the given format.
func WriteVerdicts(w io.Writer, verdicts []Verdict, format OutputFormat) error {
	switch format {
	case JSON:
		out := make([]verdictJSON, len(verdicts))
		for i, v := range verdicts {
			out[i] = verdictJSON{Text: v.Text}
			if v.Err != nil {
				out[i].Error, out[i].ErrorKind = v.Err.Error(), moderr.Kind(v.Err)
				continue
			}
			label := v.Label
			out[i].Normalized = v.Normalized
			out[i].Label = &label
			out[i].Class = classify.TargetNames[label]
			out[i].Probability = v.Probability
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case Text:
		for _, v := range verdicts {
			if v.Err != nil {
				if _, err := fmt.Fprintf(w, "%q\terror: %v\n", v.Text, v.Err); err != nil {
					return err
				}
				continue
			}
			prob := "n/a"
			if v.Probability != nil {
				prob = fmt.Sprintf("%.4f", *v.Probability)
			}
			if _, err := fmt.Fprintf(w, "%q\t%s\tp(hate)=%s\n", v.Text, classify.TargetNames[v.Label], prob); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("output format %d: %w", int(format), moderr.ErrInvalidInput)
	}
}

// WriteTrainResult renders a training summary followed by every model report.
func WriteTrainResult(w io.Writer, res TrainResult, id string) error {
	var b strings.Builder
	if res.Combine != nil {
		fmt.Fprintf(&b, "Combined %d dataset(s), %d failed: %d rows, %d duplicates removed\n",
			len(res.Combine.Loaded), len(res.Combine.Failed), res.Combine.Total, res.Combine.DuplicatesRemoved)
		for _, f := range res.Combine.Failed {
			fmt.Fprintf(&b, "  skipped %s (%s)\n", f.Source, moderr.Kind(f.Err))
		}
	}
	fmt.Fprintf(&b, "Train: %s\n", res.Train)
	fmt.Fprintf(&b, "Test:  %s\n", res.Test)
	fmt.Fprintf(&b, "Normalized lengths: %s\n", res.Lengths)
	if res.Empty > 0 {
		fmt.Fprintf(&b, "Removed %d texts that were empty after normalization\n", res.Empty)
	}

	for _, r := range res.Reports {
		fmt.Fprintf(&b, "\n%s accuracy: %.4f\n%s", r.Model, r.Accuracy, r)
	}
	fmt.Fprintf(&b, "\nBest model: %s (accuracy %.4f)\n", res.Best.Model, res.Best.Accuracy)
	if id != "" {
		fmt.Fprintf(&b, "Saved as %s\n", id)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteSummaries lists stored bundles, newest first.
func WriteSummaries(w io.Writer, summaries []store.Summary, format OutputFormat) error {
	if format == JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "no stored models")
		return err
	}
	for _, s := range summaries {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%-12s accuracy=%.4f train=%d test=%d vocabulary=%d\n",
			s.ID, s.Created.Format("2006-01-02 15:04:05"), s.Model, s.Accuracy,
			s.TrainRows, s.TestRows, s.Vocabulary); err != nil {
			return err
		}
	}
	return nil
}
