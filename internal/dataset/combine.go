package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

// CombineReport summarises a multi-source combine.
type CombineReport struct {
	Loaded            []LoadReport
	Failed            []*SourceError
	Total             int // records before deduplication
	DuplicatesRemoved int
	Stats             Stats // final corpus distribution
}

// Combine loads every source in order and merges the results into one corpus.
//
// A source that fails to load is recorded in the report and skipped. Combine only
// fails when no source loads, with an error wrapping moderr.ErrEmptyCorpus, or when
// ctx is cancelled.
func Combine(ctx context.Context, sources []string) (*Corpus, CombineReport, error) {
	var report CombineReport
	var all []Record

	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		slog.Debug("Loading dataset", "index", i+1, "source", source)
		records, lr, err := Load(ctx, source)
		if err != nil {
			var se *SourceError
			if !errors.As(err, &se) {
				se = &SourceError{Source: source, Err: err}
			}
			report.Failed = append(report.Failed, se)
			slog.Warn("Could not load dataset, continuing with other datasets",
				"source", source, "kind", moderr.Kind(err), "error", err)
			continue
		}
		report.Loaded = append(report.Loaded, lr)
		all = append(all, records...)
	}

	if len(report.Loaded) == 0 {
		return nil, report, fmt.Errorf("no datasets were successfully loaded from %d source(s): %w",
			len(sources), moderr.ErrEmptyCorpus)
	}

	report.Total = len(all)
	corpus, removed := NewCorpus(all)
	report.DuplicatesRemoved = removed
	report.Stats = corpus.Stats()

	slog.Info("Combined dataset",
		"sources", len(report.Loaded),
		"failed", len(report.Failed),
		"total", report.Total,
		"duplicatesRemoved", removed,
		"final", corpus.Len(),
		"normalPct", report.Stats.Percent(Normal),
		"hatePct", report.Stats.Percent(Hate))
	return corpus, report, nil
}
