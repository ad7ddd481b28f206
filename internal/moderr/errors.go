// Package moderr holds the error taxonomy shared by the moderation pipeline.
//
// Every package wraps one of these sentinels with fmt.Errorf("...: %w", ...) so callers
// can tell a per-source failure from a whole-run failure with errors.Is instead of
// matching on message text.
package moderr

import (
	"context"
	"errors"
)

// Sentinel errors for the pipeline
var (
	ErrNotFound     = errors.New("not found")
	ErrSchema       = errors.New("schema error")
	ErrLoad         = errors.New("load error")
	ErrEmptyCorpus  = errors.New("empty corpus")
	ErrNotFitted    = errors.New("not fitted")
	ErrUnknownModel = errors.New("unknown model")
	ErrInvalidInput = errors.New("invalid input")
	ErrStage        = errors.New("invalid pipeline stage")
)

// Kind returns a short stable code for err, for log fields and metrics labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancel"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrLoad):
		return "load"
	case errors.Is(err, ErrEmptyCorpus):
		return "empty_corpus"
	case errors.Is(err, ErrNotFitted):
		return "not_fitted"
	case errors.Is(err, ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrStage):
		return "stage"
	default:
		return "unknown"
	}
}
