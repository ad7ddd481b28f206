// Package classify provides the binary hate-speech classifiers trained on TF-IDF features.
//
// Two variants are available, selected by Model:
//   - Logistic: L2-regularised logistic regression fitted with L-BFGS
//   - NaiveBayes: multinomial naive Bayes with Laplace smoothing
//
// Both estimate the probability of the positive (hate speech) class. Classifiers do
// not normalise or vectorise text; callers pass rows produced by the fitted
// tfidf.Vectorizer.
package classify

import (
	"fmt"
	"strings"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

// Class labels
const (
	Normal = 0
	Hate   = 1
)

// TargetNames are the display names of the labels, indexed by label.
var TargetNames = [2]string{"Normal", "Hate Speech"}

// Model identifies a classifier variant.
type Model int

const (
	Logistic Model = iota
	NaiveBayes
)

// Models lists every variant in default training order.
var Models = []Model{Logistic, NaiveBayes}

func (m Model) String() string {
	switch m {
	case Logistic:
		return "logistic"
	case NaiveBayes:
		return "naive_bayes"
	default:
		return fmt.Sprintf("Model(%d)", int(m))
	}
}

// ParseModel maps a configured name to its Model. Names are case-insensitive and
// "-" may stand in for "_".
func ParseModel(name string) (Model, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_") {
	case "logistic", "logistic_regression":
		return Logistic, nil
	case "naive_bayes", "nb", "multinomial_nb":
		return NaiveBayes, nil
	default:
		return 0, fmt.Errorf("model %q: %w", name, moderr.ErrUnknownModel)
	}
}

// ParseModels parses a list of names, rejecting duplicates.
func ParseModels(names []string) ([]Model, error) {
	seen := make(map[Model]bool, len(names))
	models := make([]Model, 0, len(names))
	for _, name := range names {
		m, err := ParseModel(name)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			return nil, fmt.Errorf("model %q listed twice: %w", name, moderr.ErrInvalidInput)
		}
		seen[m] = true
		models = append(models, m)
	}
	return models, nil
}

// Classifier is the capability every variant provides.
type Classifier interface {
	// Model returns the variant.
	Model() Model
	// Train fits the classifier, replacing any earlier fit. On error the previous
	// state is kept.
	Train(x tfidf.Matrix, y []int) error
	// Predict returns the label for one feature row.
	Predict(x tfidf.Vector) (int, error)
	// State exports the fitted parameters.
	State() (State, error)
}

// ProbabilityEstimator is implemented by variants that can score the positive class.
type ProbabilityEstimator interface {
	Probability(x tfidf.Vector) (float64, error)
}

// Prediction is the output for one input. Probability is nil when the variant
// cannot estimate it.
type Prediction struct {
	Label       int      `json:"label"`
	Probability *float64 `json:"probability"`
}

// New returns an untrained classifier of the given variant.
func New(m Model) (Classifier, error) {
	switch m {
	case Logistic:
		return NewLogistic(), nil
	case NaiveBayes:
		return NewNaiveBayes(), nil
	default:
		return nil, fmt.Errorf("%s: %w", m, moderr.ErrUnknownModel)
	}
}

// Classify predicts x with c and attaches the positive-class probability when c
// supports it.
func Classify(c Classifier, x tfidf.Vector) (Prediction, error) {
	label, err := c.Predict(x)
	if err != nil {
		return Prediction{}, err
	}
	pred := Prediction{Label: label}
	if pe, ok := c.(ProbabilityEstimator); ok {
		p, err := pe.Probability(x)
		if err != nil {
			return Prediction{}, err
		}
		pred.Probability = &p
	}
	return pred, nil
}

// State is the serialisable form of a trained classifier. Only the fields of the
// variant named by Model are set.
type State struct {
	Model string `json:"model"`
	Cols  int    `json:"cols"`

	// logistic
	Weights   []float64 `json:"weights,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`
	C         float64   `json:"c,omitempty"`

	// naive bayes
	Alpha          float64      `json:"alpha,omitempty"`
	ClassCount     [2]int       `json:"class_count"`
	ClassLogPrior  [2]float64   `json:"class_log_prior"`
	FeatureLogProb [2][]float64 `json:"feature_log_prob,omitempty"`
}

// FromState restores a trained classifier.
func FromState(s State) (Classifier, error) {
	m, err := ParseModel(s.Model)
	if err != nil {
		return nil, err
	}
	if s.Cols <= 0 {
		return nil, fmt.Errorf("%s state has %d columns: %w", m, s.Cols, moderr.ErrInvalidInput)
	}

	switch m {
	case Logistic:
		if len(s.Weights) != s.Cols {
			return nil, fmt.Errorf("logistic state has %d weights for %d columns: %w",
				len(s.Weights), s.Cols, moderr.ErrInvalidInput)
		}
		l := &LogisticRegression{C: s.C, weights: append([]float64(nil), s.Weights...), intercept: s.Intercept}
		if l.C <= 0 {
			l.C = DefaultC
		}
		return l, nil
	default:
		for c := range s.FeatureLogProb {
			if len(s.FeatureLogProb[c]) != s.Cols {
				return nil, fmt.Errorf("naive bayes state has %d weights for %d columns: %w",
					len(s.FeatureLogProb[c]), s.Cols, moderr.ErrInvalidInput)
			}
		}
		nb := &MultinomialNB{
			Alpha:         s.Alpha,
			classCount:    s.ClassCount,
			classLogPrior: s.ClassLogPrior,
			fitted:        true,
		}
		if nb.Alpha <= 0 {
			nb.Alpha = DefaultAlpha
		}
		for c := range s.FeatureLogProb {
			nb.featureLogProb[c] = append([]float64(nil), s.FeatureLogProb[c]...)
		}
		return nb, nil
	}
}

// checkTraining validates a training set: matching lengths, labels in {0,1}, and
// both labels present.
func checkTraining(x tfidf.Matrix, y []int) error {
	if x.Len() != len(y) {
		return fmt.Errorf("%d feature rows for %d labels: %w", x.Len(), len(y), moderr.ErrInvalidInput)
	}
	if x.Cols <= 0 {
		return fmt.Errorf("feature matrix has no columns: %w", moderr.ErrInvalidInput)
	}

	var counts [2]int
	for i, label := range y {
		if label != Normal && label != Hate {
			return fmt.Errorf("label %d at row %d: %w", label, i, moderr.ErrInvalidInput)
		}
		counts[label]++
	}
	if counts[Normal] == 0 || counts[Hate] == 0 {
		return fmt.Errorf("training set needs both labels, got %d normal and %d hate: %w",
			counts[Normal], counts[Hate], moderr.ErrInvalidInput)
	}
	return nil
}

// checkRow rejects rows that reference columns outside the fitted width.
func checkRow(x tfidf.Vector, cols int) error {
	if n := len(x.Indices); n > 0 && x.Indices[n-1] >= cols {
		return fmt.Errorf("feature column %d outside %d columns: %w", x.Indices[n-1], cols, moderr.ErrInvalidInput)
	}
	return nil
}
