package classify

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

// DefaultAlpha is the Laplace smoothing constant.
const DefaultAlpha = 1.0

// MultinomialNB is a multinomial naive Bayes classifier over non-negative features.
// Log probabilities are used throughout to avoid underflow.
type MultinomialNB struct {
	Alpha float64

	classCount     [2]int
	classLogPrior  [2]float64
	featureLogProb [2][]float64
	fitted         bool
}

// NewNaiveBayes returns an untrained model with Alpha = DefaultAlpha.
func NewNaiveBayes() *MultinomialNB {
	return &MultinomialNB{Alpha: DefaultAlpha}
}

func (nb *MultinomialNB) Model() Model { return NaiveBayes }

// Train accumulates per-class feature weights and computes smoothed log probabilities.
func (nb *MultinomialNB) Train(x tfidf.Matrix, y []int) error {
	if err := checkTraining(x, y); err != nil {
		return err
	}
	alpha := nb.Alpha
	if alpha <= 0 {
		alpha = DefaultAlpha
	}

	var counts [2]int
	var featureCount [2][]float64
	featureCount[Normal] = make([]float64, x.Cols)
	featureCount[Hate] = make([]float64, x.Cols)

	for i, row := range x.Rows {
		label := y[i]
		counts[label]++
		for k, j := range row.Indices {
			if row.Values[k] < 0 {
				return fmt.Errorf("negative feature %g at row %d: %w", row.Values[k], i, moderr.ErrInvalidInput)
			}
			featureCount[label][j] += row.Values[k]
		}
	}

	var logPrior [2]float64
	var logProb [2][]float64
	total := float64(len(y))
	for c := range counts {
		logPrior[c] = math.Log(float64(counts[c]) / total)

		var sum float64
		for _, v := range featureCount[c] {
			sum += v
		}
		denom := math.Log(sum + alpha*float64(x.Cols))
		logProb[c] = make([]float64, x.Cols)
		for j, v := range featureCount[c] {
			logProb[c][j] = math.Log(v+alpha) - denom
		}
	}

	nb.Alpha = alpha
	nb.classCount = counts
	nb.classLogPrior = logPrior
	nb.featureLogProb = logProb
	nb.fitted = true

	slog.Debug("Trained naive Bayes", "rows", len(y), "cols", x.Cols, "classCount", counts)
	return nil
}

// jointLogLikelihood returns log P(c) + sum_j x_j log P(j | c) for both classes.
func (nb *MultinomialNB) jointLogLikelihood(x tfidf.Vector) ([2]float64, error) {
	if !nb.fitted {
		return [2]float64{}, fmt.Errorf("naive bayes: %w", moderr.ErrNotFitted)
	}
	if err := checkRow(x, len(nb.featureLogProb[Normal])); err != nil {
		return [2]float64{}, err
	}

	jll := nb.classLogPrior
	for c := range jll {
		jll[c] += x.Dot(nb.featureLogProb[c])
	}
	return jll, nil
}

// Predict returns the class with the higher joint likelihood; ties go to Normal.
func (nb *MultinomialNB) Predict(x tfidf.Vector) (int, error) {
	jll, err := nb.jointLogLikelihood(x)
	if err != nil {
		return 0, err
	}
	if jll[Hate] > jll[Normal] {
		return Hate, nil
	}
	return Normal, nil
}

// Probability returns P(Hate | x).
func (nb *MultinomialNB) Probability(x tfidf.Vector) (float64, error) {
	jll, err := nb.jointLogLikelihood(x)
	if err != nil {
		return 0, err
	}
	// normalise in log space
	m := math.Max(jll[Normal], jll[Hate])
	logSum := m + math.Log(math.Exp(jll[Normal]-m)+math.Exp(jll[Hate]-m))
	return math.Exp(jll[Hate] - logSum), nil
}

func (nb *MultinomialNB) State() (State, error) {
	if !nb.fitted {
		return State{}, fmt.Errorf("export naive bayes: %w", moderr.ErrNotFitted)
	}
	s := State{
		Model:         NaiveBayes.String(),
		Cols:          len(nb.featureLogProb[Normal]),
		Alpha:         nb.Alpha,
		ClassCount:    nb.classCount,
		ClassLogPrior: nb.classLogPrior,
	}
	for c := range nb.featureLogProb {
		s.FeatureLogProb[c] = append([]float64(nil), nb.featureLogProb[c]...)
	}
	return s, nil
}
