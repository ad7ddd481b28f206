package classify

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

const (
	// DefaultC is the inverse regularisation strength.
	DefaultC = 1.0
	// MaxIterations caps L-BFGS iterations.
	MaxIterations = 1000
)

// LogisticRegression is a binary logistic regression with an unpenalised intercept.
// Training minimises the mean log loss plus ||w||^2 / (2*C*n) from a zero start, so
// a given training set always produces the same weights.
type LogisticRegression struct {
	C float64

	weights   []float64
	intercept float64
}

// NewLogistic returns an untrained model with C = DefaultC.
func NewLogistic() *LogisticRegression {
	return &LogisticRegression{C: DefaultC}
}

func (l *LogisticRegression) Model() Model { return Logistic }

// Train fits the weights with L-BFGS.
func (l *LogisticRegression) Train(x tfidf.Matrix, y []int) error {
	if err := checkTraining(x, y); err != nil {
		return err
	}
	c := l.C
	if c <= 0 {
		c = DefaultC
	}

	cols := x.Cols
	n := float64(len(y))
	reg := 1 / (c * n)

	// theta holds the weights followed by the intercept
	margins := func(theta []float64) []float64 {
		w, b := theta[:cols], theta[cols]
		z := make([]float64, len(x.Rows))
		for i, row := range x.Rows {
			z[i] = row.Dot(w) + b
		}
		return z
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			var loss float64
			for i, z := range margins(theta) {
				loss += softplus(z) - float64(y[i])*z
			}
			var sq float64
			for _, w := range theta[:cols] {
				sq += w * w
			}
			return loss/n + 0.5*reg*sq
		},
		Grad: func(grad, theta []float64) {
			for j := range grad {
				grad[j] = 0
			}
			for i, z := range margins(theta) {
				g := sigmoid(z) - float64(y[i])
				row := x.Rows[i]
				for k, j := range row.Indices {
					grad[j] += g * row.Values[k]
				}
				grad[cols] += g
			}
			for j := range grad {
				grad[j] /= n
			}
			for j, w := range theta[:cols] {
				grad[j] += reg * w
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   MaxIterations,
		GradientThreshold: 1e-6,
	}
	result, err := optimize.Minimize(problem, make([]float64, cols+1), settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("logistic regression: %w", err)
	}
	if err != nil {
		// line search failures still leave the best point found
		slog.Debug("L-BFGS stopped early", "error", err, "status", result.Status)
	}

	l.C = c
	l.weights = append([]float64(nil), result.X[:cols]...)
	l.intercept = result.X[cols]

	slog.Debug("Trained logistic regression",
		"rows", len(y), "cols", cols, "iterations", result.Stats.MajorIterations,
		"loss", result.F, "status", result.Status)
	return nil
}

func (l *LogisticRegression) decision(x tfidf.Vector) (float64, error) {
	if l.weights == nil {
		return 0, fmt.Errorf("logistic regression: %w", moderr.ErrNotFitted)
	}
	if err := checkRow(x, len(l.weights)); err != nil {
		return 0, err
	}
	return x.Dot(l.weights) + l.intercept, nil
}

// Predict returns Hate when the decision value is positive.
func (l *LogisticRegression) Predict(x tfidf.Vector) (int, error) {
	z, err := l.decision(x)
	if err != nil {
		return 0, err
	}
	if z > 0 {
		return Hate, nil
	}
	return Normal, nil
}

// Probability returns P(Hate | x).
func (l *LogisticRegression) Probability(x tfidf.Vector) (float64, error) {
	z, err := l.decision(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(z), nil
}

func (l *LogisticRegression) State() (State, error) {
	if l.weights == nil {
		return State{}, fmt.Errorf("export logistic regression: %w", moderr.ErrNotFitted)
	}
	return State{
		Model:     Logistic.String(),
		Cols:      len(l.weights),
		Weights:   append([]float64(nil), l.weights...),
		Intercept: l.intercept,
		C:         l.C,
	}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}
