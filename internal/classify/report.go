package classify

import (
	"fmt"
	"strings"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

// ClassMetrics are the per-label scores. Precision and recall are 0 when undefined.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarises a classifier on a labelled set. Confusion[actual][predicted]
// counts rows.
type Report struct {
	Model     string          `json:"model"`
	Accuracy  float64         `json:"accuracy"`
	Classes   [2]ClassMetrics `json:"classes"`
	Confusion [2][2]int       `json:"confusion"`
	Support   int             `json:"support"`
}

// Evaluate predicts every row of x and compares against y.
func Evaluate(c Classifier, x tfidf.Matrix, y []int) (Report, error) {
	if x.Len() != len(y) {
		return Report{}, fmt.Errorf("%d feature rows for %d labels: %w", x.Len(), len(y), moderr.ErrInvalidInput)
	}
	if len(y) == 0 {
		return Report{}, fmt.Errorf("evaluate on empty set: %w", moderr.ErrInvalidInput)
	}

	r := Report{Model: c.Model().String(), Support: len(y)}
	for i, row := range x.Rows {
		if y[i] != Normal && y[i] != Hate {
			return Report{}, fmt.Errorf("label %d at row %d: %w", y[i], i, moderr.ErrInvalidInput)
		}
		pred, err := c.Predict(row)
		if err != nil {
			return Report{}, err
		}
		r.Confusion[y[i]][pred]++
	}
	r.compute()
	return r, nil
}

func (r *Report) compute() {
	correct := r.Confusion[Normal][Normal] + r.Confusion[Hate][Hate]
	if r.Support > 0 {
		r.Accuracy = float64(correct) / float64(r.Support)
	}

	for label := range r.Classes {
		tp := r.Confusion[label][label]
		actual := r.Confusion[label][0] + r.Confusion[label][1]
		predicted := r.Confusion[0][label] + r.Confusion[1][label]

		m := ClassMetrics{Support: actual}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(tp) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[label] = m
	}
}

// MacroAvg is the unweighted mean of the per-class scores.
func (r Report) MacroAvg() ClassMetrics {
	var m ClassMetrics
	for _, c := range r.Classes {
		m.Precision += c.Precision / 2
		m.Recall += c.Recall / 2
		m.F1 += c.F1 / 2
		m.Support += c.Support
	}
	return m
}

// WeightedAvg is the support-weighted mean of the per-class scores.
func (r Report) WeightedAvg() ClassMetrics {
	m := ClassMetrics{Support: r.Support}
	if r.Support == 0 {
		return m
	}
	for _, c := range r.Classes {
		w := float64(c.Support) / float64(r.Support)
		m.Precision += c.Precision * w
		m.Recall += c.Recall * w
		m.F1 += c.F1 * w
	}
	return m
}

// String renders the report as a classification table followed by the confusion matrix.
func (r Report) String() string {
	var b strings.Builder
	row := func(name string, m ClassMetrics) {
		fmt.Fprintf(&b, "%12s %9.2f %9.2f %9.2f %9d\n", name, m.Precision, m.Recall, m.F1, m.Support)
	}

	fmt.Fprintf(&b, "%12s %9s %9s %9s %9s\n\n", "", "precision", "recall", "f1-score", "support")
	for label, m := range r.Classes {
		row(TargetNames[label], m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.Support)
	row("macro avg", r.MacroAvg())
	row("weighted avg", r.WeightedAvg())

	b.WriteString("\nConfusion matrix (rows: actual, columns: predicted)\n")
	fmt.Fprintf(&b, "%12s %12s %12s\n", "", TargetNames[Normal], TargetNames[Hate])
	for label, counts := range r.Confusion {
		fmt.Fprintf(&b, "%12s %12d %12d\n", TargetNames[label], counts[Normal], counts[Hate])
	}
	return b.String()
}
