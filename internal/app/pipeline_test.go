package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vssut-vibes/hatefilter/internal/dataset"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/store"
)

// separableCorpus is 50 copies of a normal text and 50 of a hateful one.
func separableCorpus() []dataset.Record {
	records := make([]dataset.Record, 0, 100)
	for i := 0; i < 50; i++ {
		records = append(records,
			dataset.Record{Content: "good", Label: dataset.Normal},
			dataset.Record{Content: "bad hate", Label: dataset.Hate})
	}
	return records
}

func trainedPipeline(t *testing.T, cfg Config) (*Pipeline, TrainResult) {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.LoadRecords(separableCorpus()); err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	res, err := p.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return p, res
}

func TestPredictBeforeTrain(t *testing.T) {
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Predict("neutral text"); !errors.Is(err, moderr.ErrNotFitted) {
		t.Errorf("Predict() before Train error = %v, want ErrNotFitted", err)
	}
	if _, err := p.Bundle(); !errors.Is(err, moderr.ErrNotFitted) {
		t.Errorf("Bundle() before Train error = %v, want ErrNotFitted", err)
	}
	if _, err := p.Model(); !errors.Is(err, moderr.ErrNotFitted) {
		t.Errorf("Model() before Train error = %v, want ErrNotFitted", err)
	}
}

func TestTrainSeparableCorpus(t *testing.T) {
	for _, workers := range []int{0, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Workers = workers
			p, res := trainedPipeline(t, cfg)

			if p.Stage() != StageReady {
				t.Fatalf("Stage() = %s, want ready", p.Stage())
			}
			if res.Best.Accuracy <= 0.9 {
				t.Errorf("best accuracy = %.3f, want > 0.9", res.Best.Accuracy)
			}
			if len(res.Reports) != 2 {
				t.Fatalf("got %d reports, want 2", len(res.Reports))
			}
			for _, r := range res.Reports {
				if r.Accuracy <= 0.9 {
					t.Errorf("%s accuracy = %.3f, want > 0.9", r.Model, r.Accuracy)
				}
			}
			if res.Combine != nil {
				t.Error("Combine report set for directly loaded records")
			}
			if res.Train.Rows != 80 || res.Test.Rows != 20 {
				t.Errorf("split = %d/%d, want 80/20", res.Train.Rows, res.Test.Rows)
			}
			if res.Test.Counts[dataset.Normal] != 10 || res.Test.Counts[dataset.Hate] != 10 {
				t.Errorf("test counts = %v, want stratified 10/10", res.Test.Counts)
			}

			verdicts, err := p.Predict("good", "bad hate")
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			for i, want := range []int{dataset.Normal, dataset.Hate} {
				v := verdicts[i]
				if v.Err != nil {
					t.Errorf("Predict(%q) error = %v", v.Text, v.Err)
					continue
				}
				if v.Label != want {
					t.Errorf("Predict(%q) = %d, want %d", v.Text, v.Label, want)
				}
				if v.Probability == nil {
					t.Errorf("Predict(%q) has no probability", v.Text)
				}
			}
		})
	}
}

func TestSelectTieKeepsConfiguredOrder(t *testing.T) {
	for _, models := range [][]string{{"logistic", "naive_bayes"}, {"naive_bayes", "logistic"}} {
		t.Run(strings.Join(models, ","), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Models = models
			p, res := trainedPipeline(t, cfg)

			if res.Reports[0].Accuracy != res.Reports[1].Accuracy {
				t.Skip("models did not tie")
			}
			m, err := p.Model()
			if err != nil {
				t.Fatal(err)
			}
			if m.String() != models[0] || res.Best.Model != models[0] {
				t.Errorf("selected %s, want first configured %s", m, models[0])
			}
		})
	}
}

func TestStageOrder(t *testing.T) {
	ctx := context.Background()
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Normalize(ctx); !errors.Is(err, moderr.ErrStage) {
		t.Errorf("Normalize() before load error = %v, want ErrStage", err)
	}
	if err := p.LoadRecords(separableCorpus()); err != nil {
		t.Fatal(err)
	}
	if err := p.LoadRecords(separableCorpus()); !errors.Is(err, moderr.ErrStage) {
		t.Errorf("second LoadRecords() error = %v, want ErrStage", err)
	}
	if _, err := p.Load(ctx); !errors.Is(err, moderr.ErrStage) {
		t.Errorf("Load() after LoadRecords error = %v, want ErrStage", err)
	}
	if err := p.Split(); !errors.Is(err, moderr.ErrStage) {
		t.Errorf("Split() before Normalize error = %v, want ErrStage", err)
	}

	steps := []struct {
		want Stage
		run  func() error
	}{
		{StageNormalized, func() error { return p.Normalize(ctx) }},
		{StageSplit, p.Split},
		{StageFeaturesFit, p.FitFeatures},
		{StageTrained, func() error { return p.TrainModels(ctx) }},
		{StageEvaluated, func() error { _, err := p.Evaluate(); return err }},
		{StageReady, func() error { _, err := p.Select(); return err }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("stage %s: %v", step.want, err)
		}
		if p.Stage() != step.want {
			t.Fatalf("Stage() = %s, want %s", p.Stage(), step.want)
		}
	}

	if err := p.FitFeatures(); !errors.Is(err, moderr.ErrStage) {
		t.Errorf("FitFeatures() when ready error = %v, want ErrStage", err)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown model", func(c *Config) { c.Models = []string{"svm"} }, moderr.ErrUnknownModel},
		{"no models", func(c *Config) { c.Models = nil }, moderr.ErrInvalidInput},
		{"duplicate model", func(c *Config) { c.Models = []string{"nb", "naive_bayes"} }, moderr.ErrInvalidInput},
		{"unknown lemmatizer", func(c *Config) { c.Lemmatizer = "wordnet" }, moderr.ErrInvalidInput},
		{"zero test size", func(c *Config) { c.TestSize = 0 }, moderr.ErrInvalidInput},
		{"negative workers", func(c *Config) { c.Workers = -2 }, moderr.ErrInvalidInput},
		{"bad vectorizer", func(c *Config) { c.Vectorizer.MinDF = 0 }, moderr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRecordsErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []dataset.Record
		wantErr error
	}{
		{"empty", nil, moderr.ErrEmptyCorpus},
		{"bad label", []dataset.Record{{Content: "x", Label: 2}}, moderr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(DefaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			if err := p.LoadRecords(tt.records); !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadRecords() error = %v, want %v", err, tt.wantErr)
			}
			if p.Stage() != StageConstructed {
				t.Errorf("Stage() = %s after failed load", p.Stage())
			}
		})
	}
}

func TestTrainEmptyAfterNormalization(t *testing.T) {
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	records := []dataset.Record{
		{Content: "I am the who", Label: 0},
		{Content: "is it", Label: 1},
		{Content: "http://example.com @bob", Label: 0},
	}
	if err := p.LoadRecords(records); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Train(context.Background()); !errors.Is(err, moderr.ErrEmptyCorpus) {
		t.Errorf("Train() error = %v, want ErrEmptyCorpus", err)
	}
}

func TestPredictPerInputFailure(t *testing.T) {
	p, _ := trainedPipeline(t, DefaultConfig())

	verdicts, err := p.Predict("good", "bad \xff\xfe hate", "")
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(verdicts) != 3 {
		t.Fatalf("got %d verdicts, want 3", len(verdicts))
	}
	if verdicts[0].Err != nil {
		t.Errorf("valid input failed: %v", verdicts[0].Err)
	}
	if !errors.Is(verdicts[1].Err, moderr.ErrInvalidInput) {
		t.Errorf("invalid UTF-8 error = %v, want ErrInvalidInput", verdicts[1].Err)
	}
	// an empty text has an all-zero feature row and still gets a label
	if verdicts[2].Err != nil || verdicts[2].Normalized != "" {
		t.Errorf("empty input verdict = %+v", verdicts[2])
	}

	empty, err := p.Predict()
	if err != nil || len(empty) != 0 {
		t.Errorf("Predict() with no texts = %v, %v", empty, err)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Spelling = true
	cfg.Lemmatizer = "snowball"
	p, res := trainedPipeline(t, cfg)

	b, err := p.Bundle()
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	if !b.Normalizer.Spelling || b.Normalizer.Lemmatizer != "snowball" {
		t.Errorf("normalizer settings = %+v", b.Normalizer)
	}
	if b.Spelling["good"] != res.Train.Counts[dataset.Normal] || b.Spelling["hate"] != res.Train.Counts[dataset.Hate] {
		t.Errorf("learned dictionary = %v, want counts of the training split %v", b.Spelling, res.Train.Counts)
	}
	if b.TrainRows != res.Train.Rows || b.TestRows != res.Test.Rows {
		t.Errorf("rows = %d/%d", b.TrainRows, b.TestRows)
	}

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	id, err := st.Save(ctx, b)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	restored, err := FromBundle(loaded)
	if err != nil {
		t.Fatalf("FromBundle() error = %v", err)
	}
	if restored.Stage() != StageReady {
		t.Fatalf("restored Stage() = %s, want ready", restored.Stage())
	}

	texts := []string{"good", "bad hate", "goood peple", "haate"}
	want, err := p.Predict(texts...)
	if err != nil {
		t.Fatal(err)
	}
	got, err := restored.Predict(texts...)
	if err != nil {
		t.Fatal(err)
	}
	for i := range texts {
		if got[i].Normalized != want[i].Normalized || got[i].Label != want[i].Label {
			t.Errorf("restored Predict(%q) = %q/%d, want %q/%d",
				texts[i], got[i].Normalized, got[i].Label, want[i].Normalized, want[i].Label)
		}
		if (got[i].Probability == nil) != (want[i].Probability == nil) ||
			(got[i].Probability != nil && *got[i].Probability != *want[i].Probability) {
			t.Errorf("restored probability for %q differs", texts[i])
		}
	}

	again, err := restored.Bundle()
	if err != nil {
		t.Fatalf("restored Bundle() error = %v", err)
	}
	if again.TrainRows != b.TrainRows || again.Classifier.Model != b.Classifier.Model {
		t.Errorf("re-exported bundle = %+v", again)
	}
}

func TestLearnedDictionaryExcludesTestSplit(t *testing.T) {
	// every record carries a word of its own, so a held-out record's word shows up in
	// the dictionary only if the test split leaked into it
	words := []string{"amber", "birch", "cedar", "daisy", "ember", "fern", "grove", "heath", "iris", "juniper"}
	var records []dataset.Record
	for _, w := range words {
		records = append(records,
			dataset.Record{Content: "calm " + w + "normal", Label: dataset.Normal},
			dataset.Record{Content: "vile " + w + "hateful", Label: dataset.Hate})
	}

	cfg := DefaultConfig()
	cfg.Spelling = true
	cfg.Lemmatizer = "none"
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.LoadRecords(records); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := p.Normalize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Split(); err != nil {
		t.Fatal(err)
	}

	counts := p.corrector.Counts()
	if counts["calm"] != len(p.train)/2 || counts["vile"] != len(p.train)/2 {
		t.Errorf("calm/vile = %d/%d, want %d each", counts["calm"], counts["vile"], len(p.train)/2)
	}
	if len(p.train) != 16 || len(p.test) != 4 {
		t.Fatalf("split = %d/%d, want 16/4", len(p.train), len(p.test))
	}
	for _, r := range p.train {
		if counts[strings.Fields(r.Content)[1]] != 1 {
			t.Errorf("training text %q missing from dictionary", r.Content)
		}
	}
	for _, r := range p.test {
		if w := strings.Fields(r.Content)[1]; counts[w] != 0 {
			t.Errorf("held-out word %q in dictionary", w)
		}
	}
}

func TestFromBundleRejectsMismatch(t *testing.T) {
	p, _ := trainedPipeline(t, DefaultConfig())
	b, err := p.Bundle()
	if err != nil {
		t.Fatal(err)
	}

	b.Vectorizer.Terms = b.Vectorizer.Terms[:1]
	b.Vectorizer.IDF = b.Vectorizer.IDF[:1]
	if _, err := FromBundle(b); !errors.Is(err, moderr.ErrInvalidInput) {
		t.Errorf("FromBundle() error = %v, want ErrInvalidInput", err)
	}
}

func writeDataset(t *testing.T, dir, name, header string, rows []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTrainFromDatasets(t *testing.T) {
	dir := t.TempDir()

	var a, b []string
	for i := 0; i < 30; i++ {
		a = append(a, fmt.Sprintf("lovely kind friend %d,0", i))
		b = append(b, fmt.Sprintf("hate vile scum %d\t1", i))
	}
	// the first source wins a duplicate
	b = append(b, "lovely kind friend 0\t1")

	cfg := DefaultConfig()
	cfg.Datasets = []string{
		writeDataset(t, dir, "a.csv", "Content,Label", a),
		filepath.Join(dir, "missing.csv"),
		writeDataset(t, dir, "b.tsv", "text\tis_offensive", b),
	}

	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if res.Combine == nil {
		t.Fatal("no combine report")
	}
	if len(res.Combine.Loaded) != 2 || len(res.Combine.Failed) != 1 {
		t.Errorf("loaded/failed = %d/%d, want 2/1", len(res.Combine.Loaded), len(res.Combine.Failed))
	}
	if !errors.Is(res.Combine.Failed[0].Err, moderr.ErrNotFound) {
		t.Errorf("missing source error = %v, want ErrNotFound", res.Combine.Failed[0].Err)
	}
	if res.Combine.Total != 61 || res.Combine.DuplicatesRemoved != 1 {
		t.Errorf("total/duplicates = %d/%d, want 61/1", res.Combine.Total, res.Combine.DuplicatesRemoved)
	}
	if res.Best.Accuracy <= 0.9 {
		t.Errorf("best accuracy = %.3f, want > 0.9", res.Best.Accuracy)
	}
}

func TestWriteVerdicts(t *testing.T) {
	p := 0.75
	verdicts := []Verdict{
		{Text: "bad hate", Normalized: "bad hate", Label: 1, Probability: &p},
		{Text: "good", Normalized: "good", Label: 0},
		{Text: "\xff", Err: fmt.Errorf("text is not valid UTF-8: %w", moderr.ErrInvalidInput)},
	}

	var text bytes.Buffer
	if err := WriteVerdicts(&text, verdicts, Text); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(text.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("text output has %d lines, want 3:\n%s", len(lines), text.String())
	}
	for i, want := range []string{"Hate Speech\tp(hate)=0.7500", "Normal\tp(hate)=n/a", "error: text is not valid UTF-8"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}

	var out bytes.Buffer
	if err := WriteVerdicts(&out, verdicts, JSON); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if decoded[0]["label"] != float64(1) || decoded[0]["class"] != "Hate Speech" || decoded[0]["probability"] != 0.75 {
		t.Errorf("decoded[0] = %v", decoded[0])
	}
	if decoded[1]["probability"] != nil {
		t.Errorf("decoded[1] probability = %v, want null", decoded[1]["probability"])
	}
	if decoded[2]["label"] != nil || decoded[2]["error_kind"] != "invalid_input" {
		t.Errorf("decoded[2] = %v", decoded[2])
	}

	if err := WriteVerdicts(&out, verdicts, OutputFormat(9)); !errors.Is(err, moderr.ErrInvalidInput) {
		t.Errorf("unknown format error = %v, want ErrInvalidInput", err)
	}
}

func TestWriteTrainResult(t *testing.T) {
	_, res := trainedPipeline(t, DefaultConfig())

	var buf bytes.Buffer
	if err := WriteTrainResult(&buf, res, "01J0000000000000000000000"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Train: rows=80", "logistic accuracy", "naive_bayes accuracy", "Best model:", "Saved as"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestStageString(t *testing.T) {
	if StageFeaturesFit.String() != "features_fit" || Stage(42).String() != "stage(42)" {
		t.Errorf("Stage strings = %q, %q", StageFeaturesFit, Stage(42))
	}
}
