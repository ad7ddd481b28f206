// Package app contains the moderation pipeline orchestrator used by the hatefilter CLI.
// It owns the order of the training stages and the trained state used for prediction,
// separated from CLI concerns.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/vssut-vibes/hatefilter/internal/classify"
	"github.com/vssut-vibes/hatefilter/internal/counter"
	"github.com/vssut-vibes/hatefilter/internal/dataset"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/spell"
	"github.com/vssut-vibes/hatefilter/internal/spinner"
	"github.com/vssut-vibes/hatefilter/internal/store"
	"github.com/vssut-vibes/hatefilter/internal/textnorm"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

// Config holds all configuration options for one training run.
type Config struct {
	Datasets    []string // dataset sources combined in order; earlier sources win duplicates
	Spelling    bool     // run spelling correction during normalisation
	Dictionary  string   // word frequency file; empty learns the dictionary from the corpus
	Lemmatizer  string   // dictionary, snowball or none
	StripMarkup bool     // reduce HTML to text before normalising
	TestSize    float64  // held-out share of every label
	Seed        int64    // split seed
	Workers     int      // normalisation goroutines; 0 or 1 runs sequentially
	Models      []string // classifier variants to train and compare
	Vectorizer  tfidf.Options

	Counting counter.CountingMethod // unit for corpus length statistics
	Progress spinner.Reporter       // nil discards progress
}

// DefaultConfig returns the configuration of the standard training run.
func DefaultConfig() Config {
	return Config{
		Datasets:   []string{"HateSpeechDataset.csv", "English_profanity_words.csv"},
		Lemmatizer: textnorm.LemmaDictionary,
		TestSize:   0.2,
		Seed:       42,
		Workers:    4,
		Models:     []string{classify.Logistic.String(), classify.NaiveBayes.String()},
		Vectorizer: tfidf.DefaultOptions(),
	}
}

// Stage is a step of the training lifecycle. Stages only move forward.
type Stage int

const (
	StageConstructed Stage = iota
	StageLoaded
	StageNormalized
	StageSplit
	StageFeaturesFit
	StageTrained
	StageEvaluated
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageConstructed:
		return "constructed"
	case StageLoaded:
		return "loaded"
	case StageNormalized:
		return "normalized"
	case StageSplit:
		return "split"
	case StageFeaturesFit:
		return "features_fit"
	case StageTrained:
		return "trained"
	case StageEvaluated:
		return "evaluated"
	case StageReady:
		return "ready"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// candidate is one trained variant and its held-out report.
type candidate struct {
	classifier classify.Classifier
	report     classify.Report
}

// Pipeline is one training run and, once ready, its inference path.
// A Pipeline is not safe for concurrent use while training; Predict is safe to call
// concurrently once the pipeline is ready.
type Pipeline struct {
	cfg        Config
	models     []classify.Model
	lemmatizer textnorm.Lemmatizer
	progress   spinner.Reporter
	stage      Stage

	records    []dataset.Record
	combined   *dataset.CombineReport
	corrector  *spell.Corrector
	normalizer *textnorm.Normalizer
	normalized []dataset.Record
	heldOut    []bool // per normalized record, set when the partition is fixed before Split
	lengths    counter.Summary

	emptyDropped int

	train, test   []dataset.Record
	trainRows     int
	testRows      int
	vectorizer    *tfidf.Vectorizer
	xTrain, xTest tfidf.Matrix
	yTrain, yTest []int
	candidates    []candidate
	active        classify.Classifier
	report        classify.Report
}

// TrainResult summarises a completed training run.
type TrainResult struct {
	Combine *dataset.CombineReport // nil when records were supplied directly
	Train   dataset.Stats
	Test    dataset.Stats
	Lengths counter.Summary // normalised text lengths
	Empty   int             // texts removed because normalisation left nothing
	Reports []classify.Report
	Best    classify.Report
}

// New validates cfg and returns a pipeline in the constructed stage. Unknown model
// names fail with moderr.ErrUnknownModel.
func New(cfg Config) (*Pipeline, error) {
	models, err := classify.ParseModels(cfg.Models)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required: %w", moderr.ErrInvalidInput)
	}
	lemmatizer, err := textnorm.ParseLemmatizer(cfg.Lemmatizer)
	if err != nil {
		return nil, err
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return nil, fmt.Errorf("test size %g must be in (0, 1): %w", cfg.TestSize, moderr.ErrInvalidInput)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers %d is negative: %w", cfg.Workers, moderr.ErrInvalidInput)
	}
	if err := cfg.Vectorizer.Validate(); err != nil {
		return nil, err
	}

	progress := cfg.Progress
	if progress == nil {
		progress = spinner.Nop{}
	}

	return &Pipeline{
		cfg:        cfg,
		models:     models,
		lemmatizer: lemmatizer,
		progress:   progress,
	}, nil
}

// Stage returns the current stage.
func (p *Pipeline) Stage() Stage { return p.stage }

func (p *Pipeline) expect(want Stage, op string) error {
	if p.stage != want {
		return fmt.Errorf("%s: pipeline is %s, want %s: %w", op, p.stage, want, moderr.ErrStage)
	}
	return nil
}

// Load combines the configured datasets into a deduplicated corpus.
func (p *Pipeline) Load(ctx context.Context) (dataset.CombineReport, error) {
	if err := p.expect(StageConstructed, "load"); err != nil {
		return dataset.CombineReport{}, err
	}
	p.progress.Step(fmt.Sprintf("Loading %d dataset(s)", len(p.cfg.Datasets)))

	corpus, report, err := dataset.Combine(ctx, p.cfg.Datasets)
	if err != nil {
		return report, err
	}
	p.records = corpus.Records()
	p.combined = &report
	p.stage = StageLoaded
	return report, nil
}

// LoadRecords uses records as the corpus as given, without deduplication.
func (p *Pipeline) LoadRecords(records []dataset.Record) error {
	if err := p.expect(StageConstructed, "load records"); err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records: %w", moderr.ErrEmptyCorpus)
	}
	for i, r := range records {
		if r.Label != dataset.Normal && r.Label != dataset.Hate {
			return fmt.Errorf("record %d has label %d: %w", i, r.Label, moderr.ErrInvalidInput)
		}
	}

	p.records = append([]dataset.Record(nil), records...)
	slog.Info("Loaded records", "stats", dataset.NewStats(p.records).String())
	p.stage = StageLoaded
	return nil
}

// Normalize builds the normaliser and cleans every record's content.
func (p *Pipeline) Normalize(ctx context.Context) error {
	if err := p.expect(StageLoaded, "normalize"); err != nil {
		return err
	}
	p.progress.Step(fmt.Sprintf("Normalizing %d texts", len(p.records)))

	var heldOut []bool
	if p.cfg.Spelling {
		c, held, err := p.buildCorrector(ctx)
		if err != nil {
			return err
		}
		p.corrector, heldOut = c, held
	}
	p.normalizer = p.newNormalizer()

	texts := make([]string, len(p.records))
	for i, r := range p.records {
		texts[i] = r.Content
	}
	clean, err := p.normalizer.NormalizeAll(ctx, texts, p.cfg.Workers)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	// texts with nothing left after cleaning carry no features
	p.normalized = make([]dataset.Record, 0, len(p.records))
	p.heldOut = nil
	kept := make([]string, 0, len(clean))
	for i, r := range p.records {
		if clean[i] == "" {
			continue
		}
		p.normalized = append(p.normalized, dataset.Record{Content: clean[i], Label: r.Label})
		if heldOut != nil {
			p.heldOut = append(p.heldOut, heldOut[i])
		}
		kept = append(kept, clean[i])
	}
	p.emptyDropped = len(p.records) - len(p.normalized)
	if len(p.normalized) == 0 {
		return fmt.Errorf("all %d texts are empty after normalization: %w", len(p.records), moderr.ErrEmptyCorpus)
	}

	p.lengths = counter.Summarize(p.lengthCounter(), kept)
	slog.Info("Normalized corpus",
		"kept", len(p.normalized),
		"emptyRemoved", p.emptyDropped,
		"lengths", p.lengths.String(),
		"spelling", p.cfg.Spelling)

	p.stage = StageNormalized
	return nil
}

// buildCorrector loads the configured dictionary, falling back to the raw corpus
// when there is none or it cannot be read. A dictionary learned from the corpus only
// sees the training partition, so the partition is drawn here and the returned flags
// mark each loaded record that is held out for testing.
func (p *Pipeline) buildCorrector(ctx context.Context) (*spell.Corrector, []bool, error) {
	c := spell.New()
	if p.cfg.Dictionary != "" {
		err := c.LoadDictionary(ctx, p.cfg.Dictionary)
		if err == nil {
			return c, nil, nil
		}
		slog.Warn("Could not load spelling dictionary, learning from the training split instead",
			"dictionary", p.cfg.Dictionary, "kind", moderr.Kind(err), "error", err)
	}

	trainIdx, testIdx, err := dataset.SplitIndices(p.records, p.cfg.TestSize, p.cfg.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("split: %w", err)
	}
	heldOut := make([]bool, len(p.records))
	for _, i := range testIdx {
		heldOut[i] = true
	}
	texts := make([]string, len(trainIdx))
	for i, j := range trainIdx {
		texts[i] = p.records[j].Content
	}
	c.Learn(texts)
	return c, heldOut, nil
}

func (p *Pipeline) newNormalizer() *textnorm.Normalizer {
	opts := textnorm.Options{Lemmatizer: p.lemmatizer, StripMarkup: p.cfg.StripMarkup}
	// a nil *spell.Corrector must not become a non-nil interface
	if p.corrector != nil {
		opts.Corrector = p.corrector
	}
	return textnorm.New(opts)
}

func (p *Pipeline) lengthCounter() counter.Counter {
	c, err := counter.NewCounter(p.cfg.Counting)
	if err != nil {
		slog.Warn("Falling back to word counts", "method", p.cfg.Counting.String(), "error", err)
		return counter.WordCounter{}
	}
	return c
}

// Split partitions the normalised corpus into stratified train and test sets.
func (p *Pipeline) Split() error {
	if err := p.expect(StageNormalized, "split"); err != nil {
		return err
	}

	train, test, err := p.partition()
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}
	p.train, p.test = train, test
	p.trainRows, p.testRows = len(train), len(test)
	slog.Info("Split corpus",
		"train", dataset.NewStats(train).String(),
		"test", dataset.NewStats(test).String(),
		"seed", p.cfg.Seed)

	p.stage = StageSplit
	return nil
}

// partition draws the stratified split, or keeps the one already drawn for the
// spelling dictionary.
func (p *Pipeline) partition() (train, test []dataset.Record, err error) {
	if p.heldOut == nil {
		return dataset.StratifiedSplit(p.normalized, p.cfg.TestSize, p.cfg.Seed)
	}
	for i, r := range p.normalized {
		if p.heldOut[i] {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, fmt.Errorf("%d train and %d test records left after normalization: %w",
			len(train), len(test), moderr.ErrEmptyCorpus)
	}
	return train, test, nil
}

// FitFeatures fits the TF-IDF vocabulary on the training split and transforms both splits.
func (p *Pipeline) FitFeatures() error {
	if err := p.expect(StageSplit, "fit features"); err != nil {
		return err
	}
	p.progress.Step("Fitting TF-IDF features")

	texts, labels := columns(p.train)
	v := tfidf.New(p.cfg.Vectorizer)
	xTrain, err := v.FitTransform(texts)
	if err != nil {
		return fmt.Errorf("fit features: %w", err)
	}
	testTexts, testLabels := columns(p.test)
	xTest, err := v.Transform(testTexts)
	if err != nil {
		return fmt.Errorf("transform test split: %w", err)
	}

	p.vectorizer = v
	p.xTrain, p.yTrain = xTrain, labels
	p.xTest, p.yTest = xTest, testLabels
	slog.Info("Fitted features", "vocabulary", xTrain.Cols, "train", xTrain.Len(), "test", xTest.Len())

	p.stage = StageFeaturesFit
	return nil
}

// TrainModels trains every configured variant on the same training features.
func (p *Pipeline) TrainModels(ctx context.Context) error {
	if err := p.expect(StageFeaturesFit, "train"); err != nil {
		return err
	}

	candidates := make([]candidate, 0, len(p.models))
	for _, m := range p.models {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.progress.Step("Training " + m.String())

		c, err := classify.New(m)
		if err != nil {
			return err
		}
		if err := c.Train(p.xTrain, p.yTrain); err != nil {
			return fmt.Errorf("train %s: %w", m, err)
		}
		slog.Debug("Trained model", "model", m.String(), "rows", p.xTrain.Len())
		candidates = append(candidates, candidate{classifier: c})
	}

	p.candidates = candidates
	p.stage = StageTrained
	return nil
}

// Evaluate scores every trained variant on the test split.
func (p *Pipeline) Evaluate() ([]classify.Report, error) {
	if err := p.expect(StageTrained, "evaluate"); err != nil {
		return nil, err
	}
	p.progress.Step("Evaluating models")

	reports := make([]classify.Report, len(p.candidates))
	for i := range p.candidates {
		r, err := classify.Evaluate(p.candidates[i].classifier, p.xTest, p.yTest)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", p.candidates[i].classifier.Model(), err)
		}
		p.candidates[i].report = r
		reports[i] = r
		slog.Info("Evaluated model", "model", r.Model, "accuracy", r.Accuracy)
	}

	p.stage = StageEvaluated
	return reports, nil
}

// Select makes the most accurate variant the active classifier. Ties keep the variant
// configured first.
func (p *Pipeline) Select() (classify.Report, error) {
	if err := p.expect(StageEvaluated, "select"); err != nil {
		return classify.Report{}, err
	}

	best := 0
	for i := 1; i < len(p.candidates); i++ {
		if p.candidates[i].report.Accuracy > p.candidates[best].report.Accuracy {
			best = i
		}
	}
	p.active = p.candidates[best].classifier
	p.report = p.candidates[best].report
	slog.Info("Selected model", "model", p.report.Model, "accuracy", p.report.Accuracy)

	// intermediate matrices are not needed for prediction
	p.xTrain, p.xTest = tfidf.Matrix{}, tfidf.Matrix{}
	p.records, p.normalized, p.heldOut = nil, nil, nil

	p.stage = StageReady
	return p.report, nil
}

// Train runs every remaining stage. A pipeline whose records were supplied with
// LoadRecords starts at normalisation.
func (p *Pipeline) Train(ctx context.Context) (TrainResult, error) {
	defer p.progress.Done()

	var res TrainResult
	if p.stage == StageConstructed {
		if _, err := p.Load(ctx); err != nil {
			return res, err
		}
	}
	res.Combine = p.combined

	if err := p.Normalize(ctx); err != nil {
		return res, err
	}
	res.Lengths, res.Empty = p.lengths, p.emptyDropped

	if err := p.Split(); err != nil {
		return res, err
	}
	res.Train, res.Test = dataset.NewStats(p.train), dataset.NewStats(p.test)

	if err := p.FitFeatures(); err != nil {
		return res, err
	}
	if err := p.TrainModels(ctx); err != nil {
		return res, err
	}
	reports, err := p.Evaluate()
	if err != nil {
		return res, err
	}
	res.Reports = reports

	best, err := p.Select()
	if err != nil {
		return res, err
	}
	res.Best = best
	return res, nil
}

// Model returns the active classifier variant.
func (p *Pipeline) Model() (classify.Model, error) {
	if p.stage != StageReady {
		return 0, fmt.Errorf("no active model: %w", moderr.ErrNotFitted)
	}
	return p.active.Model(), nil
}

// Report returns the held-out report of the active classifier.
func (p *Pipeline) Report() classify.Report { return p.report }

// Verdict is the moderation result for one input text.
type Verdict struct {
	Text        string   `json:"text"`
	Normalized  string   `json:"normalized"`
	Label       int      `json:"label"`
	Probability *float64 `json:"probability"`
	Err         error    `json:"-"`
}

// Predict classifies texts with the active classifier. A pipeline that is not ready
// fails with moderr.ErrNotFitted. A text that cannot be classified fails on its own
// in Verdict.Err without affecting the rest of the batch.
func (p *Pipeline) Predict(texts ...string) ([]Verdict, error) {
	if p.stage != StageReady {
		return nil, fmt.Errorf("predict: pipeline is %s: %w", p.stage, moderr.ErrNotFitted)
	}

	verdicts := make([]Verdict, len(texts))
	for i, text := range texts {
		verdicts[i] = p.predictOne(text)
	}
	return verdicts, nil
}

func (p *Pipeline) predictOne(text string) Verdict {
	v := Verdict{Text: text}
	if !utf8.ValidString(text) {
		v.Err = fmt.Errorf("text is not valid UTF-8: %w", moderr.ErrInvalidInput)
		return v
	}

	v.Normalized = p.normalizer.Normalize(text)
	x, err := p.vectorizer.TransformOne(v.Normalized)
	if err != nil {
		v.Err = err
		return v
	}
	pred, err := classify.Classify(p.active, x)
	if err != nil {
		v.Err = err
		return v
	}
	v.Label, v.Probability = pred.Label, pred.Probability
	return v
}

// Normalizer returns the normaliser used for training and prediction, or nil before
// the normalisation stage.
func (p *Pipeline) Normalizer() *textnorm.Normalizer { return p.normalizer }

// Bundle exports the trained state for persistence.
func (p *Pipeline) Bundle() (store.Bundle, error) {
	if p.stage != StageReady {
		return store.Bundle{}, fmt.Errorf("bundle: pipeline is %s: %w", p.stage, moderr.ErrNotFitted)
	}

	vs, err := p.vectorizer.State()
	if err != nil {
		return store.Bundle{}, err
	}
	cs, err := p.active.State()
	if err != nil {
		return store.Bundle{}, err
	}

	b := store.Bundle{
		Report:     p.report,
		TrainRows:  p.trainRows,
		TestRows:   p.testRows,
		Vectorizer: vs,
		Classifier: cs,
		Normalizer: store.NormalizerSettings{
			Lemmatizer:  textnorm.LemmatizerName(p.lemmatizer),
			StripMarkup: p.cfg.StripMarkup,
			Spelling:    p.corrector != nil,
		},
	}
	if p.corrector != nil {
		b.Spelling = p.corrector.Counts()
	}
	return b, nil
}

// FromBundle restores a ready pipeline from a persisted bundle.
func FromBundle(b store.Bundle) (*Pipeline, error) {
	cfg := DefaultConfig()
	cfg.Lemmatizer = b.Normalizer.Lemmatizer
	cfg.StripMarkup = b.Normalizer.StripMarkup
	cfg.Spelling = b.Normalizer.Spelling
	cfg.Models = []string{b.Classifier.Model}
	cfg.Vectorizer = b.Vectorizer.Options

	p, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", b.ID, err)
	}

	v, err := tfidf.FromState(b.Vectorizer)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", b.ID, err)
	}
	c, err := classify.FromState(b.Classifier)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", b.ID, err)
	}
	if b.Classifier.Cols != len(b.Vectorizer.Terms) {
		return nil, fmt.Errorf("bundle %s: classifier has %d columns, vocabulary has %d terms: %w",
			b.ID, b.Classifier.Cols, len(b.Vectorizer.Terms), moderr.ErrInvalidInput)
	}

	if b.Normalizer.Spelling {
		p.corrector = spell.FromCounts(b.Spelling)
	}
	p.normalizer = p.newNormalizer()
	p.vectorizer = v
	p.active = c
	p.report = b.Report
	p.trainRows, p.testRows = b.TrainRows, b.TestRows
	p.stage = StageReady
	return p, nil
}

func columns(records []dataset.Record) ([]string, []int) {
	texts := make([]string, len(records))
	labels := make([]int, len(records))
	for i, r := range records {
		texts[i] = r.Content
		labels[i] = r.Label
	}
	return texts, labels
}
