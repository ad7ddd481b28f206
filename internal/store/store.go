// Package store persists trained classifier bundles in SQLite.
//
// A bundle is everything the inference path needs to reproduce training-time
// behaviour: the normaliser settings and spelling dictionary, the fitted TF-IDF
// vocabulary, and the trained classifier parameters.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/vssut-vibes/hatefilter/internal/classify"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

// NormalizerSettings describes how text was normalised at training time.
type NormalizerSettings struct {
	Lemmatizer  string `json:"lemmatizer"`
	StripMarkup bool   `json:"strip_markup"`
	Spelling    bool   `json:"spelling"`
}

// Bundle is one persisted training run.
type Bundle struct {
	ID         string
	Created    time.Time
	Report     classify.Report
	TrainRows  int
	TestRows   int
	Normalizer NormalizerSettings
	Spelling   map[string]int // word counts, empty when spelling is off
	Vectorizer tfidf.State
	Classifier classify.State
}

// Summary is the listing form of a bundle.
type Summary struct {
	ID         string
	Created    time.Time
	Model      string
	Accuracy   float64
	TrainRows  int
	TestRows   int
	Vocabulary int
}

// Store reads and writes bundles.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the database at path with WAL mode and foreign keys enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open store %s: %s: %w", path, pragma, err)
		}
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}

	return &Store{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS models (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	model TEXT NOT NULL,
	accuracy REAL NOT NULL,
	report_json TEXT NOT NULL,
	train_rows INTEGER NOT NULL,
	test_rows INTEGER NOT NULL,
	normalizer_json TEXT NOT NULL,
	vectorizer_options_json TEXT NOT NULL,
	classifier_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vocabulary (
	model_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	term TEXT NOT NULL,
	idf REAL NOT NULL,
	PRIMARY KEY(model_id, idx),
	FOREIGN KEY(model_id) REFERENCES models(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS spelling (
	model_id TEXT NOT NULL,
	word TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY(model_id, word),
	FOREIGN KEY(model_id) REFERENCES models(id) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *Store) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// Save writes b under a new id and returns it. b.ID and b.Created are ignored.
func (s *Store) Save(ctx context.Context, b Bundle) (string, error) {
	if len(b.Vectorizer.Terms) != len(b.Vectorizer.IDF) {
		return "", fmt.Errorf("save bundle: %d terms and %d weights: %w",
			len(b.Vectorizer.Terms), len(b.Vectorizer.IDF), moderr.ErrInvalidInput)
	}

	reportJSON, err := json.Marshal(b.Report)
	if err != nil {
		return "", fmt.Errorf("save bundle: %w", err)
	}
	normalizerJSON, err := json.Marshal(b.Normalizer)
	if err != nil {
		return "", fmt.Errorf("save bundle: %w", err)
	}
	optionsJSON, err := json.Marshal(b.Vectorizer.Options)
	if err != nil {
		return "", fmt.Errorf("save bundle: %w", err)
	}
	classifierJSON, err := json.Marshal(b.Classifier)
	if err != nil {
		return "", fmt.Errorf("save bundle: %w", err)
	}

	created := time.Now().UTC()
	id := s.newID(created)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	const insertModel = `
INSERT INTO models (id, created_at, model, accuracy, report_json, train_rows, test_rows,
	normalizer_json, vectorizer_options_json, classifier_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertModel,
		id,
		created.Format(time.RFC3339Nano),
		b.Classifier.Model,
		b.Report.Accuracy,
		string(reportJSON),
		b.TrainRows,
		b.TestRows,
		string(normalizerJSON),
		string(optionsJSON),
		string(classifierJSON),
	); err != nil {
		return "", fmt.Errorf("save bundle: %w", err)
	}

	vocabStmt, err := tx.PrepareContext(ctx, `INSERT INTO vocabulary (model_id, idx, term, idf) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer vocabStmt.Close()
	for i, term := range b.Vectorizer.Terms {
		if _, err := vocabStmt.ExecContext(ctx, id, i, term, b.Vectorizer.IDF[i]); err != nil {
			return "", fmt.Errorf("save vocabulary: %w", err)
		}
	}

	if len(b.Spelling) > 0 {
		spellStmt, err := tx.PrepareContext(ctx, `INSERT INTO spelling (model_id, word, count) VALUES (?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer spellStmt.Close()
		for word, count := range b.Spelling {
			if _, err := spellStmt.ExecContext(ctx, id, word, count); err != nil {
				return "", fmt.Errorf("save spelling dictionary: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Get loads the bundle with id. An unknown id yields an error wrapping
// moderr.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Bundle, error) {
	const q = `
SELECT id, created_at, report_json, train_rows, test_rows,
	normalizer_json, vectorizer_options_json, classifier_json
FROM models WHERE id = ?`
	return s.load(ctx, s.db.QueryRowContext(ctx, q, id), id)
}

// Latest loads the most recently saved bundle. Ids sort by creation time.
func (s *Store) Latest(ctx context.Context) (Bundle, error) {
	const q = `
SELECT id, created_at, report_json, train_rows, test_rows,
	normalizer_json, vectorizer_options_json, classifier_json
FROM models ORDER BY id DESC LIMIT 1`
	return s.load(ctx, s.db.QueryRowContext(ctx, q), "latest")
}

func (s *Store) load(ctx context.Context, row *sql.Row, name string) (Bundle, error) {
	var b Bundle
	var created, reportJSON, normalizerJSON, optionsJSON, classifierJSON string
	err := row.Scan(&b.ID, &created, &reportJSON, &b.TrainRows, &b.TestRows,
		&normalizerJSON, &optionsJSON, &classifierJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Bundle{}, fmt.Errorf("model %s: %w", name, moderr.ErrNotFound)
	}
	if err != nil {
		return Bundle{}, fmt.Errorf("model %s: %w", name, err)
	}

	if b.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Bundle{}, fmt.Errorf("model %s: created_at: %w", b.ID, err)
	}
	for _, field := range []struct {
		raw  string
		into any
	}{
		{reportJSON, &b.Report},
		{normalizerJSON, &b.Normalizer},
		{optionsJSON, &b.Vectorizer.Options},
		{classifierJSON, &b.Classifier},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.into); err != nil {
			return Bundle{}, fmt.Errorf("model %s: %w", b.ID, err)
		}
	}

	if b.Vectorizer.Terms, b.Vectorizer.IDF, err = s.vocabulary(ctx, b.ID); err != nil {
		return Bundle{}, err
	}
	if b.Spelling, err = s.spelling(ctx, b.ID); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

func (s *Store) vocabulary(ctx context.Context, id string) ([]string, []float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term, idf FROM vocabulary WHERE model_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("model %s vocabulary: %w", id, err)
	}
	defer rows.Close()

	var terms []string
	var idf []float64
	for rows.Next() {
		var term string
		var w float64
		if err := rows.Scan(&term, &w); err != nil {
			return nil, nil, fmt.Errorf("model %s vocabulary: %w", id, err)
		}
		terms = append(terms, term)
		idf = append(idf, w)
	}
	return terms, idf, rows.Err()
}

func (s *Store) spelling(ctx context.Context, id string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT word, count FROM spelling WHERE model_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("model %s spelling: %w", id, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var word string
		var n int
		if err := rows.Scan(&word, &n); err != nil {
			return nil, fmt.Errorf("model %s spelling: %w", id, err)
		}
		counts[word] = n
	}
	return counts, rows.Err()
}

// List returns every stored bundle, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	const q = `
SELECT m.id, m.created_at, m.model, m.accuracy, m.train_rows, m.test_rows,
	(SELECT COUNT(*) FROM vocabulary v WHERE v.model_id = m.id)
FROM models m ORDER BY m.id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var created string
		if err := rows.Scan(&sum.ID, &created, &sum.Model, &sum.Accuracy,
			&sum.TrainRows, &sum.TestRows, &sum.Vocabulary); err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if sum.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("list models: %s created_at: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a bundle and its vocabulary and dictionary rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("model %s: %w", id, moderr.ErrNotFound)
	}
	return nil
}
