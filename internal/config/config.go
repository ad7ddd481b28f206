// Package config loads the optional YAML pipeline configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vssut-vibes/hatefilter/internal/app"
	"github.com/vssut-vibes/hatefilter/internal/classify"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/textnorm"
	"github.com/vssut-vibes/hatefilter/internal/tfidf"
)

// DefaultStore is the database used when no store is configured.
const DefaultStore = "hatefilter.db"

// Spelling configures the spelling corrector.
type Spelling struct {
	Enabled    bool   `yaml:"enabled"`
	Dictionary string `yaml:"dictionary"` // word frequency file; empty learns from the corpus
}

// File is the on-disk configuration.
type File struct {
	Datasets    []string      `yaml:"datasets"`
	Spelling    Spelling      `yaml:"spelling"`
	Lemmatizer  string        `yaml:"lemmatizer"`
	StripMarkup bool          `yaml:"strip_markup"`
	TestSize    float64       `yaml:"test_size"`
	Seed        int64         `yaml:"seed"`
	Workers     int           `yaml:"workers"`
	Models      []string      `yaml:"models"`
	Vectorizer  tfidf.Options `yaml:"vectorizer"`
	Store       string        `yaml:"store"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() File {
	d := app.DefaultConfig()
	return File{
		Datasets:   d.Datasets,
		Lemmatizer: d.Lemmatizer,
		TestSize:   d.TestSize,
		Seed:       d.Seed,
		Workers:    d.Workers,
		Models:     d.Models,
		Vectorizer: d.Vectorizer,
		Store:      DefaultStore,
	}
}

// Load reads and validates the file at path. A missing file is an error wrapping
// moderr.ErrNotFound.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, fmt.Errorf("config %s: %w", path, moderr.ErrNotFound)
	}
	if err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML on top of the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (File, error) {
	f := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("%v: %w", err, moderr.ErrInvalidInput)
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks every value that can be checked without touching the filesystem.
func (f File) Validate() error {
	if _, err := classify.ParseModels(f.Models); err != nil {
		return err
	}
	if len(f.Models) == 0 {
		return fmt.Errorf("models: at least one model is required: %w", moderr.ErrInvalidInput)
	}
	if _, err := textnorm.ParseLemmatizer(f.Lemmatizer); err != nil {
		return err
	}
	if f.TestSize <= 0 || f.TestSize >= 1 {
		return fmt.Errorf("test_size %g must be in (0, 1): %w", f.TestSize, moderr.ErrInvalidInput)
	}
	if f.Workers < 0 {
		return fmt.Errorf("workers %d is negative: %w", f.Workers, moderr.ErrInvalidInput)
	}
	if err := f.Vectorizer.Validate(); err != nil {
		return fmt.Errorf("vectorizer: %w", err)
	}
	return nil
}

// Pipeline converts the file into a pipeline configuration.
func (f File) Pipeline() app.Config {
	return app.Config{
		Datasets:    append([]string(nil), f.Datasets...),
		Spelling:    f.Spelling.Enabled,
		Dictionary:  f.Spelling.Dictionary,
		Lemmatizer:  f.Lemmatizer,
		StripMarkup: f.StripMarkup,
		TestSize:    f.TestSize,
		Seed:        f.Seed,
		Workers:     f.Workers,
		Models:      append([]string(nil), f.Models...),
		Vectorizer:  f.Vectorizer,
	}
}
