package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vssut-vibes/hatefilter/internal/app"
	"github.com/vssut-vibes/hatefilter/internal/config"
	"github.com/vssut-vibes/hatefilter/internal/counter"
	"github.com/vssut-vibes/hatefilter/internal/moderr"
	"github.com/vssut-vibes/hatefilter/internal/spell"
	"github.com/vssut-vibes/hatefilter/internal/spinner"
	"github.com/vssut-vibes/hatefilter/internal/store"
	"github.com/vssut-vibes/hatefilter/internal/textnorm"
)

// setupLogger configures the default slog logger from the debug and quiet flags
func setupLogger(cmd *cobra.Command) {
	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("quiet")

	level := slog.LevelInfo
	switch {
	case debug:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfig reads the --config file, or the defaults when none is given
func loadConfig(cmd *cobra.Command) (config.File, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// storePath returns --store when set, otherwise the configured store
func storePath(cmd *cobra.Command, file config.File) string {
	if cmd.Flags().Changed("store") {
		path, _ := cmd.Flags().GetString("store")
		return path
	}
	return file.Store
}

func outputFormat(cmd *cobra.Command) app.OutputFormat {
	if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
		return app.JSON
	}
	return app.Text
}

// buildConfig constructs an app.Config from the config file, command flags and arguments
func buildConfig(cmd *cobra.Command, args []string, file config.File) (app.Config, error) {
	cfg := file.Pipeline()

	// positional arguments replace the configured dataset list
	if len(args) > 0 {
		cfg.Datasets = args
	}

	flags := cmd.Flags()
	if flags.Changed("spell") {
		cfg.Spelling, _ = flags.GetBool("spell")
	}
	if flags.Changed("dictionary") {
		cfg.Dictionary, _ = flags.GetString("dictionary")
		cfg.Spelling = true
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("model") {
		cfg.Models, _ = flags.GetStringSlice("model")
	}
	if flags.Changed("lemmatizer") {
		cfg.Lemmatizer, _ = flags.GetString("lemmatizer")
	}
	if flags.Changed("strip-markup") {
		cfg.StripMarkup, _ = flags.GetBool("strip-markup")
	}
	if flags.Changed("count") {
		name, _ := flags.GetString("count")
		method, err := counter.ParseMethod(name)
		if err != nil {
			return app.Config{}, err
		}
		cfg.Counting = method
	}

	if len(cfg.Datasets) == 0 {
		return app.Config{}, fmt.Errorf("no datasets given: %w", moderr.ErrInvalidInput)
	}
	return cfg, nil
}

// inputTexts returns the positional texts, or one text per stdin line when there are none
func inputTexts(args []string, stdin io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var texts []string
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts given: %w", moderr.ErrInvalidInput)
	}
	return texts, nil
}

// openStore opens the model store named by the flags and config file
func openStore(ctx context.Context, cmd *cobra.Command) (*store.Store, error) {
	file, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, storePath(cmd, file))
}

// loadBundle returns the bundle named by --id, or the newest one
func loadBundle(ctx context.Context, cmd *cobra.Command, st *store.Store) (store.Bundle, error) {
	id, _ := cmd.Flags().GetString("id")
	if id != "" {
		return st.Get(ctx, id)
	}
	b, err := st.Latest(ctx)
	if errors.Is(err, moderr.ErrNotFound) {
		return store.Bundle{}, fmt.Errorf("no trained model, run 'hatefilter train' first: %w", moderr.ErrNotFitted)
	}
	return b, err
}

var rootCmd = &cobra.Command{
	Use:   "hatefilter",
	Short: "Train and run a hate speech classifier for posts and comments",
	Long: `Hatefilter trains TF-IDF text classifiers on labelled datasets and uses the best
one to flag hate speech in free text.

Examples:
  hatefilter train HateSpeechDataset.csv English_profanity_words.csv
  hatefilter predict "Those people are disgusting"
  cat comments.txt | hatefilter predict --json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train [datasets...]",
	Short: "Train, compare and store classifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		cfg, err := buildConfig(cmd, args, file)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		// create context with signal handling for graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			cfg.Progress = spinner.ForWriter(ctx, os.Stderr)
		}

		p, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		res, err := p.Train(ctx)
		if err != nil {
			return fmt.Errorf("training failed: %w", err)
		}

		var id string
		if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
			b, err := p.Bundle()
			if err != nil {
				return err
			}
			st, err := store.Open(ctx, storePath(cmd, file))
			if err != nil {
				return err
			}
			defer st.Close()
			if id, err = st.Save(ctx, b); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}
		}

		if err := app.WriteTrainResult(os.Stdout, res, id); err != nil {
			return err
		}

		if demo, _ := cmd.Flags().GetBool("demo"); demo {
			verdicts, err := p.Predict(app.DemoTexts...)
			if err != nil {
				return err
			}
			fmt.Println()
			return app.WriteVerdicts(os.Stdout, verdicts, app.Text)
		}
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict [texts...]",
	Short: "Classify texts with a stored model",
	Long: `Classify texts with a stored model. Texts are read from the arguments, or one per
line from standard input. A text that cannot be classified is reported on its own line
without failing the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		texts := app.DemoTexts
		if demo, _ := cmd.Flags().GetBool("demo"); !demo {
			var err error
			if texts, err = inputTexts(args, cmd.InOrStdin()); err != nil {
				return err
			}
		}

		st, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		b, err := loadBundle(ctx, cmd, st)
		if err != nil {
			return err
		}
		p, err := app.FromBundle(b)
		if err != nil {
			return err
		}
		slog.Debug("Loaded model", "id", b.ID, "model", b.Classifier.Model, "accuracy", b.Report.Accuracy)

		verdicts, err := p.Predict(texts...)
		if err != nil {
			return err
		}
		return app.WriteVerdicts(os.Stdout, verdicts, outputFormat(cmd))
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [texts...]",
	Short: "Print texts the way the classifier sees them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		texts := app.SpellingSamples
		if samples, _ := cmd.Flags().GetBool("samples"); !samples {
			var err error
			if texts, err = inputTexts(args, cmd.InOrStdin()); err != nil {
				return err
			}
		}

		lemmaName, _ := cmd.Flags().GetString("lemmatizer")
		lemmatizer, err := textnorm.ParseLemmatizer(lemmaName)
		if err != nil {
			return err
		}
		stripMarkup, _ := cmd.Flags().GetBool("strip-markup")
		opts := textnorm.Options{Lemmatizer: lemmatizer, StripMarkup: stripMarkup}

		var corrector *spell.Corrector
		if useSpell, _ := cmd.Flags().GetBool("spell"); useSpell || cmd.Flags().Changed("dictionary") {
			if corrector, err = buildCorrector(ctx, cmd); err != nil {
				return err
			}
			opts.Corrector = corrector
		}
		n := textnorm.New(opts)

		for _, text := range texts {
			if corrector != nil {
				fmt.Printf("Original:   %s\nCorrected:  %s\nNormalized: %s\n\n", text, corrector.Correct(text), n.Normalize(text))
				continue
			}
			fmt.Println(n.Normalize(text))
		}
		return nil
	},
}

// buildCorrector loads --dictionary, or the dictionary of the newest stored model
func buildCorrector(ctx context.Context, cmd *cobra.Command) (*spell.Corrector, error) {
	if path, _ := cmd.Flags().GetString("dictionary"); path != "" {
		c := spell.New()
		if err := c.LoadDictionary(ctx, path); err != nil {
			return nil, err
		}
		return c, nil
	}

	st, err := openStore(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	b, err := loadBundle(ctx, cmd, st)
	if errors.Is(err, moderr.ErrNotFitted) {
		slog.Warn("No dictionary given and no stored model, texts are left uncorrected")
		return spell.New(), nil
	}
	if err != nil {
		return nil, err
	}
	if len(b.Spelling) == 0 {
		slog.Warn("Stored model has no spelling dictionary, texts are left uncorrected", "id", b.ID)
	}
	return spell.FromCounts(b.Spelling), nil
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List stored models, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		summaries, err := st.List(ctx)
		if err != nil {
			return err
		}
		return app.WriteSummaries(os.Stdout, summaries, outputFormat(cmd))
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete stored models",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, id := range args {
			if err := st.Delete(ctx, id); err != nil {
				return err
			}
			slog.Info("Deleted model", "id", id)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("store", config.DefaultStore, "SQLite model store")
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress info messages")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "Enable debug logging")
	_ = rootCmd.PersistentFlags().MarkHidden("debug")

	// normalisation flags shared by train and normalize
	for _, cmd := range []*cobra.Command{trainCmd, normalizeCmd} {
		cmd.Flags().Bool("spell", false, "Correct spelling before classification")
		cmd.Flags().String("dictionary", "", "Word frequency file for spelling correction (implies --spell)")
		cmd.Flags().String("lemmatizer", textnorm.LemmaDictionary, "Lemmatizer: dictionary, snowball or none")
		cmd.Flags().Bool("strip-markup", false, "Reduce HTML to text before normalizing")
	}

	trainCmd.Flags().IntP("workers", "w", 0, "Goroutines used for normalization (default from config)")
	trainCmd.Flags().StringSliceP("model", "m", nil, "Models to train and compare (logistic, naive_bayes)")
	trainCmd.Flags().String("count", counter.Words.String(), "Unit for corpus length statistics: words, tokens or characters")
	trainCmd.Flags().Bool("no-save", false, "Do not store the trained model")
	trainCmd.Flags().Bool("demo", false, "Classify sample texts after training")

	predictCmd.Flags().String("id", "", "Stored model id (default: newest)")
	predictCmd.Flags().Bool("demo", false, "Classify sample texts instead of input")

	normalizeCmd.Flags().String("id", "", "Stored model whose dictionary is used (default: newest)")
	normalizeCmd.Flags().Bool("samples", false, "Normalize misspelled sample texts instead of input")

	modelsCmd.AddCommand(modelsDeleteCmd)
	rootCmd.AddCommand(trainCmd, predictCmd, normalizeCmd, modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
