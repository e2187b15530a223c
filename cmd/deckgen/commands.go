package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/phrazzld/scry-deckgen/internal/config"
	"github.com/phrazzld/scry-deckgen/internal/deck"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/pipeline"
	"github.com/phrazzld/scry-deckgen/internal/platform/gemini"
	"github.com/phrazzld/scry-deckgen/internal/platform/postgres"
)

func runMigrate(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("migrate", stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: migrate needs one of up, down, status, version", errUsage)
	}

	cfg, log, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Queue.Backend != config.QueueBackendPostgres {
		return fmt.Errorf("%w: migrations apply to the postgres queue backend, configured backend is %q",
			errUsage, cfg.Queue.Backend)
	}

	db, err := postgres.Open(ctx, cfg.Queue.DatabaseURL, postgres.DefaultPoolConfig(), log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("failed to close database", "error", cerr)
		}
	}()

	return postgres.Migrate(ctx, db, fs.Arg(0), log)
}

func runEnqueue(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("enqueue", stdout)
	words := fs.String("words", "", "newline-separated word list (default: deck.word_list_path)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Queue.Backend == config.QueueBackendMemory {
		log.Warn("the memory queue does not outlive this process, use run -words instead")
	}

	queues, err := openQueues(ctx, cfg.Queue, nil, log)
	if err != nil {
		return err
	}
	defer queues.Close(log)

	result, err := enqueueWords(ctx, cfg, queues.translation, wordListPath(*words, cfg), log)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "read %d words, added %d, skipped %d already queued\n",
		result.Read, result.Added, result.Skipped)
	return nil
}

func runPipeline(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("run", stdout)
	words := fs.String("words", "", "enqueue this word list before starting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	translator, err := gemini.NewTranslator(ctx, log, cfg.Translator)
	if err != nil {
		return fmt.Errorf("failed to create translator: %w", err)
	}

	app, err := newApplication(ctx, cfg, log, translator)
	if err != nil {
		return err
	}
	defer app.cleanup()

	if *words != "" {
		if _, err := enqueueWords(ctx, cfg, app.queues.translation, *words, log); err != nil {
			return err
		}
	}

	return app.Run(ctx)
}

func runReorder(args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("reorder", stdout)
	in := fs.String("in", "", "deck to reorder (default: deck.csv_path)")
	out := fs.String("out", "", "reordered deck (default: deck.reordered_path)")
	sequence := fs.String("sequence", "", "optional words sequence JSON (default: deck.sequence_path)")
	perDay := fs.Int("words-per-day", 0, "new words introduced per day (default: deck.new_words_per_day)")
	perWord := fs.Int("entries-per-word", 0, "entries kept per word per day (default: deck.entries_per_word)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}

	opts := deck.ReorderOptions{
		InputPath:      firstNonEmpty(*in, cfg.Deck.CSVPath),
		OutputPath:     firstNonEmpty(*out, cfg.Deck.ReorderedPath),
		SequencePath:   firstNonEmpty(*sequence, cfg.Deck.SequencePath),
		NewWordsPerDay: cfg.Deck.NewWordsPerDay,
		EntriesPerWord: cfg.Deck.EntriesPerWord,
	}
	if *perDay > 0 {
		opts.NewWordsPerDay = *perDay
	}
	if *perWord > 0 {
		opts.EntriesPerWord = *perWord
	}

	result, err := deck.ReorderFile(opts)
	if err != nil {
		return err
	}
	log.Info("deck reordered",
		"input", opts.InputPath,
		"output", opts.OutputPath,
		"entries", result.Entries,
		"words", result.Words)
	fmt.Fprintf(stdout, "wrote %d entries for %d words to %s\n", result.Entries, result.Words, opts.OutputPath)
	return nil
}

// enqueueWords seeds the translation queue from a word file.
func enqueueWords(
	ctx context.Context,
	cfg *config.Config,
	queue jobqueue.Queue,
	path string,
	log *slog.Logger,
) (pipeline.EnqueueResult, error) {
	enqueuer := pipeline.NewWordEnqueuer(queue, translateJobOptions(cfg), log)
	result, err := enqueuer.EnqueueFile(ctx, path)
	if err != nil {
		return result, fmt.Errorf("failed to enqueue words from %s: %w", path, err)
	}
	return result, nil
}

func translateJobOptions(cfg *config.Config) jobqueue.JobOptions {
	return jobqueue.JobOptions{MaxAttempts: cfg.Translator.JobAttempts}
}

func audioJobOptions(cfg *config.Config) jobqueue.JobOptions {
	return jobqueue.JobOptions{MaxAttempts: cfg.Audio.JobAttempts, Backoff: cfg.Audio.JobBackoff}
}

func wordListPath(flagValue string, cfg *config.Config) string {
	return firstNonEmpty(flagValue, cfg.Deck.WordListPath)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
