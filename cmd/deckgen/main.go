// Package main implements the deckgen command, which builds bilingual
// vocabulary decks: it translates a word list with a language model,
// synthesizes audio for every phrase and orders the result for study.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/phrazzld/scry-deckgen/internal/config"
	"github.com/phrazzld/scry-deckgen/internal/platform/logger"
	"github.com/phrazzld/scry-deckgen/internal/redact"
)

// errUsage is returned when the command line cannot be understood
var errUsage = errors.New("invalid usage")

func main() {
	// a missing .env file is not an error
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "deckgen: %v\n", err)
		}
		os.Exit(1)
	}
}

// run dispatches to the subcommand named by args[0].
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		usage(stdout)
		return errUsage
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:], stdout)
	case "enqueue":
		return runEnqueue(ctx, args[1:], stdout)
	case "run":
		return runPipeline(ctx, args[1:], stdout)
	case "reorder":
		return runReorder(args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stdout)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: deckgen <command> [flags]

commands:
  migrate  <up|down|status|version>  manage the postgres job queue schema
  enqueue  [-words file]             add words to the translation queue
  run      [-words file]             translate, synthesize audio and exit once idle
  reorder  [-in file] [-out file]    interleave the deck for study

every command accepts -config <file>; environment variables use the DECKGEN_ prefix`)
}

// newFlagSet creates a flag set with the shared -config flag.
func newFlagSet(name string, stdout io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", "", "config file (default: deckgen.yaml in . or ./config)")
	return fs, configPath
}

// loadAppConfig loads configuration and sets up the JSON logger.
func loadAppConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"queue_backend", cfg.Queue.Backend,
		"database_url", redact.String(cfg.Queue.DatabaseURL),
		"redis_url", redact.String(cfg.Queue.RedisURL),
		"media_backend", cfg.Media.Backend,
		"model", cfg.Translator.ModelName,
		"gemini_key_present", cfg.Translator.GeminiAPIKey != "")
	return cfg, log, nil
}
