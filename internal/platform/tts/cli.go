package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/speech"
)

// CLISynthesizer runs a text-to-speech command line tool once per text:
//
//	<path> --model_name <model> --out_path <file> --text <text>
//
// Exit status 0 means the file was written.
type CLISynthesizer struct {
	path   string
	model  string
	logger *slog.Logger
}

var _ speech.Synthesizer = (*CLISynthesizer)(nil)

// NewCLISynthesizer creates a synthesizer for the given executable and model.
func NewCLISynthesizer(path, model string, logger *slog.Logger) *CLISynthesizer {
	return &CLISynthesizer{
		path:   path,
		model:  model,
		logger: logger.With("component", "tts_cli", "model", model),
	}
}

// Name implements speech.Synthesizer
func (s *CLISynthesizer) Name() string {
	return "cli"
}

// Synthesize implements speech.Synthesizer. The process is killed when ctx ends.
func (s *CLISynthesizer) Synthesize(ctx context.Context, text, outPath string) error {
	if err := speech.Validate(text, outPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	args := []string{"--out_path", outPath, "--text", text}
	if s.model != "" {
		args = append([]string{"--model_name", s.model}, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "unknown error occurred"
		}
		s.logger.DebugContext(ctx, "tts command failed",
			"error", err,
			"stdout", strings.TrimSpace(stdout.String()))
		return fmt.Errorf("%w: %s: %v: %s", speech.ErrSynthesisFailed, s.path, err, detail)
	}

	s.logger.DebugContext(ctx, "synthesized audio",
		"out_path", outPath,
		"duration", time.Since(start))
	return nil
}
