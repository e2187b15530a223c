package tts

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/speech"
	"github.com/valyala/fasthttp"
)

// HTTPSynthesizer requests audio from a speech server:
//
//	GET <baseURL>/api/tts?text=<text>
//
// A 200 response body is the audio file.
type HTTPSynthesizer struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
	logger  *slog.Logger
}

var _ speech.Synthesizer = (*HTTPSynthesizer)(nil)

// NewHTTPSynthesizer creates a synthesizer for one speech server.
func NewHTTPSynthesizer(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &fasthttp.Client{
			Name:                "deckgen",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
			// 64MB per clip
			MaxResponseBodySize: 64 << 20,
		},
		logger: logger.With("component", "tts_http", "server", baseURL),
	}
}

// Name implements speech.Synthesizer
func (s *HTTPSynthesizer) Name() string {
	return "http " + s.baseURL
}

// Synthesize implements speech.Synthesizer. The audio is written to a
// temporary file next to outPath and renamed into place.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, outPath string) error {
	if err := speech.Validate(text, outPath); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + "/api/tts?text=" + url.QueryEscape(text))
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: request to %s: %v", speech.ErrSynthesisFailed, s.baseURL, err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return fmt.Errorf("%w: %s returned status %d: %s",
			speech.ErrSynthesisFailed, s.baseURL, status, strings.TrimSpace(string(resp.Body())))
	}
	if len(resp.Body()) == 0 {
		return fmt.Errorf("%w: %s returned an empty body", speech.ErrSynthesisFailed, s.baseURL)
	}

	if err := writeFileAtomic(outPath, resp.Body()); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "synthesized audio",
		"out_path", outPath,
		"bytes", len(resp.Body()),
		"duration", time.Since(start))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move audio into place: %w", err)
	}
	return nil
}
