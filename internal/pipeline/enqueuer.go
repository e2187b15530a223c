package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
)

// ReadWords returns the non-empty lines of r, trimmed, without duplicates, in
// first-occurrence order.
func ReadWords(r io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read words: %w", err)
	}
	return words, nil
}

// EnqueueResult summarizes one enqueue run
type EnqueueResult struct {
	// Read is the number of distinct words in the input
	Read int

	// Skipped counts words that already had a translate job
	Skipped int

	// Added counts new translate jobs
	Added int
}

// WordEnqueuer seeds the translation queue with words.
type WordEnqueuer struct {
	queue   jobqueue.Queue
	options jobqueue.JobOptions
	logger  *slog.Logger
}

// NewWordEnqueuer creates an enqueuer for the translation queue.
func NewWordEnqueuer(queue jobqueue.Queue, options jobqueue.JobOptions, logger *slog.Logger) *WordEnqueuer {
	return &WordEnqueuer{
		queue:   queue,
		options: options,
		logger:  logger.With("component", "word_enqueuer", "queue", queue.Name()),
	}
}

// EnqueueFile reads a newline-separated word list and enqueues it.
func (e *WordEnqueuer) EnqueueFile(ctx context.Context, path string) (EnqueueResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("failed to open word list: %w", err)
	}
	defer func() { _ = f.Close() }()

	words, err := ReadWords(f)
	if err != nil {
		return EnqueueResult{}, err
	}
	return e.Enqueue(ctx, words)
}

// Enqueue adds a translate job for every word that does not have one yet,
// whatever that job's status. All new jobs are added in one bulk call.
func (e *WordEnqueuer) Enqueue(ctx context.Context, words []string) (EnqueueResult, error) {
	existing, err := e.existingWords(ctx)
	if err != nil {
		return EnqueueResult{}, err
	}

	result := EnqueueResult{}
	seen := make(map[string]struct{}, len(words))
	specs := make([]jobqueue.NewJob, 0, len(words))
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		result.Read++

		if _, ok := existing[word]; ok {
			result.Skipped++
			continue
		}
		specs = append(specs, jobqueue.NewJob{
			Name:    TranslateJobName,
			Payload: TranslatePayload{Word: word},
			Options: e.options,
		})
	}

	if len(specs) > 0 {
		if _, err := e.queue.AddJobsBulk(ctx, specs); err != nil {
			return result, fmt.Errorf("failed to add translate jobs: %w", err)
		}
	}
	result.Added = len(specs)

	e.logger.InfoContext(ctx, "enqueued words",
		"read", result.Read,
		"skipped", result.Skipped,
		"added", result.Added)
	return result, nil
}

func (e *WordEnqueuer) existingWords(ctx context.Context) (map[string]struct{}, error) {
	jobs, err := e.queue.GetJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list translate jobs: %w", err)
	}

	words := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job.Name != TranslateJobName {
			continue
		}
		var payload TranslatePayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			e.logger.WarnContext(ctx, "skipping job with unreadable payload", "job_id", job.ID, "error", err)
			continue
		}
		words[payload.Word] = struct{}{}
	}
	return words, nil
}
