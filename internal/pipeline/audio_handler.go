package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-deckgen/internal/events"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
)

// AudioJobHandler turns AudioRequested events into synthesize jobs.
type AudioJobHandler struct {
	queue   jobqueue.Queue
	options jobqueue.JobOptions
	logger  *slog.Logger
}

var _ events.Handler = (*AudioJobHandler)(nil)

// NewAudioJobHandler creates a handler adding jobs to the audio queue.
func NewAudioJobHandler(queue jobqueue.Queue, options jobqueue.JobOptions, logger *slog.Logger) *AudioJobHandler {
	return &AudioJobHandler{
		queue:   queue,
		options: options,
		logger:  logger.With("component", "audio_job_handler", "queue", queue.Name()),
	}
}

// HandleEvent adds one synthesize job per clip in a single bulk call.
func (h *AudioJobHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.AudioRequested {
		h.logger.DebugContext(ctx, "ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var request AudioRequest
	if err := event.UnmarshalPayload(&request); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(request.Clips) == 0 {
		return nil
	}

	specs := make([]jobqueue.NewJob, 0, len(request.Clips))
	for _, clip := range request.Clips {
		specs = append(specs, jobqueue.NewJob{
			Name:    SynthesizeJobName,
			Payload: SynthesizePayload{Text: clip.Text, Filename: clip.Filename},
			Options: h.options,
		})
	}

	if _, err := h.queue.AddJobsBulk(ctx, specs); err != nil {
		return fmt.Errorf("failed to add audio jobs for %q: %w", request.Word, err)
	}

	h.logger.DebugContext(ctx, "added audio jobs",
		"word", request.Word,
		"count", len(specs),
		"event_id", event.ID)
	return nil
}
