package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/template"

	"github.com/phrazzld/scry-deckgen/internal/config"
	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/phrazzld/scry-deckgen/internal/generation"
	"github.com/phrazzld/scry-deckgen/internal/task"
	"google.golang.org/genai"
)

//go:embed prompts/translate.tmpl
var defaultPromptTemplate string

// contentGenerator is the subset of the genai client used by the translator
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Translator implements generation.Translator using Gemini structured output.
type Translator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client sends requests to the Gemini API
	client contentGenerator

	// model is the name of the Gemini model to use
	model string

	// generateConfig is shared by every request
	generateConfig *genai.GenerateContentConfig
}

var _ generation.Translator = (*Translator)(nil)

// NewTranslator creates a Translator from the translator configuration.
//
// Parameters:
//   - ctx: Context for client initialization
//   - logger: A structured logger for operation logging
//   - cfg: Translator configuration containing API key, model name and prompt settings
//
// Returns:
//   - A ready Translator, or an error wrapping generation.ErrInvalidConfig
func NewTranslator(ctx context.Context, logger *slog.Logger, cfg config.TranslatorConfig) (*Translator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newTranslator(logger, client.Models, cfg)
}

// newTranslator wires a Translator around any contentGenerator
func newTranslator(logger *slog.Logger, client contentGenerator, cfg config.TranslatorConfig) (*Translator, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	source := defaultPromptTemplate
	if cfg.PromptTemplatePath != "" {
		content, err := os.ReadFile(cfg.PromptTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
				generation.ErrInvalidConfig, cfg.PromptTemplatePath, err)
		}
		source = string(content)
	}

	prompt, err := renderPrompt(source, promptData{
		SourceLanguage: cfg.SourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
	}

	return &Translator{
		logger: logger.With("component", "gemini_translator", "model", cfg.ModelName),
		client: client,
		model:  cfg.ModelName,
		generateConfig: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    responseSchema(cfg.SourceLanguage, cfg.TargetLanguage),
		},
	}, nil
}

// renderPrompt executes the system instruction template once; it does not
// depend on the word being translated.
func renderPrompt(source string, data promptData) (string, error) {
	tmpl, err := template.New("translate").Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	prompt := strings.TrimSpace(buf.String())
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}

// Translate implements generation.Translator.
func (t *Translator) Translate(ctx context.Context, word string) ([]domain.Entry, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, domain.ErrEmptyWord
	}

	text, err := t.call(ctx, word)
	if err != nil {
		return nil, err
	}

	entries, err := parseEntries(text)
	if err != nil {
		t.logger.WarnContext(ctx, "unusable model response",
			"word", word,
			"error", err,
			"response_length", len(text))
		return nil, err
	}

	t.logger.DebugContext(ctx, "translation generated",
		"word", word,
		"entries", len(entries))
	return entries, nil
}

// call sends one word and returns the raw JSON text. Failures are not
// retried here: throttling goes back to the task queue and anything else
// to the job's own attempt budget.
func (t *Translator) call(ctx context.Context, word string) (string, error) {
	resp, err := t.client.GenerateContent(ctx, t.model, genai.Text(word), t.generateConfig)
	if err != nil {
		err = classifyError(err)
		t.logger.WarnContext(ctx, "Gemini API call failed",
			"word", word,
			"rate_limited", errors.Is(err, task.ErrRateLimited),
			"error", err)
		return "", err
	}
	return responseText(resp)
}

// responseText extracts the generated text from the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	case len(resp.Candidates) == 0:
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	return text.String(), nil
}

// parseEntries decodes and validates the model's JSON array
func parseEntries(text string) ([]domain.Entry, error) {
	var schema []EntrySchema
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: no entries in response", generation.ErrInvalidResponse)
	}

	entries := make([]domain.Entry, 0, len(schema))
	for i, s := range schema {
		entry := domain.Entry{
			SourceText:    strings.TrimSpace(s.SourceText),
			SourceContext: strings.TrimSpace(s.SourceContext),
			TargetText:    strings.TrimSpace(s.TargetText),
			TargetContext: strings.TrimSpace(s.TargetContext),
		}
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", generation.ErrInvalidResponse, i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// classifyError marks throttling errors as rate limited
func classifyError(err error) error {
	if code, status, ok := apiErrorStatus(err); ok {
		if code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" {
			return task.RateLimited(err)
		}
	}
	return err
}

func apiErrorStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}
