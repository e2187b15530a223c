package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/phrazzld/scry-deckgen/internal/generation"
	"github.com/phrazzld/scry-deckgen/internal/task"
)

// MockTranslator implements generation.Translator for testing
type MockTranslator struct {
	// TranslateFn allows test cases to mock the Translate behavior
	TranslateFn func(ctx context.Context, word string) ([]domain.Entry, error)

	// Default response values, used when TranslateFn is nil
	Entries []domain.Entry
	Err     error

	// Call tracking for verification
	TranslateCalls struct {
		// mu protects the call tracking state for concurrent callers
		mu sync.Mutex

		// Count tracks how many times Translate was called
		Count int

		// Words contains all words passed to Translate calls
		Words []string
	}
}

var _ generation.Translator = (*MockTranslator)(nil)

// Translate implements the generation.Translator interface
func (m *MockTranslator) Translate(ctx context.Context, word string) ([]domain.Entry, error) {
	m.TranslateCalls.mu.Lock()
	m.TranslateCalls.Count++
	m.TranslateCalls.Words = append(m.TranslateCalls.Words, word)
	m.TranslateCalls.mu.Unlock()

	if m.TranslateFn != nil {
		return m.TranslateFn(ctx, word)
	}
	return m.Entries, m.Err
}

// CallCount returns how many times Translate was called
func (m *MockTranslator) CallCount() int {
	m.TranslateCalls.mu.Lock()
	defer m.TranslateCalls.mu.Unlock()
	return m.TranslateCalls.Count
}

// Words returns a copy of the words passed to Translate, in call order
func (m *MockTranslator) Words() []string {
	m.TranslateCalls.mu.Lock()
	defer m.TranslateCalls.mu.Unlock()
	return append([]string(nil), m.TranslateCalls.Words...)
}

// SampleEntries returns two entries for word that share no text with other words.
func SampleEntries(word string) []domain.Entry {
	return []domain.Entry{
		{
			SourceText:    word,
			SourceContext: "To je " + word + ".",
			TargetText:    word + " (en)",
			TargetContext: "That is " + word + ".",
		},
		{
			SourceText:    word,
			SourceContext: "Kde je " + word + "?",
			TargetText:    word + " (en)",
			TargetContext: "Where is " + word + "?",
		},
	}
}

// NewMockTranslatorWithSamples creates a MockTranslator answering every word with SampleEntries
func NewMockTranslatorWithSamples() *MockTranslator {
	return &MockTranslator{
		TranslateFn: func(_ context.Context, word string) ([]domain.Entry, error) {
			return SampleEntries(word), nil
		},
	}
}

// NewMockTranslatorWithError creates a MockTranslator that returns the specified error
func NewMockTranslatorWithError(err error) *MockTranslator {
	return &MockTranslator{Err: err}
}

// NewMockTranslatorRateLimitedTimes creates a MockTranslator that reports
// throttling for the first n calls and answers with SampleEntries afterwards.
func NewMockTranslatorRateLimitedTimes(n int) *MockTranslator {
	m := &MockTranslator{}
	m.TranslateFn = func(_ context.Context, word string) ([]domain.Entry, error) {
		if m.CallCount() <= n {
			return nil, task.RateLimited(generation.ErrInvalidResponse)
		}
		return SampleEntries(word), nil
	}
	return m
}

// Reset resets the call tracking state
func (m *MockTranslator) Reset() {
	m.TranslateCalls.mu.Lock()
	defer m.TranslateCalls.mu.Unlock()

	m.TranslateCalls.Count = 0
	m.TranslateCalls.Words = nil
}
