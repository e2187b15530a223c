package mocks

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/phrazzld/scry-deckgen/internal/speech"
)

// MockSynthesizer implements speech.Synthesizer for testing. By default it
// writes the text itself into the output file.
type MockSynthesizer struct {
	// BackendName is returned by Name; "mock" when empty
	BackendName string

	// SynthesizeFn allows test cases to mock the Synthesize behavior
	SynthesizeFn func(ctx context.Context, text, outPath string) error

	// Err, when set and SynthesizeFn is nil, is returned without writing a file
	Err error

	// Call tracking for verification
	SynthesizeCalls struct {
		mu    sync.Mutex
		Count int
		Texts []string
	}
}

var _ speech.Synthesizer = (*MockSynthesizer)(nil)

// Name implements speech.Synthesizer
func (m *MockSynthesizer) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

// Synthesize implements speech.Synthesizer
func (m *MockSynthesizer) Synthesize(ctx context.Context, text, outPath string) error {
	m.SynthesizeCalls.mu.Lock()
	m.SynthesizeCalls.Count++
	m.SynthesizeCalls.Texts = append(m.SynthesizeCalls.Texts, text)
	m.SynthesizeCalls.mu.Unlock()

	if m.SynthesizeFn != nil {
		return m.SynthesizeFn(ctx, text, outPath)
	}
	if m.Err != nil {
		return m.Err
	}
	if err := speech.Validate(text, outPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(text), 0o600)
}

// CallCount returns how many times Synthesize was called
func (m *MockSynthesizer) CallCount() int {
	m.SynthesizeCalls.mu.Lock()
	defer m.SynthesizeCalls.mu.Unlock()
	return m.SynthesizeCalls.Count
}

// Texts returns a copy of the texts passed to Synthesize, in call order
func (m *MockSynthesizer) Texts() []string {
	m.SynthesizeCalls.mu.Lock()
	defer m.SynthesizeCalls.mu.Unlock()
	return append([]string(nil), m.SynthesizeCalls.Texts...)
}
