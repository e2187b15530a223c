// Package mocks provides centralized mock implementations for testing.
//
// The mocks stand in for the external engines the pipeline talks to: the
// language model behind generation.Translator and the speech engines behind
// speech.Synthesizer. Each mock takes an optional function field that
// overrides its behavior and records every call for later verification.
//
// Usage:
//
//	translator := &mocks.MockTranslator{
//	    TranslateFn: func(ctx context.Context, word string) ([]domain.Entry, error) {
//	        return mocks.SampleEntries(word), nil
//	    },
//	}
package mocks
