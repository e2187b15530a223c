package generation

import (
	"context"

	"github.com/phrazzld/scry-deckgen/internal/domain"
)

// Translator defines the interface for generating vocabulary entries for a word.
type Translator interface {
	// Translate returns example entries for word, each pairing a source
	// sentence with its translation. Audio filenames are left empty.
	//
	// Parameters:
	//   - ctx: Context for the operation, which can be used for cancellation
	//   - word: The source-language word to build entries for
	//
	// Returns:
	//   - The generated entries, at least one
	//   - An error wrapping task.ErrRateLimited when the service throttled the
	//     request, or any other error for permanent failures
	Translate(ctx context.Context, word string) ([]domain.Entry, error)
}
