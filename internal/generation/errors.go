package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the translator configuration is invalid
	ErrInvalidConfig = errors.New("invalid translator configuration")
)
