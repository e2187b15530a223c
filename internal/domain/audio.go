package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultAudioExtension is used when no extension is configured.
const DefaultAudioExtension = "wav"

// AudioFilename derives a stable filename from the text it speaks, so the
// same text always maps to the same file no matter which word produced it.
func AudioFilename(text, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = DefaultAudioExtension
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + "." + ext
}
