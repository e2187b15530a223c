// Package speech defines the boundary between the audio stage and the
// text-to-speech engines. Implementations live under internal/platform/tts.
package speech
