// Package tts provides speech.Synthesizer implementations: CLISynthesizer
// runs a local text-to-speech command, HTTPSynthesizer calls a speech server.
package tts
