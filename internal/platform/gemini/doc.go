// Package gemini implements generation.Translator with Google's Gemini API.
//
// Each word is sent as the user turn of a structured-output request whose
// system instruction is rendered from a text/template. The response schema
// forces a JSON array of entries, which is validated before it is returned.
// Throttling responses (HTTP 429, RESOURCE_EXHAUSTED) are wrapped with
// task.RateLimited so the caller's queue can back off and retry; server-side
// hiccups are retried here with jittered exponential backoff.
package gemini
