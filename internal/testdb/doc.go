// Package testdb provides helpers for integration tests that need real
// PostgreSQL or Redis servers. Every helper skips the calling test when the
// matching DECKGEN_TEST_* URL is not set, so the packages that use it can be
// tested without external services.
package testdb
