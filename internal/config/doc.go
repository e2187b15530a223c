// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings of every pipeline component while keeping
// configuration details separate from pipeline logic.
package config
