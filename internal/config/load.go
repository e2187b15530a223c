package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when the loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment variable read by Load
const EnvPrefix = "DECKGEN"

// defaults lists every configuration key with its default value. Registering
// every key also lets AutomaticEnv override keys that no file mentions.
var defaults = map[string]any{
	"log.level": "info",

	"queue.backend":          QueueBackendMemory,
	"queue.database_url":     "",
	"queue.redis_url":        "",
	"queue.key_prefix":       "deckgen",
	"queue.translation_name": "translation",
	"queue.audio_name":       "audio",

	"translator.gemini_api_key":       "",
	"translator.model_name":           "gemini-2.0-flash",
	"translator.prompt_template_path": "",
	"translator.source_language":      "Czech",
	"translator.target_language":      "English",
	"translator.concurrency":          4,
	"translator.job_attempts":         1,
	"translator.requests_per_second":  1.0,
	"translator.rate_check_interval":  10,
	"translator.rate_limit_url":       "",
	"translator.rate_limit_api_key":   "",
	"translator.max_retries":          5,
	"translator.min_backoff":          time.Second,
	"translator.max_backoff":          time.Minute,

	"audio.extension":        "wav",
	"audio.work_dir":         "output/audio-work",
	"audio.job_attempts":     3,
	"audio.job_backoff":      5 * time.Second,
	"audio.cli_path":         ".venv/bin/tts",
	"audio.cli_model":        "tts_models/cs/cv/vits",
	"audio.cli_concurrency":  1,
	"audio.http_urls":        []string{},
	"audio.http_concurrency": 2,
	"audio.http_timeout":     time.Minute,

	"media.backend":    MediaBackendLocal,
	"media.dir":        "output/audio",
	"media.endpoint":   "",
	"media.bucket":     "",
	"media.access_key": "",
	"media.secret_key": "",
	"media.use_ssl":    false,
	"media.prefix":     "",

	"deck.csv_path":          "output/translations.csv",
	"deck.reordered_path":    "output/translations_reordered.csv",
	"deck.sequence_path":     "",
	"deck.word_list_path":    "words.txt",
	"deck.new_words_per_day": 10,
	"deck.entries_per_word":  1,

	"monitor.interval":     time.Second,
	"monitor.grace_period": 5 * time.Second,

	"server.enabled": false,
	"server.addr":    ":9090",
}

// Load configuration from environment variables and optionally a deckgen.yaml
// file in the working directory or ./config.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is like Load but reads the given config file instead of searching
// for deckgen.yaml. An empty path falls back to the search.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("deckgen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: configuration validation failed: %v", ErrInvalidConfig, err)
	}
	return nil
}
