package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Log        LogConfig        `mapstructure:"log"        validate:"required"`
	Queue      QueueConfig      `mapstructure:"queue"      validate:"required"`
	Translator TranslatorConfig `mapstructure:"translator" validate:"required"`
	Audio      AudioConfig      `mapstructure:"audio"      validate:"required"`
	Media      MediaConfig      `mapstructure:"media"      validate:"required"`
	Deck       DeckConfig       `mapstructure:"deck"       validate:"required"`
	Monitor    MonitorConfig    `mapstructure:"monitor"    validate:"required"`
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// Queue backends
const (
	QueueBackendMemory   = "memory"
	QueueBackendPostgres = "postgres"
	QueueBackendRedis    = "redis"
)

// QueueConfig selects and configures the durable job queue.
type QueueConfig struct {
	Backend         string `mapstructure:"backend"          validate:"required,oneof=memory postgres redis"`
	DatabaseURL     string `mapstructure:"database_url"     validate:"required_if=Backend postgres"`
	RedisURL        string `mapstructure:"redis_url"        validate:"required_if=Backend redis"`
	KeyPrefix       string `mapstructure:"key_prefix"       validate:"required"`
	TranslationName string `mapstructure:"translation_name" validate:"required"`
	AudioName       string `mapstructure:"audio_name"       validate:"required,nefield=TranslationName"`
}

// TranslatorConfig contains the language model and rate limiting settings of
// the translation stage.
type TranslatorConfig struct {
	GeminiAPIKey       string `mapstructure:"gemini_api_key"`
	ModelName          string `mapstructure:"model_name"           validate:"required"`
	PromptTemplatePath string `mapstructure:"prompt_template_path"`
	SourceLanguage     string `mapstructure:"source_language"      validate:"required"`
	TargetLanguage     string `mapstructure:"target_language"      validate:"required"`

	// Concurrency is the number of workers claiming translation jobs
	Concurrency int `mapstructure:"concurrency"          validate:"gte=1"`
	JobAttempts int `mapstructure:"job_attempts"         validate:"gte=1"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"  validate:"gte=1"`
	RateCheckInterval int     `mapstructure:"rate_check_interval"  validate:"gte=0"`
	RateLimitURL      string  `mapstructure:"rate_limit_url"       validate:"omitempty,url"`
	RateLimitAPIKey   string  `mapstructure:"rate_limit_api_key"`

	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	MinBackoff time.Duration `mapstructure:"min_backoff" validate:"gt=0"`
	MaxBackoff time.Duration `mapstructure:"max_backoff" validate:"gtefield=MinBackoff"`
}

// AudioConfig contains the speech synthesis settings.
type AudioConfig struct {
	Extension   string        `mapstructure:"extension"    validate:"required,alphanum"`
	WorkDir     string        `mapstructure:"work_dir"     validate:"required"`
	JobAttempts int           `mapstructure:"job_attempts" validate:"gte=1"`
	JobBackoff  time.Duration `mapstructure:"job_backoff"  validate:"gte=0"`

	// CLIConcurrency of 0 disables the command-line backend
	CLIPath        string `mapstructure:"cli_path"        validate:"required_with=CLIConcurrency"`
	CLIModel       string `mapstructure:"cli_model"`
	CLIConcurrency int    `mapstructure:"cli_concurrency" validate:"gte=0"`

	// HTTPURLs lists speech servers; every server gets its own worker pool
	HTTPURLs        []string      `mapstructure:"http_urls"        validate:"dive,url"`
	HTTPConcurrency int           `mapstructure:"http_concurrency" validate:"gte=1"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"     validate:"gt=0"`
}

// Media backends
const (
	MediaBackendLocal = "local"
	MediaBackendMinio = "minio"
)

// MediaConfig selects where synthesized audio is published.
type MediaConfig struct {
	Backend   string `mapstructure:"backend"    validate:"required,oneof=local minio"`
	Dir       string `mapstructure:"dir"        validate:"required_if=Backend local"`
	Endpoint  string `mapstructure:"endpoint"   validate:"required_if=Backend minio"`
	Bucket    string `mapstructure:"bucket"     validate:"required_if=Backend minio"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// DeckConfig contains the deck file settings.
type DeckConfig struct {
	CSVPath        string `mapstructure:"csv_path"          validate:"required"`
	ReorderedPath  string `mapstructure:"reordered_path"    validate:"required,nefield=CSVPath"`
	SequencePath   string `mapstructure:"sequence_path"`
	WordListPath   string `mapstructure:"word_list_path"`
	NewWordsPerDay int    `mapstructure:"new_words_per_day" validate:"gte=1"`
	EntriesPerWord int    `mapstructure:"entries_per_word"  validate:"gte=1"`
}

// MonitorConfig contains progress monitor settings.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"     validate:"gt=0"`
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0"`
}

// ServerConfig contains the operational HTTP server settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"    validate:"required_if=Enabled true"`
}
