package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Inference API (optional - without a key the system runs in
	// rule-based degraded mode and never attempts an AI call)
	InferenceAPIKey string
	BaseLLMURL      string // Optional OpenAI-compatible endpoint override
	FastModel       string // Low-latency tier for real-time coaching
	DeepModel       string // Thorough tier for post-session analysis

	// Rate limiting (per-minute units; all internal math in milliseconds)
	TokensPerMinute   int
	RequestsPerMinute int

	// Request queue
	MaxQueueSize         int
	MaxRetries           int
	RetryDelay           time.Duration
	DefaultTokenEstimate int

	// Intervention throttling
	InterventionMinInterval time.Duration
	RealtimeWindowSize      int

	// Token budgets
	CoachingTokens int
	InsightTokens  int

	// Server configuration
	Port         int
	DatabasePath string
	LogFilePath  string
	TuningPath   string

	// Timeouts
	AITimeout time.Duration
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse integer environment variable with default value
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadConfig loads configuration from environment variables with
// sensible defaults. Nothing is strictly required: with no inference
// API key the orchestrator falls back to deterministic coaching text.
func LoadConfig() (*Config, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // Legacy support
	}

	// Rate limit defaults match the external API's documented budget
	tokensPerMinute := parseIntEnv("TOKENS_PER_MINUTE", 5000)
	requestsPerMinute := parseIntEnv("REQUESTS_PER_MINUTE", 25)
	if tokensPerMinute <= 0 {
		return nil, ErrInvalidConfig("TOKENS_PER_MINUTE", "must be positive")
	}
	if requestsPerMinute <= 0 {
		return nil, ErrInvalidConfig("REQUESTS_PER_MINUTE", "must be positive")
	}

	// 3 retries with 1s base delay handles transient throttling without
	// excessive wait
	maxRetries := parseIntEnv("MAX_RETRIES", 3)
	retryDelay := time.Duration(parseIntEnv("RETRY_DELAY_MS", 1000)) * time.Millisecond

	// 10 minute floor between coaching messages per session
	interventionMinInterval := time.Duration(parseIntEnv("INTERVENTION_MIN_INTERVAL_MS", 600000)) * time.Millisecond

	return &Config{
		InferenceAPIKey: apiKey,
		BaseLLMURL:      os.Getenv("BASE_LLM_URL"),
		FastModel:       getEnvOrDefault("FAST_MODEL", "gpt-4o-mini"),
		DeepModel:       getEnvOrDefault("DEEP_MODEL", "gpt-4o"),

		TokensPerMinute:   tokensPerMinute,
		RequestsPerMinute: requestsPerMinute,

		MaxQueueSize:         parseIntEnv("MAX_QUEUE_SIZE", 50),
		MaxRetries:           maxRetries,
		RetryDelay:           retryDelay,
		DefaultTokenEstimate: parseIntEnv("DEFAULT_TOKEN_ESTIMATE", 500),

		InterventionMinInterval: interventionMinInterval,
		RealtimeWindowSize:      parseIntEnv("REALTIME_WINDOW_SIZE", 50),

		CoachingTokens: parseIntEnv("COACHING_TOKENS", 150),
		InsightTokens:  parseIntEnv("INSIGHT_TOKENS", 1024),

		Port:         parseIntEnv("PORT", 3000),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "./flowstate.db"),
		LogFilePath:  getEnvOrDefault("LOG_FILE", "flowstate.log"),
		TuningPath:   getEnvOrDefault("TUNING_FILE", "flowstate.yaml"),

		AITimeout: time.Duration(parseIntEnv("AI_TIMEOUT", 60)) * time.Second,
	}, nil
}

// HasInferenceKey reports whether an inference API key is configured.
// When false, AI-backed interventions are unavailable and the system
// runs in rule-based degraded mode.
func (c *Config) HasInferenceKey() bool {
	return c.InferenceAPIKey != ""
}

// Tuning holds optional overrides for the empirical detection and
// scoring constants. Every field is a pointer; nil means "keep the
// built-in default". The thresholds here have no documented
// derivation and are preserved as configuration rather than
// hard-coded logic.
type Tuning struct {
	Patterns struct {
		ContextSwitchThreshold   *int     `yaml:"context_switch_threshold"`
		ContextSwitchWindowMin   *int     `yaml:"context_switch_window_minutes"`
		SocialMediaThreshold     *int     `yaml:"social_media_threshold"`
		IdleThresholdShortSec    *int     `yaml:"idle_threshold_short_seconds"`
		IdleThresholdExtendedSec *int     `yaml:"idle_threshold_extended_seconds"`
		FragmentedFocusThreshold *int     `yaml:"fragmented_focus_threshold"`
		FragmentedFocusWindowMin *int     `yaml:"fragmented_focus_window_minutes"`
		FragmentedFocusMinRatio  *float64 `yaml:"fragmented_focus_min_ratio"`
	} `yaml:"patterns"`
	Focus struct {
		Weights struct {
			TypingConsistency   *float64 `yaml:"typing_consistency"`
			LowContextSwitching *float64 `yaml:"low_context_switching"`
			MinimalIdle         *float64 `yaml:"minimal_idle"`
			SiteFocus           *float64 `yaml:"site_focus"`
		} `yaml:"weights"`
		ProductiveDomains  []string `yaml:"productive_domains"`
		DistractingDomains []string `yaml:"distracting_domains"`
	} `yaml:"focus"`
}

// LoadTuning reads the optional YAML tuning file. A missing file is
// not an error; a malformed one is.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tuning{}, nil
		}
		return nil, ErrTuningFile(path, err.Error())
	}

	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, ErrTuningFile(path, fmt.Sprintf("parse error: %v", err))
	}
	return &t, nil
}
