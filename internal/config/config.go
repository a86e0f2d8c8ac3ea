// Package config loads all runtime settings from the environment, fills in
// defaults, and validates the result before the server starts. Every knob the
// process reads lives here: HTTP timeouts, logging, the SQLite path, the
// language-model provider, retrieval parameters, rate limits, and tracing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the origins allowed to call the API from a browser. An
// empty list means allow-all, which is the development posture.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig groups transport-hardening switches.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig controls the OpenTelemetry trace exporter.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port of the collector
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE, plaintext gRPC when true
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, fraction of root spans kept
}

// LLMConfig holds the OpenAI-compatible provider settings. One provider
// serves both embeddings and chat completions.
type LLMConfig struct {
	APIKey         string        // OPENAI_API_KEY
	BaseURL        string        // OPENAI_BASE_URL, empty keeps the provider default
	EmbeddingModel string        // EMBEDDING_MODEL
	ChatModel      string        // CHAT_MODEL
	Dimensions     int           // EMBEDDING_DIMENSIONS, 0 keeps the model default
	Timeout        time.Duration // LLM_TIMEOUT, bound on a single provider call
}

// RAGConfig holds the retrieval knobs: where the vector index is persisted
// and how much context each answer draws on.
type RAGConfig struct {
	IndexPath    string        // INDEX_PATH
	HistoryLimit int           // HISTORY_LIMIT, prior messages included per prompt
	TopK         int           // RETRIEVAL_TOP_K, products retrieved per prompt
	SyncTimeout  time.Duration // INDEX_SYNC_TIMEOUT, bound on a background rebuild
}

// Config is the full, validated runtime configuration.
type Config struct {
	// HTTP server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging and routing
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// Domain
	DBPath string
	LLM    LLMConfig
	RAG    RAGConfig

	// Throttling
	RateRPS   float64
	RateBurst int

	// Browser-facing protection
	CORS     CORSConfig
	Security SecurityConfig

	// Safe retries
	IdempotencyTTL time.Duration

	// Tracing
	OTEL OTELConfig
}

// MustLoad is Load for main(): it panics on invalid configuration so the
// process refuses to start rather than run half-configured.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load assembles the configuration from environment variables, normalizes a
// few fields, and validates everything. The returned error names the
// offending variable.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath: getenv("DB_PATH", "app.db"),
		LLM: LLMConfig{
			APIKey:         getenv("OPENAI_API_KEY", ""),
			BaseURL:        getenv("OPENAI_BASE_URL", ""),
			EmbeddingModel: getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
			ChatModel:      getenv("CHAT_MODEL", "gpt-4o-mini"),
			Dimensions:     getint("EMBEDDING_DIMENSIONS", 0),
			Timeout:        getdur("LLM_TIMEOUT", 30*time.Second),
		},
		RAG: RAGConfig{
			IndexPath:    getenv("INDEX_PATH", "data/index.gob"),
			HistoryLimit: getint("HISTORY_LIMIT", 15),
			TopK:         getint("RETRIEVAL_TOP_K", 5),
			SyncTimeout:  getdur("INDEX_SYNC_TIMEOUT", 2*time.Minute),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-pharmacy-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"READ_TIMEOUT", c.ReadTimeout},
		{"READ_HEADER_TIMEOUT", c.ReadHeaderTimeout},
		{"WRITE_TIMEOUT", c.WriteTimeout},
		{"IDLE_TIMEOUT", c.IdleTimeout},
		{"LLM_TIMEOUT", c.LLM.Timeout},
		{"INDEX_SYNC_TIMEOUT", c.RAG.SyncTimeout},
		{"IDEMPOTENCY_TTL", c.IdempotencyTTL},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be a positive duration", d.name)
		}
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("EMBEDDING_MODEL must not be empty")
	}
	if strings.TrimSpace(c.LLM.ChatModel) == "" {
		return errors.New("CHAT_MODEL must not be empty")
	}
	if c.LLM.Dimensions < 0 {
		return errors.New("EMBEDDING_DIMENSIONS must be >= 0")
	}
	if strings.TrimSpace(c.RAG.IndexPath) == "" {
		return errors.New("INDEX_PATH must not be empty")
	}
	if c.RAG.HistoryLimit < 1 {
		return errors.New("HISTORY_LIMIT must be >= 1")
	}
	if c.RAG.TopK < 1 {
		return errors.New("RETRIEVAL_TOP_K must be >= 1")
	}
	if c.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if c.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if c.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// Environment readers. Unset, empty, and unparseable values all fall back to
// the default so a typo degrades to the documented behavior instead of a
// surprise zero.

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getfloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getbool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func getdur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// splitCSV turns "a, b,,c" into ["a" "b" "c"]; an empty input yields nil.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath forces a leading slash and drops trailing slashes so
// route groups never see "//".
func normalizeBasePath(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	return p
}
