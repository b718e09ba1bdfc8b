package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var defaultTranscriptLangs = []string{"en", "en-US", "en-GB", "es", "fr", "de"}

type Config struct {
	// Server
	Port string
	Env  string

	// Database (optional, enables session persistence)
	DatabaseURL string

	// Redis (optional, enables shared transcript cache and pub/sub)
	RedisURL string

	// Session tokens
	JWTSecret        string
	SessionIdleTTL   time.Duration
	SessionRetention time.Duration

	// Per-IP limit on public and generation routes, per minute
	APIRateLimit int

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
	GeminiTimeout        time.Duration

	// Transcript provider
	TranscriptProvider        string
	TranscriptAPIKey          string
	TranscriptAPIURL          string
	TranscriptDefaultLangs    []string
	TranscriptCacheTTL        time.Duration
	TranscriptCacheMaxEntries int
	TranscriptHTTPTimeout     time.Duration

	// Workers
	WorkerCount int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                      getEnvOrDefault("PORT", "8080"),
		Env:                       getEnvOrDefault("ENV", "development"),
		DatabaseURL:               getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:                  getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:                 mustGetEnv("JWT_SECRET"),
		SessionIdleTTL:            getEnvAsDurationOrDefault("SESSION_IDLE_TTL", 6*time.Hour),
		SessionRetention:          getEnvAsDurationOrDefault("SESSION_RETENTION", 7*24*time.Hour),
		APIRateLimit:              getEnvAsIntOrDefault("API_RATE_LIMIT", 60),
		GeminiAPIKey:              mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:               getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs:      getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		GeminiTimeout:             getEnvAsDurationOrDefault("GEMINI_TIMEOUT", 2*time.Minute),
		TranscriptProvider:        getEnvOrDefault("TRANSCRIPT_PROVIDER", "transcript-io"),
		TranscriptAPIKey:          getEnvOrDefault("YT_TRANSCRIPT_API_KEY", ""),
		TranscriptAPIURL:          strings.TrimRight(getEnvOrDefault("YT_TRANSCRIPT_API_URL", "https://www.youtube-transcript.io/api"), "/"),
		TranscriptDefaultLangs:    getEnvAsListOrDefault("TRANSCRIPT_DEFAULT_LANGS", defaultTranscriptLangs),
		TranscriptCacheTTL:        getEnvAsDurationOrDefault("TRANSCRIPT_CACHE_TTL", time.Hour),
		TranscriptCacheMaxEntries: getEnvAsIntOrDefault("TRANSCRIPT_CACHE_MAX_ENTRIES", 512),
		TranscriptHTTPTimeout:     getEnvAsDurationOrDefault("TRANSCRIPT_HTTP_TIMEOUT", 30*time.Second),
		WorkerCount:               getEnvAsIntOrDefault("WORKER_COUNT", 5),
		FrontendURL:               getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "prod" || env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsDurationOrDefault accepts Go duration strings ("90s", "1h") or plain seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
