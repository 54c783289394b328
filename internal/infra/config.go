package infra

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	LocalCachePath string
	StoragePath    string
	StorageBaseURL string
	DefaultLocale  string

	VideoAPIKey   string
	VideoBaseURL  string
	VideoModel    string
	QwenAPIKey    string
	QwenBaseURL   string
	QwenModel     string
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	PollInterval      time.Duration
	JobTimeout        time.Duration
	ReconcileInterval time.Duration

	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
	CORSAllowedOrigins   []string
	ImageSourceAllowlist []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LocalCachePath:     getEnv("LOCAL_CACHE_PATH", "./data/records.db"),
		StoragePath:        getEnv("STORAGE_PATH", "./data/assets"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		VideoAPIKey:        os.Getenv("VIDEO_API_KEY"),
		VideoBaseURL:       getEnv("VIDEO_BASE_URL", "https://api.replicate.com/v1"),
		VideoModel:         getEnv("VIDEO_MODEL", "minimax/video-01"),
		QwenAPIKey:         os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:        getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenModel:          getEnv("QWEN_MODEL", "qwen-image-plus"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		PollInterval:       getEnvDuration("POLL_INTERVAL_SECONDS", 8),
		JobTimeout:         getEnvDuration("JOB_TIMEOUT_SECONDS", 600),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL_SECONDS", 300),
		HTTPReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 30),
		HTTPIdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
	cfg.ImageSourceAllowlist = buildAllowlist(cfg.StorageBaseURL, os.Getenv("IMAGE_SOURCE_HOST_ALLOWLIST"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PollInterval >= cfg.JobTimeout {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be below JOB_TIMEOUT_SECONDS")
	}

	return cfg, nil
}

// buildAllowlist collects the hosts a source image may be fetched from: the
// storage host plus any explicit entries, deduplicated and sorted.
func buildAllowlist(storageBaseURL, extra string) []string {
	hosts := map[string]struct{}{}
	if u, err := url.Parse(storageBaseURL); err == nil && u.Hostname() != "" {
		hosts[strings.ToLower(u.Hostname())] = struct{}{}
	}
	for _, h := range strings.Split(extra, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	out := make([]string, 0, len(hosts))
	for h := range hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds. Non-positive values fall
// back to the default.
func getEnvDuration(key string, fallbackSeconds int) time.Duration {
	secs := getEnvInt(key, fallbackSeconds)
	if secs <= 0 {
		secs = fallbackSeconds
	}
	return time.Duration(secs) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
