package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string

	ComfyUIServerURL     string
	ComfyUIPollInterval  time.Duration
	ComfyUITimeout       time.Duration
	ComfyUIWorkflowPath  string
	ComfyUIRandomizeSeed bool

	FashnAPIKey       string
	FashnBaseURL      string
	FashnModelName    string
	FashnPollInterval time.Duration
	FashnTimeout      time.Duration

	JobMaxWait        time.Duration
	ImageFetchTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8000"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		ComfyUIServerURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("COMFYUI_SERVER_URL")), "/"),
		ComfyUIPollInterval:  getEnvDuration("COMFYUI_POLL_INTERVAL", 2*time.Second),
		ComfyUITimeout:       time.Second * time.Duration(getEnvInt("COMFYUI_TIMEOUT_SECONDS", 180)),
		ComfyUIWorkflowPath:  strings.TrimSpace(os.Getenv("COMFYUI_WORKFLOW_PATH")),
		ComfyUIRandomizeSeed: getEnvBool("COMFYUI_RANDOMIZE_SEED", true),

		FashnAPIKey:       strings.TrimSpace(os.Getenv("FASHN_API_KEY")),
		FashnBaseURL:      getEnv("FASHN_BASE_URL", "https://api.fashn.ai/v1"),
		FashnModelName:    getEnv("FASHN_MODEL_NAME", "tryon-v1.6"),
		FashnPollInterval: getEnvDuration("FASHN_POLL_INTERVAL", 2*time.Second),
		FashnTimeout:      time.Second * time.Duration(getEnvInt("FASHN_TIMEOUT_SECONDS", 60)),

		JobMaxWait:        time.Second * time.Duration(getEnvInt("JOB_MAX_WAIT_SECONDS", 0)),
		ImageFetchTimeout: time.Second * time.Duration(getEnvInt("IMAGE_FETCH_TIMEOUT_SECONDS", 30)),
	}

	if cfg.ComfyUIPollInterval <= 0 {
		return nil, fmt.Errorf("COMFYUI_POLL_INTERVAL must be positive")
	}
	if cfg.FashnPollInterval <= 0 {
		return nil, fmt.Errorf("FASHN_POLL_INTERVAL must be positive")
	}
	if cfg.JobMaxWait < 0 {
		return nil, fmt.Errorf("JOB_MAX_WAIT_SECONDS must not be negative")
	}

	return cfg, nil
}

// ComfyUIConfigured reports whether the graph-binding provider can be used.
func (c *Config) ComfyUIConfigured() bool {
	return c != nil && c.ComfyUIServerURL != ""
}

// FashnConfigured reports whether the direct provider can be used.
func (c *Config) FashnConfigured() bool {
	return c != nil && c.FashnAPIKey != ""
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

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("2", "0.5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
