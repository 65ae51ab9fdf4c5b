package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/gateway"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/report"
)

// Config holds the application configuration
type Config struct {
	// Bitbucket
	BaseURL     string
	Workspace   string
	Username    string
	AppPassword string
	AccessToken string

	// Outputs
	OutputFile       string
	ReportOutputFile string

	// Filtering
	IgnoredForks map[string]struct{}
	IgnoredPipes map[string]struct{}

	// Report
	MaxDisplayRows int
	WindowDays     int

	// Fetching
	PageLen     int
	Concurrency int
}

// Load reads the configuration from the environment, after merging a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxRows, err := getEnvInt("MAX_DISPLAY_ROWS", report.DefaultMaxRows)
	if err != nil {
		return nil, err
	}
	days, err := getEnvInt("WINDOW_DAYS", domain.DefaultWindowDays)
	if err != nil {
		return nil, err
	}
	pageLen, err := getEnvInt("PAGE_LEN", 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := getEnvInt("CONCURRENCY", 1)
	if err != nil {
		return nil, err
	}

	return &Config{
		BaseURL:          getEnv("BITBUCKET_URL", gateway.DefaultBaseURL),
		Workspace:        getEnv("BITBUCKET_WORKSPACE", ""),
		Username:         getEnv("BITBUCKET_USERNAME", ""),
		AppPassword:      getEnv("BITBUCKET_APP_PASSWORD", ""),
		AccessToken:      getEnv("BITBUCKET_ACCESS_TOKEN", ""),
		OutputFile:       getEnv("OUTPUT_FILE", "report.json"),
		ReportOutputFile: getEnv("REPORT_OUTPUT_FILE", "report.md"),
		IgnoredForks:     ParseSet(getEnv("IGNORE_FORKS", "")),
		IgnoredPipes:     ParseSet(getEnv("IGNORE_PIPES", "")),
		MaxDisplayRows:   maxRows,
		WindowDays:       days,
		PageLen:          pageLen,
		Concurrency:      concurrency,
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

// ParseSet splits a comma separated list into a set, dropping blank entries.
func ParseSet(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return &ConfigError{Field: "BITBUCKET_WORKSPACE", Message: "workspace is required"}
	}
	if c.AccessToken == "" {
		if c.Username == "" {
			return &ConfigError{Field: "BITBUCKET_USERNAME", Message: "username is required when BITBUCKET_ACCESS_TOKEN is not set"}
		}
		if c.AppPassword == "" {
			return &ConfigError{Field: "BITBUCKET_APP_PASSWORD", Message: "app password is required when BITBUCKET_ACCESS_TOKEN is not set"}
		}
	}
	if c.MaxDisplayRows < 0 {
		return &ConfigError{Field: "MAX_DISPLAY_ROWS", Message: "must not be negative"}
	}
	if c.WindowDays <= 0 {
		return &ConfigError{Field: "WINDOW_DAYS", Message: "must be positive"}
	}
	if c.PageLen <= 0 {
		return &ConfigError{Field: "PAGE_LEN", Message: "must be positive"}
	}
	if c.Concurrency <= 0 {
		return &ConfigError{Field: "CONCURRENCY", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
