package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Generation backend defaults. Routers configured in the settings table
	// override these at runtime; the profile values are the bootstrap fallback
	// used before any remote configuration has been fetched.
	LLMRouterID    string // router identifier: router-a, router-b
	LLMAPIKey      string // fallback API key when the router has none configured
	LLMBaseURL     string // fallback base URL
	LLMModel       string // fallback model name
	LLMTimeout     int    // generation request timeout in seconds (default: 120)
	LLMMaxTokens   int    // completion token cap (default: 4096)
	LLMTemperature float64

	// Persistence retry policy for transcript writes.
	SaveRetryCount int // bounded insert retries (default: 3)

	Mode    string
	Addr    string
	Port    int
	Data    string
	Driver  string
	DSN     string
	Version string
}

// Router defaults used when no remote configuration exists yet.
// Keyed by router identifier; the canonical model list lives in ai/router.
var routerDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"router-a": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "openai/gpt-4o-mini",
	},
	"router-b": {
		BaseURL: "https://api.wildcard.example.com/v1",
		Model:   "gpt-4o",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if a generation API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMRouterID = getEnvOrDefault("AIDOCS_LLM_ROUTER", "router-a")
	p.LLMAPIKey = getEnvOrDefault("AIDOCS_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("AIDOCS_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("AIDOCS_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("AIDOCS_LLM_TIMEOUT_SECONDS", 120)
	p.LLMMaxTokens = getEnvOrDefaultInt("AIDOCS_LLM_MAX_TOKENS", 4096)
	p.LLMTemperature = 0.7
	if v := os.Getenv("AIDOCS_LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.LLMTemperature = f
		}
	}

	p.SaveRetryCount = getEnvOrDefaultInt("AIDOCS_SAVE_RETRY_COUNT", 3)

	if _, ok := routerDefaults[p.LLMRouterID]; !ok {
		p.LLMRouterID = "router-a"
	}
	if defaults, ok := routerDefaults[p.LLMRouterID]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/aidocs"
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return errors.Wrap(err, "failed to check data dir")
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("aidocs_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
