package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

type Config struct {
	ProjectDir string `json:"project_dir"`
	DataDir    string `json:"data_dir"`

	// Database queried by the executor. DBPath is used by the sqlite drivers,
	// DBDSN by mysql and postgres.
	DBDriver string `json:"db_driver"`
	DBPath   string `json:"db_path"`
	DBDSN    string `json:"db_dsn"`
	MaxRows  int    `json:"max_rows"`

	LLMProvider    string  `json:"llm_provider"`
	OpenAIModel    string  `json:"openai_model"`
	OpenAIAPIKey   string  `json:"openai_api_key"`
	BackendURL     string  `json:"backend_url"`
	DeepSeekModel  string  `json:"deepseek_model"`
	DeepSeekAPIKey string  `json:"deepseek_api_key"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	MaxIterations  int     `json:"max_iterations"`

	SandboxTimeout  Duration `json:"sandbox_timeout"`
	SandboxMaxSteps uint64   `json:"sandbox_max_steps"`

	HTTPAddr       string   `json:"http_addr"`
	RequestTimeout Duration `json:"request_timeout"`
	SessionTTL     Duration `json:"session_ttl"`

	ArchiveEnabled bool   `json:"archive_enabled"`
	PolicyPath     string `json:"policy_path"`

	Debug bool `json:"debug"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	cfg.ApplyEnv()
	return cfg
}

// DefaultConfigWithRoot returns the built-in defaults with every path rooted at dir.
func DefaultConfigWithRoot(dir string) *Config {
	return &Config{
		ProjectDir: dir,
		DataDir:    filepath.Join(dir, "data"),

		DBDriver: "sqlite",
		DBPath:   filepath.Join(dir, "chinook.db"),
		MaxRows:  10,

		LLMProvider:   ProviderOpenAI,
		OpenAIModel:   "gpt-4o-mini",
		DeepSeekModel: "deepseek-chat",
		Temperature:   0,
		MaxTokens:     4096,
		MaxIterations: 5,

		SandboxTimeout:  Duration(10 * time.Second),
		SandboxMaxSteps: 5_000_000,

		HTTPAddr: ":8080",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}
}

// ApplyEnv loads .env and lets environment variables override c. Values from
// a config file therefore lose to the environment.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()
	c.loadFromEnv()
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.DBDriver = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("DB_DSN"); val != "" {
		c.DBDSN = val
	}
	if val := os.Getenv("MAX_ROWS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxRows = v
		}
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		c.OpenAIModel = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("DEEPSEEK_MODEL"); val != "" {
		c.DeepSeekModel = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("LLM_TEMPERATURE"); val != "" {
		if v, err := strconv.ParseFloat(val, 32); err == nil {
			c.Temperature = float32(v)
		}
	}
	if val := os.Getenv("MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}
	if val := os.Getenv("MAX_ITERATIONS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxIterations = v
		}
	}

	if val := os.Getenv("SANDBOX_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SandboxTimeout = Duration(d)
		}
	}
	if val := os.Getenv("SANDBOX_MAX_STEPS"); val != "" {
		if v, err := strconv.ParseUint(val, 10, 64); err == nil {
			c.SandboxMaxSteps = v
		}
	}

	if val := os.Getenv("HTTP_ADDR"); val != "" {
		c.HTTPAddr = val
	}
	if val := os.Getenv("REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RequestTimeout = Duration(d)
		}
	}
	if val := os.Getenv("SESSION_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SessionTTL = Duration(d)
		}
	}

	if val := os.Getenv("ARCHIVE_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.ArchiveEnabled = enabled
		}
	}
	if val := os.Getenv("POLICY_PATH"); val != "" {
		c.PolicyPath = val
	}

	if val := os.Getenv("CHAT2VIS_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("%w: db_path is required for driver %s", ErrInvalidConfig, c.DBDriver)
		}
	case "mysql", "postgres":
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("%w: db_dsn is required for driver %s", ErrInvalidConfig, c.DBDriver)
		}
	default:
		return fmt.Errorf("%w: unsupported db_driver %q", ErrInvalidConfig, c.DBDriver)
	}

	switch c.LLMProvider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		return fmt.Errorf("%w: unsupported llm_provider %q", ErrInvalidConfig, c.LLMProvider)
	}

	if c.MaxRows <= 0 {
		return fmt.Errorf("%w: max_rows must be positive", ErrInvalidConfig)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max_iterations must be positive", ErrInvalidConfig)
	}
	if c.SandboxTimeout < 0 || c.RequestTimeout < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ArchivePath is where the transcript archive lives when enabled.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.DataDir, "transcripts.db")
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.DataDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
