package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Transcribe holds speech-recognition engine settings.
type Transcribe struct {
	Engine         string `toml:"engine" yaml:"engine"`         // whisper, openai, gemini
	ModelSize      string `toml:"model_size" yaml:"model_size"` // tiny, base, small, medium, large
	Language       string `toml:"language" yaml:"language"`     // empty means auto-detect
	WhisperBinary  string `toml:"whisper_binary" yaml:"whisper_binary"`
	OpenAIModel    string `toml:"openai_model" yaml:"openai_model"`
	GeminiModel    string `toml:"gemini_model" yaml:"gemini_model"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`

	OpenAIAPIKey string `toml:"-" yaml:"-"`
	GeminiAPIKey string `toml:"-" yaml:"-"`
}

// Config holds all application configuration.
type Config struct {
	ListenAddr     string     `toml:"listen_addr" yaml:"listen_addr"`
	DataDir        string     `toml:"data_dir" yaml:"data_dir"`
	WorkDir        string     `toml:"work_dir" yaml:"work_dir"`
	MaxUploadBytes int64      `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	RetentionDays  int        `toml:"retention_days" yaml:"retention_days"`
	LogLevel       string     `toml:"log_level" yaml:"log_level"`
	LogFormat      string     `toml:"log_format" yaml:"log_format"`
	Transcribe     Transcribe `toml:"transcribe" yaml:"transcribe"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "autosub")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.toml")
}

func defaultDataDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "autosub")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autosub")
	}
	return filepath.Join(home, ".local", "share", "autosub")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:8501",
		DataDir:        defaultDataDir(),
		WorkDir:        "",
		MaxUploadBytes: 200 << 20,
		RetentionDays:  7,
		LogLevel:       "info",
		LogFormat:      "auto",
		Transcribe: Transcribe{
			Engine:         "whisper",
			ModelSize:      "base",
			WhisperBinary:  "whisper",
			OpenAIModel:    "whisper-1",
			GeminiModel:    "gemini-2.5-flash",
			TimeoutSeconds: 3600,
		},
	}
}

// Load builds the effective configuration: defaults, then the config file
// (TOML or YAML by extension), then .env, then environment variables.
// An empty path searches the default locations; a missing default file is
// not an error. It returns the resolved path and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(resolvedPath, data, cfg); err != nil {
			return nil, "", false, fmt.Errorf("parsing config file: %w", err)
		}
	} else if path != "" {
		return nil, "", false, fmt.Errorf("config file not found: %s", resolvedPath)
	}

	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}
	cfg.ApplyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	return cfg, resolvedPath, exists, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml", "":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q (use .toml or .yaml)", filepath.Ext(path))
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded := expandTilde(path)
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	candidates := []string{DefaultConfigPath(), "autosub.toml", "autosub.yaml"}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", false, err
			}
			return abs, true, nil
		}
	}
	return DefaultConfigPath(), false, nil
}

// loads ./.env without overriding variables already set
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// ApplyEnv overlays API keys and AUTOSUB_* overrides from the environment.
func (c *Config) ApplyEnv() {
	c.Transcribe.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Transcribe.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if v := strings.TrimSpace(os.Getenv("AUTOSUB_LISTEN_ADDR")); v != "" {
		c.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTOSUB_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTOSUB_WORK_DIR")); v != "" {
		c.WorkDir = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTOSUB_WHISPER_BINARY")); v != "" {
		c.Transcribe.WhisperBinary = v
	}
}

func (c *Config) normalize() error {
	c.DataDir = expandTilde(strings.TrimSpace(c.DataDir))
	c.WorkDir = expandTilde(strings.TrimSpace(c.WorkDir))
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "autosub")
	}
	c.Transcribe.Engine = strings.ToLower(strings.TrimSpace(c.Transcribe.Engine))
	c.Transcribe.ModelSize = strings.ToLower(strings.TrimSpace(c.Transcribe.ModelSize))
	c.Transcribe.Language = strings.TrimSpace(c.Transcribe.Language)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be > 0")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be >= 0")
	}

	switch c.Transcribe.Engine {
	case "whisper", "openai", "gemini":
	default:
		return fmt.Errorf("transcribe.engine must be whisper, openai, or gemini, got %q", c.Transcribe.Engine)
	}

	switch c.Transcribe.ModelSize {
	case "tiny", "base", "small", "medium", "large":
	default:
		return fmt.Errorf("transcribe.model_size must be tiny, base, small, medium, or large, got %q", c.Transcribe.ModelSize)
	}

	if _, err := NormalizeLanguage(c.Transcribe.Language); err != nil {
		return fmt.Errorf("transcribe.language: %w", err)
	}

	if c.Transcribe.TimeoutSeconds < 0 {
		return fmt.Errorf("transcribe.timeout_seconds must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// NormalizeLanguage validates a BCP 47 language code and returns its base
// language ("en-US" becomes "en"). Empty input means auto-detect.
func NormalizeLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("invalid language code %q", code)
	}
	return base.String(), nil
}

// EnsureDirectories creates the data and work directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "autosub.db")
}

// LockPath is the single-instance server lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "autosub.lock")
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
