package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("AUTOSUB_LISTEN_ADDR", "")
	t.Setenv("AUTOSUB_DATA_DIR", "")
	t.Setenv("AUTOSUB_WORK_DIR", "")
	t.Setenv("AUTOSUB_WHISPER_BINARY", "")
	t.Chdir(t.TempDir())
	return home
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.normalize())
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "base", cfg.Transcribe.ModelSize)
	assert.Equal(t, "whisper", cfg.Transcribe.Engine)
	assert.Empty(t, cfg.Transcribe.Language)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, path, exists, err := Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(home, ".config", "autosub", "config.toml"), path)
	assert.Equal(t, filepath.Join(home, ".local", "share", "autosub"), cfg.DataDir)
	assert.Equal(t, "127.0.0.1:8501", cfg.ListenAddr)
}

func TestLoadTOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "autosub.toml")
	content := `
listen_addr = "0.0.0.0:9000"
retention_days = 3

[transcribe]
engine = "OpenAI"
model_size = "small"
language = "en-US"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.RetentionDays)
	assert.Equal(t, "openai", cfg.Transcribe.Engine)
	assert.Equal(t, "small", cfg.Transcribe.ModelSize)
	assert.Equal(t, "whisper-1", cfg.Transcribe.OpenAIModel, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "autosub.yaml")
	content := "max_upload_bytes: 1024\ntranscribe:\n  model_size: tiny\n  engine: gemini\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, _, _, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, cfg.MaxUploadBytes)
	assert.Equal(t, "tiny", cfg.Transcribe.ModelSize)
	assert.Equal(t, "gemini", cfg.Transcribe.Engine)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "autosub.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))

	_, _, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	t.Setenv("AUTOSUB_LISTEN_ADDR", ":7000")
	t.Setenv("AUTOSUB_DATA_DIR", dataDir)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, _, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "sk-test", cfg.Transcribe.OpenAIAPIKey)
	assert.Equal(t, filepath.Join(dataDir, "autosub.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(dataDir, "autosub.lock"), cfg.LockPath())
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "")
	require.NoError(t, os.Unsetenv("GEMINI_API_KEY"))
	require.NoError(t, os.WriteFile(".env", []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600))

	cfg, _, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Transcribe.GeminiAPIKey)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"engine", func(c *Config) { c.Transcribe.Engine = "vosk" }, "transcribe.engine"},
		{"model", func(c *Config) { c.Transcribe.ModelSize = "huge" }, "transcribe.model_size"},
		{"language", func(c *Config) { c.Transcribe.Language = "not a language" }, "transcribe.language"},
		{"upload", func(c *Config) { c.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"retention", func(c *Config) { c.RetentionDays = -1 }, "retention_days"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"listen", func(c *Config) { c.ListenAddr = " " }, "listen_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"en", "en", false},
		{"en-US", "en", false},
		{"pt-BR", "pt", false},
		{" ja ", "ja", false},
		{"12345", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeLanguage(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.WorkDir = filepath.Join(base, "work")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.DataDir)
	assert.DirExists(t, cfg.WorkDir)
}
