package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/esantos/moneta/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultProfile != "default" {
		t.Errorf("Expected default profile 'default', got '%s'", cfg.DefaultProfile)
	}

	if cfg.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("Expected default output format 'json', got '%s'", cfg.DefaultOutputFormat)
	}

	if cfg.RemoteProvider != ProviderGoogleDrive {
		t.Errorf("Expected default provider 'gdrive', got '%s'", cfg.RemoteProvider)
	}

	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}

	if cfg.LogLevel != "normal" {
		t.Errorf("Expected log level 'normal', got '%s'", cfg.LogLevel)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid default config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name: "invalid output format",
			mutate: func(c *Config) {
				c.DefaultOutputFormat = types.OutputFormat("invalid")
			},
			wantError: true,
		},
		{
			name: "invalid provider",
			mutate: func(c *Config) {
				c.RemoteProvider = RemoteProvider("dropbox")
			},
			wantError: true,
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.RemoteProvider = ProviderS3
				c.S3 = S3Config{Region: "us-east-1"}
				c.S3.Bucket = ""
			},
			wantError: true,
		},
		{
			name: "s3 with bucket and region",
			mutate: func(c *Config) {
				c.RemoteProvider = ProviderS3
				c.S3 = S3Config{Bucket: "backups", Region: "us-east-1"}
			},
			wantError: false,
		},
		{
			name: "retries out of range",
			mutate: func(c *Config) {
				c.MaxRetries = 11
			},
			wantError: true,
		},
		{
			name: "retry delay too small",
			mutate: func(c *Config) {
				c.RetryBaseDelay = 50
			},
			wantError: true,
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.LogLevel = "loud"
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"DATABASE_PATH", "/tmp/ledger.db")
	t.Setenv(EnvPrefix+"REMOTE_PROVIDER", "s3")
	t.Setenv(EnvPrefix+"S3_BUCKET", "finance-backups")
	t.Setenv(EnvPrefix+"S3_REGION", "eu-west-1")
	t.Setenv(EnvPrefix+"MAX_RETRIES", "5")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.DatabasePath != "/tmp/ledger.db" {
		t.Errorf("DatabasePath = %s, want /tmp/ledger.db", cfg.DatabasePath)
	}
	if cfg.RemoteProvider != ProviderS3 {
		t.Errorf("RemoteProvider = %s, want s3", cfg.RemoteProvider)
	}
	if cfg.S3.Bucket != "finance-backups" {
		t.Errorf("S3.Bucket = %s, want finance-backups", cfg.S3.Bucket)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", tempDir)

	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(tempDir, "moneta.db")
	cfg.RemoteProvider = ProviderS3
	cfg.S3 = S3Config{Bucket: "b", Region: "us-east-1", Prefix: "moneta/"}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Written with restricted permissions
	info, err := os.Stat(filepath.Join(tempDir, ConfigFileName))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %v, want 0600", perm)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DatabasePath != cfg.DatabasePath {
		t.Errorf("DatabasePath = %s, want %s", loaded.DatabasePath, cfg.DatabasePath)
	}
	if loaded.S3.Bucket != "b" {
		t.Errorf("S3.Bucket = %s, want b", loaded.S3.Bucket)
	}
}

func TestGetDatabasePathDefault(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", tempDir)

	cfg := DefaultConfig()
	path, err := cfg.GetDatabasePath()
	if err != nil {
		t.Fatalf("GetDatabasePath() error = %v", err)
	}
	if path != filepath.Join(tempDir, "moneta.db") {
		t.Errorf("path = %s, want %s", path, filepath.Join(tempDir, "moneta.db"))
	}

	var raw map[string]json.RawMessage
	data, _ := json.Marshal(cfg)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config does not round-trip through JSON: %v", err)
	}
}
