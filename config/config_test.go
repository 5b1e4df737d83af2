package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadUsesDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxFileSizeMB != 500 {
		t.Fatalf("MaxFileSizeMB = %d, want 500", cfg.MaxFileSizeMB)
	}
	if !reflect.DeepEqual(cfg.SpotifyDomains, []string{"open.spotify.com"}) {
		t.Fatalf("SpotifyDomains = %v", cfg.SpotifyDomains)
	}
	if cfg.SubprocessTimeout() != 30*time.Minute {
		t.Fatalf("SubprocessTimeout = %v", cfg.SubprocessTimeout())
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
music_dir = "/data/music"
staging_dir = "/data/staging/"
allowed_extensions = [".MP3", "flac"]
max_file_size_mb = 10
max_total_size_mb = 40
processor_enabled = false
youtube_extra_args = ["--no-mtime"]
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("MAX_FILE_SIZE_MB", "20")
	t.Setenv("SPOTIFY_EXTRA_ARGS", "--threads, 2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MusicDir != "/data/music" || cfg.StagingDir != "/data/staging" {
		t.Fatalf("dirs = %q %q", cfg.MusicDir, cfg.StagingDir)
	}
	if !reflect.DeepEqual(cfg.AllowedExtensions, []string{"mp3", "flac"}) {
		t.Fatalf("AllowedExtensions = %v", cfg.AllowedExtensions)
	}
	if cfg.MaxFileSizeBytes() != 20*1024*1024 {
		t.Fatalf("MaxFileSizeBytes = %d", cfg.MaxFileSizeBytes())
	}
	if cfg.ProcessorEnabled {
		t.Fatal("expected processor disabled from file")
	}
	if !reflect.DeepEqual(cfg.YouTubeExtraArgs, []string{"--no-mtime"}) {
		t.Fatalf("YouTubeExtraArgs = %v", cfg.YouTubeExtraArgs)
	}
	if !reflect.DeepEqual(cfg.SpotifyExtraArgs, []string{"--threads", "2"}) {
		t.Fatalf("SpotifyExtraArgs = %v", cfg.SpotifyExtraArgs)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfigFile(t, "music_dir = ["))
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing music dir", func(c *Config) { c.MusicDir = "" }},
		{"staging equals library", func(c *Config) { c.StagingDir = c.MusicDir }},
		{"no extensions", func(c *Config) { c.AllowedExtensions = nil }},
		{"total below file", func(c *Config) { c.MaxTotalSizeMB = c.MaxFileSizeMB - 1 }},
		{"zero timeout", func(c *Config) { c.SubprocessTimeoutSeconds = 0 }},
		{"processor without path", func(c *Config) { c.ProcessorPath = " " }},
		{"zero staging age", func(c *Config) { c.StagingMaxAgeHours = 0 }},
		{"staging age below attempt timeout", func(c *Config) {
			c.StagingMaxAgeHours = 2
			c.SubprocessTimeoutSeconds = 3600
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestAttemptTimeoutFollowsSubprocessTimeout(t *testing.T) {
	cfg := Default()
	cfg.SubprocessTimeoutSeconds = 600
	if got := cfg.AttemptTimeout(); got != 30*time.Minute {
		t.Fatalf("AttemptTimeout = %v", got)
	}
	cfg.StagingMaxAgeHours = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("1h staging age with a 30m attempt: %v", err)
	}
}

func TestRedisAddrEmptyWhenUnconfigured(t *testing.T) {
	cfg := Default()
	if cfg.RedisAddr() != "" {
		t.Fatalf("RedisAddr = %q", cfg.RedisAddr())
	}
	cfg.RedisHost = "cache"
	if cfg.RedisAddr() != "cache:6379" {
		t.Fatalf("RedisAddr = %q", cfg.RedisAddr())
	}
}
