package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config stores the application configuration.
// Values come from an optional TOML file first, then environment variables
// (including a .env file) override them.
type Config struct {
	ServerAddr string `toml:"server_addr"`

	// 日志配置
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
	LogMaxAgeDays int    `toml:"log_max_age_days"`
	LogCompress   bool   `toml:"log_compress"`

	DBHost     string `toml:"db_host"`
	DBPort     string `toml:"db_port"`
	DBUser     string `toml:"db_user"`
	DBPassword string `toml:"db_password"`
	DBName     string `toml:"db_name"`

	// Redis配置，为空时关闭进度推送
	RedisHost     string `toml:"redis_host"`
	RedisPort     string `toml:"redis_port"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// MinIO 镜像配置
	MirrorEnabled  bool   `toml:"mirror_enabled"`
	MinioEndpoint  string `toml:"minio_endpoint"`
	MinioAccessKey string `toml:"minio_access_key"`
	MinioSecretKey string `toml:"minio_secret_key"`
	MinioBucket    string `toml:"minio_bucket"`
	MinioUseSSL    bool   `toml:"minio_use_ssl"`
	MinioRegion    string `toml:"minio_region"`

	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`

	JWTSecret           string `toml:"jwt_secret"`
	SessionTimeoutHours int    `toml:"session_timeout_hours"`

	MusicDir           string `toml:"music_dir"`   // Global library root and fallback per-user library
	StagingDir         string `toml:"staging_dir"` // Root for per-attempt staging directories
	StagingMaxAgeHours int    `toml:"staging_max_age_hours"`

	AllowedExtensions []string `toml:"allowed_extensions"`
	MaxFileSizeMB     int64    `toml:"max_file_size_mb"`
	MaxTotalSizeMB    int64    `toml:"max_total_size_mb"`

	YouTubeEnabled        bool     `toml:"youtube_enabled"`
	YtDlpPath             string   `toml:"ytdlp_path"`
	YouTubeAudioFormat    string   `toml:"youtube_audio_format"`
	YouTubeFormatSelector string   `toml:"youtube_format_selector"`
	YouTubePlayerClient   string   `toml:"youtube_player_client"`
	YouTubeExtraArgs      []string `toml:"youtube_extra_args"`
	YouTubeDomains        []string `toml:"youtube_domains"`

	SpotifyEnabled     bool     `toml:"spotify_enabled"`
	SpotdlPath         string   `toml:"spotdl_path"`
	SpotifyAudioFormat string   `toml:"spotify_audio_format"`
	SpotifyExtraArgs   []string `toml:"spotify_extra_args"`
	SpotifyDomains     []string `toml:"spotify_domains"`

	ProcessorEnabled bool   `toml:"processor_enabled"`
	ProcessorPath    string `toml:"processor_path"`

	SubprocessTimeoutSeconds int `toml:"subprocess_timeout_seconds"`
	StderrTailLines          int `toml:"stderr_tail_lines"`
	MaxConcurrentAttempts    int `toml:"max_concurrent_attempts"`
}

// Default returns the built-in configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		ServerAddr:    ":8080",
		LogLevel:      "info",
		LogMaxSizeMB:  100,
		LogMaxBackups: 5,
		LogMaxAgeDays: 30,

		DBHost: "127.0.0.1",
		DBPort: "3306",
		DBUser: "root",
		DBName: "dropfm",

		RedisPort: "6379",

		MinioBucket: "dropfm-library",
		MinioRegion: "us-east-1",

		AMQPExchange: "dropfm.uploads",

		SessionTimeoutHours: 24,

		MusicDir:           "/srv/music",
		StagingDir:         "/srv/music_upload",
		StagingMaxAgeHours: 24,

		AllowedExtensions: []string{"mp3", "flac", "ogg", "opus", "m4a", "wav", "aac"},
		MaxFileSizeMB:     500,
		MaxTotalSizeMB:    2048,

		YouTubeEnabled:        true,
		YtDlpPath:             "yt-dlp",
		YouTubeAudioFormat:    "best",
		YouTubeFormatSelector: "bestaudio/best",
		YouTubePlayerClient:   "web",
		YouTubeDomains:        []string{"youtube.com", "youtu.be", "music.youtube.com"},

		SpotifyEnabled:     true,
		SpotdlPath:         "spotdl",
		SpotifyAudioFormat: "opus",
		SpotifyDomains:     []string{"open.spotify.com"},

		ProcessorEnabled: true,
		ProcessorPath:    "/usr/local/bin/ferric",

		SubprocessTimeoutSeconds: 1800,
		StderrTailLines:          20,
		MaxConcurrentAttempts:    4,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList reads a comma separated list; empty entries are dropped.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load loads configuration from CONFIG_PATH (TOML, optional), then applies
// environment variables (via .env file) on top.
func Load() (*Config, error) {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg := Default()
	path := getEnv("CONFIG_PATH", "config.toml")
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file %s not found, using defaults", path)
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)

	c.MirrorEnabled = getEnvBool("MIRROR_ENABLED", c.MirrorEnabled)
	c.MinioEndpoint = getEnv("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioBucket = getEnv("MINIO_BUCKET", c.MinioBucket)
	c.MinioUseSSL = getEnvBool("MINIO_USE_SSL", c.MinioUseSSL)
	c.MinioRegion = getEnv("MINIO_REGION", c.MinioRegion)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.SessionTimeoutHours = getEnvInt("SESSION_TIMEOUT_HOURS", c.SessionTimeoutHours)

	c.MusicDir = getEnv("MUSIC_DIR", c.MusicDir)
	c.StagingDir = getEnv("STAGING_DIR", getEnv("TEMP_DIR", c.StagingDir))
	c.StagingMaxAgeHours = getEnvInt("STAGING_MAX_AGE_HOURS", c.StagingMaxAgeHours)

	c.AllowedExtensions = getEnvList("ALLOWED_EXTENSIONS", c.AllowedExtensions)
	c.MaxFileSizeMB = getEnvInt64("MAX_FILE_SIZE_MB", c.MaxFileSizeMB)
	c.MaxTotalSizeMB = getEnvInt64("MAX_TOTAL_SIZE_MB", c.MaxTotalSizeMB)

	c.YouTubeEnabled = getEnvBool("YOUTUBE_ENABLED", c.YouTubeEnabled)
	c.YtDlpPath = getEnv("YTDLP_PATH", c.YtDlpPath)
	c.YouTubeAudioFormat = getEnv("YOUTUBE_AUDIO_FORMAT", c.YouTubeAudioFormat)
	c.YouTubeFormatSelector = getEnv("YOUTUBE_FORMAT_SELECTOR", c.YouTubeFormatSelector)
	c.YouTubePlayerClient = getEnv("YOUTUBE_PLAYER_CLIENT", c.YouTubePlayerClient)
	c.YouTubeExtraArgs = getEnvList("YOUTUBE_EXTRA_ARGS", c.YouTubeExtraArgs)
	c.YouTubeDomains = getEnvList("YOUTUBE_DOMAINS", c.YouTubeDomains)

	c.SpotifyEnabled = getEnvBool("SPOTIFY_ENABLED", c.SpotifyEnabled)
	c.SpotdlPath = getEnv("SPOTDL_PATH", c.SpotdlPath)
	c.SpotifyAudioFormat = getEnv("SPOTIFY_AUDIO_FORMAT", c.SpotifyAudioFormat)
	c.SpotifyExtraArgs = getEnvList("SPOTIFY_EXTRA_ARGS", c.SpotifyExtraArgs)
	c.SpotifyDomains = getEnvList("SPOTIFY_DOMAINS", c.SpotifyDomains)

	c.ProcessorEnabled = getEnvBool("PROCESSOR_ENABLED", c.ProcessorEnabled)
	c.ProcessorPath = getEnv("PROCESSOR_PATH", getEnv("FERRIC_PATH", c.ProcessorPath))

	c.SubprocessTimeoutSeconds = getEnvInt("SUBPROCESS_TIMEOUT_SECONDS", c.SubprocessTimeoutSeconds)
	c.StderrTailLines = getEnvInt("STDERR_TAIL_LINES", c.StderrTailLines)
	c.MaxConcurrentAttempts = getEnvInt("MAX_CONCURRENT_ATTEMPTS", c.MaxConcurrentAttempts)
}

func (c *Config) normalize() {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, ext := range c.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.AllowedExtensions = exts
	if c.MusicDir != "" {
		c.MusicDir = filepath.Clean(c.MusicDir)
	}
	if c.StagingDir != "" {
		c.StagingDir = filepath.Clean(c.StagingDir)
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.MusicDir) == "":
		return fmt.Errorf("music_dir is required")
	case strings.TrimSpace(c.StagingDir) == "":
		return fmt.Errorf("staging_dir is required")
	case c.MusicDir == c.StagingDir:
		return fmt.Errorf("staging_dir must differ from music_dir")
	case len(c.AllowedExtensions) == 0:
		return fmt.Errorf("allowed_extensions must not be empty")
	case c.MaxFileSizeMB <= 0:
		return fmt.Errorf("max_file_size_mb must be positive")
	case c.MaxTotalSizeMB < c.MaxFileSizeMB:
		return fmt.Errorf("max_total_size_mb (%d) must be at least max_file_size_mb (%d)", c.MaxTotalSizeMB, c.MaxFileSizeMB)
	case c.SubprocessTimeoutSeconds <= 0:
		return fmt.Errorf("subprocess_timeout_seconds must be positive")
	case c.ProcessorEnabled && strings.TrimSpace(c.ProcessorPath) == "":
		return fmt.Errorf("processor_path is required when the processor is enabled")
	case c.StagingMaxAge() <= c.AttemptTimeout():
		// 否则清理会删掉仍在运行的暂存目录
		return fmt.Errorf("staging_max_age_hours (%s) must exceed the attempt timeout (%s)", c.StagingMaxAge(), c.AttemptTimeout())
	}
	return nil
}

// MaxFileSizeBytes returns the per-file upload limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// MaxTotalSizeBytes returns the per-attempt upload limit in bytes.
func (c *Config) MaxTotalSizeBytes() int64 {
	return c.MaxTotalSizeMB * 1024 * 1024
}

// SubprocessTimeout bounds every external tool invocation.
func (c *Config) SubprocessTimeout() time.Duration {
	return time.Duration(c.SubprocessTimeoutSeconds) * time.Second
}

// AttemptTimeout bounds a whole upload attempt: acquisition and processing
// each get a full subprocess budget plus slack for the merge.
func (c *Config) AttemptTimeout() time.Duration {
	return 2*c.SubprocessTimeout() + 10*time.Minute
}

// StagingMaxAge is how old an abandoned staging directory must be before the janitor removes it.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.StagingMaxAgeHours) * time.Hour
}

// SessionTimeout is the lifetime of issued tokens.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutHours) * time.Hour
}

// MySQLDSN builds the DSN shared by the GORM and database/sql connections.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if strings.TrimSpace(c.RedisHost) == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
