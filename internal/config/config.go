package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int
	Debug   bool

	DBDriver    string
	SQLitePath  string
	DatabaseURL string

	JWTSecret          string
	AccessTokenMinutes int
	EncryptKey         string
	LegacyEncryptKeys  []string
	BcryptCost         int

	UploadDir      string
	MaxUploadMB    int
	CORSOrigins    []string
	RequestTimeout time.Duration

	LogLevel string
	LogSink  string

	SendRatePerSec float64
	SendRateBurst  int

	NATSURL           string
	NATSSubjectPrefix string

	JanitorSchedule string

	WSPingInterval time.Duration
	WSSendBuffer   int
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Every value is a
// default that the matching environment variable overrides.
type fileConfig struct {
	App struct {
		Name  string `yaml:"name"`
		Env   string `yaml:"env"`
		Debug *bool  `yaml:"debug"`
	} `yaml:"app"`
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		CORSOrigins     []string `yaml:"cors_origins"`
		RequestTimeoutS int      `yaml:"request_timeout_seconds"`
	} `yaml:"server"`
	Database struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		URL        string `yaml:"url"`
	} `yaml:"database"`
	Security struct {
		AccessTokenMinutes int      `yaml:"access_token_minutes"`
		LegacyKeys         []string `yaml:"legacy_encryption_keys"`
		BcryptCost         int      `yaml:"bcrypt_cost"`
	} `yaml:"security"`
	Uploads struct {
		Dir   string `yaml:"dir"`
		MaxMB int    `yaml:"max_mb"`
	} `yaml:"uploads"`
	Logging struct {
		Level string `yaml:"level"`
		Sink  string `yaml:"sink"`
	} `yaml:"logging"`
	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Janitor struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"janitor"`
	WS struct {
		PingSeconds int `yaml:"ping_seconds"`
		SendBuffer  int `yaml:"send_buffer"`
	} `yaml:"ws"`
}

// Load builds the configuration from, in increasing precedence, built-in
// defaults, the YAML file named by CONFIG_FILE, a .env file and the process
// environment.
func Load() (*Config, error) {
	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	debugDefault := true
	if fc.App.Debug != nil {
		debugDefault = *fc.App.Debug
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", or(fc.App.Name, "directchat")),
		Env:     getEnv("APP_ENV", or(fc.App.Env, "development")),
		Host:    getEnv("HTTP_HOST", or(fc.Server.Host, "0.0.0.0")),
		Port:    getEnvAsInt("HTTP_PORT", orInt(fc.Server.Port, 8000)),
		Debug:   getEnvAsBool("DEBUG", debugDefault),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", or(fc.Database.Driver, "sqlite"))),
		SQLitePath:  getEnv("SQLITE_PATH", or(fc.Database.SQLitePath, "directchat.db")),
		DatabaseURL: getEnv("DATABASE_URL", fc.Database.URL),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", orInt(fc.Security.AccessTokenMinutes, 60*24*10)),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),
		LegacyEncryptKeys:  getEnvAsList("LEGACY_ENCRYPTION_KEYS", fc.Security.LegacyKeys),
		BcryptCost:         getEnvAsInt("BCRYPT_COST", orInt(fc.Security.BcryptCost, 10)),

		UploadDir:      getEnv("UPLOAD_DIR", or(fc.Uploads.Dir, "uploads")),
		MaxUploadMB:    getEnvAsInt("MAX_UPLOAD_MB", orInt(fc.Uploads.MaxMB, 50)),
		CORSOrigins:    getEnvAsList("CORS_ORIGINS", fc.Server.CORSOrigins),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", orInt(fc.Server.RequestTimeoutS, 60))) * time.Second,

		LogLevel: getEnv("LOG_LEVEL", or(fc.Logging.Level, "info")),
		LogSink:  getEnv("LOG_SINK", or(fc.Logging.Sink, "stdout")),

		SendRatePerSec: getEnvAsFloat("SEND_RATE_PER_SEC", orFloat(fc.RateLimit.PerSecond, 5)),
		SendRateBurst:  getEnvAsInt("SEND_RATE_BURST", orInt(fc.RateLimit.Burst, 20)),

		NATSURL:           getEnv("NATS_URL", fc.NATS.URL),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", or(fc.NATS.SubjectPrefix, "directchat.events")),

		JanitorSchedule: getEnv("JANITOR_SCHEDULE", or(fc.Janitor.Schedule, "*/15 * * * *")),

		WSPingInterval: time.Duration(getEnvAsInt("WS_PING_SECONDS", orInt(fc.WS.PingSeconds, 30))) * time.Second,
		WSSendBuffer:   getEnvAsInt("WS_SEND_BUFFER", orInt(fc.WS.SendBuffer, 64)),
	}

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

// PostgresDSN returns DATABASE_URL or assembles one from the POSTGRES_* variables.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
		Host:     fmt.Sprintf("%s:%s", getEnv("POSTGRES_HOST", "localhost"), getEnv("POSTGRES_PORT", "5432")),
		Path:     getEnv("POSTGRES_DB", "directchat"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}
