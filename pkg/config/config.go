package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env              string
	Port             int
	APIPrefix        string
	PrivateAPIPrefix string

	Campus    CampusConfig
	Directory DatabaseConfig
	Shard     DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	CORS      CORSConfig
	Selection SelectionConfig
	Cascade   CascadeConfig
	Purge     PurgeConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Password        string
	DB              int
	TeacherCacheTTL time.Duration
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CampusConfig describes the local campus and how to reach its peers.
// Exactly one of the three web URLs is left empty: that campus is the local one.
type CampusConfig struct {
	AWebURL       string
	BWebURL       string
	CWebURL       string
	APISecret     string
	RemoteTimeout time.Duration
}

// Current returns the campus whose web URL is unset.
func (c CampusConfig) Current() string {
	switch {
	case c.AWebURL == "":
		return "A"
	case c.BWebURL == "":
		return "B"
	default:
		return "C"
	}
}

// URLs maps each peer campus to its base URL. The local campus is omitted.
func (c CampusConfig) URLs() map[string]string {
	out := make(map[string]string, 2)
	for campus, url := range map[string]string{"A": c.AWebURL, "B": c.BWebURL, "C": c.CWebURL} {
		if url != "" {
			out[campus] = strings.TrimRight(url, "/")
		}
	}
	return out
}

// Validate ensures exactly one campus is local.
func (c CampusConfig) Validate() error {
	empty := 0
	for _, url := range []string{c.AWebURL, c.BWebURL, c.CWebURL} {
		if url == "" {
			empty++
		}
	}
	if empty != 1 {
		return fmt.Errorf("invalid campus setting: exactly one of CAMPUS_A_WEB_URL, CAMPUS_B_WEB_URL, CAMPUS_C_WEB_URL must be empty, got %d", empty)
	}
	if c.APISecret == "" {
		return errors.New("DB_API_SECRET is required")
	}
	return nil
}

// SelectionConfig holds the fallback course selection window and its cache TTL.
type SelectionConfig struct {
	Begin    string
	End      string
	CacheTTL time.Duration
}

// CascadeConfig bounds the student enrollment cleanup loop.
type CascadeConfig struct {
	MaxPasses int
}

// PurgeConfig tunes the queue that propagates user purges to peer campuses.
type PurgeConfig struct {
	Workers int
	Retries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PrivateAPIPrefix = v.GetString("PRIVATE_API_PREFIX")

	cfg.Campus = CampusConfig{
		AWebURL:       v.GetString("CAMPUS_A_WEB_URL"),
		BWebURL:       v.GetString("CAMPUS_B_WEB_URL"),
		CWebURL:       v.GetString("CAMPUS_C_WEB_URL"),
		APISecret:     v.GetString("DB_API_SECRET"),
		RemoteTimeout: parseDuration(v.GetString("REMOTE_TIMEOUT"), 10*time.Second),
	}
	if err := cfg.Campus.Validate(); err != nil {
		return nil, err
	}

	cfg.Directory = databaseConfig(v, "DIRECTORY_DB")
	cfg.Shard = databaseConfig(v, "SHARD_DB")

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),

		TeacherCacheTTL: parseDuration(v.GetString("TEACHER_CACHE_TTL"), 10*time.Minute),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Selection = SelectionConfig{
		Begin:    v.GetString("SELECTION_BEGIN"),
		End:      v.GetString("SELECTION_END"),
		CacheTTL: parseDuration(v.GetString("SELECTION_CACHE_TTL"), 30*time.Second),
	}

	cfg.Cascade = CascadeConfig{MaxPasses: v.GetInt("CASCADE_MAX_PASSES")}
	if cfg.Cascade.MaxPasses <= 0 {
		cfg.Cascade.MaxPasses = 16
	}

	cfg.Purge = PurgeConfig{
		Workers: v.GetInt("PURGE_WORKERS"),
		Retries: v.GetInt("PURGE_RETRIES"),
	}

	return cfg, nil
}

func databaseConfig(v *viper.Viper, prefix string) DatabaseConfig {
	return DatabaseConfig{
		Host:         v.GetString(prefix + "_HOST"),
		Port:         v.GetInt(prefix + "_PORT"),
		User:         v.GetString(prefix + "_USER"),
		Password:     v.GetString(prefix + "_PASSWORD"),
		Name:         v.GetString(prefix + "_NAME"),
		SSLMode:      v.GetString(prefix + "_SSL_MODE"),
		MaxOpenConns: v.GetInt(prefix + "_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt(prefix + "_MAX_IDLE_CONNS"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PRIVATE_API_PREFIX", "/api/private/v1")

	v.SetDefault("CAMPUS_A_WEB_URL", "")
	v.SetDefault("CAMPUS_B_WEB_URL", "")
	v.SetDefault("CAMPUS_C_WEB_URL", "")
	v.SetDefault("DB_API_SECRET", "")
	v.SetDefault("REMOTE_TIMEOUT", "10s")

	for _, prefix := range []string{"DIRECTORY_DB", "SHARD_DB"} {
		v.SetDefault(prefix+"_HOST", "localhost")
		v.SetDefault(prefix+"_PORT", 5432)
		v.SetDefault(prefix+"_USER", "postgres")
		v.SetDefault(prefix+"_PASSWORD", "postgres")
		v.SetDefault(prefix+"_SSL_MODE", "disable")
		v.SetDefault(prefix+"_MAX_OPEN_CONNS", 10)
		v.SetDefault(prefix+"_MAX_IDLE_CONNS", 5)
	}
	v.SetDefault("DIRECTORY_DB_NAME", "campus_directory")
	v.SetDefault("SHARD_DB_NAME", "campus_shard")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SELECTION_BEGIN", "")
	v.SetDefault("SELECTION_END", "")
	v.SetDefault("SELECTION_CACHE_TTL", "30s")
	v.SetDefault("CASCADE_MAX_PASSES", 16)
	v.SetDefault("PURGE_WORKERS", 2)
	v.SetDefault("PURGE_RETRIES", 3)
	v.SetDefault("TEACHER_CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
