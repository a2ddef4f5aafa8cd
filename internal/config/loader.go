package config

import (
	"fmt"
	"time"

	"github.com/rpattn/fileflow/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// StorageConfig locates the upload blob store.
type StorageConfig struct {
	Root string
}

// RemoteConfig locates the external compute job API.
type RemoteConfig struct {
	BaseURL     string
	JobID       int64
	Token       string
	CallbackURL string
	Production  bool
	Timeout     time.Duration
	RateBudget  int
	RateWindow  time.Duration
}

// SweepConfig controls the stale-processing reconciliation sweep.
type SweepConfig struct {
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database db.Config
	Storage  StorageConfig
	Remote   RemoteConfig
	Sweep    SweepConfig
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: db.DefaultConfig(),
		Storage: StorageConfig{
			Root: "./data/uploads",
		},
		Remote: RemoteConfig{
			BaseURL:    "http://localhost:9090/api/jobs",
			JobID:      1,
			Timeout:    30 * time.Second,
			RateBudget: 60,
			RateWindow: time.Minute,
		},
		Sweep: SweepConfig{
			Schedule:   "@every 1m",
			StaleAfter: 10 * time.Minute,
			BatchSize:  100,
		},
	}
}

// Load reads config.yaml from configPath, falling back to defaults and
// environment overrides (FILEFLOW_DATABASE_HOST and friends).
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("FILEFLOW")

	keys := []string{
		"server.addr", "server.allowed_origins",
		"database.host", "database.port", "database.user",
		"database.password", "database.dbname", "database.sslmode",
		"storage.root",
		"remote.base_url", "remote.job_id", "remote.token",
		"remote.callback_url", "remote.production", "remote.timeout_seconds",
		"remote.rate_budget", "remote.rate_window_seconds",
		"sweep.schedule", "sweep.stale_after_minutes", "sweep.batch_size",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("storage.root") {
		cfg.Storage.Root = v.GetString("storage.root")
	}

	if v.IsSet("remote.base_url") {
		cfg.Remote.BaseURL = v.GetString("remote.base_url")
	}
	if v.IsSet("remote.job_id") {
		cfg.Remote.JobID = v.GetInt64("remote.job_id")
	}
	if v.IsSet("remote.token") {
		cfg.Remote.Token = v.GetString("remote.token")
	}
	if v.IsSet("remote.callback_url") {
		cfg.Remote.CallbackURL = v.GetString("remote.callback_url")
	}
	if v.IsSet("remote.production") {
		cfg.Remote.Production = v.GetBool("remote.production")
	}
	if v.IsSet("remote.timeout_seconds") {
		cfg.Remote.Timeout = time.Duration(v.GetInt("remote.timeout_seconds")) * time.Second
	}
	if v.IsSet("remote.rate_budget") {
		cfg.Remote.RateBudget = v.GetInt("remote.rate_budget")
	}
	if v.IsSet("remote.rate_window_seconds") {
		cfg.Remote.RateWindow = time.Duration(v.GetInt("remote.rate_window_seconds")) * time.Second
	}

	if v.IsSet("sweep.schedule") {
		cfg.Sweep.Schedule = v.GetString("sweep.schedule")
	}
	if v.IsSet("sweep.stale_after_minutes") {
		cfg.Sweep.StaleAfter = time.Duration(v.GetInt("sweep.stale_after_minutes")) * time.Minute
	}
	if v.IsSet("sweep.batch_size") {
		cfg.Sweep.BatchSize = v.GetInt("sweep.batch_size")
	}

	return cfg, nil
}
