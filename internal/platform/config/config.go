package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures all process configuration. Values come from the
// environment so main stays lean; defaults suit local development.
type Config struct {
	Addr string

	// CSVPath is the canonical record table. DataDir holds everything the
	// gateway writes itself: sessions, window state, action log, backups.
	CSVPath string
	DataDir string

	// BackupKeep bounds the number of retained table backups. 0 keeps all.
	BackupKeep int

	SessionTTL    time.Duration
	WindowDays    int
	WatchInterval time.Duration

	JWTSigningKey  string
	AdminTokenHash string

	// RedisURL switches session persistence from the flat file to redis
	// when set.
	RedisURL string

	// KafkaBrokers enables the Kafka audit sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Config from REGDESK_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("REGDESK_ADDR", ":8080"),
		CSVPath:        envOr("REGDESK_CSV_PATH", "data.csv"),
		DataDir:        envOr("REGDESK_DATA_DIR", "regdesk_data"),
		BackupKeep:     envInt("REGDESK_BACKUP_KEEP", 50),
		SessionTTL:     envDuration("REGDESK_SESSION_TTL", 24*time.Hour),
		WindowDays:     envInt("REGDESK_WINDOW_DAYS", 7),
		WatchInterval:  envDuration("REGDESK_WATCH_INTERVAL", 8*time.Second),
		JWTSigningKey:  os.Getenv("REGDESK_JWT_SIGNING_KEY"),
		AdminTokenHash: os.Getenv("REGDESK_ADMIN_TOKEN_HASH"),
		RedisURL:       os.Getenv("REGDESK_REDIS_URL"),
		KafkaTopic:     envOr("REGDESK_KAFKA_TOPIC", "regdesk.audit"),
	}
	if brokers := os.Getenv("REGDESK_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

// Validate reports missing required credentials. These are the only
// conditions allowed to terminate the process at startup.
func (c Config) Validate() error {
	if c.JWTSigningKey == "" {
		return errors.New("REGDESK_JWT_SIGNING_KEY is required")
	}
	if c.AdminTokenHash == "" {
		return errors.New("REGDESK_ADMIN_TOKEN_HASH is required")
	}
	return nil
}

func (c Config) BackupDir() string    { return filepath.Join(c.DataDir, "backups") }
func (c Config) SessionsFile() string { return filepath.Join(c.DataDir, "sessions.json") }
func (c Config) WindowFile() string   { return filepath.Join(c.DataDir, "window.json") }
func (c Config) AuditFile() string    { return filepath.Join(c.DataDir, "actions.log") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
