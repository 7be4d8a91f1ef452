// v0
// internal/recorder/config.go
package recorder

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the recorder settings. Database variables keep their
// DB_* names so an existing deployment's .env keeps working.
type Config struct {
	ListenAddress   string
	LogFilePath     string
	LogLevel        string
	ShutdownTimeout time.Duration

	Broker   string
	Port     int
	Topic    string
	ClientID string

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBAttempts int
	DBBackoff  time.Duration

	// RedisAddr enables the read cache when set.
	RedisAddr string
	CacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddress:   ":8089",
		LogFilePath:     "logs/recorder.log",
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
		Broker:          "test.mosquitto.org",
		Port:            1883,
		Topic:           "greenhouse/#",
		ClientID:        "greenhouse-recorder",
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "greenhouse",
		DBUser:          "postgres",
		DBAttempts:      2,
		DBBackoff:       2 * time.Second,
		CacheTTL:        30 * time.Second,
	}
}

// LoadConfig reads .env (path from RECORDER_DOTENV_PATH, missing file
// tolerated) and then the process environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := strings.TrimSpace(os.Getenv("RECORDER_DOTENV_PATH"))
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}

	strs := map[string]*string{
		"RECORDER_LISTEN_ADDRESS": &cfg.ListenAddress,
		"RECORDER_LOG_PATH":       &cfg.LogFilePath,
		"RECORDER_LOG_LEVEL":      &cfg.LogLevel,
		"RECORDER_BROKER":         &cfg.Broker,
		"RECORDER_TOPIC":          &cfg.Topic,
		"RECORDER_CLIENT_ID":      &cfg.ClientID,
		"DB_HOST":                 &cfg.DBHost,
		"DB_NAME":                 &cfg.DBName,
		"DB_USER":                 &cfg.DBUser,
		"DB_PASSWORD":             &cfg.DBPassword,
		"REDIS_ADDR":              &cfg.RedisAddr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"RECORDER_PORT": &cfg.Port,
		"DB_PORT":       &cfg.DBPort,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("RECORDER_CACHE_TTL_MS"); ok && strings.TrimSpace(v) != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("RECORDER_CACHE_TTL_MS must be a positive integer, got %q", v)
		}
		cfg.CacheTTL = time.Duration(ms) * time.Millisecond
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("broker port out of range: %d", c.Port)
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("DB_PORT out of range: %d", c.DBPort)
	}
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("topic cannot be empty")
	}
	if strings.TrimSpace(c.DBName) == "" {
		return errors.New("DB_NAME cannot be empty")
	}
	return nil
}

// DSN is the Postgres connection URL.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// BrokerURL is the MQTT broker address in paho form.
func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}
