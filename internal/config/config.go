// v0
// internal/config/config.go
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"nrgchamp/greenhouse/internal/bus"
	"nrgchamp/greenhouse/internal/controller"
	"nrgchamp/greenhouse/internal/model"
	"nrgchamp/greenhouse/internal/override"
)

// Config captures all runtime settings of the simulator. Values are layered:
// defaults, properties file, .env file, GREENHOUSE_* environment variables,
// and finally command-line flags.
type Config struct {
	// ListenAddress is the TCP address of the status/override HTTP API.
	ListenAddress string
	// LogFilePath is the file receiving a copy of every log record.
	LogFilePath string
	LogLevel    string
	// ShutdownTimeout bounds the graceful HTTP shutdown.
	ShutdownTimeout time.Duration
	// PropertiesPath records the properties file that was consulted.
	PropertiesPath string
	// DotenvPath records the .env file that was consulted.
	DotenvPath string

	Bus BusConfig

	// Interval is the fixed cycle period.
	Interval time.Duration
	// NumSensors is the batch size.
	NumSensors int
	// AnomalyRate is the per-reading injection probability.
	AnomalyRate float64
	// Seed drives the generator; 0 picks a time based seed.
	Seed int64

	Baseline   model.Baseline
	MaxComp    controller.Limits
	Steps      controller.StepDefaults
	Increments model.Steps

	OverrideQueue   int
	KeyboardEnabled bool

	PublishTimeout     time.Duration
	RetryAttempts      int
	RetryBackoff       time.Duration
	BreakerMaxFailures int
	BreakerReset       time.Duration
}

// BusConfig selects the broker and the topic readings are published to.
type BusConfig struct {
	Kind           string
	Broker         string
	Port           int
	URL            string
	Exchange       string
	Topic          string
	ClientID       string
	ConnectTimeout time.Duration
}

const (
	envPrefix            = "GREENHOUSE_"
	defaultListenAddress = ":8088"
	defaultLogFile       = "logs/greenhouse.log"
	defaultShutdown      = 5 * time.Second
	defaultPropsPath     = "greenhouse.properties"
	defaultDotenvPath    = ".env"
	defaultBroker        = "test.mosquitto.org"
	defaultPort          = 1883
	defaultTopic         = "greenhouse/sensors"
	defaultInterval      = 10 * time.Second
	defaultNumSensors    = 30
	defaultAnomalyRate   = 0.01
	defaultConnect       = 10 * time.Second
	defaultPublish       = 5 * time.Second
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultBreakerFails  = 5
	defaultBreakerReset  = 30 * time.Second
)

// Keys lists every recognised property name. The matching environment
// variable is GREENHOUSE_ followed by the upper-cased key with '.' replaced
// by '_', e.g. baseline.temp -> GREENHOUSE_BASELINE_TEMP.
var Keys = []string{
	"listen_address", "log_path", "log_level", "shutdown_timeout_ms",
	"bus.kind", "broker", "port", "bus.url", "bus.exchange", "topic", "client_id", "connect_timeout_ms",
	"interval_seconds", "num_sensors", "anomaly_rate", "seed",
	"baseline.temp", "baseline.humidity", "baseline.soil",
	"max_comp.temp", "max_comp.humidity", "max_comp.soil",
	"step.temp", "step.humidity", "step.soil",
	"override.temp", "override.humidity", "override.soil",
	"override.queue", "keyboard.enabled",
	"publish.timeout_ms", "publish.retry_attempts", "publish.retry_backoff_ms",
	"breaker.max_failures", "breaker.reset_ms",
}

// Defaults returns the configuration used when nothing else is provided.
func Defaults() Config {
	return Config{
		ListenAddress:   defaultListenAddress,
		LogFilePath:     filepath.Clean(defaultLogFile),
		LogLevel:        "info",
		ShutdownTimeout: defaultShutdown,
		Bus: BusConfig{
			Kind:           bus.KindMQTT,
			Broker:         defaultBroker,
			Port:           defaultPort,
			Exchange:       bus.DefaultExchange,
			Topic:          defaultTopic,
			ConnectTimeout: defaultConnect,
		},
		Interval:           defaultInterval,
		NumSensors:         defaultNumSensors,
		AnomalyRate:        defaultAnomalyRate,
		Baseline:           model.Baseline{Temp: 25.0, Humidity: 60.0, Soil: 500.0},
		MaxComp:            controller.DefaultLimits,
		Steps:              controller.DefaultStepDefaults,
		Increments:         override.DefaultIncrements,
		OverrideQueue:      override.DefaultCapacity,
		KeyboardEnabled:    true,
		PublishTimeout:     defaultPublish,
		RetryBackoff:       defaultRetryBackoff,
		BreakerMaxFailures: defaultBreakerFails,
		BreakerReset:       defaultBreakerReset,
	}
}

// Load resolves the configuration. args are the command-line arguments
// without the program name.
func Load(args []string) (Config, error) {
	cfg := Defaults()

	propsPath := strings.TrimSpace(os.Getenv(envPrefix + "PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultPropsPath
	}
	cfg.PropertiesPath = propsPath
	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	dotenvPath := strings.TrimSpace(os.Getenv(envPrefix + "DOTENV_PATH"))
	if dotenvPath == "" {
		dotenvPath = defaultDotenvPath
	}
	cfg.DotenvPath = dotenvPath
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func applyEnv(cfg *Config) error {
	for _, key := range Keys {
		name := EnvName(key)
		v, ok := lookupEnvTrimmed(name)
		if !ok {
			continue
		}
		if err := setProperty(cfg, key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func setProperty(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "listen_address":
		err = setNonEmpty(&cfg.ListenAddress, value)
	case "log_path":
		if value == "" {
			return errors.New("log_path cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(value)
	case "log_level":
		err = setNonEmpty(&cfg.LogLevel, value)
	case "shutdown_timeout_ms":
		cfg.ShutdownTimeout, err = parsePositiveMillis(value)
	case "bus.kind":
		cfg.Bus.Kind = strings.ToLower(value)
	case "broker":
		err = setNonEmpty(&cfg.Bus.Broker, value)
	case "port":
		cfg.Bus.Port, err = parsePositiveInt(value)
	case "bus.url":
		cfg.Bus.URL = value
	case "bus.exchange":
		err = setNonEmpty(&cfg.Bus.Exchange, value)
	case "topic":
		err = setNonEmpty(&cfg.Bus.Topic, value)
	case "client_id":
		cfg.Bus.ClientID = value
	case "connect_timeout_ms":
		cfg.Bus.ConnectTimeout, err = parsePositiveMillis(value)
	case "interval_seconds":
		cfg.Interval, err = parsePositiveSeconds(value)
	case "num_sensors":
		cfg.NumSensors, err = parsePositiveInt(value)
	case "anomaly_rate":
		cfg.AnomalyRate, err = parseFloat(value)
	case "seed":
		cfg.Seed, err = strconv.ParseInt(value, 10, 64)
	case "baseline.temp":
		cfg.Baseline.Temp, err = parseFloat(value)
	case "baseline.humidity":
		cfg.Baseline.Humidity, err = parseFloat(value)
	case "baseline.soil":
		cfg.Baseline.Soil, err = parseFloat(value)
	case "max_comp.temp":
		cfg.MaxComp.Temp, err = parseFloat(value)
	case "max_comp.humidity":
		cfg.MaxComp.Humidity, err = parseFloat(value)
	case "max_comp.soil":
		cfg.MaxComp.Soil, err = parseFloat(value)
	case "step.temp":
		cfg.Steps.Temp, err = parseFloat(value)
	case "step.humidity":
		cfg.Steps.Humidity, err = parseFloat(value)
	case "step.soil":
		cfg.Steps.Soil, err = parseFloat(value)
	case "override.temp":
		cfg.Increments.Temp, err = parseFloat(value)
	case "override.humidity":
		cfg.Increments.Humidity, err = parseFloat(value)
	case "override.soil":
		cfg.Increments.Soil, err = parseFloat(value)
	case "override.queue":
		cfg.OverrideQueue, err = parsePositiveInt(value)
	case "keyboard.enabled":
		cfg.KeyboardEnabled, err = strconv.ParseBool(value)
	case "publish.timeout_ms":
		cfg.PublishTimeout, err = parsePositiveMillis(value)
	case "publish.retry_attempts":
		cfg.RetryAttempts, err = strconv.Atoi(value)
		if err == nil && cfg.RetryAttempts < 0 {
			err = errors.New("value must not be negative")
		}
	case "publish.retry_backoff_ms":
		cfg.RetryBackoff, err = parseNonNegativeMillis(value)
	case "breaker.max_failures":
		cfg.BreakerMaxFailures, err = parsePositiveInt(value)
	case "breaker.reset_ms":
		cfg.BreakerReset, err = parsePositiveMillis(value)
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return err
}

// applyFlags accepts the historical command-line options in both long and
// short form. Only flags present on the command line override earlier layers.
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("greenhouse", flag.ContinueOnError)

	var intervalSecs float64
	fs.StringVar(&cfg.Bus.Broker, "broker", cfg.Bus.Broker, "MQTT broker address")
	fs.StringVar(&cfg.Bus.Broker, "b", cfg.Bus.Broker, "MQTT broker address (shorthand)")
	fs.IntVar(&cfg.Bus.Port, "port", cfg.Bus.Port, "MQTT broker port")
	fs.IntVar(&cfg.Bus.Port, "p", cfg.Bus.Port, "MQTT broker port (shorthand)")
	fs.StringVar(&cfg.Bus.Topic, "topic", cfg.Bus.Topic, "publish topic")
	fs.StringVar(&cfg.Bus.Topic, "t", cfg.Bus.Topic, "publish topic (shorthand)")
	fs.Float64Var(&intervalSecs, "interval", cfg.Interval.Seconds(), "seconds between cycles")
	fs.Float64Var(&intervalSecs, "i", cfg.Interval.Seconds(), "seconds between cycles (shorthand)")
	fs.IntVar(&cfg.NumSensors, "num-sensors", cfg.NumSensors, "sensors per batch")
	fs.IntVar(&cfg.NumSensors, "n", cfg.NumSensors, "sensors per batch (shorthand)")
	fs.Float64Var(&cfg.AnomalyRate, "anomaly-rate", cfg.AnomalyRate, "anomaly injection probability (0-1)")
	fs.Float64Var(&cfg.AnomalyRate, "r", cfg.AnomalyRate, "anomaly injection probability (shorthand)")
	fs.StringVar(&cfg.Bus.Kind, "bus", cfg.Bus.Kind, "broker kind: mqtt, kafka or amqp")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "generator seed, 0 for time based")
	fs.StringVar(&cfg.ListenAddress, "listen", cfg.ListenAddress, "HTTP listen address")
	fs.BoolVar(&cfg.KeyboardEnabled, "keyboard", cfg.KeyboardEnabled, "read override keys from stdin")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	cfg.Bus.Kind = strings.ToLower(strings.TrimSpace(cfg.Bus.Kind))
	var ferr error
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "interval" && f.Name != "i" {
			return
		}
		if intervalSecs <= 0 || math.IsNaN(intervalSecs) {
			ferr = errors.New("interval must be greater than zero")
			return
		}
		cfg.Interval = time.Duration(intervalSecs * float64(time.Second))
	})
	return ferr
}

// Validate reports the first setting that cannot drive the simulator.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.NumSensors < 1 {
		return fmt.Errorf("num_sensors must be >= 1, got %d", c.NumSensors)
	}
	if math.IsNaN(c.AnomalyRate) || c.AnomalyRate < 0 || c.AnomalyRate > 1 {
		return fmt.Errorf("anomaly_rate must be within [0,1], got %v", c.AnomalyRate)
	}
	if c.Interval <= 0 {
		return errors.New("interval must be greater than zero")
	}
	if err := c.Baseline.Validate(); err != nil {
		return err
	}
	for _, m := range model.Metrics {
		if v := c.MaxComp.Get(m); !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("max_comp for %s must be positive, got %v", m, v)
		}
	}
	switch c.Bus.Kind {
	case bus.KindMQTT, bus.KindKafka, bus.KindAMQP:
	default:
		return fmt.Errorf("unknown bus.kind %q", c.Bus.Kind)
	}
	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Bus.Port)
	}
	if strings.TrimSpace(c.Bus.Topic) == "" {
		return errors.New("topic cannot be empty")
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setNonEmpty(dst *string, value string) error {
	if value == "" {
		return errors.New("value cannot be empty")
	}
	*dst = value
	return nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	return f, nil
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return n, nil
}

func parsePositiveSeconds(v string) (time.Duration, error) {
	f, err := parseFloat(v)
	if err != nil {
		return 0, err
	}
	if !(f > 0) || math.IsInf(f, 0) {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(f * float64(time.Second)), nil
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseNonNegativeMillis(v string) (time.Duration, error) {
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms < 0 {
		return 0, errors.New("value must not be negative")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
