// v0
// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrgchamp/greenhouse/internal/model"
)

// isolate points the loader at files inside a temp dir so the working
// directory never leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GREENHOUSE_PROPERTIES_PATH", filepath.Join(dir, "greenhouse.properties"))
	t.Setenv("GREENHOUSE_DOTENV_PATH", filepath.Join(dir, ".env"))
	return dir
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "test.mosquitto.org", cfg.Bus.Broker)
	assert.Equal(t, 1883, cfg.Bus.Port)
	assert.Equal(t, "greenhouse/sensors", cfg.Bus.Topic)
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 30, cfg.NumSensors)
	assert.Equal(t, 0.01, cfg.AnomalyRate)
	assert.Equal(t, model.Baseline{Temp: 25, Humidity: 60, Soil: 500}, cfg.Baseline)
	assert.Equal(t, 0, cfg.RetryAttempts)
	assert.Equal(t, "mqtt", cfg.Bus.Kind)
}

func TestLoadLayering(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "greenhouse.properties"), `
# simulator
broker = props-broker
port = 1884
num_sensors = 12
baseline.temp = 24.5
max_comp.soil = 40
publish.retry_attempts = 2
`)
	t.Setenv("GREENHOUSE_PORT", "1885")
	t.Setenv("GREENHOUSE_BUS_KIND", "Kafka")

	cfg, err := Load([]string{"-n", "8", "--anomaly-rate", "0.5", "-i", "2"})
	require.NoError(t, err)

	assert.Equal(t, "props-broker", cfg.Bus.Broker)
	assert.Equal(t, 1885, cfg.Bus.Port, "env overrides properties")
	assert.Equal(t, 8, cfg.NumSensors, "flags override properties")
	assert.Equal(t, 0.5, cfg.AnomalyRate)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, 24.5, cfg.Baseline.Temp)
	assert.Equal(t, 40.0, cfg.MaxComp.Soil)
	assert.Equal(t, 2, cfg.RetryAttempts)
	assert.Equal(t, "kafka", cfg.Bus.Kind)
}

func TestLoadDotenv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "GREENHOUSE_TOPIC=greenhouse/dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("GREENHOUSE_TOPIC") })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "greenhouse/dotenv", cfg.Bus.Topic)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		args []string
	}{
		"zero sensors":     {args: []string{"-num-sensors", "0"}},
		"rate above one":   {args: []string{"-r", "1.5"}},
		"negative rate":    {env: map[string]string{"GREENHOUSE_ANOMALY_RATE": "-0.1"}},
		"zero interval":    {args: []string{"-interval", "0"}},
		"non-finite base":  {env: map[string]string{"GREENHOUSE_BASELINE_HUMIDITY": "NaN"}},
		"zero limit":       {env: map[string]string{"GREENHOUSE_MAX_COMP_TEMP": "0"}},
		"unknown bus kind": {env: map[string]string{"GREENHOUSE_BUS_KIND": "smtp"}},
		"bad integer":      {env: map[string]string{"GREENHOUSE_PORT": "eighty"}},
		"unknown flag":     {args: []string{"--bogus"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(tc.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedProperties(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "greenhouse.properties"), "broker\n")
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "GREENHOUSE_BASELINE_TEMP", EnvName("baseline.temp"))
	assert.Equal(t, "GREENHOUSE_PUBLISH_RETRY_BACKOFF_MS", EnvName("publish.retry_backoff_ms"))
}
