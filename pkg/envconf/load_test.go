package envconf

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	DSN string `env:"ENVCONF_TEST_DSN" default:"postgres://localhost/db"`
}

type testConfig struct {
	Port     uint16         `env:"ENVCONF_TEST_PORT"`
	Level    slog.Level     `env:"ENVCONF_TEST_LEVEL" default:"INFO"`
	Interval time.Duration  `env:"ENVCONF_TEST_INTERVAL" default:"30s"`
	Ratio    float64        `env:"ENVCONF_TEST_RATIO" default:"0.5"`
	Debug    bool           `env:"ENVCONF_TEST_DEBUG" default:"false"`
	Origins  []string       `env:"ENVCONF_TEST_ORIGINS" default:"a, b,,c"`
	Timeout  *time.Duration `env:"ENVCONF_TEST_TIMEOUT" default:"5s"`
	Postgres nested
	skipped  string
}

// t.Setenv forbids t.Parallel, so these tests run sequentially.
func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("ENVCONF_TEST_PORT", "8080")
	t.Setenv("ENVCONF_TEST_LEVEL", "DEBUG")
	t.Setenv("ENVCONF_TEST_DSN", "postgres://db:5432/app")

	var cfg testConfig

	require.NoError(t, Load(&cfg))

	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.Level)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.InDelta(t, 0.5, cfg.Ratio, 1e-9)
	assert.False(t, cfg.Debug)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Origins)
	require.NotNil(t, cfg.Timeout)
	assert.Equal(t, 5*time.Second, *cfg.Timeout)
	assert.Equal(t, "postgres://db:5432/app", cfg.Postgres.DSN)
	assert.Empty(t, cfg.skipped)
}

func TestLoad_MissingRequired(t *testing.T) {
	var cfg testConfig

	err := Load(&cfg)
	require.ErrorIs(t, err, ErrMissingRequired)
	assert.Contains(t, err.Error(), "ENVCONF_TEST_PORT")
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("ENVCONF_TEST_PORT", "not-a-port")

	var cfg testConfig

	err := Load(&cfg)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingRequired)
}

func TestLoad_RejectsNonPointer(t *testing.T) {
	require.Error(t, Load(nil))
	require.Error(t, Load(testConfig{}))

	n := 3
	require.Error(t, Load(&n))
}
