package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Archipelago: ArchipelagoConfig{
			Host: "archipelago.gg",
			Port: 38281,
			Slot: "Player1",
		},
		Tits: TitsConfig{
			Port:  42069,
			Alias: "AP Tits Client",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestArchipelagoAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "archipelago.gg:38281", cfg.Archipelago.Addr())
}

func TestValidate_MissingSlot(t *testing.T) {
	cfg := validConfig()
	cfg.Archipelago.Slot = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archipelago.slot")
}

func TestValidate_EmptyAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Tits.Alias = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tits.alias")
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("archipelago.slot", "TestSlot")

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "TestSlot", cfg.Archipelago.Slot)
	assert.Equal(t, 42069, cfg.Tits.Port)
}

func TestLoadFromViper_InvalidConfig(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	// No slot set; validation must reject it.
	_, err := LoadFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archipelago.slot")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
archipelago:
  host: localhost
  port: 12345
  slot: TestSlot
  password: hunter2
tits:
  port: 43000
  alias: "Test Alias"
logging:
  level: debug
  format: json
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Archipelago.Host)
	assert.Equal(t, 12345, cfg.Archipelago.Port)
	assert.Equal(t, "TestSlot", cfg.Archipelago.Slot)
	assert.Equal(t, "hunter2", cfg.Archipelago.Password)
	assert.Equal(t, 43000, cfg.Tits.Port)
	assert.Equal(t, "Test Alias", cfg.Tits.Alias)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	err := os.WriteFile(path, []byte(`
archipelago:
  slot: OnlySlot
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "archipelago.gg", cfg.Archipelago.Host)
	assert.Equal(t, 38281, cfg.Archipelago.Port)
	assert.Equal(t, 42069, cfg.Tits.Port)
	assert.Equal(t, "AP Tits Client", cfg.Tits.Alias)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestProperty_PortValidation verifies that ports outside 1-65535 are always
// rejected and ports inside the range are always accepted.
func TestProperty_PortValidation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := validConfig()
		port := rapid.IntRange(-10000, 100000).Draw(rt, "port")
		cfg.Tits.Port = port

		err := cfg.Validate()
		if port >= 1 && port <= 65535 {
			assert.NoError(rt, err)
		} else {
			assert.Error(rt, err)
		}
	})
}
