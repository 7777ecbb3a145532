package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, []int{5, 20, 60}, c.Features.MAWindows)
	assert.Equal(t, 14, c.Features.RSI)
	assert.Equal(t, 26, c.Features.MACDSlow)
	assert.Equal(t, 0.60, c.Analysis.BuyBand)
	assert.Equal(t, 0.40, c.Analysis.SellBand)
	assert.Equal(t, 50, c.Model.MinRows)
	assert.Equal(t, 15*time.Minute, c.Scan.CacheTTL)
	assert.Equal(t, Forest{Trees: 50, MaxDepth: 5, MinLeaf: 10}, c.Model.Small)
	assert.Contains(t, c.Analysis.Universes, "semi")
	assert.Contains(t, c.Analysis.Universes["all"], "2330.TW")
	assert.Empty(t, c.Server.CORSOrigins, "cors is off unless origins are listed")
}

func TestParse_KeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
environment: prod
features:
  rsi: 10
  ma_windows: [10, 30]
analysis:
  universes:
    semi: ["2330.TW"]
`))
	require.NoError(t, err)

	assert.Equal(t, 10, c.Features.RSI)
	assert.Equal(t, []int{10, 30}, c.Features.MAWindows)
	assert.Equal(t, []string{"2330.TW"}, c.Analysis.Universes["semi"])
}

func TestParse_CORSOrigins(t *testing.T) {
	c, err := Parse([]byte("server:\n  cors_origins: [\"https://dash.example.tw\"]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://dash.example.tw"}, c.Server.CORSOrigins)

	_, err = Parse([]byte("server:\n  cors_origins: [\"\"]\n"))
	assert.Error(t, err)
}

func TestValidate_BandOrder(t *testing.T) {
	_, err := Parse([]byte("analysis:\n  buy_band: 0.3\n  sell_band: 0.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sell_band")
}

func TestValidate_MACDWindows(t *testing.T) {
	_, err := Parse([]byte("features:\n  macd_fast: 30\n  macd_slow: 20\n"))
	require.Error(t, err)
}

func TestValidate_KafkaNeedsBrokers(t *testing.T) {
	_, err := Parse([]byte("kafka:\n  enabled: true\n"))
	require.Error(t, err)
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\n"), 0o644))

	t.Setenv("TWSIGNAL_MODEL_PATH", "/tmp/m.json")
	t.Setenv("TWSIGNAL_PORT", "9090")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/m.json", c.Model.Path)
	assert.Equal(t, 9090, c.Server.Port)
}
