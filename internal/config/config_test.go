package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopay-tips/internal/pricesource"
)

const autopayAddr = "0x9BE9B0CFA89Ea800556C6efbA67b455D336db1D0"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_NeedsAutopayAddress(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "contracts.autopay")

	cfg.Contracts.Autopay = autopayAddr
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
rpc:
  http: https://rpc.example.org
contracts:
  autopay: `+autopayAddr+`
registry:
  entries:
    - tag: eth-usd-spot
      asset: ETH
      currency: USD
      source: fixed
  extra_types: [EVMCall]
prices:
  fallback: fixed
  sources:
    fixed:
      kind: static
      values:
        eth-usd-spot: "1850.25"
watch:
  schedule: "*/5 * * * *"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://rpc.example.org", cfg.RPC.HTTP)
	assert.Equal(t, 3, cfg.RPC.MaxRetries, "default kept")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Encoding, "default kept")
	require.Len(t, cfg.Registry.Entries, 1)
	require.Len(t, cfg.Prices.Sources, 1, "file sources replace defaults")

	reg, err := cfg.BuildRegistry()
	require.NoError(t, err)
	assert.True(t, reg.Supports("EVMCall"))

	entry, ok := reg.ByTag("eth-usd-spot")
	require.True(t, ok)
	assert.Equal(t, "83a7f3d48786ac2667503a61e8c415438ed2922eb86a2906e4ee66d9a2ce4992", entry.Query.ID.Hex()[2:])

	sources, err := cfg.BuildPriceSources(reg)
	require.NoError(t, err)
	require.Contains(t, sources, "fixed")

	router := pricesource.NewRouter(pricesource.RouterOptions{Registry: reg, Sources: sources, Fallback: cfg.Prices.Fallback})
	price, err := router.FetchPrice(t.Context(), entry.Query)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("1850.25")))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "rpc: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Contracts.Autopay = autopayAddr
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no rpc", func(c *Config) { c.RPC.HTTP = "" }, "rpc.http"},
		{"bad multicall", func(c *Config) { c.Contracts.Multicall = "0x12" }, "contracts.multicall"},
		{"bad schedule", func(c *Config) { c.Watch.Schedule = "every minute" }, "watch.schedule"},
		{"no trigger", func(c *Config) { c.Watch.Schedule = "" }, "schedule or on_new_heads"},
		{"heads without ws", func(c *Config) { c.Watch.OnNewHeads = true }, "rpc.ws"},
		{"unknown fallback", func(c *Config) { c.Prices.Fallback = "missing" }, "prices.fallback"},
		{"unknown entry source", func(c *Config) {
			c.Registry.Entries = []RegistryEntry{{Tag: "x", Asset: "a", Currency: "b", Source: "missing"}}
		}, "unknown source"},
		{"unknown kind", func(c *Config) {
			c.Prices.Sources["other"] = PriceSourceConfig{Kind: "grpc"}
		}, "unknown kind"},
		{"http without path", func(c *Config) {
			c.Prices.Sources["other"] = PriceSourceConfig{Kind: SourceHTTP, URL: "http://x"}
		}, "needs url and path"},
		{"bad static value", func(c *Config) {
			c.Prices.Sources["other"] = PriceSourceConfig{Kind: SourceStatic, Value: "abc"}
		}, "prices.sources.other.value"},
		{"db without dsn", func(c *Config) { c.Storage.UseMemory = false }, "postgres_dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildPriceSources_UnknownTag(t *testing.T) {
	cfg := Default()
	cfg.Prices.Sources = map[string]PriceSourceConfig{
		"fixed": {Kind: SourceStatic, Values: map[string]string{"nope": "1"}},
	}
	reg, err := cfg.BuildRegistry()
	require.NoError(t, err)

	_, err = cfg.BuildPriceSources(reg)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAddresses(t *testing.T) {
	cfg := Default()
	cfg.Contracts.Autopay = autopayAddr
	assert.Equal(t, strings.ToLower(autopayAddr), strings.ToLower(cfg.AutopayAddress().Hex()))
	assert.Equal(t, "0x5BA1e12693Dc8F9c48aAD8770482f4739bEeD696", cfg.MulticallAddress().Hex())

	cfg.Contracts.Multicall = ""
	assert.Equal(t, [20]byte{}, [20]byte(cfg.MulticallAddress()))
}
