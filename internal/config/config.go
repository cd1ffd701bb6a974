// Package config loads the YAML configuration of the tip suggester.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"autopay-tips/internal/pricesource"
	"autopay-tips/internal/registry"
)

// ErrInvalid is returned by Validate for an unusable configuration.
var ErrInvalid = errors.New("invalid config")

// Price source kinds.
const (
	SourceStatic = "static"
	SourceHTTP   = "http"
)

type Config struct {
	RPC       RPCConfig       `yaml:"rpc"`
	Contracts ContractsConfig `yaml:"contracts"`
	Registry  RegistryConfig  `yaml:"registry"`
	Prices    PricesConfig    `yaml:"prices"`
	Watch     WatchConfig     `yaml:"watch"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type RPCConfig struct {
	HTTP           string  `yaml:"http"`
	WS             string  `yaml:"ws"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type ContractsConfig struct {
	Autopay      string `yaml:"autopay"`
	Multicall    string `yaml:"multicall"`
	MaxBatchSize int    `yaml:"max_batch_size"`
}

type RegistryConfig struct {
	Entries    []RegistryEntry `yaml:"entries"`
	ExtraTypes []string        `yaml:"extra_types"`
}

type RegistryEntry struct {
	Tag       string `yaml:"tag"`
	Type      string `yaml:"type"`
	Asset     string `yaml:"asset"`
	Currency  string `yaml:"currency"`
	QueryData string `yaml:"query_data"`
	Decimals  int32  `yaml:"decimals"`
	Source    string `yaml:"source"`
}

type PricesConfig struct {
	// Fallback names the source for supported queries outside the catalog.
	Fallback string                       `yaml:"fallback"`
	Sources  map[string]PriceSourceConfig `yaml:"sources"`
}

type PriceSourceConfig struct {
	Kind string `yaml:"kind"`

	// static
	Value  string            `yaml:"value"`
	Values map[string]string `yaml:"values"` // catalog tag -> price

	// http
	URL            string            `yaml:"url"`
	Path           string            `yaml:"path"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	RPS            float64           `yaml:"rps"`
	Burst          int               `yaml:"burst"`
	Headers        map[string]string `yaml:"headers"`
}

type WatchConfig struct {
	Schedule            string `yaml:"schedule"`
	OnNewHeads          bool   `yaml:"on_new_heads"`
	CycleTimeoutSeconds int    `yaml:"cycle_timeout_seconds"`
	WallClockFallback   bool   `yaml:"wall_clock_fallback"`
}

type StorageConfig struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

func Default() Config {
	cfg := Config{}
	cfg.RPC.HTTP = "http://localhost:8545"
	cfg.RPC.TimeoutSeconds = 30
	cfg.RPC.MaxRetries = 3
	cfg.RPC.RateLimitRPS = 10
	cfg.RPC.RateLimitBurst = 5
	cfg.Contracts.Multicall = "0x5BA1e12693Dc8F9c48aAD8770482f4739bEeD696"
	cfg.Contracts.MaxBatchSize = 500
	cfg.Registry.Entries = []RegistryEntry{
		{Tag: "eth-usd-spot", Asset: "eth", Currency: "usd", Source: "coinbase"},
		{Tag: "btc-usd-spot", Asset: "btc", Currency: "usd", Source: "coinbase"},
		{Tag: "trb-usd-spot", Asset: "trb", Currency: "usd", Source: "coinbase"},
		{Tag: "matic-usd-spot", Asset: "matic", Currency: "usd", Source: "coinbase"},
	}
	cfg.Prices.Fallback = "coinbase"
	cfg.Prices.Sources = map[string]PriceSourceConfig{
		"coinbase": {
			Kind:           SourceHTTP,
			URL:            "https://api.coinbase.com/v2/prices/{asset}-{currency}/spot",
			Path:           "data.amount",
			TimeoutSeconds: 10,
			RPS:            3,
			Burst:          3,
		},
	}
	cfg.Watch.Schedule = "@every 1m"
	cfg.Watch.CycleTimeoutSeconds = 45
	cfg.Storage.UseMemory = true
	cfg.Metrics.Addr = ":9090"
	cfg.Log.Level = "info"
	cfg.Log.Encoding = "json"
	return cfg
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values; a registry or sources block in the file replaces the default one.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if file.Registry.Entries != nil {
		cfg.Registry.Entries = nil
	}
	if file.Prices.Sources != nil {
		cfg.Prices.Sources = nil
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields every command needs.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.RPC.HTTP == "" {
		add("rpc.http is required")
	}
	if c.RPC.TimeoutSeconds < 0 || c.RPC.MaxRetries < 0 || c.RPC.RateLimitRPS < 0 {
		add("rpc limits must not be negative")
	}
	if !common.IsHexAddress(c.Contracts.Autopay) {
		add("contracts.autopay %q is not an address", c.Contracts.Autopay)
	}
	if c.Contracts.Multicall != "" && !common.IsHexAddress(c.Contracts.Multicall) {
		add("contracts.multicall %q is not an address", c.Contracts.Multicall)
	}
	if c.Contracts.MaxBatchSize < 0 {
		add("contracts.max_batch_size must not be negative")
	}

	for name, src := range c.Prices.Sources {
		switch src.Kind {
		case SourceStatic:
			if src.Value != "" {
				if _, err := decimal.NewFromString(src.Value); err != nil {
					add("prices.sources.%s.value: %v", name, err)
				}
			}
			for tag, v := range src.Values {
				if _, err := decimal.NewFromString(v); err != nil {
					add("prices.sources.%s.values.%s: %v", name, tag, err)
				}
			}
		case SourceHTTP:
			if src.URL == "" || src.Path == "" {
				add("prices.sources.%s needs url and path", name)
			}
		default:
			add("prices.sources.%s: unknown kind %q", name, src.Kind)
		}
	}
	if c.Prices.Fallback != "" {
		if _, ok := c.Prices.Sources[c.Prices.Fallback]; !ok {
			add("prices.fallback %q is not a configured source", c.Prices.Fallback)
		}
	}
	for _, e := range c.Registry.Entries {
		if e.Source == "" {
			continue
		}
		if _, ok := c.Prices.Sources[e.Source]; !ok {
			add("registry entry %q uses unknown source %q", e.Tag, e.Source)
		}
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			add("watch.schedule: %v", err)
		}
	}
	if c.Watch.Schedule == "" && !c.Watch.OnNewHeads {
		add("watch needs a schedule or on_new_heads")
	}
	if c.Watch.OnNewHeads && c.RPC.WS == "" {
		add("watch.on_new_heads needs rpc.ws")
	}
	if !c.Storage.UseMemory && (c.Storage.PostgresDSN == "" || c.Storage.ClickhouseDSN == "") {
		add("storage needs use_memory or both postgres_dsn and clickhouse_dsn")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RPCTimeout returns the per-request RPC timeout.
func (c Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPC.TimeoutSeconds) * time.Second
}

// CycleTimeout returns the deadline of one reporting cycle, zero when unset.
func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.Watch.CycleTimeoutSeconds) * time.Second
}

// AutopayAddress returns the autopay contract address.
func (c Config) AutopayAddress() common.Address {
	return common.HexToAddress(c.Contracts.Autopay)
}

// MulticallAddress returns the Multicall2 address, zero when unset.
func (c Config) MulticallAddress() common.Address {
	if c.Contracts.Multicall == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Contracts.Multicall)
}

// BuildRegistry resolves the catalog.
func (c Config) BuildRegistry() (*registry.Registry, error) {
	specs := make([]registry.EntrySpec, 0, len(c.Registry.Entries))
	for _, e := range c.Registry.Entries {
		specs = append(specs, registry.EntrySpec{
			Tag:       e.Tag,
			Type:      e.Type,
			Asset:     e.Asset,
			Currency:  e.Currency,
			QueryData: e.QueryData,
			Decimals:  e.Decimals,
			Source:    e.Source,
		})
	}
	return registry.New(specs, c.Registry.ExtraTypes)
}

// BuildPriceSources creates the named price sources. Static per-tag values
// are resolved against reg.
func (c Config) BuildPriceSources(reg *registry.Registry) (map[string]pricesource.Source, error) {
	sources := make(map[string]pricesource.Source, len(c.Prices.Sources))
	for name, src := range c.Prices.Sources {
		switch src.Kind {
		case SourceStatic:
			static := pricesource.NewStatic()
			if src.Value != "" {
				static = pricesource.NewFixed(decimal.RequireFromString(src.Value))
			}
			for tag, v := range src.Values {
				entry, ok := reg.ByTag(tag)
				if !ok {
					return nil, fmt.Errorf("%w: prices.sources.%s: unknown tag %q", ErrInvalid, name, tag)
				}
				price, err := decimal.NewFromString(v)
				if err != nil {
					return nil, fmt.Errorf("%w: prices.sources.%s.values.%s: %v", ErrInvalid, name, tag, err)
				}
				static.Set(entry.Query.ID, price)
			}
			sources[name] = static
		case SourceHTTP:
			sources[name] = pricesource.NewHTTP(pricesource.HTTPConfig{
				URL:     src.URL,
				Path:    src.Path,
				Timeout: time.Duration(src.TimeoutSeconds) * time.Second,
				RPS:     src.RPS,
				Burst:   src.Burst,
				Headers: src.Headers,
			})
		default:
			return nil, fmt.Errorf("%w: prices.sources.%s: unknown kind %q", ErrInvalid, name, src.Kind)
		}
	}
	return sources, nil
}
