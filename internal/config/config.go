package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVerbosity       = "info"
	DefaultUpstreamTimeout = 10000
	DefaultGeolocationURL  = "https://ipapi.co"
	DefaultGeoCacheSize    = 1024
	DefaultNativeToken     = "tnam1qxgfw7myv4dh0qna4hq0xdg6lx77fzl7dcem8h7e"
)

// Queries holds the ABCI query paths used for each chain metric.
type Queries struct {
	Epoch                  string `yaml:"epoch" toml:"epoch"`
	TotalStake             string `yaml:"total_stake" toml:"total_stake"`
	TotalActiveVotingPower string `yaml:"total_active_voting_power" toml:"total_active_voting_power"`
	StakingRewardsRate     string `yaml:"staking_rewards_rate" toml:"staking_rewards_rate"`
	EffectiveNativeSupply  string `yaml:"effective_native_supply" toml:"effective_native_supply"`
	TotalSupply            string `yaml:"total_supply" toml:"total_supply"`
	PGFParameters          string `yaml:"pgf_parameters" toml:"pgf_parameters"`
}

type Config struct {
	Cache          string `yaml:"cache" toml:"cache"`
	Port           int    `yaml:"port" toml:"port"`
	CacheInterval  int    `yaml:"cache_interval" toml:"cache_interval"`
	RPC            string `yaml:"rpc" toml:"rpc"`
	AddressBookURL string `yaml:"addressbook_url" toml:"addressbook_url"`
	Compression    string `yaml:"compression" toml:"compression"`

	Logger struct {
		Verbosity string `yaml:"verbosity" toml:"verbosity"`
	} `yaml:"logger" toml:"logger"`

	Upstream struct {
		// Timeout is in milliseconds.
		Timeout  int `yaml:"timeout" toml:"timeout"`
		RetryMax int `yaml:"retry_max" toml:"retry_max"`
	} `yaml:"upstream" toml:"upstream"`

	Geolocation struct {
		URL string `yaml:"url" toml:"url"`
		// CacheTTL is in milliseconds. Zero disables the lookup cache.
		CacheTTL  int `yaml:"cache_ttl" toml:"cache_ttl"`
		CacheSize int `yaml:"cache_size" toml:"cache_size"`
	} `yaml:"geolocation" toml:"geolocation"`

	Chain struct {
		NativeToken string  `yaml:"native_token" toml:"native_token"`
		Queries     Queries `yaml:"queries" toml:"queries"`
	} `yaml:"chain" toml:"chain"`
}

// LoadConfig reads the file at path. Files ending in .toml are decoded as
// TOML, everything else as YAML. Defaults are applied before validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func DefaultQueries() Queries {
	return Queries{
		Epoch:                  "/shell/epoch",
		TotalStake:             "/vp/pos/total_stake",
		TotalActiveVotingPower: "/vp/pos/total_active_voting_power",
		StakingRewardsRate:     "/vp/pos/staking_rewards_rate",
		EffectiveNativeSupply:  "/vp/token/effective_native_supply",
		TotalSupply:            "/vp/token/total_supply",
		PGFParameters:          "/vp/pgf/parameters",
	}
}

func (c *Config) applyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = DefaultVerbosity
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Geolocation.URL == "" {
		c.Geolocation.URL = DefaultGeolocationURL
	}
	if c.Geolocation.CacheSize == 0 {
		c.Geolocation.CacheSize = DefaultGeoCacheSize
	}
	if c.Chain.NativeToken == "" {
		c.Chain.NativeToken = DefaultNativeToken
	}

	defaults := DefaultQueries()
	q := &c.Chain.Queries
	setDefault(&q.Epoch, defaults.Epoch)
	setDefault(&q.TotalStake, defaults.TotalStake)
	setDefault(&q.TotalActiveVotingPower, defaults.TotalActiveVotingPower)
	setDefault(&q.StakingRewardsRate, defaults.StakingRewardsRate)
	setDefault(&q.EffectiveNativeSupply, defaults.EffectiveNativeSupply)
	setDefault(&q.TotalSupply, defaults.TotalSupply)
	setDefault(&q.PGFParameters, defaults.PGFParameters)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	if c.Cache == "" {
		return errors.New("config: cache directory is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.CacheInterval <= 0 {
		return fmt.Errorf("config: cache_interval must be positive, got %d", c.CacheInterval)
	}
	if err := checkHTTPURL("rpc", c.RPC); err != nil {
		return err
	}
	if c.AddressBookURL != "" {
		if err := checkHTTPURL("addressbook_url", c.AddressBookURL); err != nil {
			return err
		}
	}
	if err := checkHTTPURL("geolocation.url", c.Geolocation.URL); err != nil {
		return err
	}
	switch c.Compression {
	case "", "none", "s2", "zstd":
	default:
		return fmt.Errorf("config: unknown compression %q", c.Compression)
	}
	if c.Upstream.Timeout < 0 || c.Upstream.RetryMax < 0 || c.Geolocation.CacheTTL < 0 {
		return errors.New("config: upstream and geolocation settings must not be negative")
	}
	return nil
}

func checkHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("config: %s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s must have http or https scheme: %s", name, raw)
	}
	return nil
}

// RefreshInterval is the period of the background refresh loop.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.CacheInterval) * time.Millisecond
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.Timeout) * time.Millisecond
}

func (c *Config) GeoCacheTTL() time.Duration {
	return time.Duration(c.Geolocation.CacheTTL) * time.Millisecond
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
