// Package config loads client configuration from yaml file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/xssnick/tgutils-go/links"
	"github.com/xssnick/tgutils-go/rpc"
	"github.com/xssnick/tgutils-go/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration - time.Duration which is written as "1.5s" in yaml
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

type DC struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

type Device struct {
	Model          string `yaml:"model"`
	SystemVersion  string `yaml:"system_version"`
	AppVersion     string `yaml:"app_version"`
	SystemLangCode string `yaml:"system_lang_code"`
	LangPack       string `yaml:"lang_pack"`
	LangCode       string `yaml:"lang_code"`
}

type Transport struct {
	// Codec - intermediate or abridged
	Codec string `yaml:"codec"`
	// Obfuscated - wraps framing into obfuscated2
	Obfuscated bool `yaml:"obfuscated"`
	// Proxy - tg://proxy or tg://socks deep link
	Proxy       string   `yaml:"proxy"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

type Connection struct {
	PingInterval    Duration `yaml:"ping_interval"`
	AckInterval     Duration `yaml:"ack_interval"`
	SaltRefresh     Duration `yaml:"salt_refresh"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ExchangeTimeout Duration `yaml:"exchange_timeout"`
}

type Retry struct {
	StaleIDAttempts  int      `yaml:"stale_id_attempts"`
	FloodWaitRetries int      `yaml:"flood_wait_retries"`
	MaxFloodWait     Duration `yaml:"max_flood_wait"`
	MigrateRetries   int      `yaml:"migrate_retries"`
	TransportRetries int      `yaml:"transport_retries"`

	// reconnect backoff
	ReconnectBase     Duration `yaml:"reconnect_base"`
	ReconnectMax      Duration `yaml:"reconnect_max"`
	ReconnectAttempts uint64   `yaml:"reconnect_attempts"`
}

type Updates struct {
	SubscriberBuffer int   `yaml:"subscriber_buffer"`
	ChannelDiffLimit int32 `yaml:"channel_diff_limit"`
}

type Redis struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	Timeout  Duration `yaml:"timeout"`
}

type Storage struct {
	// Type - memory or redis
	Type  string `yaml:"type"`
	Redis Redis  `yaml:"redis"`
}

type Log struct {
	// Level - debug, info, warn or error
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	APIID     int32  `yaml:"api_id"`
	APIHash   string `yaml:"api_hash"`
	PrimaryDC int    `yaml:"primary_dc"`
	DCs       []DC   `yaml:"dcs"`

	Device     Device     `yaml:"device"`
	Transport  Transport  `yaml:"transport"`
	Connection Connection `yaml:"connection"`
	Retry      Retry      `yaml:"retry"`
	Updates    Updates    `yaml:"updates"`
	Storage    Storage    `yaml:"storage"`
	Log        Log        `yaml:"log"`
}

// Default - production dc list and defaults of all components
func Default() *Config {
	return &Config{
		PrimaryDC: 2,
		DCs: []DC{
			{ID: 1, Addr: "149.154.175.53:443"},
			{ID: 2, Addr: "149.154.167.51:443"},
			{ID: 3, Addr: "149.154.175.100:443"},
			{ID: 4, Addr: "149.154.167.91:443"},
			{ID: 5, Addr: "91.108.56.130:443"},
		},
		Device: Device{
			Model:          "tgutils-go",
			SystemVersion:  "linux",
			AppVersion:     "1.0",
			SystemLangCode: "en",
			LangCode:       "en",
		},
		Transport: Transport{
			Codec:       "intermediate",
			DialTimeout: Duration(10 * time.Second),
		},
		Connection: Connection{
			PingInterval:    Duration(60 * time.Second),
			AckInterval:     Duration(time.Second),
			SaltRefresh:     Duration(10 * time.Minute),
			RequestTimeout:  Duration(30 * time.Second),
			ExchangeTimeout: Duration(30 * time.Second),
		},
		Retry: Retry{
			StaleIDAttempts:   3,
			FloodWaitRetries:  1,
			MaxFloodWait:      Duration(time.Minute),
			MigrateRetries:    2,
			TransportRetries:  3,
			ReconnectBase:     Duration(500 * time.Millisecond),
			ReconnectMax:      Duration(30 * time.Second),
			ReconnectAttempts: 10,
		},
		Updates: Updates{
			SubscriberBuffer: 100,
			ChannelDiffLimit: 100,
		},
		Storage: Storage{
			Type: "memory",
			Redis: Redis{
				Addr:    "127.0.0.1:6379",
				Prefix:  "tg",
				Timeout: Duration(5 * time.Second),
			},
		},
		Log: Log{Level: "info"},
	}
}

// Load - reads yaml file, values which are not set keep defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIID <= 0 || c.APIHash == "" {
		return fmt.Errorf("%w: api_id and api_hash are required", ErrInvalidConfig)
	}
	if len(c.DCs) == 0 {
		return fmt.Errorf("%w: no dcs", ErrInvalidConfig)
	}

	seen := map[int]bool{}
	for _, dc := range c.DCs {
		if dc.ID <= 0 {
			return fmt.Errorf("%w: bad dc id %d", ErrInvalidConfig, dc.ID)
		}
		if seen[dc.ID] {
			return fmt.Errorf("%w: duplicate dc %d", ErrInvalidConfig, dc.ID)
		}
		seen[dc.ID] = true

		if _, _, err := net.SplitHostPort(dc.Addr); err != nil {
			return fmt.Errorf("%w: bad address of dc %d: %w", ErrInvalidConfig, dc.ID, err)
		}
	}
	if !seen[c.PrimaryDC] {
		return fmt.Errorf("%w: primary dc %d is not in dc list", ErrInvalidConfig, c.PrimaryDC)
	}

	if _, err := transport.CodecByName(c.Transport.Codec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Transport.Proxy != "" {
		_, isProxy := links.ParseMTProxy(c.Transport.Proxy)
		_, isSocks := links.ParseSocks5(c.Transport.Proxy)
		if !isProxy && !isSocks {
			return fmt.Errorf("%w: proxy is not a valid proxy or socks link", ErrInvalidConfig)
		}
	}

	switch c.Storage.Type {
	case "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("%w: redis address is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Addrs - dc id to address
func (c *Config) Addrs() map[int]string {
	res := make(map[int]string, len(c.DCs))
	for _, dc := range c.DCs {
		res[dc.ID] = dc.Addr
	}
	return res
}

func (c *Config) RetryPolicy() rpc.RetryPolicy {
	return rpc.RetryPolicy{
		StaleIDAttempts:  c.Retry.StaleIDAttempts,
		FloodWaitRetries: c.Retry.FloodWaitRetries,
		MaxFloodWait:     c.Retry.MaxFloodWait.D(),
		MigrateRetries:   c.Retry.MigrateRetries,
		TransportRetries: c.Retry.TransportRetries,
	}
}

// TransportOptions - framing and dialer, addr is not empty when all dcs
// should be reached through mtproxy at this address
func (c *Config) TransportOptions() (opts transport.Options, addr string, err error) {
	if opts.Codec, err = transport.CodecByName(c.Transport.Codec); err != nil {
		return opts, "", err
	}
	opts.Obfuscated = c.Transport.Obfuscated

	if c.Transport.Proxy == "" {
		return opts, "", nil
	}

	if p, ok := links.ParseMTProxy(c.Transport.Proxy); ok {
		if opts.Secret, err = transport.ParseSecret(p.Secret); err != nil {
			return opts, "", fmt.Errorf("bad proxy secret: %w", err)
		}
		opts.Obfuscated = true
		return opts, net.JoinHostPort(p.Server, strconv.Itoa(p.Port)), nil
	}

	if s, ok := links.ParseSocks5(c.Transport.Proxy); ok {
		if opts.Dialer, err = transport.SOCKS5(s.Server, s.Port, s.User, s.Pass); err != nil {
			return opts, "", fmt.Errorf("failed to create socks dialer: %w", err)
		}
		return opts, "", nil
	}
	return opts, "", fmt.Errorf("%w: unsupported proxy link", ErrInvalidConfig)
}

// Logger - zap logger of configured level
func (c *Config) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
