package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tgutils-go/transport"
)

const sample = `
api_id: 12345
api_hash: 0123456789abcdef
primary_dc: 4
transport:
  codec: abridged
  proxy: tg://socks?server=127.0.0.1&port=1080&user=u&pass=p
connection:
  ping_interval: 45s
  request_timeout: 1m30s
retry:
  stale_id_attempts: 5
  max_flood_wait: 2m
updates:
  subscriber_buffer: 10
storage:
  type: redis
  redis:
    addr: 10.0.0.1:6379
    prefix: acc1
log:
  level: debug
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, int32(12345), cfg.APIID)
	require.Equal(t, 4, cfg.PrimaryDC)
	require.Len(t, cfg.DCs, 5, "dc list should keep default")
	require.Equal(t, 45*time.Second, cfg.Connection.PingInterval.D())
	require.Equal(t, 90*time.Second, cfg.Connection.RequestTimeout.D())
	require.Equal(t, time.Second, cfg.Connection.AckInterval.D())
	require.Equal(t, "acc1", cfg.Storage.Redis.Prefix)
	require.Equal(t, 5*time.Second, cfg.Storage.Redis.Timeout.D())

	p := cfg.RetryPolicy()
	require.Equal(t, 5, p.StaleIDAttempts)
	require.Equal(t, 1, p.FloodWaitRetries)
	require.Equal(t, 2*time.Minute, p.MaxFloodWait)

	opts, addr, err := cfg.TransportOptions()
	require.NoError(t, err)
	require.Empty(t, addr)
	require.Equal(t, transport.Abridged{}, opts.Codec)
	require.NotNil(t, opts.Dialer)

	require.Equal(t, "149.154.167.91:443", cfg.Addrs()[4])

	log, err := cfg.Logger()
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestTransportOptions_MTProxy(t *testing.T) {
	cfg := Default()
	cfg.APIID, cfg.APIHash = 1, "x"
	cfg.Transport.Proxy = "https://t.me/proxy?server=proxy.example.com&port=443&secret=dd00112233445566778899aabbccddeeff"
	require.NoError(t, cfg.Validate())

	opts, addr, err := cfg.TransportOptions()
	require.NoError(t, err)
	require.Equal(t, "proxy.example.com:443", addr)
	require.True(t, opts.Obfuscated)
	require.Len(t, opts.Secret, 16)
	require.Equal(t, transport.Intermediate{}, opts.Codec)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no api id", func(c *Config) { c.APIID = 0 }},
		{"no dcs", func(c *Config) { c.DCs = nil }},
		{"duplicate dc", func(c *Config) { c.DCs = append(c.DCs, DC{ID: 1, Addr: "1.1.1.1:443"}) }},
		{"bad dc addr", func(c *Config) { c.DCs[0].Addr = "1.1.1.1" }},
		{"unknown primary", func(c *Config) { c.PrimaryDC = 9 }},
		{"unknown codec", func(c *Config) { c.Transport.Codec = "http" }},
		{"bad proxy", func(c *Config) { c.Transport.Proxy = "tg://proxy?server=a&port=x&secret=00" }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "sql" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.APIID, cfg.APIHash = 1, "hash"
			require.NoError(t, cfg.Validate())

			test.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("should be invalid config, got %v", err)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("api_id: 1\napi_hash: x\nconnection:\n  ping_interval: soon\n"))
	require.Error(t, err)

	_, err = Parse([]byte("api_id: 1\napi_hash: x\nunknown_field: 1\n"))
	require.Error(t, err)

	_, err = Parse([]byte("api_hash: x\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
