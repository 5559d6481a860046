package telegram

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/xssnick/tgutils-go/config"
	"github.com/xssnick/tgutils-go/mtproto"
	"github.com/xssnick/tgutils-go/rpc"
	"github.com/xssnick/tgutils-go/storage"
	"github.com/xssnick/tgutils-go/transport"
	"github.com/xssnick/tgutils-go/updates"
	"go.uber.org/zap"
)

// Device - client parameters sent in initConnection
type Device struct {
	Model          string
	SystemVersion  string
	AppVersion     string
	SystemLangCode string
	LangPack       string
	LangCode       string
}

type Options struct {
	APIID   int32
	APIHash string
	Device  Device

	// DCs - dc id to address
	DCs       map[int]string
	PrimaryDC int
	// ProxyAddr - when set, connections to all dcs go to this mtproxy
	ProxyAddr  string
	PublicKeys []*rsa.PublicKey

	// Conn - template of connection options, dc, address, key and handler are set per dc
	Conn      mtproto.Options
	Transport transport.Options
	Dial      mtproto.DialFunc
	// DialTimeout - limit of one connection attempt, including key exchange
	DialTimeout time.Duration

	Storage storage.Storage
	Logger  *zap.Logger

	Policy rpc.RetryPolicy
	// CallTimeout - default deadline of call including retries
	CallTimeout time.Duration
	// Reconnect - backoff of connection attempts, when it stops client is dead
	Reconnect func() retry.Backoff
	// OnFatal - called once when client cannot recover
	OnFatal func(err error)

	Updates updates.Options
}

func (o *Options) setDefaults() {
	if o.Storage == nil {
		o.Storage = storage.NewMemory()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Dial == nil {
		o.Dial = transport.Dial
	}
	if o.Policy == (rpc.RetryPolicy{}) {
		o.Policy = rpc.DefaultRetryPolicy()
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = 2 * time.Minute
	}
	if o.Reconnect == nil {
		o.Reconnect = DefaultReconnect
	}
	if o.Device.Model == "" {
		o.Device.Model = "tgutils-go"
	}
	if o.Device.LangCode == "" {
		o.Device.LangCode = "en"
	}
}

func (o *Options) validate() error {
	if o.APIID <= 0 {
		return errors.New("api id is required")
	}
	if len(o.DCs) == 0 {
		return errors.New("no dcs")
	}
	if _, ok := o.DCs[o.PrimaryDC]; !ok {
		return errors.New("primary dc is not in dc list")
	}
	if len(o.PublicKeys) == 0 {
		return errors.New("no server public keys")
	}
	return nil
}

// DefaultReconnect - exponential from 500ms with jitter, capped by 30s, 10 attempts
func DefaultReconnect() retry.Backoff {
	return reconnectBackoff(500*time.Millisecond, 30*time.Second, 10)
}

func reconnectBackoff(base, limit time.Duration, attempts uint64) retry.Backoff {
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(limit, b)
	return retry.WithMaxRetries(attempts, b)
}

// OptionsFromConfig - builds options from loaded config, storage is created by type from config
func OptionsFromConfig(cfg *config.Config, keys []*rsa.PublicKey, logger *zap.Logger) (Options, error) {
	tr, proxyAddr, err := cfg.TransportOptions()
	if err != nil {
		return Options{}, err
	}

	var st storage.Storage = storage.NewMemory()
	if cfg.Storage.Type == "redis" {
		r := cfg.Storage.Redis
		st = storage.NewRedis(storage.NewRedisPool(storage.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			MaxIdle:   4,
			MaxActive: 16,
			Timeout:   r.Timeout.D(),
		}), r.Prefix)
	}

	return Options{
		APIID:   cfg.APIID,
		APIHash: cfg.APIHash,
		Device: Device{
			Model:          cfg.Device.Model,
			SystemVersion:  cfg.Device.SystemVersion,
			AppVersion:     cfg.Device.AppVersion,
			SystemLangCode: cfg.Device.SystemLangCode,
			LangPack:       cfg.Device.LangPack,
			LangCode:       cfg.Device.LangCode,
		},
		DCs:        cfg.Addrs(),
		PrimaryDC:  cfg.PrimaryDC,
		ProxyAddr:  proxyAddr,
		PublicKeys: keys,
		Conn: mtproto.Options{
			PingInterval:    cfg.Connection.PingInterval.D(),
			AckInterval:     cfg.Connection.AckInterval.D(),
			SaltRefresh:     cfg.Connection.SaltRefresh.D(),
			RequestTimeout:  cfg.Connection.RequestTimeout.D(),
			ExchangeTimeout: cfg.Connection.ExchangeTimeout.D(),
		},
		Transport:   tr,
		DialTimeout: cfg.Transport.DialTimeout.D(),
		Storage:     st,
		Logger:      logger,
		Policy:      cfg.RetryPolicy(),
		Reconnect: func() retry.Backoff {
			return reconnectBackoff(cfg.Retry.ReconnectBase.D(), cfg.Retry.ReconnectMax.D(), cfg.Retry.ReconnectAttempts)
		},
		Updates: updates.Options{
			SubscriberBuffer: cfg.Updates.SubscriberBuffer,
			ChannelDiffLimit: cfg.Updates.ChannelDiffLimit,
		},
	}, nil
}
