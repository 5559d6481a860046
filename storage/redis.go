package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/updates"
)

// Pool - source of redis connections, *redis.Pool implements it
type Pool interface {
	Get() redis.Conn
}

// Redis - keeps everything under prefix, sessions and state are hashes
type Redis struct {
	pool   Pool
	prefix string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	MaxIdle   int
	MaxActive int
	Timeout   time.Duration
}

func NewRedisPool(cfg RedisConfig) *redis.Pool {
	return &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Addr,
				redis.DialPassword(cfg.Password),
				redis.DialDatabase(cfg.DB),
				redis.DialConnectTimeout(cfg.Timeout),
				redis.DialReadTimeout(cfg.Timeout),
				redis.DialWriteTimeout(cfg.Timeout),
			)
		},
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		Wait:        true,
		IdleTimeout: 5 * time.Minute,
	}
}

func NewRedis(pool Pool, prefix string) *Redis {
	return &Redis{
		pool:   pool,
		prefix: prefix,
	}
}

func (r *Redis) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (r *Redis) do(ctx context.Context, cmd string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := r.pool.Get()
	defer conn.Close()

	return conn.Do(cmd, args...)
}

func (r *Redis) GetSession(ctx context.Context, dc int) (Session, bool, error) {
	vals, err := redis.StringMap(r.do(ctx, "HGETALL", r.key("session", strconv.Itoa(dc))))
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to get session of dc %d: %w", dc, err)
	}
	if len(vals) == 0 {
		return Session{}, false, nil
	}

	key, err := crypto.NewAuthKey([]byte(vals["key"]))
	if err != nil {
		return Session{}, false, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	salt, err := strconv.ParseInt(vals["salt"], 10, 64)
	if err != nil {
		return Session{}, false, fmt.Errorf("%w: bad salt: %w", ErrInvalidSession, err)
	}

	return Session{DC: dc, Key: key, Salt: salt}, true, nil
}

func (r *Redis) SetSession(ctx context.Context, s Session) error {
	_, err := r.do(ctx, "HMSET", r.key("session", strconv.Itoa(s.DC)),
		"key", s.Key.Value[:], "salt", s.Salt)
	if err != nil {
		return fmt.Errorf("failed to store session of dc %d: %w", s.DC, err)
	}
	return nil
}

func (r *Redis) DeleteSession(ctx context.Context, dc int) error {
	if _, err := r.do(ctx, "DEL", r.key("session", strconv.Itoa(dc))); err != nil {
		return fmt.Errorf("failed to delete session of dc %d: %w", dc, err)
	}
	return nil
}

func (r *Redis) GetPrimaryDC(ctx context.Context) (int, bool, error) {
	dc, err := redis.Int(r.do(ctx, "GET", r.key("primary_dc")))
	if err != nil {
		if err == redis.ErrNil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get primary dc: %w", err)
	}
	return dc, true, nil
}

func (r *Redis) SetPrimaryDC(ctx context.Context, dc int) error {
	if _, err := r.do(ctx, "SET", r.key("primary_dc"), dc); err != nil {
		return fmt.Errorf("failed to store primary dc: %w", err)
	}
	return nil
}

func (r *Redis) GetState(ctx context.Context) (updates.State, bool, error) {
	vals, err := redis.StringMap(r.do(ctx, "HGETALL", r.key("state")))
	if err != nil {
		return updates.State{}, false, fmt.Errorf("failed to get update state: %w", err)
	}
	if len(vals) == 0 {
		return updates.State{}, false, nil
	}

	var st updates.State
	for _, f := range []struct {
		name string
		dst  *int32
	}{
		{"pts", &st.Pts}, {"qts", &st.Qts}, {"date", &st.Date}, {"seq", &st.Seq},
	} {
		v, err := strconv.ParseInt(vals[f.name], 10, 32)
		if err != nil {
			return updates.State{}, false, fmt.Errorf("bad %s in stored update state: %w", f.name, err)
		}
		*f.dst = int32(v)
	}
	return st, true, nil
}

func (r *Redis) SetState(ctx context.Context, st updates.State) error {
	_, err := r.do(ctx, "HMSET", r.key("state"),
		"pts", st.Pts, "qts", st.Qts, "date", st.Date, "seq", st.Seq)
	if err != nil {
		return fmt.Errorf("failed to store update state: %w", err)
	}
	return nil
}

func (r *Redis) GetChannelPts(ctx context.Context, channelID int64) (int32, bool, error) {
	pts, err := redis.Int64(r.do(ctx, "HGET", r.key("channel_pts"), channelID))
	if err != nil {
		if err == redis.ErrNil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get pts of channel %d: %w", channelID, err)
	}
	return int32(pts), true, nil
}

func (r *Redis) SetChannelPts(ctx context.Context, channelID int64, pts int32) error {
	if _, err := r.do(ctx, "HSET", r.key("channel_pts"), channelID, pts); err != nil {
		return fmt.Errorf("failed to store pts of channel %d: %w", channelID, err)
	}
	return nil
}
