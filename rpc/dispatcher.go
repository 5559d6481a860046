package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xssnick/tgutils-go/tl"
	"go.uber.org/zap"
)

var ErrRetriesExhausted = errors.New("retries exhausted")
var ErrTimeout = errors.New("rpc call timeout")

// Invoker - sends request and waits for result, mtproto.Conn implements it
type Invoker interface {
	Invoke(ctx context.Context, req tl.Serializable, res tl.Serializable) error
}

// Migrator - switches primary dc, following calls of invoker go to the new dc
type Migrator interface {
	Migrate(ctx context.Context, dc int) error
}

// BuildFunc - creates request for each attempt, so random ids are fresh
type BuildFunc func() (tl.Serializable, error)

type Options struct {
	Policy   RetryPolicy
	Migrator Migrator
	Logger   *zap.Logger
	// Timeout - default deadline of a call, including retries
	Timeout time.Duration
	// Sleep - waits for flood wait, ctx aware time.Sleep by default
	Sleep func(ctx context.Context, d time.Duration) error
}

type Dispatcher struct {
	inv  Invoker
	opts Options
	log  *zap.Logger
}

type callOptions struct {
	timeout time.Duration
	policy  *RetryPolicy
}

type CallOption func(o *callOptions)

// WithTimeout - deadline of the whole call, pending request is cancelled when it is reached
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

func WithPolicy(p RetryPolicy) CallOption {
	return func(o *callOptions) {
		o.policy = &p
	}
}

func NewDispatcher(inv Invoker, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Policy == (RetryPolicy{}) {
		opts.Policy = DefaultRetryPolicy()
	}

	return &Dispatcher{
		inv:  inv,
		opts: opts,
		log:  opts.Logger.Named("rpc"),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Call - invokes request with retry policy, result is parsed into res
func (d *Dispatcher) Call(ctx context.Context, req tl.Serializable, res tl.Serializable, opts ...CallOption) error {
	return d.CallFunc(ctx, func() (tl.Serializable, error) {
		return req, nil
	}, res, opts...)
}

// CallFunc - same as Call, but request is built again before every attempt
func (d *Dispatcher) CallFunc(ctx context.Context, build BuildFunc, res tl.Serializable, opts ...CallOption) error {
	co := callOptions{timeout: d.opts.Timeout}
	for _, o := range opts {
		o(&co)
	}

	policy := d.opts.Policy
	if co.policy != nil {
		policy = *co.policy
	}

	parent := ctx
	if co.timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, co.timeout)
		defer cancel()
	}

	var attempts Attempts
	for {
		req, err := build()
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		err = d.inv.Invoke(ctx, req, res)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrTimeout, tl.NameOf(req))
			}
			return err
		}

		attempts.inc(Classify(err))
		dec := policy.Decide(err, attempts)

		switch dec.Action {
		case ActionRetry:
			d.log.Debug("retrying call", zap.String("method", tl.NameOf(req)), zap.Error(err))
			continue
		case ActionWait:
			d.log.Info("flood wait", zap.String("method", tl.NameOf(req)), zap.Duration("wait", dec.Wait))
			if err = d.opts.Sleep(ctx, dec.Wait); err != nil {
				if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("%w: %s", ErrTimeout, tl.NameOf(req))
				}
				return err
			}
			continue
		case ActionMigrate:
			if d.opts.Migrator == nil {
				return err
			}
			d.log.Info("migrating", zap.String("method", tl.NameOf(req)), zap.Int("dc", dec.DC))
			if mErr := d.opts.Migrator.Migrate(ctx, dec.DC); mErr != nil {
				return fmt.Errorf("failed to migrate to dc %d: %w", dec.DC, mErr)
			}
			continue
		case ActionExhausted:
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
		return err
	}
}
