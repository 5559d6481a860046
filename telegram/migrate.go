package telegram

import (
	"context"
	"fmt"

	"github.com/xssnick/tgutils-go/tg"
	"github.com/xssnick/tgutils-go/tgerr"
	"go.uber.org/zap"
)

// Migrate - makes dc primary, authorization is moved from the old dc when user is logged in,
// implements rpc.Migrator
func (c *Client) Migrate(ctx context.Context, dc int) error {
	if _, ok := c.opts.DCs[dc]; !ok {
		return fmt.Errorf("unknown dc %d", dc)
	}

	c.migrateMx.Lock()
	defer c.migrateMx.Unlock()

	old := c.Primary()
	if old == dc {
		return nil
	}

	c.mx.RLock()
	oldConn := c.conns[old]
	c.mx.RUnlock()
	if oldConn != nil {
		oldConn.conn.MarkMigrating()
	}

	if _, err := c.conn(ctx, dc); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if oldConn != nil {
		if err := c.transferAuth(ctx, old, dc); err != nil {
			return err
		}
	}

	c.mx.Lock()
	c.primary = dc
	c.mx.Unlock()

	if err := c.opts.Storage.SetPrimaryDC(ctx, dc); err != nil {
		c.log.Warn("failed to store primary dc", zap.Int("dc", dc), zap.Error(err))
	}

	select {
	case c.switched <- struct{}{}:
	default:
	}

	if oldConn != nil {
		if err := c.saveSession(ctx, old, oldConn.conn); err != nil {
			c.log.Warn("failed to store session", zap.Int("dc", old), zap.Error(err))
		}
		c.drop(old, oldConn)
	}

	c.log.Info("primary dc switched", zap.Int("from", old), zap.Int("to", dc))
	return nil
}

// transferAuth - exports authorization on one dc and imports it on another,
// nothing to transfer when old key is not authorized
func (c *Client) transferAuth(ctx context.Context, from, to int) error {
	var exported tg.AuthExportedAuthorization
	err := c.invokeDC(ctx, from, tg.AuthExportAuthorization{DCID: int32(to)}, &exported)
	if err != nil {
		if e, ok := tgerr.As(err); ok && e.Code == tgerr.CodeUnauthorized {
			c.log.Debug("not authorized, skipping authorization transfer", zap.Int("dc", from))
			return nil
		}
		return fmt.Errorf("failed to export authorization: %w", err)
	}

	var auth tg.AuthAuthorization
	err = c.invokeDC(ctx, to, tg.AuthImportAuthorization{ID: exported.ID, Bytes: exported.Bytes}, &auth)
	if err != nil {
		return fmt.Errorf("failed to import authorization: %w", err)
	}
	return nil
}
