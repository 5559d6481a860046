package telegram

import (
	"context"
	"fmt"

	"github.com/xssnick/tgutils-go/tg"
	"github.com/xssnick/tgutils-go/tl"
	"github.com/xssnick/tgutils-go/updates"
)

// randomID - server checks age of random id, so it is taken from message ids of primary connection
func (c *Client) randomID(ctx context.Context) (int64, error) {
	cur, err := c.conn(ctx, c.Primary())
	if err != nil {
		return 0, fmt.Errorf("failed to generate random id: %w", err)
	}
	return cur.conn.NewMsgID(), nil
}

// SendPaidReaction - sends paid reaction, fresh random id is taken for every attempt,
// so RANDOM_ID_EXPIRED is retried by policy. New reactions state of message is returned.
func (c *Client) SendPaidReaction(ctx context.Context, peer tg.InputPeer, msgID, count int32, private bool) (*updates.MessageReactions, error) {
	var res tg.UpdatesClass
	err := c.CallFunc(ctx, func() (tl.Serializable, error) {
		id, err := c.randomID(ctx)
		if err != nil {
			return nil, err
		}
		return tg.MessagesSendPaidReaction{
			Peer:     peer,
			MsgID:    msgID,
			Count:    count,
			RandomID: id,
			Private:  private,
		}, nil
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("failed to send paid reaction: %w", err)
	}

	var list []tg.Update
	var peers *tg.PeersIndex
	switch u := res.(type) {
	case tg.Updates:
		list, peers = u.Updates, tg.PeersOf(u)
	case tg.UpdatesCombined:
		list, peers = u.Updates, tg.PeersOf(u)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, tl.NameOf(res))
	}

	for _, up := range list {
		r, ok := up.(tg.UpdateMessageReactions)
		if !ok || r.MsgID != msgID {
			continue
		}
		ev := updates.EventOf(r, peers).(updates.MessageReactions)
		return &ev, nil
	}
	return nil, fmt.Errorf("%w: no reactions update in result", ErrUnexpectedResult)
}

// UnpinAllMessages - unpins messages of chat page by page, every page moves pts,
// so it is reported to update pipeline as gapless dummy update
func (c *Client) UnpinAllMessages(ctx context.Context, peer tg.InputPeer, topMsgID int32) error {
	channelID, _ := tg.ChannelOf(peer)

	req := tg.MessagesUnpinAllMessages{Peer: peer, TopMsgID: topMsgID}

	for {
		var res tg.MessagesAffectedHistory
		if err := c.Call(ctx, req, &res); err != nil {
			return fmt.Errorf("failed to unpin messages: %w", err)
		}

		c.updates.DummyUpdate(res.Pts, res.PtsCount, channelID)
		if res.Offset <= 0 {
			return nil
		}
	}
}

// NearestDC - dc which server recommends for this client
func (c *Client) NearestDC(ctx context.Context) (int, error) {
	var res tg.NearestDC
	if err := c.Call(ctx, tg.HelpGetNearestDC{}, &res); err != nil {
		return 0, fmt.Errorf("failed to get nearest dc: %w", err)
	}
	return int(res.NearestDC), nil
}
