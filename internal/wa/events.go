package wa

import (
	"context"

	"github.com/matheus3301/wppdesk/internal/chat"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// handle is the whatsmeow event handler. whatsmeow calls it sequentially,
// so per-session arrival order is preserved for the registered callbacks.
func (c *Client) handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		c.handleMessage(evt)
	case *events.Receipt:
		c.handleReceipt(evt)
	case *events.Presence:
		c.mu.RLock()
		h := c.onPresence
		c.mu.RUnlock()
		if h != nil {
			h(chat.PresenceEvent{
				From:      c.resolveLID(context.Background(), evt.From).ToNonAD().String(),
				Available: !evt.Unavailable,
				LastSeen:  evt.LastSeen,
			})
		}
	case *events.Connected:
		c.logger.Info("WhatsApp connected")
		c.signalReady(nil)
		c.emitState(chat.StateConnected)
	case *events.Disconnected:
		c.logger.Warn("WhatsApp disconnected")
		c.emitState(chat.StateDisconnected)
	case *events.StreamReplaced:
		c.logger.Warn("WhatsApp stream replaced by another client")
		c.emitState(chat.StateDisconnected)
	case *events.LoggedOut:
		c.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		c.signalReady(chat.ErrLoggedOut)
		c.emitState(chat.StateLoggedOut)
	}
}

func (c *Client) signalReady(err error) {
	select {
	case c.ready <- err:
	default:
	}
}

func (c *Client) emitState(s chat.State) {
	c.mu.RLock()
	h := c.onState
	c.mu.RUnlock()
	if h != nil {
		h(s)
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	c.recent.put(evt)

	c.mu.RLock()
	h := c.onMessage
	c.mu.RUnlock()
	if h == nil {
		return
	}
	from := c.resolveLID(context.Background(), evt.Info.Chat)
	h(ParseMessage(evt, from))
}

// receiptStatus maps receipt types to delivery statuses. Other receipt types
// (retries, sender receipts, ...) are not delivery changes.
var receiptStatus = map[types.ReceiptType]string{
	types.ReceiptTypeDelivered: "delivered",
	types.ReceiptTypeRead:      "read",
	types.ReceiptTypePlayed:    "played",
}

func (c *Client) handleReceipt(evt *events.Receipt) {
	status, ok := receiptStatus[evt.Type]
	if !ok {
		return
	}
	c.mu.RLock()
	h := c.onAck
	c.mu.RUnlock()
	if h == nil {
		return
	}
	ids := make([]string, len(evt.MessageIDs))
	for i, id := range evt.MessageIDs {
		ids[i] = string(id)
	}
	h(chat.AckEvent{
		MessageIDs: ids,
		From:       c.resolveLID(context.Background(), evt.Chat).ToNonAD().String(),
		Status:     status,
		Timestamp:  evt.Timestamp,
	})
}
