package outbox

import (
	"context"
	"path/filepath"
	"time"

	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MessageSender is the send path used by the campaign sender.
type MessageSender interface {
	Send(ctx context.Context, sessionID, recipient, content string, opts Options) (Result, error)
}

// SenderConfig tunes the drain loop.
type SenderConfig struct {
	PollInterval time.Duration
	RatePerSec   float64
	Burst        int
	BatchSize    int
}

// Delivery is the payload of outbox.sent and outbox.failed events.
type Delivery struct {
	OutboxID  int64
	Campaign  string
	Recipient string
	MessageID string
	Error     string
}

// Sender drains queued campaign sends through the dispatcher.
type Sender struct {
	db      *store.DB
	sender  MessageSender
	bus     *bus.Bus
	logger  *zap.Logger
	cfg     SenderConfig
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSender creates a new campaign sender.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, cfg SenderConfig, logger *zap.Logger) *Sender {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sender{
		db:      db,
		sender:  sender,
		bus:     b,
		logger:  logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// Start begins polling the outbox for queued sends.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the current batch to end.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.deliver(ctx, entry)
	}
}

// deliver sends one entry. A failure marks the entry failed and the batch
// continues.
func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) {
	logger := s.logger.With(zap.Int64("outbox_id", entry.ID), zap.String("session", entry.SessionID))

	if err := s.db.MarkOutboxSending(ctx, entry.ID); err != nil {
		logger.Error("failed to mark sending", zap.Error(err))
		return
	}

	opts := Options{Kind: entry.Kind}
	if entry.MediaPath != "" {
		opts.Media = chat.Media{Path: entry.MediaPath, Filename: filepath.Base(entry.MediaPath)}
	}
	res, err := s.sender.Send(ctx, entry.SessionID, entry.Recipient, entry.Body, opts)
	if err != nil {
		logger.Warn("campaign send failed", zap.Error(err))
		if err := s.db.MarkOutboxFailed(ctx, entry.ID, err.Error()); err != nil {
			logger.Error("failed to mark failed", zap.Error(err))
		}
		s.bus.Publish(bus.NewEvent(bus.OutboxFailed, entry.SessionID, Delivery{
			OutboxID:  entry.ID,
			Campaign:  entry.Campaign,
			Recipient: entry.Recipient,
			Error:     err.Error(),
		}))
		return
	}

	if err := s.db.MarkOutboxSent(ctx, entry.ID, res.MessageID); err != nil {
		logger.Error("failed to mark sent", zap.Error(err))
	}
	s.record(ctx, entry, res.MessageID)

	logger.Info("campaign message sent", zap.String("server_msg_id", res.MessageID))
	s.bus.Publish(bus.NewEvent(bus.OutboxSent, entry.SessionID, Delivery{
		OutboxID:  entry.ID,
		Campaign:  entry.Campaign,
		Recipient: entry.Recipient,
		MessageID: res.MessageID,
	}))
}

// record stores the sent message in the recipient's history so acks can
// update its delivery status.
func (s *Sender) record(ctx context.Context, entry store.OutboxEntry, messageID string) {
	identifier, err := chat.NormalizeAddress(entry.Recipient)
	if err != nil {
		s.logger.Warn("campaign recipient is not a contact address", zap.String("recipient", entry.Recipient), zap.Error(err))
		return
	}
	contact, _, err := s.db.FindOrCreateContact(ctx, identifier, "")
	if err != nil {
		s.logger.Error("failed to resolve campaign recipient", zap.Error(err))
		return
	}
	msgType := entry.Kind
	if msgType == KindText || msgType == "" {
		msgType = "text"
	}
	m := &store.Message{
		SessionID:  entry.SessionID,
		ContactID:  contact.ID,
		ExternalID: messageID,
		Content:    entry.Body,
		Type:       msgType,
		FromMe:     true,
		Status:     "sent",
	}
	if err := s.db.InsertMessage(ctx, m, entry.Body); err != nil {
		s.logger.Error("failed to record campaign message", zap.Error(err))
	}
}
