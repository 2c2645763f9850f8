// Package poll sends multiple-choice prompts and parses the replies.
package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/outbox"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

// Answer is the payload of poll.answered.
type Answer struct {
	PollID    int64
	ContactID int64
	Selected  []int
	Options   []string
}

// Engine owns poll creation and reply matching.
type Engine struct {
	db     *store.DB
	sender outbox.MessageSender
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(db *store.DB, sender outbox.MessageSender, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{db: db, sender: sender, bus: b, logger: logger, now: time.Now}
}

// CheckActivePoll tries to read text as the contact's answer to its latest
// active poll. It reports true only when an answer was recorded; callers
// then skip queue admission.
func (e *Engine) CheckActivePoll(ctx context.Context, sessionID string, contact *store.Contact, text string) (bool, error) {
	p, err := e.db.LatestActivePoll(ctx, contact.ID)
	if err != nil {
		return false, fmt.Errorf("load active poll: %w", err)
	}
	if p == nil {
		return false, nil
	}
	if p.ExpiresAt > 0 && e.now().UnixMilli() >= p.ExpiresAt {
		if err := e.db.SetPollStatus(ctx, p.ID, store.PollExpired); err != nil {
			return false, fmt.Errorf("expire poll %d: %w", p.ID, err)
		}
		e.logger.Debug("poll expired", zap.Int64("poll_id", p.ID))
		return false, nil
	}
	answered, err := e.db.HasPollResponse(ctx, p.ID, contact.ID)
	if err != nil {
		return false, fmt.Errorf("check poll response: %w", err)
	}
	if answered {
		return false, nil
	}

	selected := Parse(p, text)
	if len(selected) == 0 {
		return false, nil
	}

	inserted, err := e.db.InsertPollResponse(ctx, &store.PollResponse{
		PollID:    p.ID,
		ContactID: contact.ID,
		Selected:  selected,
		RawText:   text,
	})
	if err != nil {
		return false, fmt.Errorf("store poll response: %w", err)
	}
	if !inserted {
		return false, nil
	}

	labels := Labels(p, selected)
	confirmation := "Thanks! Your answer was recorded: " + strings.Join(labels, ", ")
	if _, err := e.sender.Send(ctx, sessionID, contact.Identifier, confirmation, outbox.Options{}); err != nil {
		e.logger.Warn("poll confirmation not sent", zap.Int64("poll_id", p.ID), zap.Error(err))
	}

	e.bus.Publish(bus.NewEvent(bus.PollAnswered, sessionID, Answer{
		PollID:    p.ID,
		ContactID: contact.ID,
		Selected:  selected,
		Options:   labels,
	}))
	return true, nil
}

// CreateRequest describes a new poll.
type CreateRequest struct {
	SessionID string
	ContactID int64
	CreatedBy string
	Question  string
	Options   []string
	Type      string
	TTL       time.Duration
}

// Create persists a poll and sends its prompt with numbered options.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*store.Poll, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("poll question is empty")
	}
	if len(req.Options) < 2 {
		return nil, errors.New("poll needs at least two options")
	}
	switch req.Type {
	case "", store.PollSingle, store.PollMultiple:
	default:
		return nil, fmt.Errorf("unknown poll type %q", req.Type)
	}

	contact, err := e.db.GetContact(ctx, req.ContactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("contact %d not found", req.ContactID)
	}

	p := &store.Poll{
		ContactID: req.ContactID,
		SessionID: req.SessionID,
		CreatedBy: req.CreatedBy,
		Question:  req.Question,
		Options:   req.Options,
		Type:      req.Type,
	}
	if req.TTL > 0 {
		p.ExpiresAt = e.now().Add(req.TTL).UnixMilli()
	}
	if err := e.db.CreatePoll(ctx, p); err != nil {
		return nil, err
	}

	if _, err := e.sender.Send(ctx, req.SessionID, contact.Identifier, Prompt(p), outbox.Options{}); err != nil {
		_ = e.db.SetPollStatus(ctx, p.ID, store.PollClosed)
		return nil, err
	}
	e.logger.Info("poll sent", zap.Int64("poll_id", p.ID), zap.Int64("contact_id", p.ContactID))
	return p, nil
}

// Close stops a poll from accepting answers.
func (e *Engine) Close(ctx context.Context, id int64) error {
	return e.db.SetPollStatus(ctx, id, store.PollClosed)
}

// Prompt renders the message sent for a poll.
func Prompt(p *store.Poll) string {
	var b strings.Builder
	b.WriteString(p.Question)
	b.WriteString("\n")
	for i, opt := range p.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	if p.Type == store.PollMultiple {
		b.WriteString("\n\nReply with one or more option numbers.")
	} else {
		b.WriteString("\n\nReply with the option number.")
	}
	return b.String()
}
