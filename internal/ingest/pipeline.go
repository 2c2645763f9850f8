// Package ingest turns inbound client events into stored messages and routes
// them to polls, the queue and auto-replies.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wppdesk/internal/avatar"
	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/media"
	"github.com/matheus3301/wppdesk/internal/sector"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

// PollChecker matches replies against the contact's active poll.
type PollChecker interface {
	CheckActivePoll(ctx context.Context, sessionID string, contact *store.Contact, text string) (bool, error)
}

// Admitter admits contacts to the attendance queue.
type Admitter interface {
	Admit(ctx context.Context, sessionID string, contactID int64, sector string) (int64, bool, error)
}

// Welcomer sends the greeting or after-hours notice to a newly admitted contact.
type Welcomer interface {
	Welcome(ctx context.Context, sessionID string, contact *store.Contact) (string, error)
}

// SessionLookup reports whether a session is live.
type SessionLookup interface {
	Has(id string) bool
}

// Config tunes the pipeline.
type Config struct {
	MaxEventAge time.Duration
	LaneBuffer  int
	LaneIdle    time.Duration
	PreviewLen  int
}

// Received is the payload of message.received.
type Received struct {
	Message store.Message
	Contact store.Contact
}

// Deps are the collaborators of the pipeline.
type Deps struct {
	DB       *store.DB
	Bus      *bus.Bus
	Sessions SessionLookup
	Media    *media.Resolver
	Avatars  *avatar.Refresher
	Router   *sector.Router
	Polls    PollChecker
	Queue    Admitter
	Replies  Welcomer
	Logger   *zap.Logger
}

type binding struct {
	media   []media.Strategy
	avatars []avatar.Strategy
}

// Pipeline processes inbound events. Events for one (session, contact) pair
// run in order on their own lane; different contacts run concurrently.
type Pipeline struct {
	cfg Config
	Deps
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	bindings   map[string]binding
	lanes      map[laneKey]*lane
	refreshing map[int64]bool
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxEventAge <= 0 {
		cfg.MaxEventAge = time.Hour
	}
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = 64
	}
	if cfg.LaneIdle <= 0 {
		cfg.LaneIdle = 2 * time.Minute
	}
	if cfg.PreviewLen <= 0 {
		cfg.PreviewLen = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:        cfg,
		Deps:       deps,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		bindings:   make(map[string]binding),
		lanes:      make(map[laneKey]*lane),
		refreshing: make(map[int64]bool),
	}
}

// Bind subscribes the pipeline to a live client. Binding the same session
// again replaces the previous strategies.
func (p *Pipeline) Bind(sessionID string, c chat.Client, caps chat.Descriptor) {
	p.mu.Lock()
	p.bindings[sessionID] = binding{
		media:   media.Strategies(caps),
		avatars: avatar.Strategies(caps),
	}
	p.mu.Unlock()

	c.OnMessage(func(evt chat.InboundEvent) { p.Enqueue(sessionID, evt) })
	c.OnAck(func(evt chat.AckEvent) { p.HandleAck(p.ctx, sessionID, evt) })
	c.OnPresence(func(evt chat.PresenceEvent) { p.HandlePresence(sessionID, evt) })
}

func (p *Pipeline) binding(sessionID string) binding {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindings[sessionID]
}

// Stop cancels in-flight work and waits for lanes and avatar refreshes.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
}

// HandleMessage runs one inbound event through the pipeline. It returns the
// stored message, or nil when the event was dropped.
func (p *Pipeline) HandleMessage(ctx context.Context, sessionID string, evt chat.InboundEvent) (*store.Message, error) {
	logger := p.Logger.With(zap.String("session", sessionID), zap.String("message_id", evt.ID))

	if p.Sessions != nil && !p.Sessions.Has(sessionID) {
		logger.Debug("dropping event for session that is no longer live")
		return nil, nil
	}
	now := p.now()
	if !evt.Timestamp.IsZero() && now.Sub(evt.Timestamp) > p.cfg.MaxEventAge {
		logger.Debug("dropping stale event", zap.Time("sent_at", evt.Timestamp))
		return nil, nil
	}
	if reason := invalidSender(evt); reason != "" {
		logger.Debug("dropping event", zap.String("reason", reason))
		return nil, nil
	}

	contact, err := p.resolveContact(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !evt.FromMe && p.Avatars != nil && p.Avatars.Due(contact, now) {
		p.refreshAvatar(sessionID, *contact)
	}

	msgType, content := Classify(evt)
	var mediaURL *string
	if media.IsMedia(msgType) && p.Media != nil {
		res := p.Media.Resolve(ctx, p.binding(sessionID).media, evt, msgType, content)
		mediaURL, content = res.URL, res.Content
	}

	m := &store.Message{
		SessionID:  sessionID,
		ContactID:  contact.ID,
		ExternalID: evt.ID,
		Content:    content,
		Type:       msgType,
		MediaURL:   mediaURL,
		FromMe:     evt.FromMe,
	}
	if evt.FromMe {
		m.Status = "sent"
	}
	if !evt.Timestamp.IsZero() {
		m.CreatedAt = evt.Timestamp.UnixMilli()
	}
	text := content
	if text == "" {
		text = "[" + msgType + "]"
	}
	if err := p.DB.InsertMessage(ctx, m, preview(text, p.cfg.PreviewLen)); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	if !evt.FromMe {
		p.route(ctx, logger, sessionID, contact, content)
	}

	if fresh, err := p.DB.GetContact(ctx, contact.ID); err == nil && fresh != nil {
		contact = fresh
	}
	p.Bus.Publish(bus.NewEvent(bus.MessageReceived, sessionID, Received{Message: *m, Contact: *contact}))
	return m, nil
}

// invalidSender returns why an event cannot be attributed to a single
// customer, or "" when it can.
func invalidSender(evt chat.InboundEvent) string {
	from := strings.TrimSpace(evt.From)
	switch {
	case from == "":
		return "missing sender"
	case evt.IsGroup || strings.HasSuffix(from, "@g.us"):
		return "group"
	case evt.IsBroadcast,
		from == "status@broadcast",
		strings.HasSuffix(from, "@broadcast"),
		strings.HasSuffix(from, "@newsletter"):
		return "broadcast"
	}
	return ""
}

// localPart is the user part of an address, used as a fallback display name.
func localPart(identifier string) string {
	if i := strings.IndexByte(identifier, '@'); i >= 0 {
		return identifier[:i]
	}
	return identifier
}

func (p *Pipeline) resolveContact(ctx context.Context, evt chat.InboundEvent) (*store.Contact, error) {
	identifier, err := chat.NormalizeAddress(evt.From)
	if err != nil {
		return nil, err
	}
	fallback := localPart(identifier)
	name := strings.TrimSpace(evt.PushName)
	if evt.FromMe || name == "" {
		name = fallback
	}

	c, created, err := p.DB.FindOrCreateContact(ctx, identifier, name)
	if err != nil {
		return nil, fmt.Errorf("find or create contact: %w", err)
	}
	if created || evt.FromMe || name == fallback || name == c.Name {
		return c, nil
	}
	// Upgrade a placeholder name to the one the sender supplied.
	if c.Name == "" || c.Name == fallback {
		if err := p.DB.UpdateContactName(ctx, c.ID, name); err != nil {
			return nil, fmt.Errorf("update contact name: %w", err)
		}
		c.Name = name
		p.Bus.Publish(bus.NewEvent(bus.ContactUpdated, "", *c))
	}
	return c, nil
}

// route sends a reply to the active poll, or admits the contact to the
// queue and welcomes it. Failures are logged; the message is already stored.
func (p *Pipeline) route(ctx context.Context, logger *zap.Logger, sessionID string, contact *store.Contact, text string) {
	if p.Polls != nil {
		matched, err := p.Polls.CheckActivePoll(ctx, sessionID, contact, text)
		if err != nil {
			logger.Warn("poll check failed", zap.Error(err))
		}
		if matched {
			return
		}
	}
	if p.Queue == nil {
		return
	}

	sec := sector.Default
	if p.Router != nil {
		sec = p.Router.Route(text)
	}
	_, created, err := p.Queue.Admit(ctx, sessionID, contact.ID, sec)
	if err != nil {
		logger.Error("queue admission failed", zap.Error(err))
		return
	}
	if !created || p.Replies == nil {
		return
	}
	if _, err := p.Replies.Welcome(ctx, sessionID, contact); err != nil {
		logger.Warn("welcome message not sent", zap.Error(err))
	}
}

// refreshAvatar updates the contact's avatar in the background. At most one
// refresh runs per contact.
func (p *Pipeline) refreshAvatar(sessionID string, contact store.Contact) {
	p.mu.Lock()
	if p.refreshing[contact.ID] {
		p.mu.Unlock()
		return
	}
	p.refreshing[contact.ID] = true
	chain := p.bindings[sessionID].avatars
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.refreshing, contact.ID)
			p.mu.Unlock()
		}()

		u := p.Avatars.Fetch(p.ctx, chain, contact.Identifier)
		if u == "" {
			return
		}
		now := p.now()
		if err := p.DB.UpdateContactAvatar(p.ctx, contact.ID, u, now); err != nil {
			p.Logger.Warn("store avatar", zap.Int64("contact_id", contact.ID), zap.Error(err))
			return
		}
		contact.AvatarURL, contact.AvatarUpdatedAt = u, now.UnixMilli()
		p.Bus.Publish(bus.NewEvent(bus.ContactUpdated, sessionID, contact))
	}()
}

// Ack is the payload of message.ack.
type Ack struct {
	MessageIDs []string
	Status     string
	Updated    int64
}

// HandleAck records delivery status changes of outbound messages.
func (p *Pipeline) HandleAck(ctx context.Context, sessionID string, evt chat.AckEvent) {
	var updated int64
	for _, id := range evt.MessageIDs {
		n, err := p.DB.UpdateMessageStatus(ctx, sessionID, id, evt.Status)
		if err != nil {
			p.Logger.Warn("update message status", zap.String("session", sessionID), zap.String("message_id", id), zap.Error(err))
			continue
		}
		updated += n
	}
	if updated == 0 {
		return
	}
	p.Bus.Publish(bus.NewEvent(bus.MessageAck, sessionID, Ack{
		MessageIDs: evt.MessageIDs,
		Status:     evt.Status,
		Updated:    updated,
	}))
}

// HandlePresence republishes presence changes.
func (p *Pipeline) HandlePresence(sessionID string, evt chat.PresenceEvent) {
	p.Bus.Publish(bus.NewEvent(bus.ContactPresence, sessionID, evt))
}
