package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppdesk/internal/avatar"
	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/chat/chattest"
	"github.com/matheus3301/wppdesk/internal/config"
	"github.com/matheus3301/wppdesk/internal/media"
	"github.com/matheus3301/wppdesk/internal/queue"
	"github.com/matheus3301/wppdesk/internal/sector"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

type liveSessions map[string]bool

func (l liveSessions) Has(id string) bool { return l[id] }

type pollStub struct {
	match bool
	panic string
}

func (p *pollStub) CheckActivePoll(_ context.Context, _ string, _ *store.Contact, text string) (bool, error) {
	if p.panic != "" && text == p.panic {
		panic("poll parser exploded")
	}
	return p.match, nil
}

type welcomes struct {
	mu    sync.Mutex
	count int
}

func (w *welcomes) Welcome(context.Context, string, *store.Contact) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	return "greeting", nil
}

func (w *welcomes) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

type harness struct {
	p        *Pipeline
	db       *store.DB
	bus      *bus.Bus
	fake     *chattest.Fake
	polls    *pollStub
	welcomes *welcomes
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "desk.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	h := &harness{
		db:       db,
		bus:      b,
		fake:     chattest.New("5511000000000"),
		polls:    &pollStub{},
		welcomes: &welcomes{},
	}
	h.p = New(Config{LaneIdle: 50 * time.Millisecond}, Deps{
		DB:       db,
		Bus:      b,
		Sessions: liveSessions{"loja": true},
		Media:    media.NewResolver(media.Config{Dir: filepath.Join(dir, "media"), Timeout: time.Second}, logger),
		Avatars:  avatar.NewRefresher(avatar.Config{Attempts: 1, Backoff: time.Millisecond, Timeout: time.Second}, logger),
		Router:   sector.New("", config.DefaultSectors()),
		Polls:    h.polls,
		Queue:    queue.NewService(db, nil, b, logger),
		Replies:  h.welcomes,
		Logger:   logger,
	})
	h.p.Bind("loja", h.fake, chat.Describe(h.fake))
	t.Cleanup(h.p.Stop)
	return h
}

func textEvent(id, from, body string) chat.InboundEvent {
	return chat.InboundEvent{
		ID:        id,
		From:      from,
		PushName:  "Ana",
		Timestamp: time.Now(),
		Type:      "chat",
		Body:      body,
	}
}

const ana = "5511999990000@s.whatsapp.net"

func (h *harness) messageCount(t *testing.T) int64 {
	t.Helper()
	n, err := h.db.MessageCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestStaleEventDropped(t *testing.T) {
	h := newHarness(t)
	evt := textEvent("OLD1", ana, "oi")
	evt.Timestamp = time.Now().Add(-90 * time.Minute)

	m, err := h.p.HandleMessage(context.Background(), "loja", evt)
	if err != nil || m != nil {
		t.Fatalf("HandleMessage() = %v, %v; want dropped", m, err)
	}
	if n := h.messageCount(t); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
}

func TestInvalidSendersDropped(t *testing.T) {
	h := newHarness(t)
	group := textEvent("G", "123-456@g.us", "oi")
	flagged := textEvent("F", ana, "oi")
	flagged.IsBroadcast = true

	for _, evt := range []chat.InboundEvent{
		textEvent("E", "", "oi"),
		group,
		textEvent("S", "status@broadcast", "oi"),
		textEvent("B", "1234@broadcast", "oi"),
		textEvent("N", "1203@newsletter", "oi"),
		flagged,
	} {
		if m, err := h.p.HandleMessage(context.Background(), "loja", evt); m != nil || err != nil {
			t.Errorf("%s: HandleMessage() = %v, %v; want dropped", evt.ID, m, err)
		}
	}
	if n := h.messageCount(t); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
}

func TestUnknownSessionDropped(t *testing.T) {
	h := newHarness(t)
	if m, _ := h.p.HandleMessage(context.Background(), "gone", textEvent("X", ana, "oi")); m != nil {
		t.Error("event for a dead session was stored")
	}
}

func TestTextMessageAdmittedAndWelcomed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	received, unsub := h.bus.Subscribe("message.received", 4)
	defer unsub()

	m, err := h.p.HandleMessage(ctx, "loja", textEvent("M1", ana, "preciso de whey protein"))
	if err != nil || m == nil {
		t.Fatalf("HandleMessage() = %v, %v", m, err)
	}
	if m.Type != TypeText || m.Content != "preciso de whey protein" || m.MediaURL != nil {
		t.Errorf("message = %+v", m)
	}

	c, _ := h.db.GetContactByIdentifier(ctx, ana)
	if c.Name != "Ana" || c.UnreadCount != 1 || c.LastMessage != "preciso de whey protein" {
		t.Errorf("contact = %+v", c)
	}
	entry, _ := h.db.ActiveQueueEntry(ctx, c.ID)
	if entry == nil || entry.Sector != "Suplementos" || entry.Status != store.QueueWaiting {
		t.Fatalf("queue entry = %+v", entry)
	}

	// A second message neither re-admits nor re-welcomes.
	if _, err := h.p.HandleMessage(ctx, "loja", textEvent("M2", ana, "oi")); err != nil {
		t.Fatal(err)
	}
	if h.welcomes.Count() != 1 {
		t.Errorf("welcomes = %d, want 1", h.welcomes.Count())
	}
	waiting, _ := h.db.ListQueue(ctx, "", store.QueueWaiting)
	if len(waiting) != 1 {
		t.Errorf("waiting entries = %d", len(waiting))
	}

	select {
	case evt := <-received:
		r := evt.Payload.(Received)
		if r.Message.ExternalID != "M1" || r.Contact.ID != c.ID {
			t.Errorf("received = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("no message.received event")
	}
}

func TestPollMatchSkipsQueue(t *testing.T) {
	h := newHarness(t)
	h.polls.match = true
	ctx := context.Background()

	if _, err := h.p.HandleMessage(ctx, "loja", textEvent("M1", ana, "2")); err != nil {
		t.Fatal(err)
	}
	c, _ := h.db.GetContactByIdentifier(ctx, ana)
	if entry, _ := h.db.ActiveQueueEntry(ctx, c.ID); entry != nil {
		t.Errorf("poll answer admitted to queue: %+v", entry)
	}
	if h.welcomes.Count() != 0 {
		t.Error("poll answer welcomed")
	}
}

func TestMediaTotalFailurePlaceholder(t *testing.T) {
	h := newHarness(t)
	evt := chat.InboundEvent{ID: "IMG1", From: ana, Timestamp: time.Now(), Type: "image", Caption: "look"}

	m, err := h.p.HandleMessage(context.Background(), "loja", evt)
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeImage || m.MediaURL != nil || m.Content != "[image: download failed]" {
		t.Errorf("message = %+v", m)
	}
	msgs, _ := h.db.ListMessages(context.Background(), m.ContactID, 1)
	if len(msgs) != 1 || msgs[0].MediaURL != nil {
		t.Errorf("stored = %+v", msgs)
	}
}

func TestMediaStored(t *testing.T) {
	h := newHarness(t)
	h.fake.DownloadData = []byte("%PDF-1.4\n")
	evt := chat.InboundEvent{ID: "DOC12345678", From: ana, Timestamp: time.Now(), Type: "document", Filename: "nota.pdf", Mimetype: "application/pdf"}

	m, err := h.p.HandleMessage(context.Background(), "loja", evt)
	if err != nil {
		t.Fatal(err)
	}
	if m.MediaURL == nil || !strings.HasPrefix(*m.MediaURL, "/media/") || !strings.HasSuffix(*m.MediaURL, "_DOC12345.pdf") {
		t.Errorf("media URL = %v", m.MediaURL)
	}
	if m.Content != "nota.pdf" {
		t.Errorf("content = %q", m.Content)
	}
}

func TestContactNameUpgrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	updates, unsub := h.bus.Subscribe("contact.updated", 4)
	defer unsub()

	anon := textEvent("M1", ana, "oi")
	anon.PushName = ""
	if _, err := h.p.HandleMessage(ctx, "loja", anon); err != nil {
		t.Fatal(err)
	}
	c, _ := h.db.GetContactByIdentifier(ctx, ana)
	if c.Name != "5511999990000" {
		t.Errorf("fallback name = %q", c.Name)
	}

	if _, err := h.p.HandleMessage(ctx, "loja", textEvent("M2", ana, "oi")); err != nil {
		t.Fatal(err)
	}
	c, _ = h.db.GetContactByIdentifier(ctx, ana)
	if c.Name != "Ana" {
		t.Errorf("upgraded name = %q", c.Name)
	}
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Error("no contact.updated event")
	}
}

func TestAvatarRefreshedInBackground(t *testing.T) {
	h := newHarness(t)
	h.fake.AvatarURLs["profile"] = "https://pps.whatsapp.net/ana.jpg"

	if _, err := h.p.HandleMessage(context.Background(), "loja", textEvent("M1", ana, "oi")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, _ := h.db.GetContactByIdentifier(context.Background(), ana)
		if c.AvatarURL == "https://pps.whatsapp.net/ana.jpg" && c.AvatarUpdatedAt > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("avatar not refreshed")
}

func TestLaneRecoversPanicAndKeepsOrder(t *testing.T) {
	h := newHarness(t)
	h.polls.panic = "boom"

	h.fake.EmitMessage(textEvent("M1", ana, "first"))
	h.fake.EmitMessage(textEvent("M2", ana, "boom"))
	h.fake.EmitMessage(textEvent("M3", ana, "third"))
	h.fake.EmitMessage(textEvent("O1", "5521888880000@s.whatsapp.net", "other contact"))

	deadline := time.Now().Add(2 * time.Second)
	for h.messageCount(t) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := h.messageCount(t); n != 4 {
		t.Fatalf("messages = %d, want 4", n)
	}

	c, _ := h.db.GetContactByIdentifier(context.Background(), ana)
	msgs, _ := h.db.ListMessages(context.Background(), c.ID, 10)
	// Newest first.
	var order []string
	for _, m := range msgs {
		order = append(order, m.ExternalID)
	}
	if strings.Join(order, ",") != "M3,M2,M1" {
		t.Errorf("order = %v", order)
	}
}

func TestHandleAck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acks, unsub := h.bus.Subscribe("message.ack", 4)
	defer unsub()

	c, _, _ := h.db.FindOrCreateContact(ctx, ana, "Ana")
	out := &store.Message{SessionID: "loja", ContactID: c.ID, ExternalID: "OUT1", Content: "oi", Type: "text", FromMe: true, Status: "sent"}
	if err := h.db.InsertMessage(ctx, out, "oi"); err != nil {
		t.Fatal(err)
	}

	h.fake.EmitAck(chat.AckEvent{MessageIDs: []string{"OUT1", "UNKNOWN"}, From: ana, Status: "read"})

	msgs, _ := h.db.ListMessages(ctx, c.ID, 1)
	if msgs[0].Status != "read" {
		t.Errorf("status = %q, want read", msgs[0].Status)
	}
	select {
	case evt := <-acks:
		if a := evt.Payload.(Ack); a.Updated != 1 {
			t.Errorf("ack = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("no message.ack event")
	}
}

func TestHandlePresence(t *testing.T) {
	h := newHarness(t)
	ch, unsub := h.bus.Subscribe("contact.presence", 1)
	defer unsub()

	h.fake.EmitPresence(chat.PresenceEvent{From: ana, Available: true})
	select {
	case evt := <-ch:
		if p := evt.Payload.(chat.PresenceEvent); !p.Available || evt.SessionID != "loja" {
			t.Errorf("presence = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no contact.presence event")
	}
}

func TestLaneExitsWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.fake.EmitMessage(textEvent("M1", ana, "oi"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.p.mu.Lock()
		n := len(h.p.lanes)
		h.p.mu.Unlock()
		if n == 0 && h.messageCount(t) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("idle lane not removed")
}

func TestDeviceAddressSharesContact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.p.HandleMessage(ctx, "loja", textEvent("M1", ana, "oi")); err != nil {
		t.Fatal(err)
	}
	if _, err := h.p.HandleMessage(ctx, "loja", textEvent("M2", "5511999990000:7@S.whatsapp.net", "tudo bem?")); err != nil {
		t.Fatal(err)
	}

	c, _ := h.db.GetContactByIdentifier(ctx, ana)
	if c == nil {
		t.Fatal("contact not stored under its canonical address")
	}
	msgs, err := h.db.ListMessages(ctx, c.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages on %s = %d, want 2", ana, len(msgs))
	}
}
