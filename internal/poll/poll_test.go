package poll

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/outbox"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSender) Send(_ context.Context, _, _, content string, _ outbox.Options) (outbox.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, content)
	return outbox.Result{Success: true, MessageID: "M"}, nil
}

func (r *recordingSender) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setup(t *testing.T, pollType string) (*Engine, *store.DB, *recordingSender, *store.Contact, *store.Poll) {
	t.Helper()
	db := testDB(t)
	ctx := context.Background()
	c, _, err := db.FindOrCreateContact(ctx, "5511@s.whatsapp.net", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	sender := &recordingSender{}
	e := NewEngine(db, sender, bus.New(), zap.NewNop())
	p, err := e.Create(ctx, CreateRequest{
		SessionID: "loja",
		ContactID: c.ID,
		CreatedBy: "agent",
		Question:  "Which one?",
		Options:   []string{"A", "B", "C"},
		Type:      pollType,
		TTL:       time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e, db, sender, c, p
}

func TestParse(t *testing.T) {
	single := &store.Poll{Options: []string{"A", "B", "C"}, Type: store.PollSingle}
	multi := &store.Poll{Options: []string{"Manhã", "Tarde", "Noite"}, Type: store.PollMultiple}

	tests := []struct {
		name string
		p    *store.Poll
		text string
		want []int
	}{
		{"numeric", single, "2", []int{2}},
		{"substring", single, "b", []int{2}},
		{"single stops at first", single, "1 e 3", []int{1}},
		{"out of range ignored", single, "7 ou 3", []int{3}},
		{"multiple numeric dedup", multi, "3, 1 e 3", []int{1, 3}},
		{"multiple substring", multi, "prefiro de manhã ou à noite", []int{1, 3}},
		{"no match", single, "hello", nil},
		{"empty", single, "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.p, tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCheckActivePollResolvesAnswer(t *testing.T) {
	for _, reply := range []string{"2", "b"} {
		t.Run(reply, func(t *testing.T) {
			e, db, sender, c, p := setup(t, store.PollSingle)
			events, unsub := e.bus.Subscribe("poll.", 4)
			defer unsub()

			ok, err := e.CheckActivePoll(context.Background(), "loja", c, reply)
			if err != nil || !ok {
				t.Fatalf("CheckActivePoll() = %v, %v", ok, err)
			}

			responses, err := db.PollResponses(context.Background(), p.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(responses) != 1 || !reflect.DeepEqual(Labels(p, responses[0].Selected), []string{"B"}) {
				t.Errorf("responses = %+v", responses)
			}
			texts := sender.Texts()
			if !strings.HasSuffix(texts[len(texts)-1], "recorded: B") {
				t.Errorf("confirmation = %q", texts[len(texts)-1])
			}
			select {
			case evt := <-events:
				if a := evt.Payload.(Answer); !reflect.DeepEqual(a.Options, []string{"B"}) {
					t.Errorf("answer = %+v", a)
				}
			case <-time.After(time.Second):
				t.Fatal("no poll.answered event")
			}
		})
	}
}

func TestCheckActivePollSecondReplyIgnored(t *testing.T) {
	e, db, _, c, p := setup(t, store.PollSingle)
	ctx := context.Background()

	if ok, _ := e.CheckActivePoll(ctx, "loja", c, "1"); !ok {
		t.Fatal("first reply not matched")
	}
	ok, err := e.CheckActivePoll(ctx, "loja", c, "3")
	if err != nil || ok {
		t.Errorf("second reply = %v, %v; want no match", ok, err)
	}
	responses, _ := db.PollResponses(ctx, p.ID)
	if len(responses) != 1 {
		t.Errorf("responses = %d, want 1", len(responses))
	}
}

func TestCheckActivePollNoMatchKeepsPollActive(t *testing.T) {
	e, db, _, c, p := setup(t, store.PollSingle)
	ok, err := e.CheckActivePoll(context.Background(), "loja", c, "hmm?")
	if err != nil || ok {
		t.Fatalf("CheckActivePoll() = %v, %v", ok, err)
	}
	got, _ := db.GetPoll(context.Background(), p.ID)
	if got.Status != store.PollActive {
		t.Errorf("status = %s, want active", got.Status)
	}
}

func TestCheckActivePollExpires(t *testing.T) {
	e, db, _, c, p := setup(t, store.PollSingle)
	e.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	ok, err := e.CheckActivePoll(context.Background(), "loja", c, "2")
	if err != nil || ok {
		t.Fatalf("CheckActivePoll() = %v, %v", ok, err)
	}
	got, _ := db.GetPoll(context.Background(), p.ID)
	if got.Status != store.PollExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}

func TestCreateSendsPrompt(t *testing.T) {
	_, _, sender, _, _ := setup(t, store.PollMultiple)
	texts := sender.Texts()
	if len(texts) != 1 {
		t.Fatalf("texts = %v", texts)
	}
	for _, want := range []string{"Which one?", "1. A", "2. B", "3. C", "one or more"} {
		if !strings.Contains(texts[0], want) {
			t.Errorf("prompt missing %q: %q", want, texts[0])
		}
	}
}

func TestCreateValidates(t *testing.T) {
	e, _, _, c, _ := setup(t, store.PollSingle)
	ctx := context.Background()
	bad := []CreateRequest{
		{ContactID: c.ID, Question: "", Options: []string{"a", "b"}},
		{ContactID: c.ID, Question: "q", Options: []string{"a"}},
		{ContactID: c.ID, Question: "q", Options: []string{"a", "b"}, Type: "ranked"},
		{ContactID: 999, Question: "q", Options: []string{"a", "b"}},
	}
	for i, req := range bad {
		if _, err := e.Create(ctx, req); err == nil {
			t.Errorf("request %d: expected error", i)
		}
	}
}
