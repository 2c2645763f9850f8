package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testContact(t *testing.T, db *DB, identifier string) *Contact {
	t.Helper()
	c, _, err := db.FindOrCreateContact(context.Background(), identifier, "Test")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestMigrateReportsVersions(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "desk.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.From != 0 || result.Version != 1 || !result.Changed {
		t.Errorf("result = %+v, want 0 -> 1 changed", result)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}

	_, err := db.Migrate()
	var dirty *DirtySchemaError
	if !errors.As(err, &dirty) {
		t.Fatalf("Migrate() error = %v, want DirtySchemaError", err)
	}
	if dirty.Version != 1 {
		t.Errorf("dirty version = %d, want 1", dirty.Version)
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertSession(ctx, &Session{ID: "loja", Name: "Loja"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSessionQR(ctx, "loja", "2@abc"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSessionStatus(ctx, "loja", "connecting"); err != nil {
		t.Fatal(err)
	}
	connectedAt := time.UnixMilli(1700000000000)
	if err := db.SetSessionConnected(ctx, "loja", "5511999990000", "/tmp/loja/session.db", connectedAt); err != nil {
		t.Fatal(err)
	}

	s, err := db.GetSession(ctx, "loja")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil {
		t.Fatal("GetSession returned nil")
	}
	if s.Status != "connecting" || s.DeviceNumber != "5511999990000" || s.ConnectedAt != connectedAt.UnixMilli() {
		t.Errorf("session = %+v", s)
	}
	if s.QRCode != "" {
		t.Errorf("QRCode = %q, want cleared after connect", s.QRCode)
	}

	if err := db.ClearSessionPairing(ctx, "loja"); err != nil {
		t.Fatal(err)
	}
	s, _ = db.GetSession(ctx, "loja")
	if s.CredentialRef != "" || s.DeviceNumber != "" {
		t.Errorf("pairing not cleared: %+v", s)
	}

	// Upsert with an empty name keeps the stored one.
	if err := db.UpsertSession(ctx, &Session{ID: "loja"}); err != nil {
		t.Fatal(err)
	}
	s, _ = db.GetSession(ctx, "loja")
	if s.Name != "Loja" {
		t.Errorf("Name = %q, want Loja", s.Name)
	}

	list, err := db.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("ListSessions len = %d, want 1", len(list))
	}

	missing, err := db.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetSession(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestFindOrCreateContactConcurrent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	created := make([]bool, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, ok, err := db.FindOrCreateContact(ctx, "5511988887777@s.whatsapp.net", "Ana")
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = c.ID
			created[i] = ok
		}(i)
	}
	wg.Wait()

	var creations int
	for i := range workers {
		if ids[i] != ids[0] {
			t.Errorf("worker %d got contact %d, want %d", i, ids[i], ids[0])
		}
		if created[i] {
			creations++
		}
	}
	if creations != 1 {
		t.Errorf("creations = %d, want 1", creations)
	}
}

func TestInsertMessageUpdatesContact(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	c := testContact(t, db, "a@s.whatsapp.net")

	url := "/media/x.jpg"
	msgs := []*Message{
		{SessionID: "s1", ContactID: c.ID, ExternalID: "m1", Content: "hello", Type: "text"},
		{SessionID: "s1", ContactID: c.ID, ExternalID: "m2", Content: "", Type: "image", MediaURL: &url},
		{SessionID: "s1", ContactID: c.ID, ExternalID: "m3", Content: "reply", Type: "text", FromMe: true},
	}
	for i, m := range msgs {
		m.CreatedAt = int64(1000 + i)
		if err := db.InsertMessage(ctx, m, m.Content); err != nil {
			t.Fatal(err)
		}
		if m.ID == 0 {
			t.Error("InsertMessage did not set ID")
		}
	}

	got, err := db.GetContact(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2 (outbound does not count)", got.UnreadCount)
	}
	if got.LastMessage != "reply" || got.LastMessageAt != 1002 {
		t.Errorf("last message = %q@%d", got.LastMessage, got.LastMessageAt)
	}

	list, err := db.ListMessages(ctx, c.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("ListMessages len = %d, want 3", len(list))
	}
	if list[0].ExternalID != "m3" {
		t.Errorf("first = %q, want newest m3", list[0].ExternalID)
	}
	if list[1].MediaURL == nil || *list[1].MediaURL != url {
		t.Errorf("MediaURL = %v, want %q", list[1].MediaURL, url)
	}
	if list[2].MediaURL != nil {
		t.Errorf("text MediaURL = %v, want nil", *list[2].MediaURL)
	}

	n, err := db.UpdateMessageStatus(ctx, "s1", "m3", "read")
	if err != nil || n != 1 {
		t.Errorf("UpdateMessageStatus = %d, %v", n, err)
	}
}

func TestQueueSingleActiveEntry(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	c := testContact(t, db, "q@s.whatsapp.net")

	first, created, err := db.InsertWaitingEntry(ctx, c.ID, "Suporte")
	if err != nil || !created {
		t.Fatalf("first insert = %v, %v", created, err)
	}
	second, created, err := db.InsertWaitingEntry(ctx, c.ID, "Financeiro")
	if err != nil {
		t.Fatal(err)
	}
	if created || second.ID != first.ID {
		t.Errorf("second insert created=%v id=%d, want existing %d", created, second.ID, first.ID)
	}

	if err := db.AttendQueueEntry(ctx, first.ID, "agent1"); err != nil {
		t.Fatal(err)
	}
	if err := db.AttendQueueEntry(ctx, first.ID, "agent2"); err == nil {
		t.Error("attending an attending entry should fail")
	}

	moved, err := db.TransferQueueEntry(ctx, first.ID, "Financeiro")
	if err != nil {
		t.Fatal(err)
	}
	old, _ := db.GetQueueEntry(ctx, first.ID)
	if old.Status != QueueTransferred {
		t.Errorf("old status = %s, want transferred", old.Status)
	}
	active, _ := db.ActiveQueueEntry(ctx, c.ID)
	if active == nil || active.ID != moved.ID || active.Sector != "Financeiro" {
		t.Errorf("active = %+v, want transferred entry %d", active, moved.ID)
	}

	if err := db.FinishQueueEntry(ctx, moved.ID); err != nil {
		t.Fatal(err)
	}
	active, _ = db.ActiveQueueEntry(ctx, c.ID)
	if active != nil {
		t.Errorf("active after finish = %+v, want nil", active)
	}

	// A finished contact can be admitted again.
	if _, created, err := db.InsertWaitingEntry(ctx, c.ID, "Suporte"); err != nil || !created {
		t.Errorf("re-admit = %v, %v", created, err)
	}
}

func TestPollResponseUnique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	c := testContact(t, db, "p@s.whatsapp.net")

	p := &Poll{ContactID: c.ID, SessionID: "s1", Question: "Pick", Options: []string{"A", "B", "C"}}
	if err := db.CreatePoll(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := db.LatestActivePoll(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != p.ID || len(got.Options) != 3 || got.Type != PollSingle {
		t.Fatalf("LatestActivePoll = %+v", got)
	}

	ok, err := db.InsertPollResponse(ctx, &PollResponse{PollID: p.ID, ContactID: c.ID, Selected: []int{2}, RawText: "2"})
	if err != nil || !ok {
		t.Fatalf("first response = %v, %v", ok, err)
	}
	ok, err = db.InsertPollResponse(ctx, &PollResponse{PollID: p.ID, ContactID: c.ID, Selected: []int{3}, RawText: "3"})
	if err != nil || ok {
		t.Errorf("second response = %v, %v; want ignored", ok, err)
	}

	responses, err := db.PollResponses(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 || responses[0].Selected[0] != 2 {
		t.Errorf("responses = %+v", responses)
	}

	if err := db.SetPollStatus(ctx, p.ID, PollExpired); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.LatestActivePoll(ctx, c.ID); got != nil {
		t.Errorf("expired poll still active: %+v", got)
	}
}

func TestSettings(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SetSetting(ctx, "business_hours.enabled", "true"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting(ctx, "business_hours.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	all, err := db.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if all["business_hours.enabled"] != "false" {
		t.Errorf("setting = %q, want false", all["business_hours.enabled"])
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	e := &OutboxEntry{Campaign: "promo", SessionID: "s1", Recipient: "5511@s.whatsapp.net", Body: "hi"}
	if err := db.QueueOutbox(ctx, e); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Kind != "text" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := db.MarkOutboxSending(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent(ctx, e.ID, "SRV1"); err != nil {
		t.Fatal(err)
	}

	pending, _ = db.PendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("pending after send = %d, want 0", len(pending))
	}
	got, err := db.GetOutbox(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "sent" || got.ServerMsgID != "SRV1" {
		t.Errorf("entry = %+v", got)
	}
}
