package avatar

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/chat/chattest"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://pps.whatsapp.net/v/t61/abc.jpg", true},
		{"http://example.com/a.png", true},
		{"data:image/jpeg;base64,AAAA", true},
		{"", false},
		{"ftp://example.com/a.png", false},
		{"/relative/path.png", false},
		{"https://", false},
		{"data:nocomma", false},
	}
	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDue(t *testing.T) {
	r := NewRefresher(Config{}, zap.NewNop())
	now := time.Now()
	tests := []struct {
		name string
		c    store.Contact
		want bool
	}{
		{"no avatar", store.Contact{}, true},
		{"fresh", store.Contact{AvatarURL: "https://x/a", AvatarUpdatedAt: now.Add(-24 * time.Hour).UnixMilli()}, false},
		{"stale", store.Contact{AvatarURL: "https://x/a", AvatarUpdatedAt: now.Add(-8 * 24 * time.Hour).UnixMilli()}, true},
	}
	for _, tt := range tests {
		if got := r.Due(&tt.c, now); got != tt.want {
			t.Errorf("%s: Due() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFetchFallsThroughStrategies(t *testing.T) {
	f := chattest.New("5511")
	f.AvatarErrs["profile"] = errors.New("not authorized")
	f.AvatarURLs["contact"] = "not a url"
	f.AvatarURLs["direct"] = "https://pps.whatsapp.net/direct.jpg"

	r := NewRefresher(Config{Backoff: time.Millisecond}, zap.NewNop())
	got := r.Fetch(context.Background(), Strategies(chat.Describe(f)), "5511@s.whatsapp.net")
	if got != "https://pps.whatsapp.net/direct.jpg" {
		t.Errorf("Fetch() = %q", got)
	}
}

func TestFetchRetriesThenGivesUp(t *testing.T) {
	var calls int32
	chain := []Strategy{{Name: "flaky", Fetch: func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("timeout")
	}}}

	r := NewRefresher(Config{Attempts: 3, Backoff: time.Millisecond}, zap.NewNop())
	if got := r.Fetch(context.Background(), chain, "x"); got != "" {
		t.Errorf("Fetch() = %q, want empty", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestFetchSucceedsOnRetry(t *testing.T) {
	var calls int32
	chain := []Strategy{{Name: "flaky", Fetch: func(context.Context, string) (string, error) {
		if atomic.AddInt32(&calls, 1) < 2 {
			return "", nil
		}
		return "https://x/a.jpg", nil
	}}}
	r := NewRefresher(Config{Backoff: time.Millisecond}, zap.NewNop())
	if got := r.Fetch(context.Background(), chain, "x"); got != "https://x/a.jpg" {
		t.Errorf("Fetch() = %q", got)
	}
}

func TestFetchBoundedByTimeout(t *testing.T) {
	chain := []Strategy{{Name: "slow", Fetch: func(context.Context, string) (string, error) {
		return "", errors.New("nope")
	}}}
	r := NewRefresher(Config{Attempts: 3, Backoff: time.Hour, Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	r.Fetch(context.Background(), chain, "x")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch() took %v, want bounded by timeout", elapsed)
	}
}
