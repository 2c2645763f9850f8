// Package avatar looks up contact profile pictures through an ordered list
// of strategies with bounded retries.
package avatar

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

// Strategy is one named way of finding the avatar URL of an identifier.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, identifier string) (string, error)
}

// Strategies builds the lookup chain supported by a client: server-side
// profile fetch, contact-object fallback, then direct URL fetch.
func Strategies(d chat.Descriptor) []Strategy {
	var out []Strategy
	if d.Profile != nil {
		out = append(out, Strategy{Name: "profile", Fetch: d.Profile.ProfilePictureURL})
	}
	if d.ContactAvatar != nil {
		out = append(out, Strategy{Name: "contact", Fetch: d.ContactAvatar.ContactPictureURL})
	}
	if d.DirectAvatar != nil {
		out = append(out, Strategy{Name: "direct", Fetch: d.DirectAvatar.DirectAvatarURL})
	}
	return out
}

// Config bounds refresh frequency and retries.
type Config struct {
	TTL      time.Duration
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// Refresher decides when an avatar is stale and fetches a new one.
type Refresher struct {
	cfg    Config
	logger *zap.Logger
}

// NewRefresher creates a Refresher with defaults for zero fields.
func NewRefresher(cfg Config, logger *zap.Logger) *Refresher {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Refresher{cfg: cfg, logger: logger}
}

// Due reports whether c has no avatar or an avatar older than the TTL.
func (r *Refresher) Due(c *store.Contact, now time.Time) bool {
	if c.AvatarURL == "" || c.AvatarUpdatedAt == 0 {
		return true
	}
	return now.Sub(time.UnixMilli(c.AvatarUpdatedAt)) > r.cfg.TTL
}

// Fetch walks chain up to Attempts times, waiting attempt×Backoff between
// rounds, and returns the first valid URL. Exhaustion returns "".
func (r *Refresher) Fetch(ctx context.Context, chain []Strategy, identifier string) string {
	if len(chain) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		for _, s := range chain {
			u, err := s.Fetch(ctx, identifier)
			if err != nil {
				r.logger.Debug("avatar strategy failed",
					zap.String("strategy", s.Name), zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if Valid(u) {
				return u
			}
		}
		if attempt == r.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(time.Duration(attempt) * r.cfg.Backoff):
		}
	}
	return ""
}

// Valid accepts absolute http(s) URLs and data URIs.
func Valid(u string) bool {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "data:") {
		return strings.Contains(u, ",")
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
