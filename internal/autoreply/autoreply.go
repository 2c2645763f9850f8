// Package autoreply sends greeting, goodbye and after-hours messages,
// suppressing repeats through the dedup cache.
package autoreply

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/wppdesk/internal/dedup"
	"github.com/matheus3301/wppdesk/internal/outbox"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

// Message kinds, also used as dedup key kinds.
const (
	KindGreeting   = "greeting"
	KindGoodbye    = "goodbye"
	KindAfterHours = "business_hours"
)

// Config holds cooldowns and the default texts used when settings are unset.
type Config struct {
	GreetingCooldown      time.Duration
	BusinessHoursCooldown time.Duration
	Morning               string
	Afternoon             string
	Evening               string
	GreetingText          string
	GoodbyeText           string
	AfterHoursText        string
	Signature             string
}

// SettingsSource reads the key/value settings table.
type SettingsSource interface {
	Settings(ctx context.Context) (map[string]string, error)
}

// Service dispatches automated replies.
type Service struct {
	cfg      Config
	settings SettingsSource
	sender   outbox.MessageSender
	cache    *dedup.Cache
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(cfg Config, settings SettingsSource, sender outbox.MessageSender, cache *dedup.Cache, logger *zap.Logger) *Service {
	if cfg.GreetingCooldown <= 0 {
		cfg.GreetingCooldown = 5 * time.Minute
	}
	if cfg.BusinessHoursCooldown <= 0 {
		cfg.BusinessHoursCooldown = 30 * time.Minute
	}
	return &Service{cfg: cfg, settings: settings, sender: sender, cache: cache, logger: logger, now: time.Now}
}

// load reads the current settings. A failed read falls back to the
// configured defaults, including the default after-hours text.
func (s *Service) load(ctx context.Context) Settings {
	raw, err := s.settings.Settings(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", zap.Error(err))
		return s.defaults()
	}
	st, err := parseSettings(s.defaults(), raw)
	if err != nil {
		s.logger.Warn("ignoring malformed settings", zap.Error(err))
	}
	return st
}

// Welcome runs after a contact is admitted to the queue: outside business
// hours it sends the after-hours notice, otherwise the greeting. It reports
// the kind sent, or "" when nothing was sent.
func (s *Service) Welcome(ctx context.Context, sessionID string, contact *store.Contact) (string, error) {
	st := s.load(ctx)
	now := s.now()

	if !st.IsOpen(now) {
		key := dedup.Key{Kind: KindAfterHours, Recipient: contact.Identifier}
		return s.send(ctx, key, s.cfg.BusinessHoursCooldown, sessionID, contact, st.AfterHoursText, now)
	}
	if !st.GreetingEnabled {
		return "", nil
	}
	key := dedup.Key{Kind: KindGreeting, Recipient: contact.Identifier, SessionID: sessionID}
	return s.send(ctx, key, s.cfg.GreetingCooldown, sessionID, contact, st.GreetingText, now)
}

// Goodbye sends the closing message after an attendance is finished.
func (s *Service) Goodbye(ctx context.Context, sessionID string, contact *store.Contact) (string, error) {
	st := s.load(ctx)
	if !st.GoodbyeEnabled {
		return "", nil
	}
	key := dedup.Key{Kind: KindGoodbye, Recipient: contact.Identifier, SessionID: sessionID}
	return s.send(ctx, key, s.cfg.GreetingCooldown, sessionID, contact, st.GoodbyeText, s.now())
}

func (s *Service) send(ctx context.Context, key dedup.Key, cooldown time.Duration, sessionID string, contact *store.Contact, tmpl string, now time.Time) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", nil
	}
	if !s.cache.Allow(key, cooldown) {
		s.logger.Debug("auto-reply suppressed", zap.String("kind", key.Kind), zap.String("recipient", key.Recipient))
		return "", nil
	}
	text := s.Render(tmpl, contact.Name, now)
	if _, err := s.sender.Send(ctx, sessionID, contact.Identifier, text, outbox.Options{Signature: s.cfg.Signature}); err != nil {
		s.cache.Forget(key)
		return "", err
	}
	s.logger.Info("auto-reply sent", zap.String("kind", key.Kind), zap.String("session", sessionID), zap.Int64("contact_id", contact.ID))
	return key.Kind, nil
}

// Render substitutes {name}, {greeting}, {date} and {time} in tmpl.
func (s *Service) Render(tmpl, name string, now time.Time) string {
	return strings.NewReplacer(
		"{name}", name,
		"{greeting}", s.GreetingFor(now),
		"{date}", now.Format("02/01/2006"),
		"{time}", now.Format("15:04"),
	).Replace(tmpl)
}

// GreetingFor picks the time-of-day greeting: morning in [5,12), afternoon
// in [12,18), evening otherwise.
func (s *Service) GreetingFor(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return s.cfg.Morning
	case h >= 12 && h < 18:
		return s.cfg.Afternoon
	default:
		return s.cfg.Evening
	}
}
