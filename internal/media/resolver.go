// Package media retrieves inbound attachments and stores them under the
// media directory.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppdesk/internal/chat"
	"go.uber.org/zap"
)

// Config bounds storage and inline fallbacks.
type Config struct {
	Dir       string
	URLPrefix string
	// Image and sticker payloads inline when InlineMin <= len < InlineMax.
	InlineMin int
	InlineMax int
	// Audio payloads inline when len > AudioInlineMin.
	AudioInlineMin int
	Timeout        time.Duration
}

// Result is the outcome of resolving one attachment. URL is nil when nothing
// could be retrieved, in which case Content holds a placeholder.
type Result struct {
	URL      *string
	Content  string
	Strategy string
	Inline   bool
}

// Resolver downloads attachments through a strategy chain.
type Resolver struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/media"
	}
	if cfg.InlineMin <= 0 {
		cfg.InlineMin = 500
	}
	if cfg.InlineMax <= 0 {
		cfg.InlineMax = 5 * 1024 * 1024
	}
	if cfg.AudioInlineMin <= 0 {
		cfg.AudioInlineMin = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Resolver{cfg: cfg, logger: logger, now: time.Now}
}

// Placeholder is the content stored for an attachment that could not be retrieved.
func Placeholder(t string) string {
	return fmt.Sprintf("[%s: download failed]", t)
}

// Resolve retrieves the attachment of evt, a message of type t whose text
// content is content. It never fails: retrieval problems degrade to an inline
// data URI or a placeholder.
func (r *Resolver) Resolve(ctx context.Context, chain []Strategy, evt chat.InboundEvent, t, content string) Result {
	logger := r.logger.With(zap.String("message_id", evt.ID), zap.String("type", t))

	fctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	data, strategy, err := fetch(fctx, chain, evt)
	cancel()
	if err == nil {
		u, err := r.store(evt, t, data)
		if err == nil {
			return Result{URL: &u, Content: content, Strategy: strategy}
		}
		logger.Warn("store media", zap.Error(err))
	} else {
		logger.Warn("media retrieval failed", zap.Error(err))
	}

	if uri, ok := r.inline(t, evt); ok {
		return Result{URL: &uri, Content: content, Inline: true}
	}
	return Result{Content: Placeholder(t)}
}

func (r *Resolver) store(evt chat.InboundEvent, t string, data []byte) (string, error) {
	if err := os.MkdirAll(r.cfg.Dir, 0700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	name := r.filename(evt.ID, extension(t, evt.Mimetype, data))
	if err := os.WriteFile(filepath.Join(r.cfg.Dir, name), data, 0600); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	return path.Join(r.cfg.URLPrefix, name), nil
}

// filename is <unixmilli>_<token>_<id prefix>.<ext>.
func (r *Resolver) filename(messageID, ext string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	id := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		}
		return -1
	}, messageID)
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "msg"
	}
	return fmt.Sprintf("%d_%s_%s.%s", r.now().UnixMilli(), token, id, ext)
}

// inline builds a data URI from the textual payload of the event when its
// type and size allow.
func (r *Resolver) inline(t string, evt chat.InboundEvent) (string, bool) {
	p := evt.Payload
	n := len(p)
	switch t {
	case "image", "sticker":
		if n < r.cfg.InlineMin || n >= r.cfg.InlineMax {
			return "", false
		}
	case "audio":
		if n <= r.cfg.AudioInlineMin {
			return "", false
		}
	default:
		return "", false
	}
	if !looksBase64(p) {
		return "", false
	}
	return "data:" + inlineMIME(t, evt.Mimetype) + ";base64," + p, true
}

func looksBase64(s string) bool {
	if s == "" || len(s)%4 != 0 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
