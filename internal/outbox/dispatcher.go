// Package outbox sends messages through live sessions: interactive sends via
// the Dispatcher and queued campaign sends via the Sender.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/sessions"
	"go.uber.org/zap"
)

// Send kinds.
const (
	KindText     = "text"
	KindImage    = "image"
	KindDocument = "document"
	KindAudio    = "audio"
	KindVideo    = "video"
)

// EmptyPlaceholder replaces empty text content.
const EmptyPlaceholder = "[empty message]"

// ErrUnsupported means the session's client lacks the capability for a kind.
var ErrUnsupported = errors.New("capability not supported by client")

// SessionNotFoundError is returned when the session is not live.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// SendError reports a failed send of a given kind.
type SendError struct {
	Kind      string
	SessionID string
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s to %s via %s: %v", e.Kind, e.Recipient, e.SessionID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Options selects the kind of a send and carries its attachment.
type Options struct {
	Kind      string
	Media     chat.Media
	Signature string
}

// Result is the normalized outcome of a successful send.
type Result struct {
	Success   bool
	MessageID string
}

// SessionLookup finds live sessions.
type SessionLookup interface {
	Get(id string) (sessions.Entry, bool)
}

// Dispatcher routes sends to the capability matching their kind.
type Dispatcher struct {
	sessions SessionLookup
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(lookup SessionLookup, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sessions: lookup, logger: logger}
}

// Send delivers content to recipient through sessionID.
func (d *Dispatcher) Send(ctx context.Context, sessionID, recipient, content string, opts Options) (Result, error) {
	entry, ok := d.sessions.Get(sessionID)
	if !ok {
		return Result{}, &SessionNotFoundError{SessionID: sessionID}
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindText
	}

	id, err := d.dispatch(ctx, entry, kind, recipient, content, opts)
	if err != nil {
		d.logger.Warn("send failed",
			zap.String("session", sessionID), zap.String("kind", kind), zap.Error(err))
		return Result{}, &SendError{Kind: kind, SessionID: sessionID, Recipient: recipient, Err: err}
	}
	return Result{Success: true, MessageID: id}, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, e sessions.Entry, kind, to, content string, opts Options) (string, error) {
	m := opts.Media
	if m.Caption == "" {
		m.Caption = content
	}

	switch kind {
	case KindImage:
		if e.Caps.Image == nil {
			return "", ErrUnsupported
		}
		return e.Caps.Image.SendImage(ctx, to, m)
	case KindDocument:
		if looksLikeAudio(m) {
			return e.Client.SendText(ctx, to, playbackText(content, m))
		}
		if e.Caps.File == nil {
			return "", ErrUnsupported
		}
		return e.Caps.File.SendFile(ctx, to, m)
	case KindAudio:
		return sendAudio(ctx, e.Caps, to, m)
	case KindVideo:
		if e.Caps.Video == nil {
			return "", ErrUnsupported
		}
		return e.Caps.Video.SendVideo(ctx, to, m)
	default:
		return e.Client.SendText(ctx, to, textBody(content, opts.Signature))
	}
}

func textBody(content, signature string) string {
	if strings.TrimSpace(content) == "" {
		content = EmptyPlaceholder
	}
	if signature != "" {
		content += "\n\n_" + signature + "_"
	}
	return content
}

var audioExts = map[string]bool{
	".mp3": true, ".ogg": true, ".oga": true, ".opus": true, ".m4a": true,
	".wav": true, ".aac": true, ".amr": true, ".weba": true,
}

func looksLikeAudio(m chat.Media) bool {
	for _, name := range []string{m.Filename, m.Path} {
		if audioExts[strings.ToLower(filepath.Ext(name))] {
			return true
		}
	}
	return strings.HasPrefix(m.Mimetype, "audio/")
}

// playbackText links an audio document instead of attaching it.
func playbackText(content string, m chat.Media) string {
	link := m.Path
	if link == "" {
		link = m.Filename
	}
	text := "🎧 Audio: " + link
	if content != "" {
		text = content + "\n" + text
	}
	return text
}

type audioStrategy struct {
	name string
	send func(ctx context.Context, to string, m chat.Media) (string, error)
}

// audioChain lists the voice-capable sends of a client in priority order.
func audioChain(caps chat.Descriptor) []audioStrategy {
	var chain []audioStrategy
	if caps.Voice != nil {
		chain = append(chain, audioStrategy{"voice", caps.Voice.SendVoice})
	}
	if caps.Audio != nil {
		a := caps.Audio
		chain = append(chain, audioStrategy{"audio", func(ctx context.Context, to string, m chat.Media) (string, error) {
			return a.SendAudio(ctx, to, m, true)
		}})
	}
	if caps.File != nil {
		f := caps.File
		chain = append(chain, audioStrategy{"file", func(ctx context.Context, to string, m chat.Media) (string, error) {
			if m.Caption == "" {
				m.Caption = "🎤 Voice message"
			}
			return f.SendFile(ctx, to, m)
		}})
	}
	return chain
}

func sendAudio(ctx context.Context, caps chat.Descriptor, to string, m chat.Media) (string, error) {
	chain := audioChain(caps)
	if len(chain) == 0 {
		return "", ErrUnsupported
	}
	var errs []error
	for _, s := range chain {
		id, err := s.send(ctx, to, m)
		if err == nil {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return "", errors.Join(errs...)
}
