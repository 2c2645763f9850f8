// Package chattest provides an in-memory chat.Client for tests.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/wppdesk/internal/chat"
)

// ErrUnavailable is returned by operations configured to fail.
var ErrUnavailable = errors.New("chattest: unavailable")

// Sent records one outbound call.
type Sent struct {
	Kind  string // text, image, file, voice, audio, video
	To    string
	Text  string
	Media chat.Media
	Voice bool
}

// Fake is a chat.Client that implements every optional capability. Failures
// are configured per operation through the exported fields and setters.
type Fake struct {
	mu sync.Mutex

	device   chat.Device
	probeErr error
	sendErrs map[string]error
	sent     []Sent
	closed   bool
	nextID   int

	// Media retrieval results. A nil payload with a nil error yields ErrUnavailable.
	DecryptData  []byte
	DownloadData []byte
	RawData      []byte

	// Avatar lookups, keyed by strategy: profile, contact, direct.
	AvatarURLs map[string]string
	AvatarErrs map[string]error

	onMessage  func(chat.InboundEvent)
	onAck      func(chat.AckEvent)
	onPresence func(chat.PresenceEvent)
	onState    func(chat.State)
}

// New returns a connected fake bound to number.
func New(number string) *Fake {
	return &Fake{
		device:     chat.Device{Number: number},
		sendErrs:   make(map[string]error),
		AvatarURLs: make(map[string]string),
		AvatarErrs: make(map[string]error),
	}
}

func (f *Fake) OnMessage(h func(chat.InboundEvent))   { f.mu.Lock(); f.onMessage = h; f.mu.Unlock() }
func (f *Fake) OnAck(h func(chat.AckEvent))           { f.mu.Lock(); f.onAck = h; f.mu.Unlock() }
func (f *Fake) OnPresence(h func(chat.PresenceEvent)) { f.mu.Lock(); f.onPresence = h; f.mu.Unlock() }
func (f *Fake) OnState(h func(chat.State))            { f.mu.Lock(); f.onState = h; f.mu.Unlock() }

// SetProbeErr makes HostDevice fail with err (nil restores it).
func (f *Fake) SetProbeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

// FailSend makes sends of kind fail with err.
func (f *Fake) FailSend(kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs[kind] = err
}

// Sent returns a copy of the recorded sends.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// EmitMessage delivers evt to the registered message handler.
func (f *Fake) EmitMessage(evt chat.InboundEvent) {
	f.mu.Lock()
	h := f.onMessage
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// EmitAck delivers evt to the registered ack handler.
func (f *Fake) EmitAck(evt chat.AckEvent) {
	f.mu.Lock()
	h := f.onAck
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// EmitPresence delivers evt to the registered presence handler.
func (f *Fake) EmitPresence(evt chat.PresenceEvent) {
	f.mu.Lock()
	h := f.onPresence
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// EmitState delivers s to the registered state handler.
func (f *Fake) EmitState(s chat.State) {
	f.mu.Lock()
	h := f.onState
	f.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (f *Fake) HostDevice(ctx context.Context) (chat.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return chat.Device{}, errors.New("chattest: closed")
	}
	if f.probeErr != nil {
		return chat.Device{}, f.probeErr
	}
	return f.device, nil
}

func (f *Fake) record(s Sent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrs[s.Kind]; err != nil {
		return "", err
	}
	f.nextID++
	f.sent = append(f.sent, s)
	return fmt.Sprintf("FAKE%d", f.nextID), nil
}

func (f *Fake) SendText(ctx context.Context, to, text string) (string, error) {
	return f.record(Sent{Kind: "text", To: to, Text: text})
}

func (f *Fake) SendImage(ctx context.Context, to string, m chat.Media) (string, error) {
	return f.record(Sent{Kind: "image", To: to, Media: m})
}

func (f *Fake) SendFile(ctx context.Context, to string, m chat.Media) (string, error) {
	return f.record(Sent{Kind: "file", To: to, Media: m})
}

func (f *Fake) SendVoice(ctx context.Context, to string, m chat.Media) (string, error) {
	return f.record(Sent{Kind: "voice", To: to, Media: m, Voice: true})
}

func (f *Fake) SendAudio(ctx context.Context, to string, m chat.Media, voice bool) (string, error) {
	return f.record(Sent{Kind: "audio", To: to, Media: m, Voice: voice})
}

func (f *Fake) SendVideo(ctx context.Context, to string, m chat.Media) (string, error) {
	return f.record(Sent{Kind: "video", To: to, Media: m})
}

func payload(data []byte) ([]byte, error) {
	if data == nil {
		return nil, ErrUnavailable
	}
	return data, nil
}

func (f *Fake) DecryptMedia(ctx context.Context, evt chat.InboundEvent) ([]byte, error) {
	return payload(f.DecryptData)
}

func (f *Fake) DownloadMedia(ctx context.Context, evt chat.InboundEvent) ([]byte, error) {
	return payload(f.DownloadData)
}

func (f *Fake) FetchRaw(ctx context.Context, messageID string) ([]byte, error) {
	return payload(f.RawData)
}

func (f *Fake) avatar(kind string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.AvatarErrs[kind]; err != nil {
		return "", err
	}
	return f.AvatarURLs[kind], nil
}

func (f *Fake) ProfilePictureURL(ctx context.Context, identifier string) (string, error) {
	return f.avatar("profile")
}

func (f *Fake) ContactPictureURL(ctx context.Context, identifier string) (string, error) {
	return f.avatar("contact")
}

func (f *Fake) DirectAvatarURL(ctx context.Context, identifier string) (string, error) {
	return f.avatar("direct")
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
