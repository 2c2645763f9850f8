// Package chat defines the capability-based client abstraction the desk core
// consumes. A Client always supports the base operations; richer sends,
// media retrieval and avatar lookups are optional interfaces resolved once
// into a Descriptor when the session is created.
package chat

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotPaired means the credential holds no paired device.
	ErrNotPaired = errors.New("chat: credential is not paired")
	// ErrLoggedOut means the platform revoked the credential.
	ErrLoggedOut = errors.New("chat: logged out")
)

// Location is a shared geographic point.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

// InboundEvent is a message received by a session.
type InboundEvent struct {
	ID          string
	From        string // sender or chat address, e.g. 5511999990000@s.whatsapp.net
	PushName    string
	Timestamp   time.Time
	FromMe      bool
	IsGroup     bool
	IsBroadcast bool

	// Type is the client's native type tag: chat, image, video, audio, ptt,
	// document, sticker, location, vcard, multi_vcard or unknown.
	Type     string
	Body     string
	Caption  string
	Filename string
	Mimetype string
	Location *Location
	VCard    string

	// Payload is an inline base64 rendition of the attachment when the
	// platform ships one with the event (e.g. a thumbnail).
	Payload string

	// Native carries the implementation's own event value for media retrieval.
	Native any
}

// AckEvent reports a delivery status change for outbound messages.
type AckEvent struct {
	MessageIDs []string
	From       string
	Status     string // delivered, read, played
	Timestamp  time.Time
}

// PresenceEvent reports a contact going online or offline.
type PresenceEvent struct {
	From      string
	Available bool
	LastSeen  time.Time
}

// State is a connection-level client state change.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateLoggedOut    State = "logged_out"
)

// Device identifies the account a client is bound to.
type Device struct {
	Number   string
	PushName string
	Platform string
}

// Client is the base capability set every implementation provides.
type Client interface {
	OnMessage(func(InboundEvent))
	OnAck(func(AckEvent))
	OnPresence(func(PresenceEvent))
	OnState(func(State))

	// HostDevice reports the bound account. It fails when the client is not
	// connected and logged in, which makes it the liveness probe.
	HostDevice(ctx context.Context) (Device, error)
	SendText(ctx context.Context, to, text string) (string, error)
	Close() error
}

// Options configures a new client.
type Options struct {
	SessionID      string
	Name           string
	CredentialPath string
	WorkDir        string

	// Restore binds to an existing credential and forbids interactive pairing.
	Restore bool
	// PairPhone requests a phone pairing code in addition to QR codes.
	PairPhone string

	OnQR       func(code string)
	OnPairCode func(code string)
}

// Factory creates connected clients.
type Factory interface {
	Create(ctx context.Context, opts Options) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, opts Options) (Client, error)

// Create calls f.
func (f FactoryFunc) Create(ctx context.Context, opts Options) (Client, error) {
	return f(ctx, opts)
}
