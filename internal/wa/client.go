package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/wppdesk/internal/chat"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

var errNotConnected = errors.New("whatsapp: not connected")

// Factory creates whatsmeow-backed clients, one sqlstore per session.
type Factory struct {
	logger *zap.Logger
}

// NewFactory sets the device name shown on the phone's linked devices list
// and returns a Factory.
func NewFactory(deviceName string, logger *zap.Logger) *Factory {
	wastore.SetOSInfo(deviceName, [3]uint32{1, 0, 0})
	return &Factory{logger: logger}
}

// Create opens the session's credential store and returns a connected,
// logged-in client. Without a paired device it runs the QR (and optional
// phone code) pairing flow, unless opts.Restore forbids it.
func (f *Factory) Create(ctx context.Context, opts chat.Options) (chat.Client, error) {
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", opts.CredentialPath),
		waLog.Noop,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}

	c := newClient(whatsmeow.NewClient(device, waLog.Noop), f.logger.With(zap.String("session", opts.SessionID)))
	c.container = container
	c.wm.AddEventHandler(c.handle)

	if c.wm.Store.ID == nil {
		if opts.Restore {
			_ = c.Close()
			return nil, chat.ErrNotPaired
		}
		err = c.pair(ctx, opts)
	} else {
		err = c.connect(ctx)
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Client wraps a whatsmeow client as a chat.Client with every optional
// capability except direct avatar URLs.
type Client struct {
	wm        *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	recent    *recentMessages

	mu         sync.RWMutex
	onMessage  func(chat.InboundEvent)
	onAck      func(chat.AckEvent)
	onPresence func(chat.PresenceEvent)
	onState    func(chat.State)

	// ready receives the outcome of the first login after connect.
	ready chan error
}

func newClient(wm *whatsmeow.Client, logger *zap.Logger) *Client {
	return &Client{
		wm:     wm,
		logger: logger,
		recent: newRecentMessages(512),
		ready:  make(chan error, 1),
	}
}

func (c *Client) OnMessage(h func(chat.InboundEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = h
}

func (c *Client) OnAck(h func(chat.AckEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAck = h
}

func (c *Client) OnPresence(h func(chat.PresenceEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = h
}

func (c *Client) OnState(h func(chat.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = h
}

// connect opens the websocket with stored credentials and waits for login.
func (c *Client) connect(ctx context.Context) error {
	c.logger.Info("connecting to WhatsApp")
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return c.waitReady(ctx)
}

func (c *Client) waitReady(ctx context.Context) error {
	select {
	case err := <-c.ready:
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait for login: %w", ctx.Err())
	}
}

// HostDevice returns the logged-in account. It doubles as the liveness probe.
func (c *Client) HostDevice(ctx context.Context) (chat.Device, error) {
	if c.wm == nil || !c.wm.IsConnected() || !c.wm.IsLoggedIn() || c.wm.Store.ID == nil {
		return chat.Device{}, errNotConnected
	}
	return chat.Device{
		Number:   c.wm.Store.ID.User,
		PushName: c.wm.Store.PushName,
		Platform: c.wm.Store.Platform,
	}, nil
}

// SendText sends a text message. Returns the server message ID.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	return c.send(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
}

func (c *Client) send(ctx context.Context, to string, msg *waE2E.Message) (string, error) {
	jid, err := parseJID(to)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := c.wm.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Close disconnects and releases the credential store.
func (c *Client) Close() error {
	c.logger.Info("disconnecting from WhatsApp")
	if c.wm != nil {
		c.wm.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

// resolveLID maps a LID JID to its phone number JID using the device store.
// Returns the original JID if it's not a LID or if resolution fails.
func (c *Client) resolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if c.wm == nil || c.wm.Store == nil || c.wm.Store.LIDs == nil {
		return jid
	}
	pn, err := c.wm.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
