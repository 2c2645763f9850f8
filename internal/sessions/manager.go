package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/credstore"
	"github.com/matheus3301/wppdesk/internal/schedule"
	"github.com/matheus3301/wppdesk/internal/status"
	"github.com/matheus3301/wppdesk/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Config tunes the session lifecycle.
type Config struct {
	StartupTimeout       time.Duration
	HealthInterval       time.Duration
	ProbeTimeout         time.Duration
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
}

// Binder wires a newly live client into the inbound pipeline.
type Binder interface {
	Bind(sessionID string, c chat.Client, caps chat.Descriptor)
}

// ReconnectFailed is the payload of bus.SessionReconnectFailed.
type ReconnectFailed struct {
	Attempts  int
	LastError string
}

// Manager owns the session state machines and every transition between
// them: creation, restoration, health checks, reconnects and purges.
type Manager struct {
	cfg      Config
	factory  chat.Factory
	creds    *credstore.Store
	db       *store.DB
	bus      *bus.Bus
	registry *Registry
	binder   Binder
	logger   *zap.Logger
	cron     *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	machines     map[string]*status.Machine
	health       map[string]cron.EntryID
	reconnecting map[string]bool
}

// NewManager creates a Manager. binder may be nil.
func NewManager(cfg Config, factory chat.Factory, creds *credstore.Store, db *store.DB, b *bus.Bus, registry *Registry, binder Binder, logger *zap.Logger) *Manager {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 2 * time.Minute
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 60 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:          cfg,
		factory:      factory,
		creds:        creds,
		db:           db,
		bus:          b,
		registry:     registry,
		binder:       binder,
		logger:       logger,
		cron:         schedule.New(logger),
		ctx:          ctx,
		cancel:       cancel,
		machines:     make(map[string]*status.Machine),
		health:       make(map[string]cron.EntryID),
		reconnecting: make(map[string]bool),
	}
	m.cron.Start()
	return m
}

// Registry returns the live-session registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Status returns the current state of a session.
func (m *Manager) Status(id string) status.State {
	return m.machine(id).Current()
}

func (m *Manager) machine(id string) *status.Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.machines[id]
	if !ok {
		mc = status.NewMachine(id, m.bus)
		m.machines[id] = mc
	}
	return mc
}

// transition applies and persists a state change.
func (m *Manager) transition(ctx context.Context, id string, to status.State) error {
	if err := m.machine(id).Transition(to); err != nil {
		m.logger.Warn("rejected status transition", zap.String("session", id), zap.Error(err))
		return err
	}
	m.registry.SetStatus(id, to)
	if err := m.db.SetSessionStatus(ctx, id, string(to)); err != nil {
		m.logger.Error("persist session status", zap.String("session", id), zap.Error(err))
	}
	return nil
}

// settle drives a session to disconnected along valid edges, stepping a
// connected session through connecting first. The persisted status is
// written even when the machine is already disconnected, so a stale row
// left by a crash is corrected too.
func (m *Manager) settle(ctx context.Context, id string) error {
	mc := m.machine(id)
	if mc.Current() == status.Connected {
		if err := m.transition(ctx, id, status.Connecting); err != nil {
			return err
		}
	}
	if mc.Current() == status.Connecting {
		return m.transition(ctx, id, status.Disconnected)
	}
	m.registry.SetStatus(id, status.Disconnected)
	if err := m.db.SetSessionStatus(ctx, id, string(status.Disconnected)); err != nil {
		m.logger.Error("persist session status", zap.String("session", id), zap.Error(err))
		return err
	}
	return nil
}

// CreateOption customizes CreateSession.
type CreateOption func(*chat.Options)

// WithPairPhone also requests a phone pairing code for phone.
func WithPairPhone(phone string) CreateOption {
	return func(o *chat.Options) { o.PairPhone = phone }
}

// CreateSession pairs a new session. QR and pairing codes are persisted and
// published on the bus while the client waits to be linked.
func (m *Manager) CreateSession(ctx context.Context, id, name string, opts ...CreateOption) error {
	if err := credstore.ValidateID(id); err != nil {
		return err
	}
	if _, ok := m.registry.Get(id); ok {
		return fmt.Errorf("session %s is already live", id)
	}
	if err := m.db.UpsertSession(ctx, &store.Session{ID: id, Name: name}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := m.transition(ctx, id, status.Connecting); err != nil {
		return err
	}

	client, err := m.startClient(ctx, id, name, m.creds.CredentialPath(id), false, opts)
	if err != nil {
		_ = m.transition(ctx, id, status.Disconnected)
		return &TransientError{SessionID: id, Err: err}
	}
	if err := m.activate(ctx, id, name, client, m.creds.CredentialPath(id)); err != nil {
		_ = client.Close()
		_ = m.transition(ctx, id, status.Disconnected)
		return &TransientError{SessionID: id, Err: err}
	}
	return nil
}

// RestoreSession resumes a session from its persisted credential without
// interactive pairing. A missing, empty or revoked credential is purged and
// reported as *CredentialError; other failures are *TransientError and the
// session stays connecting for the caller to schedule a reconnect.
func (m *Manager) RestoreSession(ctx context.Context, id, name string) error {
	if _, ok := m.registry.Get(id); ok {
		return fmt.Errorf("session %s is already live", id)
	}

	path, err := m.creds.Locate(id)
	if err != nil {
		if errors.Is(err, credstore.ErrNoArtifact) || errors.Is(err, credstore.ErrEmptyArtifact) {
			m.CleanupCorruptedToken(ctx, id, name)
			return &CredentialError{SessionID: id, Err: err}
		}
		return &TransientError{SessionID: id, Err: err}
	}

	if m.machine(id).Current() == status.Disconnected {
		if err := m.transition(ctx, id, status.Connecting); err != nil {
			return err
		}
	}

	client, err := m.startClient(ctx, id, name, path, true, nil)
	if err != nil {
		if errors.Is(err, chat.ErrNotPaired) || errors.Is(err, chat.ErrLoggedOut) {
			m.CleanupCorruptedToken(ctx, id, name)
			return &CredentialError{SessionID: id, Err: err}
		}
		return &TransientError{SessionID: id, Err: err}
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	_, err = client.HostDevice(pctx)
	cancel()
	if err != nil {
		_ = client.Close()
		return &TransientError{SessionID: id, Err: fmt.Errorf("liveness probe: %w", err)}
	}

	if err := m.activate(ctx, id, name, client, path); err != nil {
		_ = client.Close()
		return &TransientError{SessionID: id, Err: err}
	}
	return nil
}

// RestoreAll restores every persisted session that was not explicitly
// disconnected. Transient failures start the reconnect loop.
func (m *Manager) RestoreAll(ctx context.Context) error {
	sessions, err := m.db.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		if status.Parse(s.Status) == status.Disconnected {
			continue
		}
		wg.Add(1)
		go func(s store.Session) {
			defer wg.Done()
			logger := m.logger.With(zap.String("session", s.ID))
			err := m.RestoreSession(ctx, s.ID, s.Name)
			var credErr *CredentialError
			switch {
			case err == nil:
				logger.Info("session restored")
			case errors.As(err, &credErr):
				logger.Warn("session credential unusable, pairing required", zap.Error(err))
			default:
				logger.Warn("session restore failed, reconnecting", zap.Error(err))
				go m.AttemptAutoReconnect(s.ID, s.Name, 1)
			}
		}(s)
	}
	wg.Wait()
	return nil
}

func (m *Manager) startClient(ctx context.Context, id, name, credPath string, restore bool, opts []CreateOption) (chat.Client, error) {
	if err := m.creds.EnsureDir(id); err != nil {
		return nil, fmt.Errorf("prepare session dir: %w", err)
	}
	if removed, err := m.creds.CleanLocks(id); err != nil {
		m.logger.Warn("clean lock artifacts", zap.String("session", id), zap.Error(err))
	} else if len(removed) > 0 {
		m.logger.Info("removed stale lock artifacts", zap.String("session", id), zap.Strings("files", removed))
	}

	o := chat.Options{
		SessionID:      id,
		Name:           name,
		CredentialPath: credPath,
		WorkDir:        m.creds.WorkDir(id),
		Restore:        restore,
		OnQR:           m.onQR(id),
		OnPairCode:     m.onPairCode(id),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout)
	defer cancel()
	return m.factory.Create(cctx, o)
}

// activate is the shared success path of create and restore.
func (m *Manager) activate(ctx context.Context, id, name string, client chat.Client, credPath string) error {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	device, err := client.HostDevice(pctx)
	cancel()
	if err != nil {
		return fmt.Errorf("read host device: %w", err)
	}

	caps := chat.Describe(client)
	client.OnState(m.stateHandler(id, name))
	m.registry.Set(Entry{ID: id, Name: name, Client: client, Caps: caps, Status: status.Connecting})
	if err := m.transition(ctx, id, status.Connected); err != nil {
		m.registry.Delete(id)
		return err
	}
	if err := m.db.SetSessionConnected(ctx, id, device.Number, credPath, time.Now()); err != nil {
		m.logger.Error("persist connected session", zap.String("session", id), zap.Error(err))
	}
	if m.binder != nil {
		m.binder.Bind(id, client, caps)
	}
	m.StartHealthCheck(id, name)

	m.logger.Info("session connected",
		zap.String("session", id),
		zap.String("device", device.Number),
		zap.Strings("capabilities", caps.Names()),
	)
	return nil
}

func (m *Manager) onQR(id string) func(string) {
	return func(code string) {
		ctx := m.ctx
		if err := m.db.SetSessionQR(ctx, id, code); err != nil {
			m.logger.Warn("persist QR code", zap.String("session", id), zap.Error(err))
		}
		if err := qrcode.WriteFile(code, qrcode.Medium, 256, m.creds.QRImagePath(id)); err != nil {
			m.logger.Warn("write QR image", zap.String("session", id), zap.Error(err))
		}
		m.bus.Publish(bus.NewEvent(bus.SessionQR, id, code))
	}
}

func (m *Manager) onPairCode(id string) func(string) {
	return func(code string) {
		if err := m.db.SetSessionPairingCode(m.ctx, id, code); err != nil {
			m.logger.Warn("persist pairing code", zap.String("session", id), zap.Error(err))
		}
		m.bus.Publish(bus.NewEvent(bus.SessionPairCode, id, code))
	}
}

// stateHandler reacts to client connection events. A revoked credential is
// purged; plain disconnects are left to the health check.
func (m *Manager) stateHandler(id, name string) func(chat.State) {
	return func(s chat.State) {
		switch s {
		case chat.StateLoggedOut:
			m.logger.Warn("session logged out by platform", zap.String("session", id))
			go m.CleanupCorruptedToken(m.ctx, id, name)
		case chat.StateDisconnected:
			m.logger.Debug("client reported disconnect", zap.String("session", id))
		}
	}
}

// StartHealthCheck schedules the periodic liveness probe of a session,
// replacing any previous one.
func (m *Manager) StartHealthCheck(id, name string) {
	job := cron.FuncJob(func() { m.probe(id, name) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.health[id]; ok {
		m.cron.Remove(old)
	}
	m.health[id] = m.cron.Schedule(schedule.Every(m.cfg.HealthInterval), job)
}

func (m *Manager) stopHealthCheck(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entryID, ok := m.health[id]; ok {
		m.cron.Remove(entryID)
		delete(m.health, id)
	}
}

func (m *Manager) probe(id, name string) {
	entry, ok := m.registry.Get(id)
	if !ok {
		m.stopHealthCheck(id)
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ProbeTimeout)
	defer cancel()
	if _, err := entry.Client.HostDevice(ctx); err != nil {
		m.logger.Warn("health check failed", zap.String("session", id), zap.Error(err))
		m.stopHealthCheck(id)
		go m.AttemptAutoReconnect(id, name, 1)
	}
}

// AttemptAutoReconnect runs the bounded reconnect loop for a session starting
// at attempt. Only one loop runs per session; extra calls return immediately.
// Exhaustion leaves the session disconnected with its pairing data cleared
// and publishes a single bus.SessionReconnectFailed.
func (m *Manager) AttemptAutoReconnect(id, name string, attempt int) {
	m.mu.Lock()
	if m.reconnecting[id] {
		m.mu.Unlock()
		return
	}
	m.reconnecting[id] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.reconnecting, id)
		m.mu.Unlock()
	}()

	ctx := m.ctx
	logger := m.logger.With(zap.String("session", id))

	m.stopHealthCheck(id)
	if e, ok := m.registry.Delete(id); ok {
		_ = e.Client.Close()
	}
	switch m.machine(id).Current() {
	case status.Disconnected:
		logger.Info("session disconnected, skipping reconnect")
		return
	case status.Connected:
		if err := m.transition(ctx, id, status.Connecting); err != nil {
			return
		}
	}

	if attempt < 1 {
		attempt = 1
	}
	var lastErr error
	for ; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectBackoff * time.Duration(attempt)):
		}

		lastErr = m.RestoreSession(ctx, id, name)
		if lastErr == nil {
			logger.Info("session reconnected", zap.Int("attempt", attempt))
			return
		}
		var credErr *CredentialError
		if errors.As(lastErr, &credErr) {
			logger.Warn("reconnect stopped, credential unusable", zap.Error(lastErr))
			return
		}
		logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
	}

	_ = m.settle(ctx, id)
	if err := m.db.ClearSessionPairing(ctx, id); err != nil {
		logger.Error("clear pairing data", zap.Error(err))
	}
	failure := ReconnectFailed{Attempts: m.cfg.MaxReconnectAttempts}
	if lastErr != nil {
		failure.LastError = lastErr.Error()
	}
	logger.Error("reconnect attempts exhausted", zap.Int("attempts", failure.Attempts), zap.String("last_error", failure.LastError))
	m.bus.Publish(bus.NewEvent(bus.SessionReconnectFailed, id, failure))
}

// CleanupCorruptedToken purges the credential artifact and working directory
// and leaves the session disconnected without pairing data.
func (m *Manager) CleanupCorruptedToken(ctx context.Context, id, name string) {
	logger := m.logger.With(zap.String("session", id))

	m.stopHealthCheck(id)
	if e, ok := m.registry.Delete(id); ok {
		_ = e.Client.Close()
	}
	if err := m.creds.Purge(id); err != nil {
		logger.Error("purge credential", zap.Error(err))
	}
	_ = m.settle(ctx, id)
	if err := m.db.ClearSessionPairing(ctx, id); err != nil {
		logger.Error("clear pairing data", zap.Error(err))
	}
	logger.Warn("credential purged, new pairing required", zap.String("name", name))
}

// Disconnect closes a live session on operator request. Its credential and
// persisted record are kept; it is not restored on the next start.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	m.stopHealthCheck(id)
	e, ok := m.registry.Delete(id)
	if ok {
		_ = e.Client.Close()
	}
	if m.machine(id).Current() == status.Disconnected {
		if !ok {
			return fmt.Errorf("session %s is not live", id)
		}
		return nil
	}
	return m.settle(ctx, id)
}

// Shutdown stops all jobs and closes every client without touching the
// persisted statuses, so the sessions restore on the next start.
func (m *Manager) Shutdown() {
	m.cancel()
	<-m.cron.Stop().Done()
	for _, e := range m.registry.List() {
		m.registry.Delete(e.ID)
		if err := e.Client.Close(); err != nil {
			m.logger.Warn("close client", zap.String("session", e.ID), zap.Error(err))
		}
	}
}
