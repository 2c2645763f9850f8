package daemon

import (
	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter mirrors session status changes into the gRPC health
// service. Each session is a service named by its id and is SERVING only
// while connected. The empty service name reports the daemon itself.
type HealthReporter struct {
	srv    *health.Server
	bus    *bus.Bus
	logger *zap.Logger
	unsub  func()
	done   chan struct{}
}

// NewHealthReporter creates a HealthReporter.
func NewHealthReporter(b *bus.Bus, logger *zap.Logger) *HealthReporter {
	return &HealthReporter{srv: health.NewServer(), bus: b, logger: logger}
}

// Server returns the health service to register on a gRPC server.
func (h *HealthReporter) Server() *health.Server {
	return h.srv
}

// Start marks the daemon serving and begins following session.status events.
func (h *HealthReporter) Start() {
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var ch <-chan bus.Event
	ch, h.unsub = h.bus.Subscribe(bus.SessionStatus, 256)
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		for evt := range ch {
			if change, ok := evt.Payload.(status.StatusChange); ok {
				h.set(evt.SessionID, change.To)
			}
		}
	}()
}

func (h *HealthReporter) set(sessionID string, s status.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s == status.Connected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.logger.Debug("session health", zap.String("session", sessionID), zap.String("status", st.String()))
	h.srv.SetServingStatus(sessionID, st)
}

// Stop unsubscribes and flips every service to NOT_SERVING.
func (h *HealthReporter) Stop() {
	if h.unsub == nil {
		return
	}
	h.unsub()
	<-h.done
	h.unsub = nil
	h.srv.Shutdown()
}
