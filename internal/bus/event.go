package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	SessionID string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter on the namespace prefix ("session.", "message.", ...).
const (
	SessionStatus          = "session.status"
	SessionQR              = "session.qr"
	SessionPairCode        = "session.pair_code"
	SessionReconnectFailed = "session.reconnect_failed"
	MessageReceived        = "message.received"
	MessageAck             = "message.ack"
	ContactUpdated         = "contact.updated"
	ContactPresence        = "contact.presence"
	PollAnswered           = "poll.answered"
	QueueAdmitted          = "queue.admitted"
	OutboxSent             = "outbox.sent"
	OutboxFailed           = "outbox.failed"
)

// NewEvent builds an event stamped with the current time.
func NewEvent(kind, sessionID string, payload any) Event {
	return Event{Kind: kind, SessionID: sessionID, Timestamp: time.Now(), Payload: payload}
}
