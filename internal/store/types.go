package store

// Session is the persisted record of one managed chat-platform session.
type Session struct {
	ID            string
	Name          string
	Status        string
	CredentialRef string
	DeviceNumber  string
	PairingCode   string
	QRCode        string
	ConnectedAt   int64
	UpdatedAt     int64
}

// Contact represents a customer identified by a normalized identifier.
type Contact struct {
	ID              int64
	Identifier      string
	Name            string
	AvatarURL       string
	AvatarUpdatedAt int64
	LastMessage     string
	LastMessageAt   int64
	UnreadCount     int
}

// Message is one inbound or outbound message. Only Status changes after insert.
type Message struct {
	ID         int64
	SessionID  string
	ContactID  int64
	ExternalID string
	Content    string
	Type       string
	MediaURL   *string
	FromMe     bool
	Status     string
	CreatedAt  int64
}

// Queue entry statuses.
const (
	QueueWaiting     = "waiting"
	QueueAttending   = "attending"
	QueueFinished    = "finished"
	QueueTransferred = "transferred"
)

// QueueEntry is a unit of pending or active agent work for one contact.
type QueueEntry struct {
	ID           int64
	ContactID    int64
	Sector       string
	Status       string
	AssignedUser string
	CreatedAt    int64
	UpdatedAt    int64
	FinishedAt   int64
}

// Poll statuses and types.
const (
	PollActive  = "active"
	PollClosed  = "closed"
	PollExpired = "expired"

	PollSingle   = "single"
	PollMultiple = "multiple"
)

// Poll is a multiple-choice prompt sent to one contact.
type Poll struct {
	ID        int64
	ContactID int64
	SessionID string
	CreatedBy string
	Question  string
	Options   []string
	Type      string
	Status    string
	ExpiresAt int64
	CreatedAt int64
}

// PollResponse records the parsed answer of a contact. Selected holds 1-based ordinals.
type PollResponse struct {
	PollID    int64
	ContactID int64
	Selected  []int
	RawText   string
	CreatedAt int64
}

// OutboxEntry represents a pending campaign send.
type OutboxEntry struct {
	ID           int64
	Campaign     string
	SessionID    string
	Recipient    string
	Kind         string
	Body         string
	MediaPath    string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}
