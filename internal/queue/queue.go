// Package queue admits contacts into the attendance queue and moves entries
// through their lifecycle.
package queue

import (
	"context"
	"fmt"

	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/store"
	"go.uber.org/zap"
)

// Admission is the payload of queue.admitted.
type Admission struct {
	EntryID   int64
	ContactID int64
	Sector    string
}

// Goodbyer sends the closing message of an attendance.
type Goodbyer interface {
	Goodbye(ctx context.Context, sessionID string, contact *store.Contact) (string, error)
}

// Service owns queue transitions.
type Service struct {
	db      *store.DB
	goodbye Goodbyer
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewService creates a Service. goodbye may be nil.
func NewService(db *store.DB, goodbye Goodbyer, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{db: db, goodbye: goodbye, bus: b, logger: logger}
}

// Admit returns the contact's waiting or attending entry, creating a waiting
// one in sector when none exists. created reports whether this call
// inserted it.
func (s *Service) Admit(ctx context.Context, sessionID string, contactID int64, sector string) (id int64, created bool, err error) {
	existing, err := s.db.ActiveQueueEntry(ctx, contactID)
	if err != nil {
		return 0, false, fmt.Errorf("check queue: %w", err)
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	e, created, err := s.db.InsertWaitingEntry(ctx, contactID, sector)
	if err != nil {
		return 0, false, err
	}
	if created {
		s.logger.Info("contact admitted to queue",
			zap.Int64("entry_id", e.ID), zap.Int64("contact_id", contactID), zap.String("sector", e.Sector))
		s.bus.Publish(bus.NewEvent(bus.QueueAdmitted, sessionID, Admission{
			EntryID:   e.ID,
			ContactID: contactID,
			Sector:    e.Sector,
		}))
	}
	return e.ID, created, nil
}

// Attend assigns a waiting entry to user.
func (s *Service) Attend(ctx context.Context, id int64, user string) error {
	if user == "" {
		return fmt.Errorf("attend queue entry %d: empty user", id)
	}
	return s.db.AttendQueueEntry(ctx, id, user)
}

// Transfer moves an active entry to another sector. The old entry is kept
// as transferred and a new waiting entry is returned.
func (s *Service) Transfer(ctx context.Context, id int64, sector string) (*store.QueueEntry, error) {
	if sector == "" {
		return nil, fmt.Errorf("transfer queue entry %d: empty sector", id)
	}
	e, err := s.db.TransferQueueEntry(ctx, id, sector)
	if err != nil {
		return nil, err
	}
	s.logger.Info("queue entry transferred", zap.Int64("from", id), zap.Int64("to", e.ID), zap.String("sector", sector))
	return e, nil
}

// Finish closes an active entry and sends the goodbye through sessionID.
// A failed goodbye is logged; the entry stays finished.
func (s *Service) Finish(ctx context.Context, sessionID string, id int64) error {
	entry, err := s.db.GetQueueEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("queue entry %d not found", id)
	}
	if err := s.db.FinishQueueEntry(ctx, id); err != nil {
		return err
	}
	if s.goodbye == nil {
		return nil
	}

	contact, err := s.db.GetContact(ctx, entry.ContactID)
	if err != nil || contact == nil {
		s.logger.Warn("goodbye skipped, contact not found", zap.Int64("contact_id", entry.ContactID), zap.Error(err))
		return nil
	}
	if _, err := s.goodbye.Goodbye(ctx, sessionID, contact); err != nil {
		s.logger.Warn("goodbye not sent", zap.Int64("entry_id", id), zap.Error(err))
	}
	return nil
}
