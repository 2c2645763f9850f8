package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const queueColumns = `id, contact_id, sector, status, assigned_user, created_at, updated_at, finished_at`

func scanQueueEntry(row interface{ Scan(...any) error }) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.ContactID, &e.Sector, &e.Status, &e.AssignedUser, &e.CreatedAt, &e.UpdatedAt, &e.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ActiveQueueEntry returns the waiting or attending entry for a contact, or nil.
func (db *DB) ActiveQueueEntry(ctx context.Context, contactID int64) (*QueueEntry, error) {
	return scanQueueEntry(db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM queue_entries
		WHERE contact_id = ? AND status IN ('waiting', 'attending')`, contactID))
}

// GetQueueEntry returns an entry by id, or nil.
func (db *DB) GetQueueEntry(ctx context.Context, id int64) (*QueueEntry, error) {
	return scanQueueEntry(db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE id = ?`, id))
}

// InsertWaitingEntry inserts a waiting entry unless the contact already has an
// active one. The partial unique index turns a concurrent duplicate into a
// no-op; the active entry is returned either way along with whether this
// call created it.
func (db *DB) InsertWaitingEntry(ctx context.Context, contactID int64, sector string) (*QueueEntry, bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO queue_entries (contact_id, sector, status, created_at, updated_at)
		VALUES (?, ?, 'waiting', ?, ?)`,
		contactID, sector, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert queue entry: %w", err)
	}
	n, _ := res.RowsAffected()

	e, err := db.ActiveQueueEntry(ctx, contactID)
	if err != nil {
		return nil, false, err
	}
	if e == nil {
		return nil, false, fmt.Errorf("queue entry for contact %d vanished after insert", contactID)
	}
	return e, n == 1, nil
}

// ListQueue returns entries with the given status for a sector, oldest first.
// An empty sector matches all sectors.
func (db *DB) ListQueue(ctx context.Context, sector, status string) ([]QueueEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM queue_entries
		WHERE status = ? AND (? = '' OR sector = ?)
		ORDER BY created_at ASC, id ASC`, status, sector, sector)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// AttendQueueEntry moves a waiting entry to attending for user.
func (db *DB) AttendQueueEntry(ctx context.Context, id int64, user string) error {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE queue_entries SET status = 'attending', assigned_user = ?, updated_at = ?
		WHERE id = ? AND status = 'waiting'`, user, now, id)
	if err != nil {
		return err
	}
	return expectOne(res, "attend", id)
}

// FinishQueueEntry closes an active entry.
func (db *DB) FinishQueueEntry(ctx context.Context, id int64) error {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE queue_entries SET status = 'finished', updated_at = ?, finished_at = ?
		WHERE id = ? AND status IN ('waiting', 'attending')`, now, now, id)
	if err != nil {
		return err
	}
	return expectOne(res, "finish", id)
}

// TransferQueueEntry marks an active entry transferred and opens a new
// waiting entry for the same contact in sector, in one transaction.
func (db *DB) TransferQueueEntry(ctx context.Context, id int64, sector string) (*QueueEntry, error) {
	now := time.Now().UnixMilli()
	var contactID, newID int64
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT contact_id FROM queue_entries WHERE id = ? AND status IN ('waiting', 'attending')`, id).
			Scan(&contactID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("transfer queue entry %d: not active", id)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE queue_entries SET status = 'transferred', updated_at = ?, finished_at = ? WHERE id = ?`,
			now, now, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (contact_id, sector, status, created_at, updated_at)
			VALUES (?, ?, 'waiting', ?, ?)`, contactID, sector, now, now)
		if err != nil {
			return fmt.Errorf("insert transferred entry: %w", err)
		}
		newID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &QueueEntry{
		ID:        newID,
		ContactID: contactID,
		Sector:    sector,
		Status:    QueueWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func expectOne(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s queue entry %d: no matching entry in the required status", op, id)
	}
	return nil
}
