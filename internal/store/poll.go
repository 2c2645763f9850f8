package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreatePoll persists p as active and sets p.ID.
func (db *DB) CreatePoll(ctx context.Context, p *Poll) error {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return err
	}
	if p.Type == "" {
		p.Type = PollSingle
	}
	p.Status = PollActive
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO polls (contact_id, session_id, created_by, question, options, type, status, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ContactID, p.SessionID, p.CreatedBy, p.Question, string(options), p.Type, p.Status, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// LatestActivePoll returns the most recent active poll for a contact, or nil.
func (db *DB) LatestActivePoll(ctx context.Context, contactID int64) (*Poll, error) {
	return db.scanPoll(db.QueryRowContext(ctx, `
		SELECT id, contact_id, session_id, created_by, question, options, type, status, expires_at, created_at
		FROM polls WHERE contact_id = ? AND status = 'active'
		ORDER BY created_at DESC, id DESC LIMIT 1`, contactID))
}

// GetPoll returns a poll by id, or nil.
func (db *DB) GetPoll(ctx context.Context, id int64) (*Poll, error) {
	return db.scanPoll(db.QueryRowContext(ctx, `
		SELECT id, contact_id, session_id, created_by, question, options, type, status, expires_at, created_at
		FROM polls WHERE id = ?`, id))
}

func (db *DB) scanPoll(row *sql.Row) (*Poll, error) {
	var p Poll
	var options string
	err := row.Scan(&p.ID, &p.ContactID, &p.SessionID, &p.CreatedBy, &p.Question, &options, &p.Type, &p.Status, &p.ExpiresAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
		return nil, fmt.Errorf("decode options of poll %d: %w", p.ID, err)
	}
	return &p, nil
}

// SetPollStatus updates a poll's status.
func (db *DB) SetPollStatus(ctx context.Context, id int64, status string) error {
	_, err := db.ExecContext(ctx, `UPDATE polls SET status = ? WHERE id = ?`, status, id)
	return err
}

// HasPollResponse reports whether contactID already answered pollID.
func (db *DB) HasPollResponse(ctx context.Context, pollID, contactID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM poll_responses WHERE poll_id = ? AND contact_id = ?`, pollID, contactID).Scan(&n)
	return n > 0, err
}

// InsertPollResponse stores a response unless one already exists for the
// (poll, contact) pair. Returns whether a row was inserted.
func (db *DB) InsertPollResponse(ctx context.Context, r *PollResponse) (bool, error) {
	selected, err := json.Marshal(r.Selected)
	if err != nil {
		return false, err
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO poll_responses (poll_id, contact_id, selected, raw_text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.PollID, r.ContactID, string(selected), r.RawText, r.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// PollResponses returns all responses of a poll.
func (db *DB) PollResponses(ctx context.Context, pollID int64) ([]PollResponse, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT poll_id, contact_id, selected, raw_text, created_at
		FROM poll_responses WHERE poll_id = ? ORDER BY id`, pollID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PollResponse
	for rows.Next() {
		var r PollResponse
		var selected string
		if err := rows.Scan(&r.PollID, &r.ContactID, &selected, &r.RawText, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(selected), &r.Selected); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
