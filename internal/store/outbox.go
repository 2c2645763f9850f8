package store

import (
	"context"
	"time"
)

// QueueOutbox adds a campaign send to the outbox and sets e.ID.
func (db *DB) QueueOutbox(ctx context.Context, e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	if e.Kind == "" {
		e.Kind = "text"
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO outbox (campaign, session_id, recipient, kind, body, media_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.Campaign, e.SessionID, e.Recipient, e.Kind, e.Body, e.MediaPath, now, now)
	if err != nil {
		return err
	}
	e.Status = "queued"
	e.ID, err = res.LastInsertId()
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(ctx context.Context, id int64) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'sending', updated_at = ? WHERE id = ?`, now, id)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(ctx context.Context, id int64, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE id = ?`, serverMsgID, now, id)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(ctx context.Context, id int64, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ?`, errMsg, now, id)
	return err
}

// PendingOutbox returns up to limit queued entries, oldest first.
func (db *DB) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, campaign, session_id, recipient, kind, body, media_path, status, error_message, server_msg_id
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.Campaign, &e.SessionID, &e.Recipient, &e.Kind, &e.Body, &e.MediaPath, &e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetOutbox returns an outbox entry by id.
func (db *DB) GetOutbox(ctx context.Context, id int64) (*OutboxEntry, error) {
	var e OutboxEntry
	err := db.QueryRowContext(ctx, `
		SELECT id, campaign, session_id, recipient, kind, body, media_path, status, error_message, server_msg_id
		FROM outbox WHERE id = ?`, id).
		Scan(&e.ID, &e.Campaign, &e.SessionID, &e.Recipient, &e.Kind, &e.Body, &e.MediaPath, &e.Status, &e.ErrorMessage, &e.ServerMsgID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
