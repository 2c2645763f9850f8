package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertMessage persists m and, in the same transaction, updates the
// contact's last-message preview and timestamp. Inbound messages also
// increment the unread counter. m.ID is set on success.
func (db *DB) InsertMessage(ctx context.Context, m *Message, preview string) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	if m.Status == "" {
		m.Status = "received"
	}

	unread := 1
	if m.FromMe {
		unread = 0
	}
	var id int64
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, contact_id, external_id, content, type, media_url, from_me, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.SessionID, m.ContactID, m.ExternalID, m.Content, m.Type, m.MediaURL, m.FromMe, m.Status, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE contacts SET
				last_message = ?, last_message_at = ?, unread_count = unread_count + ?, updated_at = ?
			WHERE id = ?`,
			preview, m.CreatedAt, unread, time.Now().UnixMilli(), m.ContactID); err != nil {
			return fmt.Errorf("update contact preview: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// UpdateMessageStatus sets the delivery status of a message by its external id.
// Returns the number of rows updated.
func (db *DB) UpdateMessageStatus(ctx context.Context, sessionID, externalID, status string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET status = ? WHERE session_id = ? AND external_id = ?`,
		status, sessionID, externalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMessages returns the latest messages for a contact, newest first.
func (db *DB) ListMessages(ctx context.Context, contactID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, contact_id, external_id, content, type, media_url, from_me, status, created_at
		FROM messages
		WHERE contact_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, contactID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ContactID, &m.ExternalID, &m.Content, &m.Type, &m.MediaURL, &m.FromMe, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
