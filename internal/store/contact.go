package store

import (
	"context"
	"database/sql"
	"time"
)

const contactColumns = `id, identifier, name, avatar_url, avatar_updated_at, last_message, last_message_at, unread_count`

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Identifier, &c.Name, &c.AvatarURL, &c.AvatarUpdatedAt, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreateContact returns the contact for identifier, inserting it with
// name when missing. Concurrent callers converge on the same row: the insert
// is ignored on conflict and the row is re-read.
func (db *DB) FindOrCreateContact(ctx context.Context, identifier, name string) (*Contact, bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT INTO contacts (identifier, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identifier) DO NOTHING`,
		identifier, name, now, now)
	if err != nil {
		return nil, false, err
	}
	n, _ := res.RowsAffected()

	c, err := db.GetContactByIdentifier(ctx, identifier)
	if err != nil {
		return nil, false, err
	}
	return c, n == 1, nil
}

// GetContact returns a contact by id, or nil if it does not exist.
func (db *DB) GetContact(ctx context.Context, id int64) (*Contact, error) {
	return scanContact(db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
}

// GetContactByIdentifier returns a contact by identifier, or nil if it does not exist.
func (db *DB) GetContactByIdentifier(ctx context.Context, identifier string) (*Contact, error) {
	return scanContact(db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE identifier = ?`, identifier))
}

// UpdateContactName replaces the stored display name.
func (db *DB) UpdateContactName(ctx context.Context, id int64, name string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE contacts SET name = ?, updated_at = ? WHERE id = ?`, name, now, id)
	return err
}

// UpdateContactAvatar stores a refreshed avatar URL.
func (db *DB) UpdateContactAvatar(ctx context.Context, id int64, url string, refreshedAt time.Time) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE contacts SET avatar_url = ?, avatar_updated_at = ?, updated_at = ? WHERE id = ?`,
		url, refreshedAt.UnixMilli(), now, id)
	return err
}

// MarkContactRead resets the unread counter.
func (db *DB) MarkContactRead(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE contacts SET unread_count = 0 WHERE id = ?`, id)
	return err
}
