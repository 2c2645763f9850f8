package store

import (
	"context"
	"database/sql"
	"time"
)

// UpsertSession inserts a session record or updates its name. Status and
// pairing columns are owned by the dedicated setters below.
func (db *DB) UpsertSession(ctx context.Context, s *Session) error {
	now := time.Now().UnixMilli()
	status := s.Status
	if status == "" {
		status = "disconnected"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, status, credential_ref, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE sessions.name END,
			updated_at = excluded.updated_at`,
		s.ID, s.Name, status, s.CredentialRef, now)
	return err
}

// GetSession returns a session by id, or nil if it does not exist.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := db.QueryRowContext(ctx, `
		SELECT id, name, status, credential_ref, device_number, pairing_code, qr_code, connected_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.Status, &s.CredentialRef, &s.DeviceNumber, &s.PairingCode, &s.QRCode, &s.ConnectedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns all persisted sessions ordered by id.
func (db *DB) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, status, credential_ref, device_number, pairing_code, qr_code, connected_at, updated_at
		FROM sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Name, &s.Status, &s.CredentialRef, &s.DeviceNumber, &s.PairingCode, &s.QRCode, &s.ConnectedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetSessionStatus persists a status change.
func (db *DB) SetSessionStatus(ctx context.Context, id, status string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	return err
}

// SetSessionConnected records the bound device, credential reference and
// connection time, and drops any pending pairing codes.
func (db *DB) SetSessionConnected(ctx context.Context, id, deviceNumber, credentialRef string, connectedAt time.Time) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE sessions SET
			device_number = ?, credential_ref = ?, connected_at = ?,
			pairing_code = '', qr_code = '', updated_at = ?
		WHERE id = ?`,
		deviceNumber, credentialRef, connectedAt.UnixMilli(), now, id)
	return err
}

// SetSessionQR stores the latest QR payload for a pairing session.
func (db *DB) SetSessionQR(ctx context.Context, id, qr string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE sessions SET qr_code = ?, updated_at = ? WHERE id = ?`, qr, now, id)
	return err
}

// SetSessionPairingCode stores the phone pairing code for a pairing session.
func (db *DB) SetSessionPairingCode(ctx context.Context, id, code string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE sessions SET pairing_code = ?, updated_at = ? WHERE id = ?`, code, now, id)
	return err
}

// ClearSessionPairing removes the credential reference, device and pairing
// data so the session needs a new explicit pairing.
func (db *DB) ClearSessionPairing(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE sessions SET
			credential_ref = '', device_number = '', pairing_code = '', qr_code = '', updated_at = ?
		WHERE id = ?`, now, id)
	return err
}
