package credstore

import (
	"os"
	"path/filepath"
)

// artifactName is the credential artifact written by the chat client.
const artifactName = "session.db"

// Store locates per-session credential artifacts and working directories
// under a base directory:
//
//	<base>/sessions/<id>/session.db   current artifact
//	<base>/sessions/<id>/work/        working directory (QR image, client scratch)
//	<base>/sessions/<id>/whatsapp.db  legacy artifact
//	<base>/tokens/<id>.db             legacy artifact
type Store struct {
	base string
}

// New returns a Store rooted at base.
func New(base string) *Store {
	return &Store{base: base}
}

// BaseDir returns the root directory.
func (s *Store) BaseDir() string { return s.base }

// Dir returns the session-specific directory.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.base, "sessions", id)
}

// CredentialPath returns the current credential artifact path for a session.
func (s *Store) CredentialPath(id string) string {
	return filepath.Join(s.Dir(id), artifactName)
}

// WorkDir returns the session's working directory.
func (s *Store) WorkDir(id string) string {
	return filepath.Join(s.Dir(id), "work")
}

// QRImagePath returns where the latest pairing QR image is written.
func (s *Store) QRImagePath(id string) string {
	return filepath.Join(s.WorkDir(id), "qr.png")
}

// legacyPaths returns artifact locations written by older deployments.
func (s *Store) legacyPaths(id string) []string {
	return []string{
		filepath.Join(s.base, "tokens", id+".db"),
		filepath.Join(s.Dir(id), "whatsapp.db"),
	}
}

// DBPath returns the desk database path.
func (s *Store) DBPath() string {
	return filepath.Join(s.base, "desk.db")
}

// SocketPath returns the UDS socket path of the health endpoint.
func (s *Store) SocketPath() string {
	return filepath.Join(s.base, "deskd.sock")
}

// LogPath returns the daemon log file path.
func (s *Store) LogPath() string {
	return filepath.Join(s.base, "logs", "deskd.log")
}

// EnsureDir creates the session directory tree with proper permissions.
func (s *Store) EnsureDir(id string) error {
	dirs := []string{
		s.Dir(id),
		s.WorkDir(id),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
