package credstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/matheus3301/wppdesk/internal/lock"
)

var (
	// ErrNoArtifact means no credential artifact exists at any known path.
	ErrNoArtifact = errors.New("no credential artifact")
	// ErrEmptyArtifact means artifacts exist but all of them are empty.
	ErrEmptyArtifact = errors.New("empty credential artifact")
)

// lockDepth bounds the lock-artifact walk below a session directory.
const lockDepth = 4

// Locate returns the first non-empty credential artifact for a session,
// searching the current path before the legacy ones.
func (s *Store) Locate(id string) (string, error) {
	candidates := append([]string{s.CredentialPath(id)}, s.legacyPaths(id)...)
	sawEmpty := false
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			continue
		}
		if info.Size() == 0 {
			sawEmpty = true
			continue
		}
		return p, nil
	}
	if sawEmpty {
		return "", fmt.Errorf("session %s: %w", id, ErrEmptyArtifact)
	}
	return "", fmt.Errorf("session %s: %w", id, ErrNoArtifact)
}

// Purge removes every credential artifact of a session, current and legacy,
// together with SQLite sidecar files and the working directory.
func (s *Store) Purge(id string) error {
	var errs []error
	candidates := append([]string{s.CredentialPath(id)}, s.legacyPaths(id)...)
	for _, p := range candidates {
		for _, f := range []string{p, p + "-wal", p + "-shm", p + "-journal"} {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}
	if err := os.RemoveAll(s.WorkDir(id)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CleanLocks removes stale lock-type files left in a session directory by a
// crashed client. Credential data is never touched.
func (s *Store) CleanLocks(id string) ([]string, error) {
	return lock.CleanArtifacts(s.Dir(id), lockDepth)
}
