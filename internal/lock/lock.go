// Package lock guards a base directory with an advisory flock so only one
// deskd serves it, and cleans lock artifacts left by crashed clients.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the daemon lock inside the base directory.
const FileName = "deskd.pid"

// Owner identifies the process holding the lock.
type Owner struct {
	PID     int
	Started time.Time
}

func (o Owner) encode() string {
	return fmt.Sprintf("pid=%d\nstarted=%s\n", o.PID, o.Started.UTC().Format(time.RFC3339))
}

// readOwner parses a lock file. Missing or garbled fields stay zero.
func readOwner(path string) Owner {
	var o Owner
	f, err := os.Open(path)
	if err != nil {
		return o
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "started":
			o.Started, _ = time.Parse(time.RFC3339, val)
		}
	}
	return o
}

// LockHeldError is returned when another deskd process holds the base
// directory lock.
type LockHeldError struct {
	Owner
	Path string
}

func (e *LockHeldError) Error() string {
	if e.Started.IsZero() {
		return fmt.Sprintf("deskd lock held by PID %d (%s)", e.PID, e.Path)
	}
	return fmt.Sprintf("deskd lock held by PID %d since %s (%s)", e.PID, e.Started.Format(time.RFC3339), e.Path)
}

// Lock is an acquired daemon lock.
type Lock struct {
	f     *os.File
	path  string
	owner Owner
}

// Acquire takes the exclusive lock on dir, creating it if needed. It fails
// with *LockHeldError while another process holds it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, &LockHeldError{Owner: readOwner(path), Path: path}
	}

	l := &Lock{f: f, path: path, owner: Owner{PID: os.Getpid(), Started: time.Now()}}
	if err := l.writeOwner(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	return l, nil
}

func (l *Lock) writeOwner() error {
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	_, err := l.f.WriteAt([]byte(l.owner.encode()), 0)
	return err
}

// Owner returns the process recorded in the lock.
func (l *Lock) Owner() Owner { return l.owner }

// Release drops the lock and removes its file. It is a no-op on a nil or
// already released lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}
