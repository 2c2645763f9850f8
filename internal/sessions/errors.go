package sessions

import "fmt"

// CredentialError means the session's credential artifact is missing, empty
// or revoked. The artifact has been purged and the session needs a new
// pairing; it is never retried automatically.
type CredentialError struct {
	SessionID string
	Err       error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("session %s: credential unusable: %v", e.SessionID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransientError is a connectivity or client startup failure that may
// succeed on retry.
type TransientError struct {
	SessionID string
	Err       error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("session %s: transient failure: %v", e.SessionID, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
