package chat

import (
	"fmt"
	"strings"
)

// UserServer is the address domain of individual accounts.
const UserServer = "s.whatsapp.net"

// NormalizeAddress maps a recipient or sender to the canonical contact
// identifier. Full addresses are lowercased and lose any device suffix
// ("5511999990000:12@s.whatsapp.net" becomes "5511999990000@s.whatsapp.net").
// Anything else is treated as a phone number: punctuation is dropped and at
// least 8 digits must remain.
func NormalizeAddress(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	if user, server, ok := strings.Cut(s, "@"); ok {
		if user == "" || server == "" {
			return "", fmt.Errorf("invalid address %q", s)
		}
		if i := strings.IndexByte(user, ':'); i >= 0 {
			user = user[:i]
		}
		return user + "@" + server, nil
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 8 {
		return "", fmt.Errorf("invalid phone number %q", s)
	}
	return digits + "@" + UserServer, nil
}
