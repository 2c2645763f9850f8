package credstore

import (
	"fmt"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateID checks that id conforms to session naming rules. The id is used
// as a directory name, so anything outside the pattern is rejected.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid session id %q: must match ^[a-z0-9_-]{1,64}$", id)
	}
	return nil
}
