package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under the state root, so the charset
// is restricted to lowercase filesystem-safe characters.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks a session name against the naming rules: 1-64
// characters from [a-z0-9_-].
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("session name %q: use 1-64 characters from a-z, 0-9, hyphen and underscore", name)
	}
	return nil
}
