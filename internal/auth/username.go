package auth

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxUsernameLength bounds usernames in characters, not bytes.
const MaxUsernameLength = 150

// Usernames allow letters, digits and @/./+/-/_ in any script.
var usernameRE = regexp.MustCompile(`^[\pL\pN@\.\+\-_]+$`)

// NormalizeUsername applies NFKC normalization so that visually identical
// usernames compare equal regardless of how they were typed.
func NormalizeUsername(username string) string {
	return norm.NFKC.String(username)
}

// ValidUsername reports whether username is non-empty, within the length
// limit and restricted to the allowed character set. Callers normalize
// before validating.
func ValidUsername(username string) bool {
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return false
	}
	return usernameRE.MatchString(username)
}
