// Package validate holds the input-shape and identity-matching rules shared
// by the account, friends and groups services. It performs no I/O.
package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/elfcodes808/GoodCord-backend/apperr"
)

// Length limits mirrored by the storage column sizes.
const (
	MaxUsernameLen  = 64
	MaxEmailLen     = 254
	MaxGroupNameLen = 100
	// bcrypt ignores input past 72 bytes, so longer passwords are refused.
	MaxPasswordBytes = 72
)

// NormalizeIdentity returns the comparison form of a username or email.
// Every uniqueness check and lookup goes through it; display values keep
// their original casing.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsSelfReference reports whether a and b name the same identity.
func IsSelfReference(a, b string) bool {
	return NormalizeIdentity(a) == NormalizeIdentity(b)
}

// Missing returns the names whose value in obj is empty or blank, in the
// order given.
func Missing(obj map[string]string, names ...string) []string {
	var missing []string
	for _, n := range names {
		if strings.TrimSpace(obj[n]) == "" {
			missing = append(missing, n)
		}
	}
	return missing
}

// RequireFields fails with a validation error naming every missing field.
func RequireFields(obj map[string]string, names ...string) error {
	missing := Missing(obj, names...)
	if len(missing) == 0 {
		return nil
	}
	return apperr.Validation("Missing required fields: "+strings.Join(missing, ", "), missing...)
}

// MaxLength fails when value is longer than max characters.
func MaxLength(name, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperr.Newf(apperr.CodeValidation, "%s must be at most %d characters", name, max)
	}
	return nil
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Email performs the shape check applied at signup: one "@" with text on
// both sides and no whitespace.
func Email(value string) error {
	v := strings.TrimSpace(value)
	at := strings.Index(v, "@")
	if at <= 0 || at != strings.LastIndex(v, "@") || at == len(v)-1 || strings.ContainsAny(v, " \t\r\n") {
		return apperr.Validation("Invalid email", "email")
	}
	return nil
}
