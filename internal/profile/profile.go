// Package profile cleans user-supplied identity attributes.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kozaktomas/facegate/internal/database"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field limits in runes.
const (
	MaxDisplayNameLength = 100
	MaxEmailLength       = 254
	MaxPhoneLength       = 32
	MaxBioLength         = 1000
)

var (
	ErrDisplayNameRequired = errors.New("displayName is required")
	ErrFieldTooLong        = errors.New("field is too long")
)

// DefaultDisplayName is the name given to a freshly enrolled identity.
func DefaultDisplayName(identityID string) string {
	short := identityID
	if len(short) > 8 {
		short = short[:8]
	}
	return "User " + short
}

// clean trims surrounding whitespace and converts to NFC.
func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Normalize validates an update and returns it in stored form:
// all fields trimmed and NFC-normalized, email lower-cased.
func Normalize(p database.Profile) (database.Profile, error) {
	out := database.Profile{
		DisplayName: clean(p.DisplayName),
		Email:       strings.ToLower(clean(p.Email)),
		Phone:       clean(p.Phone),
		Bio:         clean(p.Bio),
	}

	if out.DisplayName == "" {
		return database.Profile{}, ErrDisplayNameRequired
	}

	limits := []struct {
		name  string
		value string
		max   int
	}{
		{"displayName", out.DisplayName, MaxDisplayNameLength},
		{"email", out.Email, MaxEmailLength},
		{"phone", out.Phone, MaxPhoneLength},
		{"bio", out.Bio, MaxBioLength},
	}
	for _, l := range limits {
		if utf8.RuneCountInString(l.value) > l.max {
			return database.Profile{}, &FieldError{Field: l.name, Max: l.max}
		}
	}
	return out, nil
}

// FieldError reports a field over its length limit.
type FieldError struct {
	Field string
	Max   int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s must be at most %d characters", e.Field, e.Max)
}

func (e *FieldError) Unwrap() error {
	return ErrFieldTooLong
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// SearchKey normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func SearchKey(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// NameMatches reports whether query occurs in displayName, ignoring case and diacritics.
func NameMatches(displayName, query string) bool {
	return strings.Contains(SearchKey(displayName), SearchKey(query))
}
