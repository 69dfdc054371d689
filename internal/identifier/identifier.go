// Package identifier validates public link identifiers.
package identifier

import (
	"errors"
	"net/url"
	"regexp"
)

// Length bounds in characters.
const (
	MinLength = 2
	MaxLength = 100
)

// Pattern is the identifier grammar: ASCII letters, digits, underscore,
// hyphen and the Latin-1 letters used in German and other western names.
var Pattern = regexp.MustCompile(`^[A-Za-z0-9_\-ÄÖÜäöüßÀ-ÖØ-öø-ÿ]{2,100}$`)

// ErrInvalid is returned for identifiers outside the grammar.
// Its message is returned verbatim to clients.
var ErrInvalid = errors.New(`Missing or invalid "id" query parameter.`)

// Decode URL-decodes raw once. Undecodable input is returned unchanged.
func Decode(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Validate decodes raw and checks it against Pattern.
// It returns the decoded identifier on success.
func Validate(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalid
	}
	id := Decode(raw)
	if !Pattern.MatchString(id) {
		return "", ErrInvalid
	}
	return id, nil
}

// IsValid reports whether id, taken as already decoded, matches Pattern.
func IsValid(id string) bool {
	return Pattern.MatchString(id)
}
