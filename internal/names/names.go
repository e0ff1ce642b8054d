// Package names canonicalizes class and member identifiers so that names read
// from a local document can be matched against names reported by the remote
// metadata service.
package names

import "strings"

// Direction selects whether QuoteIdentifier adds or removes quotes.
type Direction int

const (
	// RemoveQuotes strips a surrounding pair of quotes and un-doubles embedded ones.
	RemoveQuotes Direction = iota
	// AddQuotes wraps an identifier in quotes when it contains characters
	// that are not valid in a bare identifier.
	AddQuotes
)

// Normalize returns the lookup key for a raw member or class name: a single
// leading space followed by the upper-cased name. The remote service produces
// keys of the same shape through %SQLUPPER.
func Normalize(name string) string {
	return " " + strings.ToUpper(name)
}

// NormalizeKey upper-cases a key that may already carry the leading space,
// making sure exactly one space prefixes the result.
func NormalizeKey(key string) string {
	return Normalize(strings.TrimPrefix(key, " "))
}

// QuoteIdentifier adds or removes identifier quoting.
//
// Removing only applies to identifiers that start with a quote. Adding only
// applies to identifiers that do not, and only when NeedsQuoting reports true.
func QuoteIdentifier(name string, dir Direction) string {
	switch dir {
	case RemoveQuotes:
		if !strings.HasPrefix(name, `"`) {
			return name
		}
		inner := name[1:]
		if len(inner) > 0 {
			inner = inner[:len(inner)-1]
		}
		return strings.ReplaceAll(inner, `""`, `"`)
	case AddQuotes:
		if strings.HasPrefix(name, `"`) || !NeedsQuoting(name) {
			return name
		}
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	default:
		return name
	}
}

// NeedsQuoting reports whether name contains a character that is not allowed
// in a bare identifier. The first character may be '%' or a letter; later
// characters may be letters or digits. Anything above 0x80 is accepted in
// every position.
func NeedsQuoting(name string) bool {
	for i, r := range name {
		if r > 0x80 || isASCIILetter(r) {
			continue
		}
		if i == 0 {
			if r == '%' {
				continue
			}
			return true
		}
		if r >= '0' && r <= '9' {
			continue
		}
		return true
	}
	return false
}

func isASCIILetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}
