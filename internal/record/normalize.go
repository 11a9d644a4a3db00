package record

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the scan with every field NFC normalized, control
// characters removed and surrounding whitespace trimmed.
//
// Barcode scanners in keyboard-wedge mode often append CR/LF or tabs, and
// decomposed input from soft keyboards must compare equal to precomposed
// server-side values.
func Normalize(s Scan) Scan {
	return Scan{
		Operator:    normalizeField(s.Operator),
		ContainerID: normalizeField(s.ContainerID),
		ShipmentID:  normalizeField(s.ShipmentID),
	}
}

// Valid reports whether both scanned identifiers are present.
// The operator may be empty; the server resolves it from the token.
func (s Scan) Valid() bool {
	return s.ContainerID != "" && s.ShipmentID != ""
}

func normalizeField(v string) string {
	v = norm.NFC.String(v)
	v = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
	return strings.TrimSpace(v)
}
