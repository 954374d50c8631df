// Package xmlchar replaces code units that are not legal XML characters.
//
// Filtering works on UTF-16 code units and maps one unit to one unit, so
// offsets computed over the output line up with offsets over the input.
package xmlchar

import (
	"errors"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// Version selects the character rules.
type Version int

const (
	XML10 Version = iota
	XML11
)

func (v Version) String() string {
	if v == XML11 {
		return "1.1"
	}
	return "1.0"
}

// ParseVersion accepts "1.0" or "1.1".
func ParseVersion(s string) (Version, error) {
	switch s {
	case "", "1.0", "1":
		return XML10, nil
	case "1.1":
		return XML11, nil
	}
	return XML10, fmt.Errorf("unknown XML version %q", s)
}

// DefaultReplacement is U+FFFD.
const DefaultReplacement = '\uFFFD'

// ErrIllegalReplacement is returned when the replacement rune cannot stand in
// for a single code unit.
var ErrIllegalReplacement = errors.New("xmlchar: replacement must be a legal BMP character")

const (
	surrHighMin = 0xD800
	surrHighMax = 0xDBFF
	surrLowMin  = 0xDC00
	surrLowMax  = 0xDFFF
)

// Filter maps illegal code units to a replacement. The zero value filters
// XML 1.0 with U+FFFD.
type Filter struct {
	version     Version
	replacement uint16
}

// NewFilter returns a filter for v. The replacement must be a BMP character
// that is itself legal under v.
func NewFilter(v Version, replacement rune) (Filter, error) {
	if replacement < 0 || replacement > 0xFFFF || (replacement >= surrHighMin && replacement <= surrLowMax) || !legalUnit(v, uint16(replacement)) {
		return Filter{}, fmt.Errorf("%w: %U", ErrIllegalReplacement, replacement)
	}
	return Filter{version: v, replacement: uint16(replacement)}, nil
}

// Version returns the rule set in use.
func (f Filter) Version() Version { return f.version }

func (f Filter) repl() uint16 {
	if f.replacement == 0 {
		return DefaultReplacement
	}
	return f.replacement
}

// Units returns a same-length copy of in with every illegal unit replaced,
// and the number of replacements made. A high surrogate immediately followed
// by a low surrogate passes as a pair; any other surrogate is replaced on its
// own without touching its neighbour.
func (f Filter) Units(in []uint16) ([]uint16, int) {
	out := make([]uint16, len(in))
	replaced := 0
	r := f.repl()
	for i := 0; i < len(in); i++ {
		u := in[i]
		switch {
		case u >= surrHighMin && u <= surrHighMax:
			if i+1 < len(in) && in[i+1] >= surrLowMin && in[i+1] <= surrLowMax {
				out[i], out[i+1] = u, in[i+1]
				i++
				continue
			}
			out[i] = r
			replaced++
		case u >= surrLowMin && u <= surrLowMax:
			out[i] = r
			replaced++
		case legalUnit(f.version, u):
			out[i] = u
		default:
			out[i] = r
			replaced++
		}
	}
	return out, replaced
}

// Encode converts s to filtered UTF-16 units. Each byte of invalid UTF-8
// becomes one replacement and is counted as one.
func (f Filter) Encode(s string) ([]uint16, int) {
	units := make([]uint16, 0, len(s))
	invalid := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			units = append(units, f.repl())
			invalid++
			continue
		}
		units = utf16.AppendRune(units, r)
	}
	out, n := f.Units(units)
	return out, n + invalid
}

// String filters s through its UTF-16 form. Astral characters stay intact and
// the UTF-16 length of the result equals that of the decoded input.
func (f Filter) String(s string) (string, int) {
	if f.clean(s) {
		return s, 0
	}
	out, n := f.Encode(s)
	return string(utf16.Decode(out)), n
}

// clean reports whether s needs no replacement. Valid UTF-8 cannot encode
// surrogates, so only BMP legality matters here.
func (f Filter) clean(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r <= 0xFFFF && !legalUnit(f.version, uint16(r)) {
			return false
		}
	}
	return true
}

// IsLegal reports whether r is a legal character under v.
func IsLegal(v Version, r rune) bool {
	if r >= 0x10000 {
		return r <= 0x10FFFF
	}
	if r < 0 || (r >= surrHighMin && r <= surrLowMax) {
		return false
	}
	return legalUnit(v, uint16(r))
}

// legalUnit checks a non-surrogate BMP code unit.
func legalUnit(v Version, u uint16) bool {
	switch {
	case u == 0x09 || u == 0x0A || u == 0x0D:
		return true
	case u < 0x20:
		return v == XML11 && u != 0x00
	case u <= 0xD7FF:
		return true
	case u >= 0xE000 && u <= 0xFFFD:
		return true
	}
	return false
}
