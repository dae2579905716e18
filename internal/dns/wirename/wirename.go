// Package wirename converts DNS names between wire format (length-prefixed
// labels ending in a root terminator) and presentation format (dotted
// labels). Every boundary-crossing operation re-validates the length
// invariants itself; nothing is delegated to callers.
package wirename

import (
	"fmt"
	"strings"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

const (
	// MaxLabelLen is the maximum length of a single label.
	MaxLabelLen = 63

	// MaxWireLen is the maximum encoded size of a name, including the
	// root terminator.
	MaxWireLen = 256

	// MaxPresentationLen is the maximum length of a presentation-form name.
	MaxPresentationLen = 255
)

// FromString encodes a presentation-form name into canonical wire format.
// Labels may use `\DDD` decimal escapes or `\c` character escapes for
// bytes that have no literal presentation form, including `\.` for a
// literal dot inside a label.
//
// If name ends with an unescaped dot it is absolute and zone is ignored.
// Otherwise, if a non-empty wire-form zone is supplied, the zone's labels
// (including its terminator) are appended; with no zone the name is
// rooted as-is.
func FromString(name string, zone []byte) ([]byte, error) {
	if len(name) > MaxPresentationLen {
		return nil, fmt.Errorf("%w: presentation form exceeds %d bytes", domain.ErrNameTooLong, MaxPresentationLen)
	}
	if len(zone) > 0 {
		if err := Validate(zone); err != nil {
			return nil, err
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", domain.ErrMalformedText)
	}
	if name == "." {
		return []byte{0}, nil
	}

	wire := make([]byte, 0, len(name)+len(zone)+1)
	label := make([]byte, 0, MaxLabelLen)
	flush := func() error {
		if len(label) == 0 {
			return fmt.Errorf("%w: empty label", domain.ErrMalformedText)
		}
		if len(label) > MaxLabelLen {
			return fmt.Errorf("%w: label %q exceeds %d bytes", domain.ErrMalformedText, label, MaxLabelLen)
		}
		wire = append(wire, byte(len(label)))
		wire = append(wire, label...)
		label = label[:0]
		return nil
	}

	absolute := false
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c == '.':
			if err := flush(); err != nil {
				return nil, err
			}
			if i == len(name)-1 {
				absolute = true
			}
		case c == '\\':
			if i+1 >= len(name) {
				return nil, fmt.Errorf("%w: dangling escape", domain.ErrMalformedText)
			}
			if isDigit(name[i+1]) {
				if i+3 >= len(name) || !isDigit(name[i+2]) || !isDigit(name[i+3]) {
					return nil, fmt.Errorf("%w: decimal escape needs three digits", domain.ErrMalformedText)
				}
				v := 100*int(name[i+1]-'0') + 10*int(name[i+2]-'0') + int(name[i+3]-'0')
				if v > 255 {
					return nil, fmt.Errorf("%w: decimal escape %d out of range", domain.ErrMalformedText, v)
				}
				label = append(label, byte(v))
				i += 3
			} else {
				label = append(label, name[i+1])
				i++
			}
		case c <= ' ' || c > '~':
			return nil, fmt.Errorf("%w: invalid character %#x in label", domain.ErrMalformedText, c)
		default:
			label = append(label, c)
		}
	}
	if !absolute {
		if err := flush(); err != nil {
			return nil, err
		}
	}

	if !absolute && len(zone) > 0 {
		wire = append(wire, zone...)
	} else {
		wire = append(wire, 0)
	}
	if len(wire) > MaxWireLen {
		return nil, fmt.Errorf("%w: encoded name is %d bytes", domain.ErrNameTooLong, len(wire))
	}
	return wire, nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// ToString decodes a wire-format name into its absolute presentation form,
// always ending with a dot. The root name decodes as ".". Label bytes with
// no literal presentation form are escaped: `\.` and `\\` for dot and
// backslash, `\DDD` for everything outside the printable ASCII range, so
// any valid wire name survives a decode and re-encode.
func ToString(wire []byte) (string, error) {
	if err := Validate(wire); err != nil {
		return "", err
	}
	if wire[0] == 0 {
		return ".", nil
	}
	var sb strings.Builder
	for i := 0; wire[i] != 0; {
		n := int(wire[i])
		for _, c := range wire[i+1 : i+1+n] {
			switch {
			case c == '.' || c == '\\':
				sb.WriteByte('\\')
				sb.WriteByte(c)
			case c < '!' || c > '~':
				fmt.Fprintf(&sb, "\\%03d", c)
			default:
				sb.WriteByte(c)
			}
		}
		sb.WriteByte('.')
		i += n + 1
	}
	return sb.String(), nil
}

// Validate checks that wire holds exactly one well-formed name: labels of
// 1 to 63 bytes, a root terminator, and a total size within MaxWireLen.
// Compression pointers are not valid here; only canonical names are.
func Validate(wire []byte) error {
	if len(wire) == 0 {
		return fmt.Errorf("%w: empty input", domain.ErrMalformedWireName)
	}
	if len(wire) > MaxWireLen {
		return fmt.Errorf("%w: %d bytes", domain.ErrNameTooLong, len(wire))
	}
	i := 0
	for {
		if i >= len(wire) {
			return fmt.Errorf("%w: missing root terminator", domain.ErrMalformedWireName)
		}
		n := int(wire[i])
		if n == 0 {
			break
		}
		if n > MaxLabelLen {
			return fmt.Errorf("%w: label length %d", domain.ErrMalformedWireName, n)
		}
		if i+1+n > len(wire) {
			return fmt.Errorf("%w: truncated label", domain.ErrMalformedWireName)
		}
		i += n + 1
	}
	if i+1 != len(wire) {
		return fmt.Errorf("%w: trailing bytes after root terminator", domain.ErrMalformedWireName)
	}
	return nil
}

// Equal reports whether two wire-form names are the same name,
// comparing labels case-insensitively.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// HasSuffix reports whether name ends with the given wire-form suffix on a
// label boundary. Both names are assumed already validated.
func HasSuffix(name, suffix []byte) bool {
	if len(suffix) > len(name) {
		return false
	}
	offset := len(name) - len(suffix)
	// the suffix must start exactly at a label boundary
	for i := 0; i < offset; {
		n := int(name[i])
		if n == 0 {
			return false
		}
		i += n + 1
		if i == offset {
			return Equal(name[offset:], suffix)
		}
	}
	return offset == 0 && Equal(name, suffix)
}
