// Package synth builds resource records from presentation-text syntax,
// the zone-file style one-line form `name ttl class type rdata…`.
// Parsed records are handed to the message layer for appending; a parse
// failure produces no record at all, so appends stay atomic.
package synth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// RR is one record parsed from presentation text. Name is kept in
// presentation form; RData is wire-encoded for the record type.
type RR struct {
	Name  string
	TTL   uint32
	Class domain.RRClass
	Type  domain.RRType
	RData []byte
}

// ParseRR parses a one-line record in `name ttl class type rdata…` syntax.
// Only class IN is accepted.
func ParseRR(text string) (RR, error) {
	fields := splitFields(text)
	if len(fields) < 4 {
		return RR{}, fmt.Errorf("%w: expected `name ttl class type rdata`, got %q", domain.ErrMalformedText, text)
	}
	name := fields[0]
	if _, err := wirename.FromString(name, nil); err != nil {
		return RR{}, err
	}
	ttl, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return RR{}, fmt.Errorf("%w: bad ttl %q", domain.ErrMalformedText, fields[1])
	}
	if !strings.EqualFold(fields[2], "IN") {
		return RR{}, fmt.Errorf("%w: unsupported class %q", domain.ErrMalformedText, fields[2])
	}
	rtype := domain.RRTypeFromString(strings.ToUpper(fields[3]))
	if rtype == 0 || rtype == domain.RRTypeOPT || rtype == domain.RRTypeANY {
		return RR{}, fmt.Errorf("%w: unsupported record type %q", domain.ErrMalformedText, fields[3])
	}
	rdata, err := encodeRData(rtype, fields[4:])
	if err != nil {
		return RR{}, err
	}
	return RR{
		Name:  name,
		TTL:   uint32(ttl),
		Class: domain.RRClassIN,
		Type:  rtype,
		RData: rdata,
	}, nil
}

// ParseQuestion parses the question form `name type`; the class defaults
// to IN.
func ParseQuestion(text string) (RR, error) {
	fields := splitFields(text)
	if len(fields) != 2 {
		return RR{}, fmt.Errorf("%w: expected `name type`, got %q", domain.ErrMalformedText, text)
	}
	name := fields[0]
	if _, err := wirename.FromString(name, nil); err != nil {
		return RR{}, err
	}
	rtype := domain.RRTypeFromString(strings.ToUpper(fields[1]))
	if rtype == 0 || rtype == domain.RRTypeOPT {
		return RR{}, fmt.Errorf("%w: unsupported record type %q", domain.ErrMalformedText, fields[1])
	}
	return RR{Name: name, Class: domain.RRClassIN, Type: rtype}, nil
}

// splitFields tokenizes one record line. Quoted strings (TXT data) stay a
// single token with surrounding quotes preserved; SOA-style parentheses
// are dropped.
func splitFields(text string) []string {
	var fields []string
	var sb strings.Builder
	inQuotes := false
	flush := func() {
		if sb.Len() > 0 {
			fields = append(fields, sb.String())
			sb.Reset()
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			sb.WriteByte(c)
		case inQuotes:
			sb.WriteByte(c)
		case c == ' ' || c == '\t':
			flush()
		case c == '(' || c == ')':
			flush()
		default:
			sb.WriteByte(c)
		}
	}
	flush()
	return fields
}
