package synth

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// encodeRData encodes the rdata fields of a record line for the given type.
func encodeRData(rtype domain.RRType, fields []string) ([]byte, error) {
	switch rtype {
	case domain.RRTypeA:
		return encodeAData(fields)
	case domain.RRTypeAAAA:
		return encodeAAAAData(fields)
	case domain.RRTypeNS, domain.RRTypeCNAME, domain.RRTypePTR:
		return encodeNameData(rtype, fields)
	case domain.RRTypeMX:
		return encodeMXData(fields)
	case domain.RRTypeTXT:
		return encodeTXTData(fields)
	case domain.RRTypeSOA:
		return encodeSOAData(fields)
	case domain.RRTypeSRV:
		return encodeSRVData(fields)
	default:
		return nil, fmt.Errorf("%w: no rdata syntax for %s", domain.ErrMalformedText, rtype)
	}
}

// encodeAData encodes an IPv4 address, e.g. "127.0.0.1".
func encodeAData(fields []string) ([]byte, error) {
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: A record takes one address", domain.ErrMalformedText)
	}
	ip := net.ParseIP(fields[0])
	if ip == nil || ip.To4() == nil || !strings.Contains(fields[0], ".") {
		return nil, fmt.Errorf("%w: invalid A record address %q", domain.ErrMalformedText, fields[0])
	}
	return ip.To4(), nil
}

// encodeAAAAData encodes an IPv6 address, e.g. "2001:db8::1".
func encodeAAAAData(fields []string) ([]byte, error) {
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: AAAA record takes one address", domain.ErrMalformedText)
	}
	ip := net.ParseIP(fields[0])
	if ip == nil || !strings.Contains(fields[0], ":") || ip.To16() == nil {
		return nil, fmt.Errorf("%w: invalid AAAA record address %q", domain.ErrMalformedText, fields[0])
	}
	return ip.To16(), nil
}

// encodeNameData encodes rdata that is a single domain name (NS, CNAME, PTR).
func encodeNameData(rtype domain.RRType, fields []string) ([]byte, error) {
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: %s record takes one name", domain.ErrMalformedText, rtype)
	}
	return wirename.FromString(fields[0], nil)
}

// encodeMXData encodes `preference exchange`.
func encodeMXData(fields []string) ([]byte, error) {
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: MX record takes `preference exchange`", domain.ErrMalformedText)
	}
	pref, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: bad MX preference %q", domain.ErrMalformedText, fields[0])
	}
	host, err := wirename.FromString(fields[1], nil)
	if err != nil {
		return nil, err
	}
	rdata := make([]byte, 2, 2+len(host))
	binary.BigEndian.PutUint16(rdata, uint16(pref))
	return append(rdata, host...), nil
}

// encodeTXTData encodes one quoted string, split into 255-byte chunks.
// Decimal escapes of the form \DDD are supported inside the quotes.
func encodeTXTData(fields []string) ([]byte, error) {
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: TXT record takes one quoted string", domain.ErrMalformedText)
	}
	raw := fields[0]
	if len(raw) < 3 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return nil, fmt.Errorf("%w: TXT data must be a non-empty quoted string", domain.ErrMalformedText)
	}
	txt, err := unescape(raw[1 : len(raw)-1])
	if err != nil {
		return nil, err
	}
	var rdata []byte
	for len(txt) > 0 {
		n := len(txt)
		if n > 255 {
			n = 255
		}
		rdata = append(rdata, byte(n))
		rdata = append(rdata, txt[:n]...)
		txt = txt[n:]
	}
	return rdata, nil
}

// encodeSOAData encodes `mname rname serial refresh retry expire minimum`.
func encodeSOAData(fields []string) ([]byte, error) {
	if len(fields) != 7 {
		return nil, fmt.Errorf("%w: SOA record takes 7 fields", domain.ErrMalformedText)
	}
	mname, err := wirename.FromString(fields[0], nil)
	if err != nil {
		return nil, err
	}
	rname, err := wirename.FromString(fields[1], nil)
	if err != nil {
		return nil, err
	}
	rdata := make([]byte, 0, len(mname)+len(rname)+20)
	rdata = append(rdata, mname...)
	rdata = append(rdata, rname...)
	meta := make([]byte, 20)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseUint(fields[i+2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad SOA field %q", domain.ErrMalformedText, fields[i+2])
		}
		binary.BigEndian.PutUint32(meta[i*4:], uint32(v))
	}
	return append(rdata, meta...), nil
}

// encodeSRVData encodes `priority weight port target`.
func encodeSRVData(fields []string) ([]byte, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: SRV record takes `priority weight port target`", domain.ErrMalformedText)
	}
	rdata := make([]byte, 6)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: bad SRV field %q", domain.ErrMalformedText, fields[i])
		}
		binary.BigEndian.PutUint16(rdata[i*2:], uint16(v))
	}
	target, err := wirename.FromString(fields[3], nil)
	if err != nil {
		return nil, err
	}
	return append(rdata, target...), nil
}

// unescape resolves \DDD decimal escapes and backslash-escaped literals.
func unescape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			v, err := strconv.Atoi(s[i+1 : i+4])
			if err != nil || v > 255 {
				return nil, fmt.Errorf("%w: bad escape %q", domain.ErrMalformedText, s[i:i+4])
			}
			out = append(out, byte(v))
			i += 3
			continue
		}
		if i+1 >= len(s) {
			return nil, fmt.Errorf("%w: dangling escape", domain.ErrMalformedText)
		}
		out = append(out, s[i+1])
		i++
	}
	return out, nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
