package message

import (
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// maxIndirections bounds compression-pointer chains while parsing.
const maxIndirections = 16

// Parse validates a raw DNS packet and builds a Message from it.
//
// Validation is strict: the packet must be internally consistent (section
// counts matching actual contents, label and name lengths within bounds,
// compression pointers only aimed backwards) or parsing fails with a
// diagnosable error. All names, including ones embedded in rdata, are
// stored uncompressed so later mutation never has to track pointer
// targets.
func Parse(raw []byte) (*Message, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrPacketTooSmall, len(raw))
	}
	if len(raw) > maxUncompressedSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrPacketTooLarge, len(raw))
	}
	m := &Message{
		tid:        binary.BigEndian.Uint16(raw[0:2]),
		hflags:     binary.BigEndian.Uint16(raw[2:4]),
		maxPayload: 512,
	}
	qdcount := binary.BigEndian.Uint16(raw[4:6])
	ancount := binary.BigEndian.Uint16(raw[6:8])
	nscount := binary.BigEndian.Uint16(raw[8:10])
	arcount := binary.BigEndian.Uint16(raw[10:12])
	if qdcount > 1 {
		return nil, fmt.Errorf("%w: a DNS packet can only contain up to one question", domain.ErrMalformedPacket)
	}

	p := &parser{raw: raw, off: headerSize}
	if qdcount == 1 {
		name, err := p.readName()
		if err != nil {
			return nil, err
		}
		if p.off+4 > len(raw) {
			return nil, fmt.Errorf("%w: truncated question", domain.ErrPacketTooSmall)
		}
		rec := record{
			name:  name,
			rtype: domain.RRType(binary.BigEndian.Uint16(raw[p.off:])),
			class: domain.RRClass(binary.BigEndian.Uint16(raw[p.off+2:])),
		}
		p.off += 4
		if _, err := m.append(SectionQuestion, rec); err != nil {
			return nil, err
		}
	}

	for _, part := range []struct {
		section Section
		count   uint16
	}{
		{SectionAnswer, ancount},
		{SectionAuthority, nscount},
		{SectionAdditional, arcount},
	} {
		section := part.section
		for i := uint16(0); i < part.count; i++ {
			if err := p.readRR(m, section); err != nil {
				return nil, err
			}
		}
	}
	if p.off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", domain.ErrMalformedPacket, len(raw)-p.off)
	}
	return m, nil
}

type parser struct {
	raw []byte
	off int
}

// readName decodes one possibly-compressed name at the current offset into
// canonical wire form and advances past its in-place representation.
func (p *parser) readName() ([]byte, error) {
	name, consumed, err := decompressName(p.raw, p.off)
	if err != nil {
		return nil, err
	}
	p.off += consumed
	return name, nil
}

// readRR parses one resource record into the message. An OPT record in the
// additional section becomes the EDNS pseudo-section instead of a regular
// record; more than one OPT is an error.
func (p *parser) readRR(m *Message, section Section) error {
	raw := p.raw
	name, err := p.readName()
	if err != nil {
		return err
	}
	if p.off+10 > len(raw) {
		return fmt.Errorf("%w: truncated record header", domain.ErrPacketTooSmall)
	}
	rtype := domain.RRType(binary.BigEndian.Uint16(raw[p.off:]))
	class := binary.BigEndian.Uint16(raw[p.off+2:])
	ttl := binary.BigEndian.Uint32(raw[p.off+4:])
	rdlen := int(binary.BigEndian.Uint16(raw[p.off+8:]))
	rdataOff := p.off + 10
	if rdataOff+rdlen > len(raw) {
		return fmt.Errorf("%w: truncated rdata", domain.ErrPacketTooSmall)
	}
	p.off = rdataOff + rdlen

	if rtype == domain.RRTypeOPT {
		if section != SectionAdditional {
			return fmt.Errorf("%w: OPT record outside the additional section", domain.ErrMalformedPacket)
		}
		if m.hasEDNS {
			return fmt.Errorf("%w: duplicate OPT record", domain.ErrMalformedPacket)
		}
		if len(name) != 1 {
			return fmt.Errorf("%w: OPT record with a non-root name", domain.ErrMalformedPacket)
		}
		return m.parseOPT(class, ttl, raw[rdataOff:rdataOff+rdlen])
	}

	rdata, err := decompressRData(raw, rdataOff, rdlen, rtype)
	if err != nil {
		return err
	}
	rec := record{
		name:  name,
		rtype: rtype,
		class: domain.RRClass(class),
		ttl:   ttl,
		rdata: rdata,
	}
	_, err = m.append(section, rec)
	return err
}

// parseOPT folds an OPT record into the EDNS pseudo-section.
func (m *Message) parseOPT(class uint16, ttl uint32, rdata []byte) error {
	m.hasEDNS = true
	m.maxPayload = class
	m.extRCode = uint8(ttl >> 24)
	m.ednsVersion = uint8(ttl >> 16)
	m.extFlags = uint16(ttl)
	for off := 0; off < len(rdata); {
		if off+4 > len(rdata) {
			return fmt.Errorf("%w: truncated EDNS option", domain.ErrMalformedPacket)
		}
		code := binary.BigEndian.Uint16(rdata[off:])
		optLen := int(binary.BigEndian.Uint16(rdata[off+2:]))
		off += 4
		if off+optLen > len(rdata) {
			return fmt.Errorf("%w: truncated EDNS option data", domain.ErrMalformedPacket)
		}
		data := make([]byte, optLen)
		copy(data, rdata[off:off+optLen])
		m.options = append(m.options, ednsOption{code: code, data: data, live: true})
		off += optLen
	}
	return nil
}

// decompressName reads the name at offset, following compression pointers,
// and returns its canonical wire form plus the number of bytes the name
// occupies at the original location.
func decompressName(raw []byte, offset int) ([]byte, int, error) {
	var name []byte
	consumed := 0
	indirections := 0
	pos := offset
	for {
		if pos >= len(raw) {
			return nil, 0, fmt.Errorf("%w: name runs past the packet", domain.ErrPacketTooSmall)
		}
		c := int(raw[pos])
		switch {
		case c == 0:
			name = append(name, 0)
			if consumed == 0 {
				consumed = pos + 1 - offset
			}
			if len(name) > wirename.MaxWireLen {
				return nil, 0, fmt.Errorf("%w: name exceeds %d bytes", domain.ErrNameTooLong, wirename.MaxWireLen)
			}
			return name, consumed, nil
		case c&0xc0 == 0xc0:
			if pos+1 >= len(raw) {
				return nil, 0, fmt.Errorf("%w: truncated compression pointer", domain.ErrPacketTooSmall)
			}
			target := (c&0x3f)<<8 | int(raw[pos+1])
			if target >= pos {
				return nil, 0, fmt.Errorf("%w: forward compression pointer", domain.ErrMalformedPacket)
			}
			indirections++
			if indirections > maxIndirections {
				return nil, 0, fmt.Errorf("%w: too many compression indirections", domain.ErrMalformedPacket)
			}
			if consumed == 0 {
				consumed = pos + 2 - offset
			}
			pos = target
		case c&0xc0 != 0:
			return nil, 0, fmt.Errorf("%w: reserved label type %#x", domain.ErrMalformedWireName, c&0xc0)
		case c > wirename.MaxLabelLen:
			return nil, 0, fmt.Errorf("%w: label length %d", domain.ErrMalformedWireName, c)
		default:
			if pos+1+c > len(raw) {
				return nil, 0, fmt.Errorf("%w: truncated label", domain.ErrPacketTooSmall)
			}
			name = append(name, raw[pos:pos+1+c]...)
			if len(name) >= wirename.MaxWireLen {
				return nil, 0, fmt.Errorf("%w: name exceeds %d bytes", domain.ErrNameTooLong, wirename.MaxWireLen)
			}
			pos += 1 + c
		}
	}
}

// decompressRData rewrites the rdata of name-bearing record types with
// their embedded names uncompressed. Other types are copied verbatim.
func decompressRData(raw []byte, offset, rdlen int, rtype domain.RRType) ([]byte, error) {
	end := offset + rdlen
	switch rtype {
	case domain.RRTypeNS, domain.RRTypeCNAME, domain.RRTypePTR:
		name, _, err := decompressName(raw, offset)
		return name, err
	case domain.RRTypeMX:
		if rdlen < 3 {
			return nil, fmt.Errorf("%w: short MX rdata", domain.ErrMalformedPacket)
		}
		name, _, err := decompressName(raw, offset+2)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 2+len(name))
		out = append(out, raw[offset:offset+2]...)
		return append(out, name...), nil
	case domain.RRTypeSOA:
		mname, consumed, err := decompressName(raw, offset)
		if err != nil {
			return nil, err
		}
		rname, consumed2, err := decompressName(raw, offset+consumed)
		if err != nil {
			return nil, err
		}
		metaOff := offset + consumed + consumed2
		if metaOff+20 > end {
			return nil, fmt.Errorf("%w: short SOA rdata", domain.ErrMalformedPacket)
		}
		out := make([]byte, 0, len(mname)+len(rname)+20)
		out = append(out, mname...)
		out = append(out, rname...)
		return append(out, raw[metaOff:metaOff+20]...), nil
	case domain.RRTypeSRV:
		if rdlen < 7 {
			return nil, fmt.Errorf("%w: short SRV rdata", domain.ErrMalformedPacket)
		}
		name, _, err := decompressName(raw, offset+6)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 6+len(name))
		out = append(out, raw[offset:offset+6]...)
		return append(out, name...), nil
	default:
		out := make([]byte, rdlen)
		copy(out, raw[offset:end])
		return out, nil
	}
}
