package message

import (
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

// recordWireSize returns the serialized size of one record. Question
// records have a 4-byte trailer instead of the 10-byte RR header.
func recordWireSize(rec *record) int {
	return len(rec.name) + 10 + len(rec.rdata)
}

// wireSize returns the serialized size of the message's current state.
func (m *Message) wireSize() int {
	size := headerSize
	for _, idx := range m.sections[SectionQuestion] {
		size += len(m.arena[idx].name) + 4
	}
	for _, section := range []Section{SectionAnswer, SectionAuthority, SectionAdditional} {
		for _, idx := range m.sections[section] {
			size += recordWireSize(&m.arena[idx])
		}
	}
	if m.hasEDNS {
		size += 1 + 10 // root name plus OPT header
		for i := range m.options {
			if m.options[i].live {
				size += 4 + len(m.options[i].data)
			}
		}
	}
	return size
}

// Serialize renders the message's current state as an uncompressed DNS
// packet into buf and returns the number of bytes written. Header fields
// are written as last set, sections reflect all appends and deletions, and
// names are emitted canonically. If the serialized size exceeds len(buf)
// the operation fails with domain.ErrBufferTooSmall and writes nothing.
func (m *Message) Serialize(buf []byte) (int, error) {
	size := m.wireSize()
	if size > len(buf) {
		return 0, fmt.Errorf("%w: need %d bytes", domain.ErrBufferTooSmall, size)
	}
	// once serialized, outstanding handles are dead
	defer func() { m.epoch++ }()

	arcount := len(m.sections[SectionAdditional])
	if m.hasEDNS {
		arcount++
	}
	binary.BigEndian.PutUint16(buf[0:2], m.tid)
	binary.BigEndian.PutUint16(buf[2:4], m.hflags)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(m.sections[SectionQuestion])))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(m.sections[SectionAnswer])))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(m.sections[SectionAuthority])))
	binary.BigEndian.PutUint16(buf[10:12], uint16(arcount))

	off := headerSize
	for _, idx := range m.sections[SectionQuestion] {
		rec := &m.arena[idx]
		off += copy(buf[off:], rec.name)
		binary.BigEndian.PutUint16(buf[off:], uint16(rec.rtype))
		binary.BigEndian.PutUint16(buf[off+2:], uint16(rec.class))
		off += 4
	}
	for _, section := range []Section{SectionAnswer, SectionAuthority, SectionAdditional} {
		for _, idx := range m.sections[section] {
			rec := &m.arena[idx]
			off += copy(buf[off:], rec.name)
			binary.BigEndian.PutUint16(buf[off:], uint16(rec.rtype))
			binary.BigEndian.PutUint16(buf[off+2:], uint16(rec.class))
			binary.BigEndian.PutUint32(buf[off+4:], rec.ttl)
			binary.BigEndian.PutUint16(buf[off+8:], uint16(len(rec.rdata)))
			off += 10
			off += copy(buf[off:], rec.rdata)
		}
	}
	if m.hasEDNS {
		buf[off] = 0 // root name
		off++
		binary.BigEndian.PutUint16(buf[off:], uint16(domain.RRTypeOPT))
		binary.BigEndian.PutUint16(buf[off+2:], m.maxPayload)
		ttl := uint32(m.extRCode)<<24 | uint32(m.ednsVersion)<<16 | uint32(m.extFlags)
		binary.BigEndian.PutUint32(buf[off+4:], ttl)
		rdlenOff := off + 8
		off += 10
		rdlen := 0
		for i := range m.options {
			if !m.options[i].live {
				continue
			}
			binary.BigEndian.PutUint16(buf[off:], m.options[i].code)
			binary.BigEndian.PutUint16(buf[off+2:], uint16(len(m.options[i].data)))
			off += 4
			off += copy(buf[off:], m.options[i].data)
			rdlen += 4 + len(m.options[i].data)
		}
		binary.BigEndian.PutUint16(buf[rdlenOff:], uint16(rdlen))
	}
	return off, nil
}

// Bytes is a convenience wrapper around Serialize that allocates a buffer
// of exactly the right size.
func (m *Message) Bytes() ([]byte, error) {
	buf := make([]byte, m.wireSize())
	n, err := m.Serialize(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
