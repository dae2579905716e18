// Package message implements the parsed DNS message the hook engine
// operates on: header accessors, ordered record sections, mutation-safe
// traversal with generation-checked handles, text-syntax appends, and
// canonical re-serialization.
//
// A Message is exclusively owned by the transaction processing it. None of
// its methods are safe for concurrent use.
package message

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

// Section identifies one of the record groupings of a DNS message.
type Section uint8

// Message sections. EDNS is a pseudo-section carried by the OPT record.
const (
	SectionQuestion Section = iota
	SectionAnswer
	SectionAuthority
	SectionAdditional
	SectionEDNS
)

// String returns the section name used in logs and errors.
func (s Section) String() string {
	switch s {
	case SectionQuestion:
		return "question"
	case SectionAnswer:
		return "answer"
	case SectionAuthority:
		return "authority"
	case SectionAdditional:
		return "additional"
	case SectionEDNS:
		return "edns"
	default:
		return fmt.Sprintf("section(%d)", uint8(s))
	}
}

const (
	headerSize = 12

	// maxUncompressedSize bounds the size a message may grow to through
	// record insertion, matching the largest packet the serializer emits.
	maxUncompressedSize = 8192

	// header flag masks. The opcode and rcode bits are masked out of the
	// flags view so they can only be accessed through their own accessors.
	maskOpcode uint16 = 0x7800
	maskRCode  uint16 = 0x000f
)

// DNS header flag bits as exposed by Flags. The EDNS extended flags occupy
// the high 16 bits, so the DO bit lands at bit 31.
const (
	FlagQR uint32 = 1 << 15
	FlagAA uint32 = 1 << 10
	FlagTC uint32 = 1 << 9
	FlagRD uint32 = 1 << 8
	FlagRA uint32 = 1 << 7
	FlagAD uint32 = 1 << 5
	FlagCD uint32 = 1 << 4
	FlagDO uint32 = 1 << 31
)

// record is one arena slot. Slots are never reused for a different record;
// deletion marks the slot dead and bumps its generation so stale handles
// are detected instead of silently touching freed state.
type record struct {
	name  []byte // canonical uncompressed wire form
	rtype domain.RRType
	class domain.RRClass
	ttl   uint32
	rdata []byte // embedded names, if any, stored uncompressed
	gen   uint32
	live  bool
}

// ednsOption is one (code, data) pair from the OPT pseudo-section.
type ednsOption struct {
	code uint16
	data []byte
	gen  uint32
	live bool
}

// Message is a fully parsed DNS message.
type Message struct {
	tid    uint16
	hflags uint16 // raw header flags, including opcode and rcode bits

	hasEDNS     bool
	extRCode    uint8
	ednsVersion uint8
	extFlags    uint16
	maxPayload  uint16

	arena    []record
	sections [4][]int // live arena indexes, in section storage order
	options  []ednsOption

	// epoch invalidates handles once the call or callback that produced
	// them returns.
	epoch uint64
}

// New returns an empty message with the given transaction id. The header
// flags start at zero; callers shape the header through the accessors.
func New(tid uint16) *Message {
	return &Message{tid: tid, maxPayload: 512}
}

// TID returns the transaction ID.
func (m *Message) TID() uint16 { return m.tid }

// SetTID changes the transaction ID.
func (m *Message) SetTID(tid uint16) { m.tid = tid }

// Flags returns the header flags with the EDNS extended flags in the high
// 16 bits. The opcode and rcode bits are masked out: those fields are never
// supposed to be accessed through the flags view.
func (m *Message) Flags() uint32 {
	rflags := m.hflags &^ (maskOpcode | maskRCode)
	var ext uint32
	if m.hasEDNS {
		ext = uint32(m.extFlags) << 16
	}
	return ext | uint32(rflags)
}

// SetFlags changes the low 16 header flag bits. The opcode and rcode bits
// of the argument are ignored, as are the extended flags.
func (m *Message) SetFlags(flags uint32) {
	rflags := uint16(flags) &^ (maskOpcode | maskRCode)
	m.hflags = (m.hflags & (maskOpcode | maskRCode)) | rflags
}

// RCode returns the 4-bit response code from the header.
func (m *Message) RCode() uint8 { return uint8(m.hflags & maskRCode) }

// SetRCode changes the header response code.
func (m *Message) SetRCode(rcode uint8) {
	m.hflags = (m.hflags &^ maskRCode) | (uint16(rcode) & maskRCode)
}

// Opcode returns the operation code from the header.
func (m *Message) Opcode() uint8 { return uint8((m.hflags & maskOpcode) >> 11) }

// SetOpcode changes the operation code.
func (m *Message) SetOpcode(opcode uint8) {
	m.hflags = (m.hflags &^ maskOpcode) | ((uint16(opcode) << 11) & maskOpcode)
}

// HasEDNS reports whether the message carries an OPT pseudo-record.
func (m *Message) HasEDNS() bool { return m.hasEDNS }

// MaxPayload returns the maximum UDP payload size advertised via EDNS,
// or 512 when the message has no OPT record.
func (m *Message) MaxPayload() uint16 { return m.maxPayload }

// Count returns the number of live records in a section. For SectionEDNS it
// counts the OPT options.
func (m *Message) Count(section Section) int {
	if section == SectionEDNS {
		n := 0
		for i := range m.options {
			if m.options[i].live {
				n++
			}
		}
		return n
	}
	return len(m.sections[section])
}

// sectionSlice validates a record section selector.
func (m *Message) sectionSlice(section Section) ([]int, error) {
	if section > SectionAdditional {
		return nil, fmt.Errorf("%w: not a record section: %s", domain.ErrMalformedPacket, section)
	}
	return m.sections[section], nil
}

// append adds a record to the end of a section and returns its arena index.
func (m *Message) append(section Section, rec record) (int, error) {
	if section == SectionQuestion && len(m.sections[SectionQuestion]) >= 1 {
		return 0, fmt.Errorf("%w: a DNS packet can only contain up to one question", domain.ErrMalformedPacket)
	}
	if m.wireSize()+recordWireSize(&rec) > maxUncompressedSize {
		return 0, fmt.Errorf("%w: message exceeds %d bytes", domain.ErrPacketTooLarge, maxUncompressedSize)
	}
	rec.live = true
	m.arena = append(m.arena, rec)
	idx := len(m.arena) - 1
	m.sections[section] = append(m.sections[section], idx)
	return idx, nil
}

// deleteAt removes the record at arena index idx from the given section and
// kills its slot. Subsequent handle operations observe the generation bump.
func (m *Message) deleteAt(section Section, idx int) {
	rec := &m.arena[idx]
	rec.live = false
	rec.gen++
	s := m.sections[section]
	for i, j := range s {
		if j == idx {
			m.sections[section] = append(s[:i], s[i+1:]...)
			break
		}
	}
}
