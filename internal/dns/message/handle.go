package message

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// Handle is a checked reference to one record of a Message. A handle is
// valid only for the duration of the call or callback that produced it;
// afterwards, and after the record is deleted, every operation fails with
// domain.ErrVoidRecord instead of touching stale state.
type Handle struct {
	msg     *Message
	section Section
	idx     int
	gen     uint32
	epoch   uint64
}

// Section returns the section the record belongs to.
func (h *Handle) Section() Section { return h.section }

// deref validates the handle and returns the underlying record.
func (h *Handle) deref() (*record, error) {
	if h.msg == nil || h.epoch != h.msg.epoch {
		return nil, domain.ErrVoidRecord
	}
	rec := &h.msg.arena[h.idx]
	if !rec.live || rec.gen != h.gen {
		return nil, domain.ErrVoidRecord
	}
	return rec, nil
}

// Type returns the record type code.
func (h *Handle) Type() (domain.RRType, error) {
	rec, err := h.deref()
	if err != nil {
		return 0, err
	}
	return rec.rtype, nil
}

// Class returns the record class code.
func (h *Handle) Class() (domain.RRClass, error) {
	rec, err := h.deref()
	if err != nil {
		return 0, err
	}
	return rec.class, nil
}

// TTL returns the record's time to live. Question records carry no TTL.
func (h *Handle) TTL() (uint32, error) {
	rec, err := h.deref()
	if err != nil {
		return 0, err
	}
	if h.section == SectionQuestion {
		return 0, fmt.Errorf("%w: question records have no TTL", domain.ErrTypeMismatch)
	}
	return rec.ttl, nil
}

// SetTTL changes the record's time to live.
func (h *Handle) SetTTL(ttl uint32) error {
	rec, err := h.deref()
	if err != nil {
		return err
	}
	if h.section == SectionQuestion {
		return fmt.Errorf("%w: question records have no TTL", domain.ErrTypeMismatch)
	}
	rec.ttl = ttl
	return nil
}

// Name fills buf with the record name in presentation form and returns the
// number of bytes written. The name always carries a trailing dot.
func (h *Handle) Name(buf []byte) (int, error) {
	rec, err := h.deref()
	if err != nil {
		return 0, err
	}
	s, err := wirename.ToString(rec.name)
	if err != nil {
		return 0, err
	}
	if len(s) > len(buf) {
		return 0, fmt.Errorf("%w: need %d bytes", domain.ErrBufferTooSmall, len(s))
	}
	return copy(buf, s), nil
}

// NameString returns the record name in presentation form.
func (h *Handle) NameString() (string, error) {
	rec, err := h.deref()
	if err != nil {
		return "", err
	}
	return wirename.ToString(rec.name)
}

// RawName returns a copy of the record name in wire form.
func (h *Handle) RawName() ([]byte, error) {
	rec, err := h.deref()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(rec.name))
	copy(out, rec.name)
	return out, nil
}

// SetName replaces the record name with a presentation-form name,
// canonicalized against the optional wire-form default zone: an absolute
// name (trailing dot) ignores the zone, a relative one gets the zone's
// labels appended. The record is left unchanged on failure.
func (h *Handle) SetName(name string, zone []byte) error {
	rec, err := h.deref()
	if err != nil {
		return err
	}
	wire, err := wirename.FromString(name, zone)
	if err != nil {
		return err
	}
	rec.name = wire
	return nil
}

// SetRawName replaces the record name with pre-encoded wire-form bytes,
// validating label lengths, the root terminator, and the total budget.
func (h *Handle) SetRawName(wire []byte) error {
	rec, err := h.deref()
	if err != nil {
		return err
	}
	if err := wirename.Validate(wire); err != nil {
		return err
	}
	out := make([]byte, len(wire))
	copy(out, wire)
	rec.name = out
	return nil
}

// Addr fills buf with the record's address and returns the number of bytes
// written: 4 for an A record, 16 for an AAAA record. Other record types are
// not retrievable through this accessor.
func (h *Handle) Addr(buf []byte) (int, error) {
	rec, err := h.deref()
	if err != nil {
		return 0, err
	}
	if h.section == SectionQuestion {
		return 0, fmt.Errorf("%w: question records carry no address", domain.ErrTypeMismatch)
	}
	var want int
	switch rec.rtype {
	case domain.RRTypeA:
		want = 4
	case domain.RRTypeAAAA:
		want = 16
	default:
		return 0, fmt.Errorf("%w: %s records carry no address", domain.ErrTypeMismatch, rec.rtype)
	}
	if len(rec.rdata) != want {
		return 0, fmt.Errorf("%w: %s rdata is %d bytes", domain.ErrMalformedPacket, rec.rtype, len(rec.rdata))
	}
	if len(buf) < want {
		return 0, fmt.Errorf("%w: need %d bytes", domain.ErrBufferTooSmall, want)
	}
	return copy(buf, rec.rdata), nil
}

// SetAddr replaces the record's address in place. The address length must
// match the record type: 4 bytes for A, 16 for AAAA.
func (h *Handle) SetAddr(addr []byte) error {
	rec, err := h.deref()
	if err != nil {
		return err
	}
	if h.section == SectionQuestion {
		return fmt.Errorf("%w: question records carry no address", domain.ErrTypeMismatch)
	}
	var want int
	switch rec.rtype {
	case domain.RRTypeA:
		want = 4
	case domain.RRTypeAAAA:
		want = 16
	default:
		return fmt.Errorf("%w: %s records carry no address", domain.ErrTypeMismatch, rec.rtype)
	}
	if len(addr) != want {
		return fmt.Errorf("%w: %s address must be %d bytes", domain.ErrTypeMismatch, rec.rtype, want)
	}
	out := make([]byte, want)
	copy(out, addr)
	rec.rdata = out
	return nil
}

// RData returns a copy of the record's type-specific data.
func (h *Handle) RData() ([]byte, error) {
	rec, err := h.deref()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(rec.rdata))
	copy(out, rec.rdata)
	return out, nil
}

// Delete removes the record from its section immediately. The handle goes
// stale: any further operation, including a second delete, fails with
// domain.ErrVoidRecord.
func (h *Handle) Delete() error {
	if _, err := h.deref(); err != nil {
		return err
	}
	h.msg.deleteAt(h.section, h.idx)
	return nil
}

// OptionHandle is a checked reference to one EDNS option.
type OptionHandle struct {
	msg   *Message
	idx   int
	gen   uint32
	epoch uint64
}

func (h *OptionHandle) deref() (*ednsOption, error) {
	if h.msg == nil || h.epoch != h.msg.epoch {
		return nil, domain.ErrVoidRecord
	}
	opt := &h.msg.options[h.idx]
	if !opt.live || opt.gen != h.gen {
		return nil, domain.ErrVoidRecord
	}
	return opt, nil
}

// Code returns the option code.
func (h *OptionHandle) Code() (uint16, error) {
	opt, err := h.deref()
	if err != nil {
		return 0, err
	}
	return opt.code, nil
}

// Data returns a copy of the option payload.
func (h *OptionHandle) Data() ([]byte, error) {
	opt, err := h.deref()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(opt.data))
	copy(out, opt.data)
	return out, nil
}

// Delete removes the option from the EDNS pseudo-section.
func (h *OptionHandle) Delete() error {
	opt, err := h.deref()
	if err != nil {
		return err
	}
	opt.live = false
	opt.gen++
	return nil
}
