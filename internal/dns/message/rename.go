package message

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// Rename replaces sourceName with targetName in every name of the message,
// including names embedded in NS/CNAME/PTR/MX/SOA/SRV rdata. Both names
// are wire form. With matchSuffix set, any name ending in sourceName on a
// label boundary has that suffix swapped for targetName, which allows
// renaming *.example.com into *.example.net; otherwise only exact matches
// are rewritten. Fails without touching the message if a rewritten name
// would exceed the wire-format budget.
func (m *Message) Rename(targetName, sourceName []byte, matchSuffix bool) error {
	if err := wirename.Validate(targetName); err != nil {
		return err
	}
	if err := wirename.Validate(sourceName); err != nil {
		return err
	}

	// dry run first so a failure deep in some rdata leaves nothing behind
	for pass := 0; pass < 2; pass++ {
		apply := pass == 1
		for section := SectionQuestion; section <= SectionAdditional; section++ {
			for _, idx := range m.sections[section] {
				rec := &m.arena[idx]
				renamed, err := replaceName(rec.name, targetName, sourceName, matchSuffix)
				if err != nil {
					return err
				}
				if apply && renamed != nil {
					rec.name = renamed
				}
				if err := m.renameRData(rec, targetName, sourceName, matchSuffix, apply); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// renameRData rewrites names embedded in the rdata of name-bearing types.
func (m *Message) renameRData(rec *record, target, source []byte, matchSuffix, apply bool) error {
	switch rec.rtype {
	case domain.RRTypeNS, domain.RRTypeCNAME, domain.RRTypePTR:
		renamed, err := replaceName(rec.rdata, target, source, matchSuffix)
		if err != nil {
			return err
		}
		if apply && renamed != nil {
			rec.rdata = renamed
		}
	case domain.RRTypeMX:
		if len(rec.rdata) < 3 {
			return fmt.Errorf("%w: short MX rdata", domain.ErrMalformedPacket)
		}
		renamed, err := replaceName(rec.rdata[2:], target, source, matchSuffix)
		if err != nil {
			return err
		}
		if apply && renamed != nil {
			rec.rdata = append(rec.rdata[:2:2], renamed...)
		}
	case domain.RRTypeSRV:
		if len(rec.rdata) < 7 {
			return fmt.Errorf("%w: short SRV rdata", domain.ErrMalformedPacket)
		}
		renamed, err := replaceName(rec.rdata[6:], target, source, matchSuffix)
		if err != nil {
			return err
		}
		if apply && renamed != nil {
			rec.rdata = append(rec.rdata[:6:6], renamed...)
		}
	case domain.RRTypeSOA:
		return m.renameSOA(rec, target, source, matchSuffix, apply)
	}
	return nil
}

// renameSOA rewrites the two names leading the SOA rdata.
func (m *Message) renameSOA(rec *record, target, source []byte, matchSuffix, apply bool) error {
	mlen := rawNameLen(rec.rdata)
	if mlen < 0 || len(rec.rdata) < mlen {
		return fmt.Errorf("%w: short SOA rdata", domain.ErrMalformedPacket)
	}
	rlen := rawNameLen(rec.rdata[mlen:])
	if rlen < 0 || len(rec.rdata) < mlen+rlen+20 {
		return fmt.Errorf("%w: short SOA rdata", domain.ErrMalformedPacket)
	}
	mname, err := replaceName(rec.rdata[:mlen], target, source, matchSuffix)
	if err != nil {
		return err
	}
	rname, err := replaceName(rec.rdata[mlen:mlen+rlen], target, source, matchSuffix)
	if err != nil {
		return err
	}
	if !apply || (mname == nil && rname == nil) {
		return nil
	}
	if mname == nil {
		mname = rec.rdata[:mlen]
	}
	if rname == nil {
		rname = rec.rdata[mlen : mlen+rlen]
	}
	out := make([]byte, 0, len(mname)+len(rname)+20)
	out = append(out, mname...)
	out = append(out, rname...)
	out = append(out, rec.rdata[mlen+rlen:mlen+rlen+20]...)
	rec.rdata = out
	return nil
}

// rawNameLen returns the encoded length of the name at the start of b, or
// -1 if b does not begin with a terminated name.
func rawNameLen(b []byte) int {
	i := 0
	for {
		if i >= len(b) {
			return -1
		}
		n := int(b[i])
		if n == 0 {
			return i + 1
		}
		i += n + 1
	}
}

// replaceName returns the rewritten name, nil when the name does not
// match, or an error when the replacement would exceed the name budget.
func replaceName(name, target, source []byte, matchSuffix bool) ([]byte, error) {
	match := false
	offset := 0
	if matchSuffix {
		if wirename.HasSuffix(name, source) {
			match = true
			offset = len(name) - len(source)
		}
	} else if wirename.Equal(name, source) {
		match = true
	}
	if !match {
		return nil, nil
	}
	out := make([]byte, 0, offset+len(target))
	out = append(out, name[:offset]...)
	out = append(out, target...)
	if len(out) > wirename.MaxWireLen {
		return nil, fmt.Errorf("%w: renamed name is %d bytes", domain.ErrNameTooLong, len(out))
	}
	return out, nil
}
