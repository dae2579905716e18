package message

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

// VisitFunc is invoked once per live record during traversal. Returning
// true stops the traversal early; false continues with the next record.
type VisitFunc func(h *Handle) (stop bool)

// OptionVisitFunc is the EDNS counterpart of VisitFunc.
type OptionVisitFunc func(h *OptionHandle) (stop bool)

// Visit traverses a record section in storage order, invoking fn once per
// record currently in the section. The callback may edit or delete the
// record it was handed; deletion takes effect immediately. Records appended
// during the traversal are not visible to it, and every handle goes stale
// the moment its callback returns.
func (m *Message) Visit(section Section, fn VisitFunc) error {
	if section == SectionEDNS {
		return fmt.Errorf("%w: use VisitOptions for the EDNS pseudo-section", domain.ErrTypeMismatch)
	}
	slice, err := m.sectionSlice(section)
	if err != nil {
		return err
	}
	snapshot := make([]int, len(slice))
	copy(snapshot, slice)
	for _, idx := range snapshot {
		rec := &m.arena[idx]
		if !rec.live {
			continue
		}
		h := &Handle{msg: m, section: section, idx: idx, gen: rec.gen, epoch: m.epoch}
		stop := fn(h)
		// handles die at the callback boundary
		m.epoch++
		if stop {
			break
		}
	}
	return nil
}

// VisitOptions traverses the EDNS pseudo-section.
func (m *Message) VisitOptions(fn OptionVisitFunc) error {
	for idx := range m.options {
		if !m.options[idx].live {
			continue
		}
		h := &OptionHandle{msg: m, idx: idx, gen: m.options[idx].gen, epoch: m.epoch}
		stop := fn(h)
		m.epoch++
		if stop {
			break
		}
	}
	return nil
}

// Question returns a handle to the question record, or false if the
// message has none. The handle obeys the same lifetime rules as traversal
// handles: it dies at the next callback boundary or serialization.
func (m *Message) Question() (*Handle, bool) {
	if len(m.sections[SectionQuestion]) == 0 {
		return nil, false
	}
	idx := m.sections[SectionQuestion][0]
	rec := &m.arena[idx]
	return &Handle{msg: m, section: SectionQuestion, idx: idx, gen: rec.gen, epoch: m.epoch}, true
}
