package message

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/synth"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// AppendRR appends a synthesized record to the end of a record section.
func (m *Message) AppendRR(section Section, rr synth.RR) error {
	if section == SectionQuestion || section > SectionAdditional {
		return fmt.Errorf("%w: cannot append a record to the %s section", domain.ErrMalformedText, section)
	}
	name, err := wirename.FromString(rr.Name, nil)
	if err != nil {
		return err
	}
	_, err = m.append(section, record{
		name:  name,
		rtype: rr.Type,
		class: rr.Class,
		ttl:   rr.TTL,
		rdata: rr.RData,
	})
	return err
}

// AppendFromString parses a record in `name ttl class type rdata…` syntax
// and appends it to the named section. The append is atomic: malformed
// text adds nothing. The new record is visible to traversals that start
// after this call returns, never to one already in progress.
func (m *Message) AppendFromString(section Section, text string) error {
	rr, err := synth.ParseRR(text)
	if err != nil {
		return err
	}
	return m.AppendRR(section, rr)
}

// AppendQuestionFromString parses `name type` (class defaults to IN) and
// installs it as the question. A message can hold at most one question.
func (m *Message) AppendQuestionFromString(text string) error {
	rr, err := synth.ParseQuestion(text)
	if err != nil {
		return err
	}
	name, err := wirename.FromString(rr.Name, nil)
	if err != nil {
		return err
	}
	_, err = m.append(SectionQuestion, record{
		name:  name,
		rtype: rr.Type,
		class: rr.Class,
	})
	return err
}
