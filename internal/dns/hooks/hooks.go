// Package hooks defines the boundary between the proxy pipeline and
// loadable packet-mutation hooks. Hooks never touch engine types
// directly: every capability they get is a function handed to them
// through a versioned table, so a hook compiled against one table
// layout can be rejected cleanly instead of misbehaving at runtime.
package hooks

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/message"
	"github.com/haukened/rr-proxy/internal/dns/session"
)

// ABIVersion is the current capability table layout version. It is bumped
// whenever a table field is added, removed, or changes meaning.
const ABIVersion uint32 = 2

// Decision is a hook's verdict on a message.
type Decision uint8

const (
	// Pass lets the message continue through the pipeline unchanged in
	// disposition (mutations the hook made are kept).
	Pass Decision = iota
	// Lookup forces an upstream lookup even when a cached response
	// exists. Only meaningful at receipt time.
	Lookup
	// Drop discards the transaction without a response.
	Drop
)

func (d Decision) String() string {
	switch d {
	case Pass:
		return "pass"
	case Lookup:
		return "lookup"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("decision(%d)", uint8(d))
	}
}

// Hook is a packet-mutation extension. Receipt runs on the client query
// before any cache or upstream work; Delivery runs on the response just
// before serialization. Both receive the same session environment, so
// state stored at receipt time is visible at delivery time.
type Hook interface {
	// Name identifies the hook in logs.
	Name() string
	// ABIVersion reports the table layout the hook was built against.
	ABIVersion() uint32
	Receipt(env *SessionTable, msg *Table) (Decision, error)
	Delivery(env *SessionTable, msg *Table) (Decision, error)
}

// Check verifies that a hook was built against the current table layout.
func Check(h Hook) error {
	if v := h.ABIVersion(); v != ABIVersion {
		return fmt.Errorf("%w: hook %s wants %d, engine provides %d",
			domain.ErrABIVersionMismatch, h.Name(), v, ABIVersion)
	}
	return nil
}

// Table is the message capability table. All fields are populated by
// NewTable and bound to a single message; hooks must not retain the
// table or any record handle past the call that provided it.
type Table struct {
	// Version mirrors ABIVersion so a hook can double-check the layout
	// it was handed.
	Version uint32

	TID       func() uint16
	Flags     func() uint32
	SetFlags  func(uint32)
	RCode     func() uint8
	SetRCode  func(uint8)
	Opcode    func() uint8
	SetOpcode func(uint8)

	Question     func() (*message.Handle, bool)
	Visit        func(message.Section, message.VisitFunc) error
	VisitOptions func(message.OptionVisitFunc) error

	AppendFromString         func(message.Section, string) error
	AppendQuestionFromString func(string) error
	Rename                   func(target, source []byte, matchSuffix bool) error
}

// NewTable binds a capability table to msg.
func NewTable(msg *message.Message) *Table {
	return &Table{
		Version:   ABIVersion,
		TID:       msg.TID,
		Flags:     msg.Flags,
		SetFlags:  msg.SetFlags,
		RCode:     msg.RCode,
		SetRCode:  msg.SetRCode,
		Opcode:    msg.Opcode,
		SetOpcode: msg.SetOpcode,

		Question:     msg.Question,
		Visit:        msg.Visit,
		VisitOptions: msg.VisitOptions,

		AppendFromString:         msg.AppendFromString,
		AppendQuestionFromString: msg.AppendQuestionFromString,
		Rename:                   msg.Rename,
	}
}

// SessionTable is the session capability table bound to one
// transaction's environment.
type SessionTable struct {
	Version uint32

	ID        func() string
	SetString func(key, val string)
	GetString func(key string) (string, error)
	SetInt    func(key string, val int64)
	GetInt    func(key string) (int64, error)
}

// NewSessionTable binds a session capability table to env.
func NewSessionTable(env *session.Env) *SessionTable {
	return &SessionTable{
		Version:   ABIVersion,
		ID:        env.ID,
		SetString: env.SetString,
		GetString: env.GetString,
		SetInt:    env.SetInt,
		GetInt:    env.GetInt,
	}
}
