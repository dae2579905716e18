package hooks

import (
	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/message"
	"github.com/haukened/rr-proxy/internal/dns/session"
)

// Chain runs an ordered set of hooks over a transaction. Registration
// rejects hooks built against a different table layout, so dispatch
// never hands a table to a hook that cannot read it.
type Chain struct {
	hooks []Hook
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register appends h to the chain after verifying its table version.
func (c *Chain) Register(h Hook) error {
	if err := Check(h); err != nil {
		return err
	}
	c.hooks = append(c.hooks, h)
	log.Debug(map[string]any{"hook": h.Name(), "abi": h.ABIVersion()}, "hook registered")
	return nil
}

// Len returns the number of registered hooks.
func (c *Chain) Len() int { return len(c.hooks) }

// Receipt runs every hook's receipt entry point over msg in registration
// order. The first Drop stops the chain; a Lookup verdict is sticky and
// survives later Pass verdicts. A failing hook is logged and skipped.
func (c *Chain) Receipt(env *session.Env, msg *message.Message) Decision {
	return c.run(env, msg, true)
}

// Delivery runs every hook's delivery entry point over msg. The first
// Drop stops the chain.
func (c *Chain) Delivery(env *session.Env, msg *message.Message) Decision {
	return c.run(env, msg, false)
}

func (c *Chain) run(env *session.Env, msg *message.Message, receipt bool) Decision {
	st := NewSessionTable(env)
	mt := NewTable(msg)
	verdict := Pass
	for _, h := range c.hooks {
		var (
			d   Decision
			err error
		)
		if receipt {
			d, err = h.Receipt(st, mt)
		} else {
			d, err = h.Delivery(st, mt)
		}
		if err != nil {
			log.Error(map[string]any{"hook": h.Name(), "error": err}, "hook failed, skipping")
			continue
		}
		switch d {
		case Drop:
			log.Debug(map[string]any{"hook": h.Name()}, "hook dropped transaction")
			return Drop
		case Lookup:
			if receipt {
				verdict = Lookup
			}
		}
	}
	return verdict
}
