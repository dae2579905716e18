// Package ttlhook implements a delivery-time hook that clamps response
// TTLs into a configured band. The question name is captured at receipt
// time through the session environment so the delivery log line can name
// the query even after hooks have rewritten the response.
package ttlhook

import (
	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/common/utils"
	"github.com/haukened/rr-proxy/internal/dns/hooks"
	"github.com/haukened/rr-proxy/internal/dns/message"
)

const (
	keyQuestion = "ttlhook.question"
	keyRecords  = "ttlhook.receipt_records"
)

// Options configures a Hook. A zero Min disables the lower clamp; a zero
// Max disables the upper clamp.
type Options struct {
	Min    uint32
	Max    uint32
	Logger log.Logger
}

// Hook clamps record TTLs on delivery.
type Hook struct {
	min    uint32
	max    uint32
	logger log.Logger
}

// New constructs the hook.
func New(opts Options) *Hook {
	return &Hook{min: opts.Min, max: opts.Max, logger: opts.Logger}
}

// Name identifies the hook in logs.
func (h *Hook) Name() string { return "ttlhook" }

// ABIVersion reports the capability table layout this hook expects.
func (h *Hook) ABIVersion() uint32 { return hooks.ABIVersion }

// Receipt records the question name and the query's record count in the
// session environment for the delivery stage.
func (h *Hook) Receipt(env *hooks.SessionTable, msg *hooks.Table) (hooks.Decision, error) {
	if q, ok := msg.Question(); ok {
		if name, err := q.NameString(); err == nil {
			env.SetString(keyQuestion, utils.CanonicalDNSName(name))
		}
	}
	records := 0
	for _, section := range []message.Section{message.SectionAnswer, message.SectionAuthority, message.SectionAdditional} {
		_ = msg.Visit(section, func(*message.Handle) bool {
			records++
			return false
		})
	}
	env.SetInt(keyRecords, int64(records))
	return hooks.Pass, nil
}

// Delivery clamps every record TTL into [min, max].
func (h *Hook) Delivery(env *hooks.SessionTable, msg *hooks.Table) (hooks.Decision, error) {
	clamped := 0
	for _, section := range []message.Section{message.SectionAnswer, message.SectionAuthority, message.SectionAdditional} {
		_ = msg.Visit(section, func(rec *message.Handle) bool {
			ttl, err := rec.TTL()
			if err != nil {
				return false
			}
			want := h.clamp(ttl)
			if want != ttl {
				if err := rec.SetTTL(want); err == nil {
					clamped++
				}
			}
			return false
		})
	}
	if clamped > 0 {
		question, _ := env.GetString(keyQuestion)
		h.logger.Debug(map[string]any{
			"question": question,
			"clamped":  clamped,
		}, "Response TTLs clamped")
	}
	return hooks.Pass, nil
}

func (h *Hook) clamp(ttl uint32) uint32 {
	if h.min > 0 && ttl < h.min {
		return h.min
	}
	if h.max > 0 && ttl > h.max {
		return h.max
	}
	return ttl
}

var _ hooks.Hook = (*Hook)(nil)
