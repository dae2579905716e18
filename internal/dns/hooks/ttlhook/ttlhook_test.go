package ttlhook

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/hooks"
	"github.com/haukened/rr-proxy/internal/dns/message"
	"github.com/haukened/rr-proxy/internal/dns/session"
)

func parseResponse(t *testing.T, answers ...string) *message.Message {
	t.Helper()
	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	resp := new(dns.Msg)
	resp.SetReply(query)
	for _, text := range answers {
		rr, err := dns.NewRR(text)
		require.NoError(t, err)
		resp.Answer = append(resp.Answer, rr)
	}
	wire, err := resp.Pack()
	require.NoError(t, err)
	m, err := message.Parse(wire)
	require.NoError(t, err)
	return m
}

func collectTTLs(t *testing.T, m *message.Message) []uint32 {
	t.Helper()
	var ttls []uint32
	err := m.Visit(message.SectionAnswer, func(h *message.Handle) bool {
		ttl, err := h.TTL()
		require.NoError(t, err)
		ttls = append(ttls, ttl)
		return false
	})
	require.NoError(t, err)
	return ttls
}

func TestHook_ClampsBothBounds(t *testing.T) {
	h := New(Options{Min: 60, Max: 3600, Logger: log.NewNoopLogger()})
	msg := parseResponse(t,
		"example.com. 5 IN A 192.0.2.1",
		"example.com. 600 IN A 192.0.2.2",
		"example.com. 86400 IN A 192.0.2.3",
	)
	env := session.New()

	d, err := h.Delivery(hooks.NewSessionTable(env), hooks.NewTable(msg))
	require.NoError(t, err)
	assert.Equal(t, hooks.Pass, d)
	assert.Equal(t, []uint32{60, 600, 3600}, collectTTLs(t, msg))
}

func TestHook_ZeroBoundDisablesClamp(t *testing.T) {
	h := New(Options{Min: 0, Max: 300, Logger: log.NewNoopLogger()})
	msg := parseResponse(t,
		"example.com. 1 IN A 192.0.2.1",
		"example.com. 9999 IN A 192.0.2.2",
	)
	env := session.New()

	_, err := h.Delivery(hooks.NewSessionTable(env), hooks.NewTable(msg))
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 300}, collectTTLs(t, msg))
}

func TestHook_ReceiptStoresQuestionAndCount(t *testing.T) {
	h := New(Options{Min: 60, Logger: log.NewNoopLogger()})
	msg := parseResponse(t,
		"example.com. 5 IN A 192.0.2.1",
		"example.com. 5 IN A 192.0.2.2",
	)
	env := session.New()

	d, err := h.Receipt(hooks.NewSessionTable(env), hooks.NewTable(msg))
	require.NoError(t, err)
	assert.Equal(t, hooks.Pass, d)

	question, err := env.GetString("ttlhook.question")
	require.NoError(t, err)
	assert.Equal(t, "example.com", question)

	count, err := env.GetInt("ttlhook.receipt_records")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestHook_ABI(t *testing.T) {
	h := New(Options{Logger: log.NewNoopLogger()})
	assert.Equal(t, "ttlhook", h.Name())
	assert.NoError(t, hooks.Check(h))
}
