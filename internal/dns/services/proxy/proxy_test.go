package proxy

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/hooks"
	"github.com/haukened/rr-proxy/internal/dns/message"
	"github.com/haukened/rr-proxy/internal/dns/session"
)

// fakeUpstream scripts the upstream exchange and counts calls.
type fakeUpstream struct {
	response []byte
	err      error
	calls    int
}

func (f *fakeUpstream) Resolve(_ context.Context, _ []byte) ([]byte, error) {
	f.calls++
	return f.response, f.err
}

// fakeChain scripts the receipt and delivery verdicts.
type fakeChain struct {
	receipt    hooks.Decision
	delivery   hooks.Decision
	onReceipt  func(env *session.Env, msg *message.Message)
	onDelivery func(env *session.Env, msg *message.Message)
}

func (f *fakeChain) Receipt(env *session.Env, msg *message.Message) hooks.Decision {
	if f.onReceipt != nil {
		f.onReceipt(env, msg)
	}
	return f.receipt
}

func (f *fakeChain) Delivery(env *session.Env, msg *message.Message) hooks.Decision {
	if f.onDelivery != nil {
		f.onDelivery(env, msg)
	}
	return f.delivery
}

func (f *fakeChain) Len() int { return 0 }

// mapCache is an in-memory Cache for tests.
type mapCache struct {
	entries map[string][]byte
	sets    int
	lastTTL time.Duration
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]byte)} }

func (m *mapCache) Get(key string) ([]byte, bool) {
	wire, ok := m.entries[key]
	return wire, ok
}

func (m *mapCache) Set(key string, wire []byte, ttl time.Duration) {
	buf := make([]byte, len(wire))
	copy(buf, wire)
	m.entries[key] = buf
	m.sets++
	m.lastTTL = ttl
}

func (m *mapCache) Delete(key string) { delete(m.entries, key) }

func clientAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("192.0.2.50"), Port: 5353}
}

func queryWire(t *testing.T, name string, id uint16) []byte {
	t.Helper()
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.Id = id
	wire, err := msg.Pack()
	require.NoError(t, err)
	return wire
}

func newProxy(t *testing.T, chain HookRunner, up UpstreamClient, cache Cache) *Proxy {
	t.Helper()
	p, err := New(Options{
		Logger:   log.NewNoopLogger(),
		Chain:    chain,
		Upstream: up,
		Cache:    cache,
	})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Chain: &fakeChain{}, Upstream: &fakeUpstream{}})
	assert.Error(t, err, "missing logger")

	_, err = New(Options{Logger: log.NewNoopLogger(), Upstream: &fakeUpstream{}})
	assert.Error(t, err, "missing chain")

	_, err = New(Options{Logger: log.NewNoopLogger(), Chain: &fakeChain{}})
	assert.Error(t, err, "missing upstream")

	_, err = New(Options{Logger: log.NewNoopLogger(), Chain: &fakeChain{}, Upstream: &fakeUpstream{}})
	assert.NoError(t, err, "cache is optional")
}

func TestHandlePacket_ForwardsAndRestampsTID(t *testing.T) {
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 0x9999, 300)}
	p := newProxy(t, &fakeChain{}, up, nil)

	out, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 0x1234), clientAddr())
	require.True(t, ok)

	resp := new(dns.Msg)
	require.NoError(t, resp.Unpack(out))
	assert.Equal(t, uint16(0x1234), resp.Id, "response must carry the client's transaction id")
	require.Len(t, resp.Answer, 1)
}

func TestHandlePacket_GarbageQueryRejected(t *testing.T) {
	up := &fakeUpstream{}
	p := newProxy(t, &fakeChain{}, up, nil)

	_, ok := p.HandlePacket(context.Background(), []byte{0xde, 0xad}, clientAddr())
	assert.False(t, ok)
	assert.Zero(t, up.calls, "unparseable queries must not reach upstream")
}

func TestHandlePacket_ReceiptDropShortCircuits(t *testing.T) {
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 1, 300)}
	p := newProxy(t, &fakeChain{receipt: hooks.Drop}, up, nil)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 1), clientAddr())
	assert.False(t, ok)
	assert.Zero(t, up.calls, "dropped transactions must not reach upstream")
}

func TestHandlePacket_DeliveryDropSuppressesResponse(t *testing.T) {
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 1, 300)}
	p := newProxy(t, &fakeChain{delivery: hooks.Drop}, up, nil)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 1), clientAddr())
	assert.False(t, ok)
	assert.Equal(t, 1, up.calls, "the lookup still ran before the delivery drop")
}

func TestHandlePacket_UpstreamFailure(t *testing.T) {
	up := &fakeUpstream{err: errors.New("all servers failed")}
	p := newProxy(t, &fakeChain{}, up, nil)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 1), clientAddr())
	assert.False(t, ok)
}

func TestHandlePacket_CachesAndServesRepeatQueries(t *testing.T) {
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 0x0001, 300)}
	cache := newMapCache()
	p := newProxy(t, &fakeChain{}, up, cache)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 0x0001), clientAddr())
	require.True(t, ok)
	assert.Equal(t, 1, up.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 300*time.Second, cache.lastTTL, "cache ttl follows the smallest record ttl")

	// second client asks the same question with a different id
	out, ok := p.HandlePacket(context.Background(), queryWire(t, "EXAMPLE.com", 0xabcd), clientAddr())
	require.True(t, ok)
	assert.Equal(t, 1, up.calls, "repeat question must be served from cache")

	resp := new(dns.Msg)
	require.NoError(t, resp.Unpack(out))
	assert.Equal(t, uint16(0xabcd), resp.Id, "cached response must be restamped per client")
}

func TestHandlePacket_LookupVerdictBypassesCache(t *testing.T) {
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 1, 300)}
	cache := newMapCache()
	p := newProxy(t, &fakeChain{receipt: hooks.Lookup}, up, cache)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 1), clientAddr())
	require.True(t, ok)
	_, ok = p.HandlePacket(context.Background(), queryWire(t, "example.com", 2), clientAddr())
	require.True(t, ok)
	assert.Equal(t, 2, up.calls, "a lookup verdict must force an upstream round trip")
}

func TestHandlePacket_CorruptCacheEntryEvicted(t *testing.T) {
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 1, 300)}
	cache := newMapCache()
	cache.entries["example.com|A"] = []byte{0xff}
	p := newProxy(t, &fakeChain{}, up, cache)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "example.com", 1), clientAddr())
	require.True(t, ok)
	assert.Equal(t, 1, up.calls, "corrupt entry must fall through to upstream")
}

func TestHandlePacket_NegativeResponseTTL(t *testing.T) {
	// NXDOMAIN with no records at all
	query := new(dns.Msg)
	query.SetQuestion("missing.example.com.", dns.TypeA)
	resp := new(dns.Msg)
	resp.SetRcode(query, dns.RcodeNameError)
	wire, err := resp.Pack()
	require.NoError(t, err)

	up := &fakeUpstream{response: wire}
	cache := newMapCache()
	p := newProxy(t, &fakeChain{}, up, cache)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "missing.example.com", 1), clientAddr())
	require.True(t, ok)
	assert.Equal(t, defaultNegativeTTL, cache.lastTTL)
}

func TestHandlePacket_SessionBoundPerTransaction(t *testing.T) {
	var ids []string
	chain := &fakeChain{
		onReceipt: func(env *session.Env, _ *message.Message) {
			ids = append(ids, env.ID())
		},
	}
	up := &fakeUpstream{response: upstreamAnswer(t, "example.com", 1, 300)}
	p := newProxy(t, chain, up, nil)

	p.HandlePacket(context.Background(), queryWire(t, "example.com", 1), clientAddr())
	p.HandlePacket(context.Background(), queryWire(t, "example.com", 2), clientAddr())

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1], "each transaction gets a distinct session id")
	assert.Contains(t, ids[0], "192.0.2.50:5353/")
}

func TestHandlePacket_ReceiptMutationReachesUpstream(t *testing.T) {
	chain := &fakeChain{
		onReceipt: func(_ *session.Env, msg *message.Message) {
			msg.SetRCode(0)
			_ = msg.Rename(wireName(t, "example.net."), wireName(t, "example.com."), true)
		},
	}
	captured := &capturingUpstream{response: upstreamAnswer(t, "example.net", 1, 300)}
	p := newProxy(t, chain, captured, nil)

	_, ok := p.HandlePacket(context.Background(), queryWire(t, "www.example.com", 1), clientAddr())
	require.True(t, ok)

	sent := new(dns.Msg)
	require.NoError(t, sent.Unpack(captured.query))
	require.Len(t, sent.Question, 1)
	assert.Equal(t, "www.example.net.", sent.Question[0].Name, "hook edits must survive to the upstream query")
}

// capturingUpstream records the exact bytes the proxy forwarded.
type capturingUpstream struct {
	response []byte
	query    []byte
}

func (c *capturingUpstream) Resolve(_ context.Context, query []byte) ([]byte, error) {
	c.query = append([]byte(nil), query...)
	return c.response, nil
}

// upstreamAnswer builds a one-answer response in wire form.
func upstreamAnswer(t *testing.T, name string, id uint16, ttl uint32) []byte {
	t.Helper()
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(name), dns.TypeA)
	query.Id = id
	resp := new(dns.Msg)
	resp.SetReply(query)
	rr, err := dns.NewRR(dns.Fqdn(name) + " 300 IN A 192.0.2.1")
	require.NoError(t, err)
	rr.Header().Ttl = ttl
	resp.Answer = append(resp.Answer, rr)
	wire, err := resp.Pack()
	require.NoError(t, err)
	return wire
}

func wireName(t *testing.T, name string) []byte {
	t.Helper()
	buf := make([]byte, 256)
	n, err := dns.PackDomainName(name, buf, 0, nil, false)
	require.NoError(t, err)
	return buf[:n]
}
