// Package proxy orchestrates the packet-mutation pipeline: parse the
// client query, run receipt hooks, answer from cache or upstream, run
// delivery hooks, and serialize the response. Hooks see every message
// through versioned capability tables and share a per-transaction
// session environment between the receipt and delivery stages.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/common/utils"
	"github.com/haukened/rr-proxy/internal/dns/hooks"
	"github.com/haukened/rr-proxy/internal/dns/message"
	"github.com/haukened/rr-proxy/internal/dns/session"
)

// defaultNegativeTTL bounds how long a response with no records may be
// cached.
const defaultNegativeTTL = 30 * time.Second

// Proxy is the DNS proxy service. One Proxy serves many concurrent
// transactions; each transaction gets its own parsed message and session
// environment, so hooks never observe another client's state.
type Proxy struct {
	logger   log.Logger
	chain    HookRunner
	upstream UpstreamClient
	cache    Cache
	seq      atomic.Uint64
}

// Options defines the collaborators for a Proxy. Logger, Chain and
// Upstream are required; Cache may be nil to disable response caching.
type Options struct {
	Logger   log.Logger
	Chain    HookRunner
	Upstream UpstreamClient
	Cache    Cache
}

// New constructs a Proxy from its collaborators.
func New(opts Options) (*Proxy, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Chain == nil {
		return nil, fmt.Errorf("hook chain is required")
	}
	if opts.Upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	return &Proxy{
		logger:   opts.Logger,
		chain:    opts.Chain,
		upstream: opts.Upstream,
		cache:    opts.Cache,
	}, nil
}

// HandlePacket processes a single client query. It returns the response
// bytes to send, or ok=false when the transaction was dropped by a hook
// or the packet could not be served.
func (p *Proxy) HandlePacket(ctx context.Context, packet []byte, clientAddr net.Addr) ([]byte, bool) {
	query, err := message.Parse(packet)
	if err != nil {
		p.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
			"size":   len(packet),
		}, "Failed to parse DNS query")
		return nil, false
	}

	env := session.New()
	env.Bind(fmt.Sprintf("%s/%d", clientAddr.String(), p.seq.Add(1)))

	verdict := p.chain.Receipt(env, query)
	if verdict == hooks.Drop {
		return nil, false
	}

	key := cacheKey(query)
	if verdict != hooks.Lookup {
		if response, found := p.cachedResponse(key, query.TID()); found {
			return p.deliver(env, response, clientAddr)
		}
	}

	queryWire, err := query.Bytes()
	if err != nil {
		p.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to serialize mutated query")
		return nil, false
	}

	responseWire, err := p.upstream.Resolve(ctx, queryWire)
	if err != nil {
		p.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Upstream resolution failed")
		return nil, false
	}

	response, err := message.Parse(responseWire)
	if err != nil {
		p.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to parse upstream response")
		return nil, false
	}
	response.SetTID(query.TID())

	if p.cache != nil && key != "" {
		p.cache.Set(key, responseWire, responseTTL(response))
	}

	return p.deliver(env, response, clientAddr)
}

// cachedResponse fetches and re-parses a cached response, stamping it
// with the client's transaction identifier.
func (p *Proxy) cachedResponse(key string, tid uint16) (*message.Message, bool) {
	if p.cache == nil || key == "" {
		return nil, false
	}
	wire, found := p.cache.Get(key)
	if !found {
		return nil, false
	}
	response, err := message.Parse(wire)
	if err != nil {
		p.cache.Delete(key)
		return nil, false
	}
	response.SetTID(tid)
	return response, true
}

// deliver runs the delivery hooks over the response and serializes it.
func (p *Proxy) deliver(env *session.Env, response *message.Message, clientAddr net.Addr) ([]byte, bool) {
	if p.chain.Delivery(env, response) == hooks.Drop {
		return nil, false
	}
	wire, err := response.Bytes()
	if err != nil {
		p.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to serialize response")
		return nil, false
	}
	return wire, true
}

// cacheKey derives the cache key from the question tuple. Messages
// without a question are not cacheable.
func cacheKey(msg *message.Message) string {
	q, ok := msg.Question()
	if !ok {
		return ""
	}
	name, err := q.NameString()
	if err != nil {
		return ""
	}
	rtype, err := q.Type()
	if err != nil {
		return ""
	}
	return utils.CanonicalDNSName(name) + "|" + rtype.String()
}

// responseTTL returns the smallest record TTL in the response, bounded
// by the negative-caching default when the response carries no records.
func responseTTL(msg *message.Message) time.Duration {
	min := uint32(0)
	seen := false
	for _, section := range []message.Section{message.SectionAnswer, message.SectionAuthority, message.SectionAdditional} {
		_ = msg.Visit(section, func(h *message.Handle) bool {
			ttl, err := h.TTL()
			if err != nil {
				return false
			}
			if !seen || ttl < min {
				min = ttl
				seen = true
			}
			return false
		})
	}
	if !seen {
		return defaultNegativeTTL
	}
	return time.Duration(min) * time.Second
}
