// Package blockhook implements a receipt-time hook that drops queries
// for blocked names. Lookups run a cache, bloom, store pipeline: an LRU
// decision cache absorbs repeat queries, a Bloom filter early-allows
// names no rule can match, and a bbolt index holds the authoritative
// rule set.
package blockhook

import (
	"math"
	"strings"
	"sync"
	"time"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/common/utils"
	"github.com/haukened/rr-proxy/internal/dns/hooks"
)

// Rule is one block rule. Suffix rules cover the name and every name
// below it; exact rules cover the name alone.
type Rule struct {
	Name   string
	Suffix bool
}

// Options configures a Hook.
type Options struct {
	// StorePath is the bbolt database file for the rule index.
	StorePath string
	// CacheSize is the decision cache capacity. Defaults to 4096.
	CacheSize int
	// FPRate is the Bloom filter target false-positive rate. Defaults
	// to 1%.
	FPRate float64
	Logger log.Logger
}

// Hook drops queries whose question name matches a block rule.
type Hook struct {
	logger log.Logger
	cache  *decisionCache
	store  *store
	fpRate float64

	mu    sync.RWMutex
	bloom *bitsbloom.BloomFilter
}

// New opens the rule store and constructs the hook. Call Load to
// populate the rule set.
func New(opts Options) (*Hook, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if !(opts.FPRate > 0 && opts.FPRate < 1) {
		opts.FPRate = 0.01
	}
	st, err := openStore(opts.StorePath)
	if err != nil {
		return nil, err
	}
	cache, err := newDecisionCache(opts.CacheSize)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &Hook{
		logger: opts.Logger,
		cache:  cache,
		store:  st,
		fpRate: opts.FPRate,
	}, nil
}

// Name identifies the hook in logs.
func (h *Hook) Name() string { return "blockhook" }

// ABIVersion reports the capability table layout this hook expects.
func (h *Hook) ABIVersion() uint32 { return hooks.ABIVersion }

// Close releases the rule store.
func (h *Hook) Close() error { return h.store.Close() }

// Load atomically replaces the rule set: the store is rewritten, a fresh
// Bloom filter is built, and the decision cache is purged.
func (h *Hook) Load(rules []Rule) error {
	canonical := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		canonical = append(canonical, Rule{
			Name:   utils.CanonicalDNSName(rule.Name),
			Suffix: rule.Suffix,
		})
	}
	if err := h.store.replaceAll(canonical, time.Now().Unix()); err != nil {
		return err
	}

	m, k := bloomSize(uint64(len(canonical)), h.fpRate)
	bf := bitsbloom.New(uint(m), uint(k))
	for _, rule := range canonical {
		if rule.Suffix {
			bf.Add([]byte(reverseString(rule.Name)))
		} else {
			bf.Add([]byte(rule.Name))
		}
	}

	h.mu.Lock()
	h.bloom = bf
	h.cache.Purge()
	h.mu.Unlock()

	exact, suffix := h.store.counts()
	h.logger.Info(map[string]any{
		"exact_rules":  exact,
		"suffix_rules": suffix,
	}, "Block rules loaded")
	return nil
}

// Receipt drops the transaction when the question name is blocked.
func (h *Hook) Receipt(env *hooks.SessionTable, msg *hooks.Table) (hooks.Decision, error) {
	q, ok := msg.Question()
	if !ok {
		return hooks.Pass, nil
	}
	name, err := q.NameString()
	if err != nil {
		return hooks.Pass, err
	}
	cn := utils.CanonicalDNSName(name)
	dec := h.decide(cn)
	if !dec.Blocked {
		return hooks.Pass, nil
	}
	env.SetString("blockhook.rule", dec.Rule)
	h.logger.Info(map[string]any{
		"name": cn,
		"apex": utils.GetApexDomain(cn),
		"rule": dec.Rule,
	}, "Query blocked")
	return hooks.Drop, nil
}

// Delivery never acts on responses.
func (h *Hook) Delivery(env *hooks.SessionTable, msg *hooks.Table) (hooks.Decision, error) {
	return hooks.Pass, nil
}

// decide runs the cache, bloom, store pipeline for one canonical name.
// Policy: on internal errors, prefer allow.
func (h *Hook) decide(cn string) decision {
	if !h.checkBloom(cn) {
		return decision{}
	}
	if d, ok := h.cache.Get(cn); ok {
		return d
	}
	d := h.checkStore(cn)
	h.cache.Put(cn, d)
	return d
}

// checkBloom returns true if the store must be consulted
// (maybe-positive), or false if the name can be allowed outright. With
// no filter loaded, returns true so the store stays authoritative.
func (h *Hook) checkBloom(cn string) bool {
	h.mu.RLock()
	bf := h.bloom
	h.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.Test([]byte(cn)) {
		return true
	}
	// probe reversed anchors for suffix candidates, most-specific first
	a := cn
	for {
		if bf.Test([]byte(reverseString(a))) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			return false
		}
		a = a[i+1:]
		if a == "" {
			return false
		}
	}
}

// checkStore consults the authoritative index.
func (h *Hook) checkStore(cn string) decision {
	if ok, err := h.store.existsExact(cn); err == nil && ok {
		return decision{Blocked: true, Rule: cn}
	}
	if anchor, ok, err := h.store.matchSuffix(cn); err == nil && ok {
		return decision{Blocked: true, Rule: "*." + anchor}
	}
	return decision{}
}

// bloomSize derives filter parameters from capacity and FP rate using
// the standard formulas, clamped to at least 1:
//
//	m = - (n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
func bloomSize(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}

var _ hooks.Hook = (*Hook)(nil)
