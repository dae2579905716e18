package proxy

import (
	"context"
	"net"
	"time"

	"github.com/haukened/rr-proxy/internal/dns/hooks"
	"github.com/haukened/rr-proxy/internal/dns/message"
	"github.com/haukened/rr-proxy/internal/dns/session"
)

// UpstreamClient forwards a serialized query and returns the serialized
// response.
type UpstreamClient interface {
	Resolve(ctx context.Context, query []byte) ([]byte, error)
}

// Cache stores serialized responses keyed by question tuple.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, wire []byte, ttl time.Duration)
	Delete(key string)
}

// HookRunner executes the registered hooks over one transaction.
type HookRunner interface {
	Receipt(env *session.Env, msg *message.Message) hooks.Decision
	Delivery(env *session.Env, msg *message.Message) hooks.Decision
	Len() int
}

// PacketResponder processes one raw query packet into a raw response.
// ok is false when the transaction was dropped.
type PacketResponder interface {
	HandlePacket(ctx context.Context, packet []byte, clientAddr net.Addr) (response []byte, ok bool)
}

// ServerTransport defines the interface for DNS server transport
// implementations as seen from the service layer.
type ServerTransport interface {
	Start(ctx context.Context, handler PacketResponder) error
	Stop() error
	Address() string
}
