// Package upstream implements query forwarding to external DNS servers.
// It handles the low-level networking concerns of DNS over UDP while
// maintaining clean separation from the service layer business logic.
package upstream

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// Error message constants for consistent error handling
const (
	errNoServersProvided = "no upstream DNS servers provided"
	errServerFailed      = "server %s: %w"
	errAllServersFailed  = "all %d upstream servers failed"
	errQueryTimeout      = "query timeout after %v"
	errUnpackFailed      = "unpack failed: %w"
	errExchangeFailed    = "exchange failed: %w"
	errPackFailed        = "pack failed: %w"
)

// ExchangeFunc performs one query/response round trip with a single
// upstream server. Injected for testing.
type ExchangeFunc func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)

// Resolver forwards serialized DNS queries to external servers and
// returns the serialized responses. It accepts the exact bytes the
// mutation pipeline produced, so hook edits to the outbound query
// survive the trip upstream.
type Resolver struct {
	servers  []string      // List of upstream DNS servers (e.g., "1.1.1.1:53")
	timeout  time.Duration // Default timeout for DNS queries
	parallel bool          // Whether to race servers in parallel
	exchange ExchangeFunc
}

// Options defines configuration parameters for the upstream resolver.
type Options struct {
	// required parameters
	Servers  []string
	Timeout  time.Duration
	Parallel bool
	// injected for testing purposes
	Exchange ExchangeFunc
}

// NewResolver creates a new upstream resolver with the specified options.
// Server hostnames are normalized to their ASCII form. Returns an error
// if the server list is empty or a server address cannot be normalized.
// Sets default timeout to 5 seconds if not provided.
func NewResolver(opts Options) (*Resolver, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf(errNoServersProvided)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	servers := make([]string, 0, len(opts.Servers))
	for _, server := range opts.Servers {
		normalized, err := normalizeServer(server)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream server %q: %w", server, err)
		}
		servers = append(servers, normalized)
	}
	r := &Resolver{
		servers:  servers,
		timeout:  opts.Timeout,
		parallel: opts.Parallel,
		exchange: opts.Exchange,
	}
	if r.exchange == nil {
		r.exchange = udpExchange
	}
	return r, nil
}

// normalizeServer converts a "host:port" upstream address to its ASCII
// form, so internationalized hostnames from configuration resolve the
// same way everywhere. A missing port defaults to 53.
func normalizeServer(server string) (string, error) {
	host, port, err := net.SplitHostPort(server)
	if err != nil {
		host, port = server, "53"
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(host, port), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ascii, port), nil
}

// udpExchange is the default ExchangeFunc using plain DNS over UDP.
func udpExchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	client := &dns.Client{Net: "udp"}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	return resp, err
}

// ensureContextDeadline ensures the context has a deadline, adding the resolver's default timeout if needed.
// Returns the context (potentially with added timeout) and a cancel function if one was created.
func (r *Resolver) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, nil
}

// Resolve forwards a serialized DNS query to the upstream servers and
// returns the serialized response. It tries either parallel or serial
// resolution depending on the Resolver's parallel flag. The method
// respects the deadline set in the context or applies the default timeout.
func (r *Resolver) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(query); err != nil {
		return nil, fmt.Errorf(errUnpackFailed, err)
	}

	ctx, cancel := r.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	if r.parallel {
		return r.resolveParallel(ctx, msg)
	}
	return r.resolveSerial(ctx, msg)
}

// resolveSerial attempts to query each server in order until one responds successfully.
func (r *Resolver) resolveSerial(ctx context.Context, msg *dns.Msg) ([]byte, error) {
	var lastErr error
	for _, server := range r.servers {
		resp, err := r.queryServer(ctx, server, msg)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf(errAllServersFailed+": %w", len(r.servers), lastErr)
}

// resolveParallel races all servers and returns the first successful response.
func (r *Resolver) resolveParallel(ctx context.Context, msg *dns.Msg) ([]byte, error) {
	// Channel to receive the first successful response
	responseChan := make(chan []byte, 1)
	errorChan := make(chan error, len(r.servers))

	// Launch goroutines for each server
	for _, server := range r.servers {
		go func(srv string) {
			response, err := r.queryServer(ctx, srv, msg)
			if err != nil {
				errorChan <- fmt.Errorf(errServerFailed, srv, err)
				return
			}

			// Try to send response (non-blocking)
			select {
			case responseChan <- response:
				// Response sent successfully
			default:
				// Another goroutine already sent a response
			}
		}(server)
	}

	// Wait for first success or all failures
	var errs []error
	for i := 0; i < len(r.servers); i++ {
		select {
		case response := <-responseChan:
			return response, nil
		case err := <-errorChan:
			errs = append(errs, err)
		case <-ctx.Done():
			return nil, fmt.Errorf(errQueryTimeout, r.timeout)
		}
	}

	// All servers failed
	return nil, fmt.Errorf(errAllServersFailed+": %v", len(r.servers), errs)
}

// queryServer performs one round trip and repacks the answer.
func (r *Resolver) queryServer(ctx context.Context, server string, msg *dns.Msg) ([]byte, error) {
	resp, err := r.exchange(ctx, msg, server)
	if err != nil {
		return nil, fmt.Errorf(errExchangeFailed, err)
	}
	wire, err := resp.Pack()
	if err != nil {
		return nil, fmt.Errorf(errPackFailed, err)
	}
	return wire, nil
}
