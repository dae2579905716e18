package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/services/proxy"
)

// maxUDPPacket is the read buffer size for incoming queries. EDNS
// clients may send packets past the classic 512-byte limit.
const maxUDPPacket = 4096

// UDPTransport implements ServerTransport for standard DNS over UDP (RFC 1035).
// It handles UDP socket management and packet reception/transmission while
// delegating all message handling to the service layer.
type UDPTransport struct {
	addr   string
	conn   *net.UDPConn
	logger log.Logger

	// Synchronization for graceful shutdown
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr string, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:   addr,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins listening for UDP DNS queries on the configured address.
// It binds to the UDP socket and starts the packet handling loop.
func (t *UDPTransport) Start(ctx context.Context, handler proxy.PacketResponder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	// Parse and bind to UDP address
	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport started")

	// Start the packet handling loop
	go t.listenLoop(ctx, handler)

	return nil
}

// Stop gracefully shuts down the UDP transport.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	// Signal stop and close connection
	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}

	t.running = false

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the network address the transport is bound to.
func (t *UDPTransport) Address() string {
	return t.addr
}

// listenLoop continuously listens for UDP packets and handles them.
func (t *UDPTransport) listenLoop(ctx context.Context, handler proxy.PacketResponder) {
	buffer := make([]byte, maxUDPPacket)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			return
		case <-t.stopCh:
			t.logger.Debug(nil, "UDP transport stopping due to stop signal")
			return
		default:
			// Read incoming packet
			n, clientAddr, err := t.conn.ReadFromUDP(buffer)
			if err != nil {
				// Check if we're shutting down
				t.mu.RLock()
				running := t.running
				t.mu.RUnlock()

				if !running {
					return // Normal shutdown
				}

				t.logger.Warn(map[string]any{
					"error": err.Error(),
				}, "Failed to read UDP packet")
				continue
			}

			packet := make([]byte, n)
			copy(packet, buffer[:n])
			go t.handlePacket(ctx, packet, clientAddr, handler)
		}
	}
}

// handlePacket processes a single UDP DNS packet.
func (t *UDPTransport) handlePacket(ctx context.Context, data []byte, clientAddr *net.UDPAddr, handler proxy.PacketResponder) {
	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(data),
	}, "Received DNS packet")

	response, ok := handler.HandlePacket(ctx, data, clientAddr)
	if !ok {
		t.logger.Debug(map[string]any{
			"client": clientAddr.String(),
		}, "Transaction dropped, no response sent")
		return
	}

	// Send response back to client
	_, err := t.conn.WriteToUDP(response, clientAddr)
	if err != nil {
		t.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
		return
	}

	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(response),
	}, "Sent DNS response")
}
