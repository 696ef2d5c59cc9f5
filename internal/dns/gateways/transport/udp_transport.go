// Package transport implements the DNS server's network front end. The UDP
// transport owns socket management and dispatches request datagrams to a
// bounded worker pool; all DNS logic stays behind the Handler contract.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
)

// Handler processes one request datagram and returns the response datagram.
// A nil return means the request is dropped without a reply.
type Handler interface {
	Handle(ctx context.Context, packet []byte) []byte
}

// packetJob is one received datagram awaiting a worker.
type packetJob struct {
	data   []byte
	client *net.UDPAddr
}

// UDPTransport implements DNS over UDP (RFC 1035 §4.2.1). Each request is
// one unit of work; a pool of workers drains a bounded queue so that a slow
// recursion cannot stall the read loop.
type UDPTransport struct {
	addr    string
	workers int
	logger  log.Logger

	conn  *net.UDPConn
	queue chan packetJob
	wg    sync.WaitGroup

	// Synchronization for graceful shutdown
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport creates a new UDP transport bound to addr with the given
// worker count.
func NewUDPTransport(addr string, workers int, logger log.Logger) *UDPTransport {
	if workers <= 0 {
		workers = 1
	}
	return &UDPTransport{
		addr:    addr,
		workers: workers,
		logger:  logger,
		queue:   make(chan packetJob, workers*4),
		stopCh:  make(chan struct{}),
	}
}

// Start binds the UDP socket and launches the worker pool and read loop.
func (t *UDPTransport) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

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
		"workers":   t.workers,
	}, "DNS transport started")

	for i := 0; i < t.workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx, handler)
	}
	go t.listenLoop(ctx)

	return nil
}

// Stop gracefully shuts down the transport: closes the socket, signals the
// workers, and waits for in-flight requests to finish.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	close(t.stopCh)
	closeErr := t.conn.Close()
	t.running = false
	t.mu.Unlock()

	t.wg.Wait()

	if closeErr != nil {
		t.logger.Warn(map[string]any{"error": closeErr.Error()}, "Error closing UDP connection")
	}
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

// listenLoop reads datagrams and enqueues them for the workers. When the
// queue is full the datagram is dropped; DNS clients retry.
func (t *UDPTransport) listenLoop(ctx context.Context) {
	buffer := make([]byte, 512) // standard DNS UDP request size limit
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		n, clientAddr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()
			if !running {
				return // normal shutdown
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])

		select {
		case t.queue <- packetJob{data: packet, client: clientAddr}:
		default:
			t.logger.Warn(map[string]any{
				"client": clientAddr.String(),
			}, "Request queue full, dropping packet")
		}
	}
}

// worker drains the request queue until shutdown.
func (t *UDPTransport) worker(ctx context.Context, handler Handler) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case job := <-t.queue:
			t.handlePacket(ctx, handler, job)
		}
	}
}

// handlePacket runs one request through the handler and writes the reply.
func (t *UDPTransport) handlePacket(ctx context.Context, handler Handler, job packetJob) {
	response := handler.Handle(ctx, job.data)
	if response == nil {
		return
	}
	if _, err := t.conn.WriteToUDP(response, job.client); err != nil {
		t.logger.Error(map[string]any{
			"client": job.client.String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
	}
}
