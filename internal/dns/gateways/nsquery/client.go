// Package nsquery sends one-shot iterative queries to individual nameservers
// over UDP. Each query uses a fresh ephemeral socket and a fresh random ID;
// responses are validated by matching both the ID and the question before
// they are trusted.
package nsquery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
	"github.com/valarpirai/dns-resolver/internal/dns/gateways/wire"
	"github.com/valarpirai/dns-resolver/internal/dns/services/resolver"
)

// Receive buffer size. Referral responses carrying many authority and glue
// records routinely exceed the 512-octet answer limit.
const recvBufSize = 4096

const dnsPort = "53"

// ErrRejected reports an upstream response whose rcode makes it unusable
// (FORMERR, SERVFAIL, NOTIMP, REFUSED). The caller proceeds to the next
// nameserver.
var ErrRejected = errors.New("upstream rejected query")

// DialFunc establishes a network connection; injected in tests.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Client.
type Options struct {
	// Timeout bounds each query when the context carries no deadline.
	Timeout time.Duration
	Codec   wire.Codec
	Logger  log.Logger
	// test injection points
	Dial  DialFunc
	NewID func() uint16
}

// Client issues iterative DNS queries to single nameservers.
type Client struct {
	timeout time.Duration
	codec   wire.Codec
	logger  log.Logger
	dial    DialFunc
	newID   func() uint16
}

// NewClient creates a Client with the specified options. The codec is
// required; timeout defaults to 5 seconds.
func NewClient(opts Options) (*Client, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("DNS codec is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.NewID == nil {
		opts.NewID = func() uint16 { return uint16(rand.Uint32()) }
	}
	return &Client{
		timeout: opts.Timeout,
		codec:   opts.Codec,
		logger:  opts.Logger,
		dial:    opts.Dial,
		newID:   opts.NewID,
	}, nil
}

// Query sends a single iterative query (qr=0, rd=0) for q to the nameserver
// at nsIP port 53 and waits for a matching response within the deadline.
// Datagrams whose ID or question do not match are discarded and the receive
// retried within the same budget.
func (c *Client) Query(ctx context.Context, nsIP string, q domain.Question) (domain.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, "udp", net.JoinHostPort(nsIP, dnsPort))
	if err != nil {
		return domain.Message{}, fmt.Errorf("nameserver %s: connect: %w", nsIP, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	id := c.newID()
	queryBytes, err := c.codec.EncodeMessage(domain.NewQueryMessage(id, q))
	if err != nil {
		return domain.Message{}, fmt.Errorf("nameserver %s: encode: %w", nsIP, err)
	}
	if _, err := conn.Write(queryBytes); err != nil {
		return domain.Message{}, fmt.Errorf("nameserver %s: write: %w", nsIP, err)
	}

	c.logger.Debug(map[string]any{
		"ns":       nsIP,
		"query_id": id,
		"name":     q.Name,
		"type":     q.Type.String(),
	}, "Sent iterative query")

	buf := make([]byte, recvBufSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return domain.Message{}, fmt.Errorf("nameserver %s: read: %w", nsIP, err)
		}

		resp, err := c.codec.DecodeMessage(buf[:n])
		if err != nil {
			return domain.Message{}, fmt.Errorf("nameserver %s: %w", nsIP, err)
		}

		// Discard datagrams that do not answer our question: wrong ID,
		// not a response, or a question section that differs from ours.
		if resp.Header.ID != id || !resp.Header.QR {
			c.logger.Debug(map[string]any{
				"ns":       nsIP,
				"expected": id,
				"got":      resp.Header.ID,
			}, "Discarded mismatched datagram")
			continue
		}
		echoed, ok := resp.FirstQuestion()
		if !ok || !q.Matches(echoed) {
			c.logger.Debug(map[string]any{
				"ns":   nsIP,
				"want": q.String(),
			}, "Discarded response with mismatched question")
			continue
		}

		if !resp.Header.RCode.IsUsable() {
			return domain.Message{}, fmt.Errorf("nameserver %s: %w: %s", nsIP, ErrRejected, resp.Header.RCode)
		}
		return resp, nil
	}
}

var _ resolver.NSClient = (*Client)(nil)
