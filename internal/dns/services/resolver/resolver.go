// Package resolver contains the iterative DNS resolution engine: it walks
// the namespace hierarchy from the root servers, following referrals and
// CNAME chains, and serves repeated questions from the answer cache.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
	"github.com/valarpirai/dns-resolver/internal/dns/gateways/wire"
)

// Per-resolution failures. Both surface to the client as SERVFAIL, never as
// a panic or an unanswered datagram.
var (
	// ErrDepthExceeded is returned when the walk descends past the
	// configured maximum depth.
	ErrDepthExceeded = errors.New("max resolution depth exceeded")
	// ErrNoNameservers is returned when every nameserver at some level
	// failed to produce a usable response.
	ErrNoNameservers = errors.New("no nameservers produced a usable response")
)

// Stats reports observability counters for a single resolution.
type Stats struct {
	CacheHit        bool
	QueriesMade     int
	MaxDepthReached int
}

// Options configures a Resolver.
type Options struct {
	// RootServers are the IP addresses resolution starts from.
	RootServers []string
	// MaxDepth bounds referral hops plus CNAME/NS sub-resolutions.
	MaxDepth int
	// Timeout is the per-hop query budget; the overall per-request deadline
	// is MaxDepth times this value.
	Timeout time.Duration
	Client  NSClient
	Cache   Cache
	Codec   wire.Codec
	Logger  log.Logger
}

// Resolver answers DNS requests by iterative resolution with caching.
// Configuration is immutable after construction; concurrent Resolve calls
// share only the cache, which synchronizes internally.
type Resolver struct {
	roots    []string
	maxDepth int
	timeout  time.Duration
	client   NSClient
	cache    Cache
	codec    wire.Codec
	logger   log.Logger
}

// NewResolver constructs a Resolver from the given options.
func NewResolver(opts Options) (*Resolver, error) {
	if len(opts.RootServers) == 0 {
		return nil, fmt.Errorf("at least one root server is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("nameserver client is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("DNS codec is required")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Resolver{
		roots:    opts.RootServers,
		maxDepth: opts.MaxDepth,
		timeout:  opts.Timeout,
		client:   opts.Client,
		cache:    opts.Cache,
		codec:    opts.Codec,
		logger:   opts.Logger,
	}, nil
}

// Handle is the transport-facing contract: request datagram in, response
// datagram out. A request whose header cannot be read is dropped (nil);
// a readable header with an undecodable body or an empty question section
// yields FORMERR.
func (r *Resolver) Handle(ctx context.Context, packet []byte) []byte {
	req, err := r.codec.DecodeMessage(packet)
	if err != nil {
		header, herr := wire.DecodeHeader(packet)
		if herr != nil {
			// never reply to input we cannot even attribute to a request
			r.logger.Debug(map[string]any{"size": len(packet)}, "Dropped unparseable datagram")
			return nil
		}
		r.logger.Warn(map[string]any{
			"query_id": header.ID,
			"error":    err.Error(),
		}, "Failed to decode DNS request")
		return r.encodeResponse(domain.NewResponseMessage(domain.Message{Header: header}, domain.RCodeFormErr))
	}

	resp, stats := r.Resolve(ctx, req)

	r.logger.Info(map[string]any{
		"query_id":  resp.Header.ID,
		"rcode":     resp.Header.RCode.String(),
		"answers":   len(resp.Answers),
		"cache_hit": stats.CacheHit,
		"queries":   stats.QueriesMade,
		"max_depth": stats.MaxDepthReached,
	}, "Resolved DNS request")

	return r.encodeResponse(resp)
}

// encodeResponse serializes a response, falling back to a bare SERVFAIL
// header if the full message will not encode.
func (r *Resolver) encodeResponse(resp domain.Message) []byte {
	out, err := r.codec.EncodeMessage(resp)
	if err == nil {
		return out
	}
	r.logger.Error(map[string]any{
		"query_id": resp.Header.ID,
		"error":    err.Error(),
	}, "Failed to encode DNS response")
	fallback := domain.Message{Header: resp.Header}
	fallback.Header.RCode = domain.RCodeServFail
	fallback.SyncCounts()
	out, err = r.codec.EncodeMessage(fallback)
	if err != nil {
		return nil
	}
	return out
}

// Resolve answers the first question of the request. The response echoes the
// request ID, question section, and rd flag, with qr=1 and ra=1 set. A
// Resolve call always returns a well-formed response; failures surface as
// the rcode, never as an error.
func (r *Resolver) Resolve(ctx context.Context, req domain.Message) (domain.Message, Stats) {
	var stats Stats

	q, ok := req.FirstQuestion()
	if !ok {
		return domain.NewResponseMessage(req, domain.RCodeFormErr), stats
	}

	if r.cache != nil {
		if records, hit := r.cache.Get(q.Name, q.Type); hit {
			stats.CacheHit = true
			r.logger.Debug(map[string]any{
				"name": q.Name,
				"type": q.Type.String(),
			}, "Cache hit")
			return domain.NewResponseMessage(req, domain.RCodeNoError).WithAnswers(records), stats
		}
		r.logger.Debug(map[string]any{
			"name": q.Name,
			"type": q.Type.String(),
		}, "Cache miss")
	}

	// overall per-request deadline: a full walk may block for up to one
	// per-hop timeout at every level
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.maxDepth)*r.timeout)
	defer cancel()

	st := newWalkState()
	answers, rcode, err := r.iterate(ctx, st, q, r.roots, 0)
	stats.QueriesMade = st.queriesMade
	stats.MaxDepthReached = st.maxDepthReached

	if err != nil {
		r.logger.Warn(map[string]any{
			"name":    q.Name,
			"type":    q.Type.String(),
			"queries": st.queriesMade,
			"error":   err.Error(),
		}, "Resolution failed")
		return domain.NewResponseMessage(req, domain.RCodeServFail), stats
	}

	if r.cache != nil && rcode == domain.RCodeNoError && len(answers) > 0 {
		// cache under the original question, not any CNAME target
		r.cache.Put(q.Name, q.Type, answers)
	}

	return domain.NewResponseMessage(req, rcode).WithAnswers(answers), stats
}
