package resolver

import (
	"context"

	"github.com/valarpirai/dns-resolver/internal/dns/domain"
)

// NSClient performs a single iterative query against one nameserver address.
// Implementations open a fresh ephemeral socket per call, match the response
// by ID and question, and return an error on timeout, parse failure, or an
// upstream rejection (FORMERR/SERVFAIL/NOTIMP/REFUSED).
type NSClient interface {
	Query(ctx context.Context, nsIP string, q domain.Question) (domain.Message, error)
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Weight    int64
}

// Cache stores positive answers keyed by (name, type) with TTL expiry and
// bounded weight. Implementations are safe for full concurrent use; lookups
// are case-insensitive. A Get never returns an expired entry.
type Cache interface {
	Get(name string, rrtype domain.RRType) ([]domain.ResourceRecord, bool)
	Put(name string, rrtype domain.RRType, records []domain.ResourceRecord)
	Clear()
	Stats() CacheStats
}
