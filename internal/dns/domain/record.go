package domain

import (
	"fmt"

	"github.com/valarpirai/dns-resolver/internal/dns/common/utils"
)

// ResourceRecord represents a DNS resource record as decoded from the wire.
// Data always holds canonical (uncompressed) RDATA octets: the codec rewrites
// compressed name-bearing RDATA at parse time so records can be re-emitted
// and cached independently of the message they arrived in. Text holds the
// decoded human-readable form for types the resolver understands ("" otherwise).
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass
	TTL   uint32
	Data  []byte
	Text  string
}

// NewResourceRecord constructs a ResourceRecord with a canonicalized name.
func NewResourceRecord(name string, rrtype RRType, class RRClass, ttl uint32, data []byte, text string) (ResourceRecord, error) {
	rr := ResourceRecord{
		Name:  utils.CanonicalDNSName(name),
		Type:  rrtype,
		Class: class,
		TTL:   ttl,
		Data:  data,
		Text:  text,
	}
	if err := rr.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return rr, nil
}

// Validate checks whether the ResourceRecord fields are structurally valid.
func (rr ResourceRecord) Validate() error {
	if rr.Name == "" {
		return fmt.Errorf("record name must not be empty")
	}
	if rr.Type == 0 {
		return fmt.Errorf("record type must not be zero")
	}
	return nil
}

// CacheKey returns a cache key string derived from the record's name and type.
func (rr ResourceRecord) CacheKey() string {
	return GenerateCacheKey(rr.Name, rr.Type)
}

// Weight approximates the record's in-memory footprint in octets. The
// estimator only needs to be monotone in real memory use.
func (rr ResourceRecord) Weight() int {
	return len(rr.Name) + 10 + len(rr.Data)
}

// String renders the record in zone-file-like form for logging.
func (rr ResourceRecord) String() string {
	return fmt.Sprintf("%s %d %s %s %s", rr.Name, rr.TTL, rr.Class, rr.Type, rr.Text)
}
