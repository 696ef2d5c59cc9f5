package domain

import (
	"github.com/valarpirai/dns-resolver/internal/dns/common/utils"
)

// GenerateCacheKey returns a consistent cache key derived from a DNS name and
// record type. The name is canonicalized (lowercased, no trailing dot) so
// "Example.COM" and "example.com" share one entry, and the apex domain is
// prefixed for zone-local key grouping.
// Format: "apex|name|type" (e.g. "example.com|www.example.com|A").
// Uses pipe (|) separator to avoid conflicts with colons in IPv6 addresses.
func GenerateCacheKey(name string, t RRType) string {
	name = utils.CanonicalDNSName(name)
	apex := utils.GetApexDomain(name)
	return apex + "|" + name + "|" + t.String()
}
