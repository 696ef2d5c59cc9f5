package rrdata

import (
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
)

// Decode renders a record's RDATA as text based on its type. Only types whose
// RDATA is self-contained are handled here; name-bearing types (NS, CNAME,
// PTR, SOA, MX) require message compression context and are decoded by the
// wire codec. Unknown types return an empty string: their RDATA stays opaque.
func Decode(rrType domain.RRType, data []byte) (string, error) {
	switch rrType {
	case domain.RRTypeA: // 1
		return decodeAData(data)
	case domain.RRTypeTXT: // 16
		return decodeTXTData(data)
	case domain.RRTypeAAAA: // 28
		return decodeAAAAData(data)
	default:
		return "", nil
	}
}
