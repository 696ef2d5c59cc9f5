package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable (eTLD+1) portion of a DNS name, used
// to group cache keys by zone. Names with no registrable part (TLDs, bare
// labels, the root) fall back to the canonical name itself.
func GetApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apex = name
	}
	return apex
}
