package utils

import "strings"

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased (DNS names compare case-insensitively per RFC 1035 §2.3.3)
// - Trimmed of surrounding whitespace
// - No trailing dot; display form is used everywhere internally
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}
