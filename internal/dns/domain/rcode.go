package domain

import "fmt"

// RCode represents a DNS response code indicating the result of a query.
type RCode uint8

// Response codes emitted or recognized by the resolver.
const (
	RCodeNoError  RCode = 0 // NOERROR - no error condition
	RCodeFormErr  RCode = 1 // FORMERR - query could not be interpreted
	RCodeServFail RCode = 2 // SERVFAIL - resolution failed
	RCodeNXDomain RCode = 3 // NXDOMAIN - name does not exist
	RCodeNotImp   RCode = 4 // NOTIMP - query kind not implemented
	RCodeRefused  RCode = 5 // REFUSED - server refused the query
)

// String returns the textual representation of the RCode.
func (r RCode) String() string {
	switch r {
	case RCodeNoError:
		return "NOERROR"
	case RCodeFormErr:
		return "FORMERR"
	case RCodeServFail:
		return "SERVFAIL"
	case RCodeNXDomain:
		return "NXDOMAIN"
	case RCodeNotImp:
		return "NOTIMP"
	case RCodeRefused:
		return "REFUSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(r))
	}
}

// IsUsable reports whether an upstream response bearing this code is worth
// classifying. FORMERR, NOTIMP and REFUSED responses are skipped in favor of
// the next nameserver; SERVFAIL and any code other than NOERROR and NXDOMAIN
// mean the server could not help.
func (r RCode) IsUsable() bool {
	return r == RCodeNoError || r == RCodeNXDomain
}
