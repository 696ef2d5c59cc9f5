// Package wire provides encoding and decoding of DNS messages for UDP
// transport. It handles the full RFC 1035 wire format, including label
// compression on decode. Encoding never compresses; a non-compressing
// encoder is interoperable.
package wire

import (
	"errors"

	"github.com/valarpirai/dns-resolver/internal/dns/domain"
)

// Size limits from RFC 1035 §2.3.4 and §4.2.1.
const (
	headerLen      = 12
	maxLabelLen    = 63
	maxNameWireLen = 255

	// MaxUDPPayload is the classic DNS-over-UDP response limit. Responses
	// that would exceed it are truncated at a record boundary with tc=1.
	MaxUDPPayload = 512
)

// ErrFormat reports wire bytes that do not decode: short buffers, bad labels,
// bad compression pointers, count mismatches. Non-retryable.
var ErrFormat = errors.New("dns format error")

// ErrEncode reports values that cannot be represented on the wire, such as
// oversize labels or names. Non-retryable.
var ErrEncode = errors.New("dns encode error")

// Codec converts between DNS message octets and structured values.
type Codec interface {
	// DecodeMessage parses a complete DNS message. Malformed input returns
	// an error wrapping ErrFormat; it never panics, loops, or reads out of
	// bounds.
	DecodeMessage(data []byte) (domain.Message, error)

	// EncodeMessage serializes a message, synchronizing header counts to the
	// section sizes. Output over MaxUDPPayload is truncated at a record
	// boundary with tc=1 set.
	EncodeMessage(msg domain.Message) ([]byte, error)
}
