package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
	"github.com/valarpirai/dns-resolver/internal/dns/common/rrdata"
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
)

// udpCodec implements the Codec interface for standard DNS over UDP messages.
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec creates and returns a new instance of udpCodec using the
// provided logger.
func NewUDPCodec(logger log.Logger) *udpCodec {
	return &udpCodec{logger: logger}
}

// DecodeHeader parses only the fixed 12-octet header. Used by the handler to
// echo the request ID on a FORMERR response when the body is undecodable.
func DecodeHeader(data []byte) (domain.Header, error) {
	if len(data) < headerLen {
		return domain.Header{}, fmt.Errorf("%w: message shorter than header (%d octets)", ErrFormat, len(data))
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	return domain.Header{
		ID:      binary.BigEndian.Uint16(data[0:2]),
		QR:      flags&0x8000 != 0,
		Opcode:  uint8(flags >> 11 & 0xF),
		AA:      flags&0x0400 != 0,
		TC:      flags&0x0200 != 0,
		RD:      flags&0x0100 != 0,
		RA:      flags&0x0080 != 0,
		Z:       uint8(flags >> 4 & 0x7),
		RCode:   domain.RCode(flags & 0xF),
		QDCount: binary.BigEndian.Uint16(data[4:6]),
		ANCount: binary.BigEndian.Uint16(data[6:8]),
		NSCount: binary.BigEndian.Uint16(data[8:10]),
		ARCount: binary.BigEndian.Uint16(data[10:12]),
	}, nil
}

// decodeName decodes a domain name from a DNS message at the specified
// offset, handling label compression as defined in RFC 1035 §4.1.4.
//
// Two invariants bound the work on adversarial input:
//  1. The decoded name may not exceed 255 wire octets (length prefixes and
//     terminator included).
//  2. A compression pointer must target an offset strictly below the offset
//     at which the pointer itself was read; forward and self-referential
//     pointers are format errors. A loop through backward pointers passes
//     this check and is ended by invariant 1.
//
// Returns the lowercased display-form name and the offset at which the
// caller resumes reading: one past the terminator, or one past the first
// pointer encountered.
func decodeName(data []byte, offset int) (string, int, error) {
	var sb strings.Builder
	pos := offset
	ret := -1    // resume offset; fixed at the first pointer
	wireLen := 1 // terminator octet
	for {
		if pos >= len(data) {
			return "", 0, fmt.Errorf("%w: name runs past end of message at offset %d", ErrFormat, pos)
		}
		length := int(data[pos])
		switch {
		case length == 0:
			pos++
			if ret == -1 {
				ret = pos
			}
			return strings.ToLower(sb.String()), ret, nil
		case length&0xC0 == 0xC0:
			if pos+1 >= len(data) {
				return "", 0, fmt.Errorf("%w: compression pointer truncated at offset %d", ErrFormat, pos)
			}
			target := int(binary.BigEndian.Uint16(data[pos:pos+2]) & 0x3FFF)
			if target >= pos {
				return "", 0, fmt.Errorf("%w: compression pointer at offset %d targets %d (not strictly backward)", ErrFormat, pos, target)
			}
			if ret == -1 {
				ret = pos + 2
			}
			pos = target
		case length&0xC0 != 0:
			// 01 and 10 prefixes are reserved (RFC 1035 §4.1.4)
			return "", 0, fmt.Errorf("%w: reserved label prefix 0x%02x at offset %d", ErrFormat, length, pos)
		default:
			wireLen += 1 + length
			if wireLen > maxNameWireLen {
				return "", 0, fmt.Errorf("%w: name exceeds %d octets at offset %d", ErrFormat, maxNameWireLen, pos)
			}
			if pos+1+length > len(data) {
				return "", 0, fmt.Errorf("%w: label runs past end of message at offset %d", ErrFormat, pos)
			}
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.Write(data[pos+1 : pos+1+length])
			pos += 1 + length
		}
	}
}

// encodeName encodes a domain name into DNS wire format without compression.
func encodeName(name string) ([]byte, error) {
	var buf bytes.Buffer
	name = strings.TrimSuffix(name, ".")
	if name != "" {
		for _, label := range strings.Split(name, ".") {
			if len(label) == 0 {
				return nil, fmt.Errorf("%w: empty label in name %q", ErrEncode, name)
			}
			if len(label) > maxLabelLen {
				return nil, fmt.Errorf("%w: label too long: %q", ErrEncode, label)
			}
			buf.WriteByte(byte(len(label)))
			buf.WriteString(label)
		}
	}
	buf.WriteByte(0)
	if buf.Len() > maxNameWireLen {
		return nil, fmt.Errorf("%w: name too long: %q", ErrEncode, name)
	}
	return buf.Bytes(), nil
}

// DecodeMessage parses a complete DNS message: header, questions, and the
// three resource record sections. Every section must decode to exactly its
// counted number of items.
func (c *udpCodec) DecodeMessage(data []byte) (domain.Message, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return domain.Message{}, err
	}

	offset := headerLen
	questions := make([]domain.Question, 0, header.QDCount)
	for i := 0; i < int(header.QDCount); i++ {
		q, next, err := decodeQuestion(data, offset)
		if err != nil {
			return domain.Message{}, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, q)
		offset = next
	}

	sections := [3]struct {
		count int
		name  string
	}{
		{int(header.ANCount), "answer"},
		{int(header.NSCount), "authority"},
		{int(header.ARCount), "additional"},
	}
	var parsed [3][]domain.ResourceRecord
	for s, sec := range sections {
		records := make([]domain.ResourceRecord, 0, sec.count)
		for i := 0; i < sec.count; i++ {
			rr, next, err := c.decodeResourceRecord(data, offset)
			if err != nil {
				return domain.Message{}, fmt.Errorf("%s record %d: %w", sec.name, i, err)
			}
			records = append(records, rr)
			offset = next
		}
		parsed[s] = records
	}

	return domain.Message{
		Header:     header,
		Questions:  questions,
		Answers:    parsed[0],
		Authority:  parsed[1],
		Additional: parsed[2],
	}, nil
}

// decodeQuestion parses one question section entry at the given offset.
func decodeQuestion(data []byte, offset int) (domain.Question, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.Question{}, 0, err
	}
	if offset+4 > len(data) {
		return domain.Question{}, 0, fmt.Errorf("%w: question truncated at offset %d", ErrFormat, offset)
	}
	q := domain.Question{
		Name:  name,
		Type:  domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2])),
		Class: domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4])),
	}
	return q, offset + 4, nil
}

// decodeResourceRecord parses one resource record at the given offset.
// RDATA is opaque except for name-bearing types (NS, CNAME, PTR, SOA, MX),
// whose embedded names may be compressed: those are eagerly decompressed
// against the whole message, and the record's Data is rewritten to the
// canonical uncompressed form so it survives re-encoding and caching.
func (c *udpCodec) decodeResourceRecord(data []byte, offset int) (domain.ResourceRecord, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if offset+10 > len(data) {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%w: record header truncated at offset %d", ErrFormat, offset)
	}

	rrtype := domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2]))
	class := domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
	ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
	rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	offset += 10

	if offset+rdLen > len(data) {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%w: rdata truncated at offset %d", ErrFormat, offset)
	}
	rdStart, rdEnd := offset, offset+rdLen

	rd, text, err := decodeRData(data, rrtype, rdStart, rdEnd)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}

	rr := domain.ResourceRecord{
		Name:  name,
		Type:  rrtype,
		Class: class,
		TTL:   ttl,
		Data:  rd,
		Text:  text,
	}
	return rr, rdEnd, nil
}

// decodeRData returns canonical RDATA octets and decoded text for the record
// type. Name-bearing RDATA is decompressed against the full message and
// re-encoded without pointers; all other RDATA is copied verbatim.
func decodeRData(data []byte, rrtype domain.RRType, rdStart, rdEnd int) ([]byte, string, error) {
	switch rrtype {
	case domain.RRTypeNS, domain.RRTypeCNAME, domain.RRTypePTR:
		target, _, err := decodeName(data, rdStart)
		if err != nil {
			return nil, "", err
		}
		canonical, err := encodeName(target)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return canonical, target, nil

	case domain.RRTypeMX:
		if rdStart+2 > rdEnd {
			return nil, "", fmt.Errorf("%w: MX rdata too short at offset %d", ErrFormat, rdStart)
		}
		pref := binary.BigEndian.Uint16(data[rdStart : rdStart+2])
		exchange, _, err := decodeName(data, rdStart+2)
		if err != nil {
			return nil, "", err
		}
		encoded, err := encodeName(exchange)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		canonical := make([]byte, 2, 2+len(encoded))
		binary.BigEndian.PutUint16(canonical, pref)
		canonical = append(canonical, encoded...)
		return canonical, fmt.Sprintf("%d %s", pref, exchange), nil

	case domain.RRTypeSOA:
		mname, next, err := decodeName(data, rdStart)
		if err != nil {
			return nil, "", err
		}
		rname, next, err := decodeName(data, next)
		if err != nil {
			return nil, "", err
		}
		if next+20 > rdEnd {
			return nil, "", fmt.Errorf("%w: SOA rdata too short at offset %d", ErrFormat, next)
		}
		fixed := data[next : next+20]
		encMname, err := encodeName(mname)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		encRname, err := encodeName(rname)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		canonical := make([]byte, 0, len(encMname)+len(encRname)+20)
		canonical = append(canonical, encMname...)
		canonical = append(canonical, encRname...)
		canonical = append(canonical, fixed...)
		text := fmt.Sprintf("%s %s %d %d %d %d %d", mname, rname,
			binary.BigEndian.Uint32(fixed[0:4]),
			binary.BigEndian.Uint32(fixed[4:8]),
			binary.BigEndian.Uint32(fixed[8:12]),
			binary.BigEndian.Uint32(fixed[12:16]),
			binary.BigEndian.Uint32(fixed[16:20]))
		return canonical, text, nil

	default:
		rd := make([]byte, rdEnd-rdStart)
		copy(rd, data[rdStart:rdEnd])
		// best-effort text for self-contained types (A, AAAA, TXT)
		text, err := rrdata.Decode(rrtype, rd)
		if err != nil {
			text = ""
		}
		return rd, text, nil
	}
}

// EncodeMessage serializes a DNS message. Header counts are synchronized to
// the emitted section sizes. If the output would exceed MaxUDPPayload, record
// emission stops at the last whole record, the dropped records are removed
// from the counts, and tc=1 is set. Truncation never splits a record.
func (c *udpCodec) EncodeMessage(msg domain.Message) ([]byte, error) {
	buf := make([]byte, headerLen, MaxUDPPayload)

	truncated := false
	qdEmitted := 0
	for _, q := range msg.Questions {
		enc, err := encodeQuestion(q)
		if err != nil {
			return nil, err
		}
		if len(buf)+len(enc) > MaxUDPPayload {
			truncated = true
			break
		}
		buf = append(buf, enc...)
		qdEmitted++
	}

	counts := [3]int{}
	sections := [3][]domain.ResourceRecord{msg.Answers, msg.Authority, msg.Additional}
	for s := 0; s < 3 && !truncated; s++ {
		for _, rr := range sections[s] {
			enc, err := encodeResourceRecord(rr)
			if err != nil {
				return nil, err
			}
			if len(buf)+len(enc) > MaxUDPPayload {
				truncated = true
				break
			}
			buf = append(buf, enc...)
			counts[s]++
		}
	}

	header := msg.Header
	header.TC = header.TC || truncated
	header.QDCount = uint16(qdEmitted)
	header.ANCount = uint16(counts[0])
	header.NSCount = uint16(counts[1])
	header.ARCount = uint16(counts[2])
	writeHeader(buf[:headerLen], header)

	if truncated {
		c.logger.Debug(map[string]any{
			"id":   msg.Header.ID,
			"size": len(buf),
		}, "Response truncated to UDP payload limit")
	}
	return buf, nil
}

// writeHeader packs a Header into the first 12 octets of buf.
// The z bits are always emitted as zero.
func writeHeader(buf []byte, h domain.Header) {
	binary.BigEndian.PutUint16(buf[0:2], h.ID)
	var flags uint16
	if h.QR {
		flags |= 0x8000
	}
	flags |= uint16(h.Opcode&0xF) << 11
	if h.AA {
		flags |= 0x0400
	}
	if h.TC {
		flags |= 0x0200
	}
	if h.RD {
		flags |= 0x0100
	}
	if h.RA {
		flags |= 0x0080
	}
	flags |= uint16(h.RCode) & 0xF
	binary.BigEndian.PutUint16(buf[2:4], flags)
	binary.BigEndian.PutUint16(buf[4:6], h.QDCount)
	binary.BigEndian.PutUint16(buf[6:8], h.ANCount)
	binary.BigEndian.PutUint16(buf[8:10], h.NSCount)
	binary.BigEndian.PutUint16(buf[10:12], h.ARCount)
}

// encodeQuestion serializes one question section entry.
func encodeQuestion(q domain.Question) ([]byte, error) {
	name, err := encodeName(q.Name)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(name)+4)
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, uint16(q.Type))
	out = binary.BigEndian.AppendUint16(out, uint16(q.Class))
	return out, nil
}

// encodeResourceRecord serializes one resource record. rdlength is derived
// from the record's Data.
func encodeResourceRecord(rr domain.ResourceRecord) ([]byte, error) {
	name, err := encodeName(rr.Name)
	if err != nil {
		return nil, err
	}
	if len(rr.Data) > 0xFFFF {
		return nil, fmt.Errorf("%w: rdata too large: %d octets", ErrEncode, len(rr.Data))
	}
	out := make([]byte, 0, len(name)+10+len(rr.Data))
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, uint16(rr.Type))
	out = binary.BigEndian.AppendUint16(out, uint16(rr.Class))
	out = binary.BigEndian.AppendUint32(out, rr.TTL)
	out = binary.BigEndian.AppendUint16(out, uint16(len(rr.Data)))
	out = append(out, rr.Data...)
	return out, nil
}

var _ Codec = (*udpCodec)(nil)
