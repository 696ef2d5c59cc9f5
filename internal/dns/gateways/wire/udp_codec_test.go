package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
)

func testCodec() *udpCodec {
	return NewUDPCodec(log.NewNoopLogger())
}

// mustEncodeName is a test helper for building raw name bytes.
func mustEncodeName(t *testing.T, name string) []byte {
	t.Helper()
	b, err := encodeName(name)
	require.NoError(t, err)
	return b
}

func TestDecodeName_SimpleLabels(t *testing.T) {
	data := mustEncodeName(t, "www.Example.COM")
	name, next, err := decodeName(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
	assert.Equal(t, len(data), next)
}

func TestDecodeName_RootName(t *testing.T) {
	name, next, err := decodeName([]byte{0x00}, 0)
	require.NoError(t, err)
	assert.Equal(t, "", name)
	assert.Equal(t, 1, next)
}

func TestDecodeName_Label63Decodes(t *testing.T) {
	label := strings.Repeat("a", 63)
	data := append([]byte{63}, label...)
	data = append(data, 0)
	name, _, err := decodeName(data, 0)
	require.NoError(t, err)
	assert.Equal(t, label, name)
}

func TestDecodeName_Label64Fails(t *testing.T) {
	// a length octet of 64 has the reserved 01 prefix
	data := append([]byte{64}, strings.Repeat("a", 64)...)
	data = append(data, 0)
	_, _, err := decodeName(data, 0)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeName_NameExactly255Decodes(t *testing.T) {
	// 63+63+63+61 label octets plus prefixes and terminator = 255 wire octets
	var data []byte
	for _, l := range []int{63, 63, 63, 61} {
		data = append(data, byte(l))
		data = append(data, strings.Repeat("a", l)...)
	}
	data = append(data, 0)
	require.Len(t, data, 255)
	_, next, err := decodeName(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 255, next)
}

func TestDecodeName_Name256Fails(t *testing.T) {
	var data []byte
	for _, l := range []int{63, 63, 63, 62} {
		data = append(data, byte(l))
		data = append(data, strings.Repeat("a", l)...)
	}
	data = append(data, 0)
	require.Len(t, data, 256)
	_, _, err := decodeName(data, 0)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeName_PointerToZeroFromOffset40(t *testing.T) {
	data := make([]byte, 42)
	copy(data, mustEncodeName(t, "example.com"))
	data[40] = 0xC0
	data[41] = 0x00
	name, next, err := decodeName(data, 40)
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, 42, next)
}

func TestDecodeName_SelfPointerFails(t *testing.T) {
	data := make([]byte, 14)
	data[12] = 0xC0
	data[13] = 0x0C // points at its own offset
	_, _, err := decodeName(data, 12)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeName_ForwardPointerFails(t *testing.T) {
	data := make([]byte, 20)
	data[0] = 0xC0
	data[1] = 0x0A
	_, _, err := decodeName(data, 0)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeName_PointerChainTerminates(t *testing.T) {
	// label loop through a backward pointer must blow the 255-octet bound,
	// not hang: name at 0 is "aa..." followed by a pointer back to 0
	data := []byte{3, 'a', 'a', 'a', 0xC0, 0x00}
	_, _, err := decodeName(data, 4)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeName_TruncatedLabelFails(t *testing.T) {
	_, _, err := decodeName([]byte{5, 'a', 'b'}, 0)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeName_TruncatedPointerFails(t *testing.T) {
	_, _, err := decodeName([]byte{0xC0}, 0)
	require.ErrorIs(t, err, ErrFormat)
}

func TestEncodeName_RejectsOversizeLabel(t *testing.T) {
	_, err := encodeName(strings.Repeat("a", 64))
	require.ErrorIs(t, err, ErrEncode)
}

func TestEncodeName_RejectsOversizeName(t *testing.T) {
	labels := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		labels = append(labels, strings.Repeat("a", 63))
	}
	_, err := encodeName(strings.Join(labels, "."))
	require.ErrorIs(t, err, ErrEncode)
}

func TestDecodeMessage_HeaderOnly(t *testing.T) {
	msg, err := testCodec().DecodeMessage(make([]byte, 12))
	require.NoError(t, err)
	assert.Empty(t, msg.Questions)
	assert.Empty(t, msg.Answers)
	assert.Empty(t, msg.Authority)
	assert.Empty(t, msg.Additional)
}

func TestDecodeMessage_ShortHeaderFails(t *testing.T) {
	_, err := testCodec().DecodeMessage([]byte{0x12, 0x34})
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeMessage_CountMismatchFails(t *testing.T) {
	// header claims one question but the message ends at the header
	data := make([]byte, 12)
	data[5] = 1 // qdcount
	_, err := testCodec().DecodeMessage(data)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeMessage_QueryRoundTrip(t *testing.T) {
	codec := testCodec()
	q := domain.Question{Name: "www.example.com", Type: domain.RRTypeA, Class: domain.RRClassIN}
	packed, err := codec.EncodeMessage(domain.NewQueryMessage(0x1234, q))
	require.NoError(t, err)

	msg, err := codec.DecodeMessage(packed)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), msg.Header.ID)
	assert.False(t, msg.Header.QR)
	assert.False(t, msg.Header.RD)
	require.Len(t, msg.Questions, 1)
	assert.Equal(t, q, msg.Questions[0])
}

func TestDecodeMessage_RewritesCompressedRData(t *testing.T) {
	// response with question www.example.com A and a CNAME answer whose
	// RDATA is a pointer into the question name (host.example.com via
	// pointer to "example.com" at offset 16)
	var buf bytes.Buffer
	buf.Write([]byte{
		0xAB, 0xCD, // id
		0x80, 0x00, // qr=1
		0x00, 0x01, // qdcount
		0x00, 0x01, // ancount
		0x00, 0x00, // nscount
		0x00, 0x00, // arcount
	})
	buf.Write(mustEncodeName(t, "www.example.com")) // offset 12; "example" at 16
	buf.Write([]byte{0x00, 0x05, 0x00, 0x01})       // qtype=CNAME qclass=IN
	buf.Write([]byte{0xC0, 0x0C})                   // rr name: pointer to www.example.com
	buf.Write([]byte{0x00, 0x05, 0x00, 0x01})       // type=CNAME class=IN
	buf.Write([]byte{0x00, 0x00, 0x0E, 0x10})       // ttl 3600
	buf.Write([]byte{0x00, 0x07})                   // rdlength 7
	buf.Write([]byte{4, 'h', 'o', 's', 't'})        // "host" label
	buf.Write([]byte{0xC0, 0x10})                   // pointer to "example.com"

	msg, err := testCodec().DecodeMessage(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, msg.Answers, 1)

	rr := msg.Answers[0]
	assert.Equal(t, "www.example.com", rr.Name)
	assert.Equal(t, domain.RRTypeCNAME, rr.Type)
	assert.Equal(t, uint32(3600), rr.TTL)
	assert.Equal(t, "host.example.com", rr.Text)
	// RDATA was rewritten to the canonical uncompressed form
	assert.Equal(t, mustEncodeName(t, "host.example.com"), rr.Data)
}

func TestDecodeMessage_DecodesMXAndSOARData(t *testing.T) {
	codec := testCodec()
	mxData := append([]byte{0x00, 0x0A}, mustEncodeName(t, "mail.example.com")...)
	soaData := append(mustEncodeName(t, "ns1.example.com"), mustEncodeName(t, "hostmaster.example.com")...)
	soaData = append(soaData, []byte{
		0x00, 0x00, 0x00, 0x01, // serial
		0x00, 0x00, 0x1C, 0x20, // refresh
		0x00, 0x00, 0x0E, 0x10, // retry
		0x00, 0x09, 0x3A, 0x80, // expire
		0x00, 0x00, 0x01, 0x2C, // minimum
	}...)

	msg := domain.Message{
		Header: domain.Header{ID: 7, QR: true},
		Answers: []domain.ResourceRecord{
			{Name: "example.com", Type: domain.RRTypeMX, Class: domain.RRClassIN, TTL: 300, Data: mxData},
			{Name: "example.com", Type: domain.RRTypeSOA, Class: domain.RRClassIN, TTL: 300, Data: soaData},
		},
	}
	msg.SyncCounts()

	packed, err := codec.EncodeMessage(msg)
	require.NoError(t, err)
	decoded, err := codec.DecodeMessage(packed)
	require.NoError(t, err)
	require.Len(t, decoded.Answers, 2)
	assert.Equal(t, "10 mail.example.com", decoded.Answers[0].Text)
	assert.Equal(t, "ns1.example.com hostmaster.example.com 1 7200 3600 604800 300", decoded.Answers[1].Text)
}

func TestEncodeMessage_RoundTripIsStable(t *testing.T) {
	// decode(encode(decode(M))) == decode(M) regardless of the compression
	// choices in the original packet
	var buf bytes.Buffer
	buf.Write([]byte{
		0x00, 0x2A,
		0x84, 0x00, // qr=1 aa=1
		0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00,
	})
	buf.Write(mustEncodeName(t, "a.example.org"))
	buf.Write([]byte{0x00, 0x01, 0x00, 0x01})
	for _, ip := range []byte{1, 2} {
		buf.Write([]byte{0xC0, 0x0C})             // compressed owner name
		buf.Write([]byte{0x00, 0x01, 0x00, 0x01}) // A IN
		buf.Write([]byte{0x00, 0x00, 0x01, 0x2C}) // ttl 300
		buf.Write([]byte{0x00, 0x04})
		buf.Write([]byte{10, 0, 0, ip})
	}

	codec := testCodec()
	first, err := codec.DecodeMessage(buf.Bytes())
	require.NoError(t, err)

	packed, err := codec.EncodeMessage(first)
	require.NoError(t, err)
	second, err := codec.DecodeMessage(packed)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncodeMessage_TruncatesAtRecordBoundary(t *testing.T) {
	msg := domain.Message{
		Header:    domain.Header{ID: 9, QR: true, RA: true},
		Questions: []domain.Question{{Name: "big.example.com", Type: domain.RRTypeTXT, Class: domain.RRClassIN}},
	}
	for i := 0; i < 20; i++ {
		msg.Answers = append(msg.Answers, domain.ResourceRecord{
			Name:  "big.example.com",
			Type:  domain.RRTypeTXT,
			Class: domain.RRClassIN,
			TTL:   60,
			Data:  bytes.Repeat([]byte{0x01, 'x'}, 30),
		})
	}
	msg.SyncCounts()

	packed, err := testCodec().EncodeMessage(msg)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(packed), MaxUDPPayload)

	decoded, err := testCodec().DecodeMessage(packed)
	require.NoError(t, err)
	assert.True(t, decoded.Header.TC, "tc must be set on a truncated response")
	assert.Less(t, len(decoded.Answers), 20)
	assert.NotEmpty(t, decoded.Answers, "whole records that fit are still emitted")
}

func TestDecodeMessage_InteropWithReferenceCodec(t *testing.T) {
	// a packet built by golang.org/x/net/dns/dnsmessage with compression
	// enabled must decode to the same values with our codec
	builder := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		ID:                 0x4242,
		Response:           true,
		Authoritative:      true,
		RecursionAvailable: true,
	})
	builder.EnableCompression()
	require.NoError(t, builder.StartQuestions())
	require.NoError(t, builder.Question(dnsmessage.Question{
		Name:  dnsmessage.MustNewName("www.example.com."),
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}))
	require.NoError(t, builder.StartAnswers())
	require.NoError(t, builder.AResource(dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("www.example.com."),
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
		TTL:   86400,
	}, dnsmessage.AResource{A: [4]byte{93, 184, 216, 34}}))
	packed, err := builder.Finish()
	require.NoError(t, err)

	msg, err := testCodec().DecodeMessage(packed)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4242), msg.Header.ID)
	assert.True(t, msg.Header.QR)
	assert.True(t, msg.Header.AA)
	require.Len(t, msg.Questions, 1)
	assert.Equal(t, "www.example.com", msg.Questions[0].Name)
	require.Len(t, msg.Answers, 1)
	assert.Equal(t, "www.example.com", msg.Answers[0].Name)
	assert.Equal(t, uint32(86400), msg.Answers[0].TTL)
	assert.Equal(t, "93.184.216.34", msg.Answers[0].Text)
}

func TestDecodeHeader_FlagBits(t *testing.T) {
	data := make([]byte, 12)
	data[0], data[1] = 0x12, 0x34
	data[2] = 0x85 // qr=1 opcode=0 aa=1 tc=0 rd=1
	data[3] = 0x83 // ra=1 rcode=3
	h, err := DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), h.ID)
	assert.True(t, h.QR)
	assert.True(t, h.AA)
	assert.False(t, h.TC)
	assert.True(t, h.RD)
	assert.True(t, h.RA)
	assert.Equal(t, domain.RCodeNXDomain, h.RCode)
}
