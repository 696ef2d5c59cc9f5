package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCacheKey_Canonicalizes(t *testing.T) {
	a := GenerateCacheKey("WWW.Example.COM.", RRTypeA)
	b := GenerateCacheKey("www.example.com", RRTypeA)
	assert.Equal(t, a, b)
	assert.Equal(t, "example.com|www.example.com|A", a)
}

func TestGenerateCacheKey_TypeDisambiguates(t *testing.T) {
	assert.NotEqual(t,
		GenerateCacheKey("example.com", RRTypeA),
		GenerateCacheKey("example.com", RRTypeAAAA))
}

func TestQuestion_Matches(t *testing.T) {
	q := Question{Name: "example.com", Type: RRTypeA, Class: RRClassIN}
	assert.True(t, q.Matches(Question{Name: "EXAMPLE.com.", Type: RRTypeA, Class: RRClassIN}))
	assert.False(t, q.Matches(Question{Name: "example.com", Type: RRTypeAAAA, Class: RRClassIN}))
	assert.False(t, q.Matches(Question{Name: "example.org", Type: RRTypeA, Class: RRClassIN}))
	assert.False(t, q.Matches(Question{Name: "example.com", Type: RRTypeA, Class: RRClassCH}))
}

func TestNewQuestion_Validates(t *testing.T) {
	q, err := NewQuestion("WWW.Example.COM", RRTypeA, RRClassIN)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", q.Name)

	_, err = NewQuestion("", RRTypeA, RRClassIN)
	assert.Error(t, err)
	_, err = NewQuestion("example.com", 0, RRClassIN)
	assert.Error(t, err)
}

func TestNewResponseMessage_EchoesRequest(t *testing.T) {
	req := NewQueryMessage(0xBEEF, Question{Name: "example.com", Type: RRTypeMX, Class: RRClassIN})
	req.Header.RD = true

	resp := NewResponseMessage(req, RCodeNXDomain)
	assert.Equal(t, uint16(0xBEEF), resp.Header.ID)
	assert.True(t, resp.Header.QR)
	assert.True(t, resp.Header.RA)
	assert.True(t, resp.Header.RD)
	assert.Equal(t, RCodeNXDomain, resp.Header.RCode)
	assert.Equal(t, uint16(1), resp.Header.QDCount)
	assert.Equal(t, req.Questions, resp.Questions)
}

func TestMessage_WithAnswersSyncsCount(t *testing.T) {
	resp := NewResponseMessage(NewQueryMessage(1, Question{Name: "a.example", Type: RRTypeA, Class: RRClassIN}), RCodeNoError)
	resp = resp.WithAnswers([]ResourceRecord{
		{Name: "a.example", Type: RRTypeA, Class: RRClassIN, TTL: 60, Data: []byte{10, 0, 0, 1}},
		{Name: "a.example", Type: RRTypeA, Class: RRClassIN, TTL: 60, Data: []byte{10, 0, 0, 2}},
	})
	assert.Equal(t, uint16(2), resp.Header.ANCount)
}

func TestResourceRecord_Weight(t *testing.T) {
	rr := ResourceRecord{Name: "example.com", Type: RRTypeA, Class: RRClassIN, TTL: 60, Data: []byte{10, 0, 0, 1}}
	assert.Equal(t, len("example.com")+10+4, rr.Weight())
}

func TestRRTypeStrings(t *testing.T) {
	assert.Equal(t, "A", RRTypeA.String())
	assert.Equal(t, "AAAA", RRTypeAAAA.String())
	assert.Equal(t, "TYPE99", RRType(99).String())
	assert.Equal(t, RRTypeMX, RRTypeFromString("MX"))
	assert.Equal(t, RRType(0), RRTypeFromString("NOPE"))
}

func TestRCode_IsUsable(t *testing.T) {
	assert.True(t, RCodeNoError.IsUsable())
	assert.True(t, RCodeNXDomain.IsUsable())
	assert.False(t, RCodeFormErr.IsUsable())
	assert.False(t, RCodeServFail.IsUsable())
	assert.False(t, RCodeNotImp.IsUsable())
	assert.False(t, RCodeRefused.IsUsable())
}
