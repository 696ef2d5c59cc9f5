package domain

// Message represents a complete DNS message: header plus the four sections
// defined by RFC 1035 §4.1. A decoded Message always holds exactly the number
// of items its header counted, or decoding failed.
type Message struct {
	Header     Header
	Questions  []Question
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// NewQueryMessage builds an outbound iterative query: a single question with
// qr=0 and rd=0 (we never ask the remote server to recurse for us).
func NewQueryMessage(id uint16, q Question) Message {
	return Message{
		Header: Header{
			ID:      id,
			QDCount: 1,
		},
		Questions: []Question{q},
	}
}

// NewResponseMessage builds a client-facing response skeleton that echoes the
// request's ID, question section, and rd flag, with qr=1 and ra=1 set.
func NewResponseMessage(req Message, rcode RCode) Message {
	h := Header{
		ID:      req.Header.ID,
		QR:      true,
		Opcode:  req.Header.Opcode,
		RD:      req.Header.RD,
		RA:      true,
		RCode:   rcode,
		QDCount: uint16(len(req.Questions)),
	}
	return Message{
		Header:    h,
		Questions: req.Questions,
	}
}

// WithAnswers returns a copy of the message carrying the given answer records,
// with the answer count synchronized.
func (m Message) WithAnswers(answers []ResourceRecord) Message {
	m.Answers = answers
	m.Header.ANCount = uint16(len(answers))
	return m
}

// FirstQuestion returns the first question and true, or a zero Question and
// false when the question section is empty.
func (m Message) FirstQuestion() (Question, bool) {
	if len(m.Questions) == 0 {
		return Question{}, false
	}
	return m.Questions[0], true
}

// SyncCounts sets all header counts to the actual section lengths.
func (m *Message) SyncCounts() {
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authority))
	m.Header.ARCount = uint16(len(m.Additional))
}
