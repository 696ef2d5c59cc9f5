package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
)

// echoHandler replies with a fixed prefix plus the request bytes.
type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, packet []byte) []byte {
	return append([]byte{0xEE}, packet...)
}

// dropHandler never replies.
type dropHandler struct{}

func (dropHandler) Handle(context.Context, []byte) []byte { return nil }

func TestUDPTransport_RoundTrip(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", 2, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx, echoHandler{}))
	defer func() { _ = tr.Stop() }()

	conn, err := net.Dial("udp", tr.conn.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = conn.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEE, 0x01, 0x02, 0x03}, buf[:n])
}

func TestUDPTransport_NilResponseIsDropped(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", 1, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx, dropHandler{}))
	defer func() { _ = tr.Stop() }()

	conn, err := net.Dial("udp", tr.conn.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(300*time.Millisecond)))

	_, err = conn.Write([]byte{0xFF})
	require.NoError(t, err)

	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.Error(t, err, "no reply is sent for dropped requests")
}

func TestUDPTransport_StartTwiceFails(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", 1, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx, echoHandler{}))
	defer func() { _ = tr.Stop() }()

	assert.Error(t, tr.Start(ctx, echoHandler{}))
}

func TestUDPTransport_StopWithoutStartIsNoop(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", 1, log.NewNoopLogger())
	assert.NoError(t, tr.Stop())
}

func TestUDPTransport_StopIsIdempotentAfterStart(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", 1, log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx, echoHandler{}))

	assert.NoError(t, tr.Stop())
	assert.NoError(t, tr.Stop())
}

func TestUDPTransport_Address(t *testing.T) {
	tr := NewUDPTransport("0.0.0.0:5353", 1, log.NewNoopLogger())
	assert.Equal(t, "0.0.0.0:5353", tr.Address())
}

func TestNewUDPTransport_ClampsWorkerCount(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", 0, log.NewNoopLogger())
	assert.Equal(t, 1, tr.workers)
}
