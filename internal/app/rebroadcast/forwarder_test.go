package rebroadcast

import (
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortPoolHandsOutEvenPorts(t *testing.T) {
	pool := NewPortPool(40001, 40008)
	seen := map[int]bool{}
	for range 3 {
		port, err := pool.Acquire()
		require.NoError(t, err)
		assert.Zero(t, port%2)
		assert.False(t, seen[port])
		seen[port] = true
	}
	_, err := pool.Acquire()
	assert.ErrorIs(t, err, ErrNoFreePorts)

	pool.Release(40002)
	port, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 40002, port)
	assert.Equal(t, 3, pool.InUse())
}

func TestForwarderRewritesPayloadType(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer ln.Close()

	fwd, err := NewForwarder("127.0.0.1", ln.LocalAddr().(*net.UDPAddr).Port, 100)
	require.NoError(t, err)
	defer fwd.Close()

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 7, Timestamp: 9000, SSRC: 1234},
		Payload: []byte{1, 2, 3},
	}
	require.NoError(t, fwd.WriteRTP(pkt))
	assert.Equal(t, uint8(96), pkt.PayloadType, "source packet must not be modified")

	require.NoError(t, ln.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := ln.ReadFromUDP(buf)
	require.NoError(t, err)

	var got rtp.Packet
	require.NoError(t, got.Unmarshal(buf[:n]))
	assert.Equal(t, uint8(100), got.PayloadType)
	assert.Equal(t, uint16(7), got.SequenceNumber)
	assert.Equal(t, uint32(1234), got.SSRC)
	assert.Equal(t, []byte{1, 2, 3}, got.Payload)
	assert.Equal(t, uint64(1), fwd.Packets())
}

func TestForwarderClosed(t *testing.T) {
	fwd, err := NewForwarder("127.0.0.1", 40998, 96)
	require.NoError(t, err)
	require.NoError(t, fwd.Close())
	require.NoError(t, fwd.Close())
	assert.ErrorIs(t, fwd.WriteRTP(&rtp.Packet{Header: rtp.Header{Version: 2}}), net.ErrClosed)
}
