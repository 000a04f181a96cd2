package rebroadcast

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/pion/rtp"
)

// Forwarder relays a producer's RTP packets to a local UDP port read by
// the transcoder, rewriting the payload type to the one announced in the
// input description.
type Forwarder struct {
	conn        *net.UDPConn
	payloadType uint8

	mu     sync.Mutex
	buf    []byte
	closed bool

	packets atomic.Uint64
}

func NewForwarder(host string, port int, payloadType uint8) (*Forwarder, error) {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	return &Forwarder{
		conn:        conn,
		payloadType: payloadType,
		buf:         make([]byte, 1500),
	}, nil
}

// WriteRTP implements core.PacketSink.
func (f *Forwarder) WriteRTP(pkt *rtp.Packet) error {
	out := *pkt
	out.PayloadType = f.payloadType

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return net.ErrClosed
	}
	size := out.MarshalSize()
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	}
	n, err := out.MarshalTo(f.buf[:size])
	if err != nil {
		return err
	}
	if _, err := f.conn.Write(f.buf[:n]); err != nil {
		// Nothing listens until the transcoder has bound its inputs.
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil
		}
		return err
	}
	f.packets.Add(1)
	return nil
}

func (f *Forwarder) Packets() uint64 { return f.packets.Load() }

func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.conn.Close()
}
