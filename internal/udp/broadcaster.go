// Package udp sends GDL90 datagrams to one destination.
package udp

import (
	"fmt"
	"net"
	"sync/atomic"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster writes each frame as one datagram to a unicast address or a
// subnet broadcast address such as 192.168.10.255:4000. Send is safe for
// concurrent use.
type Broadcaster struct {
	dest string
	conn udpConn

	datagrams atomic.Uint64
	bytes     atomic.Uint64
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	}
	return newBroadcaster(dest, net.ResolveUDPAddr, dial)
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	raddr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dest, err)
	}
	conn, err := dial("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

// Send writes frame as a single datagram. Empty frames are dropped.
func (b *Broadcaster) Send(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	n, err := b.conn.Write(frame)
	if err != nil {
		return err
	}
	b.datagrams.Add(1)
	b.bytes.Add(uint64(n))
	return nil
}

// Stats reports successfully written datagrams and bytes.
func (b *Broadcaster) Stats() (datagrams, bytes uint64) {
	return b.datagrams.Load(), b.bytes.Load()
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
