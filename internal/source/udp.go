// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "rtfft/internal/log"
	"rtfft/internal/sample"
)

// UDPConfig describes a network gateway feeding raw sample datagrams.
type UDPConfig struct {
	Name        string
	Addr        string // listen address, "host:port"
	Encoding    sample.Encoding
	MaxDatagram int // largest accepted datagram, bytes
	Buffers     int // datagrams that may wait between cycles
}

type datagram struct {
	buf []byte
	n   int
}

// UDP receives datagrams of encoded samples (native byte order) on a reader
// goroutine and releases at most one per Cycle. Datagrams arriving while all
// buffers are queued are dropped and counted.
type UDP struct {
	*Dispatcher
	cfg  UDPConfig
	conn *net.UDPConn

	free  chan *datagram
	ready chan *datagram

	received atomic.Uint64
	dropped  atomic.Uint64

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewUDP binds the listen socket and starts the reader goroutine.
func NewUDP(cfg UDPConfig) (*UDP, error) {
	if !cfg.Encoding.Supported() {
		return nil, fmt.Errorf("udp source: unsupported encoding %v", cfg.Encoding)
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = 1472
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 8
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("udp source: failed to resolve '%s': %w", cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp source: failed to listen on '%s': %w", cfg.Addr, err)
	}

	u := &UDP{
		Dispatcher: NewDispatcher(cfg.Name, cfg.Encoding),
		cfg:        cfg,
		conn:       conn,
		free:       make(chan *datagram, cfg.Buffers),
		ready:      make(chan *datagram, cfg.Buffers),
	}
	for range cfg.Buffers {
		u.free <- &datagram{buf: make([]byte, cfg.MaxDatagram)}
	}

	u.wg.Add(1)
	go u.read()

	applog.Infof("UDPSource: Listening on %s (%v, %d buffers of %d bytes)",
		conn.LocalAddr(), cfg.Encoding, cfg.Buffers, cfg.MaxDatagram)
	return u, nil
}

func (u *UDP) read() {
	defer u.wg.Done()
	scratch := make([]byte, u.cfg.MaxDatagram)

	for {
		var d *datagram
		select {
		case d = <-u.free:
		default:
		}

		buf := scratch
		if d != nil {
			buf = d.buf
		}
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if d != nil {
				u.free <- d
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			applog.Warnf("UDPSource: Read error: %v", err)
			continue
		}

		u.received.Add(1)
		if d == nil {
			u.dropped.Add(1)
			continue
		}
		d.n = n
		u.ready <- d
	}
}

// Cycle dispatches the oldest queued datagram, if any. It never blocks.
func (u *UDP) Cycle() {
	select {
	case d := <-u.ready:
		u.Dispatch(d.buf[:d.n])
		u.free <- d
	default:
	}
}

// Addr returns the bound listen address.
func (u *UDP) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// Received returns the number of datagrams read from the socket.
func (u *UDP) Received() uint64 {
	return u.received.Load()
}

// Dropped returns the number of datagrams discarded because no buffer was
// free.
func (u *UDP) Dropped() uint64 {
	return u.dropped.Load()
}

// Close stops the reader goroutine and releases the socket.
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() {
		err = u.conn.Close()
		u.wg.Wait()
		applog.Infof("UDPSource: Closed (received: %d, dropped: %d)", u.received.Load(), u.dropped.Load())
	})
	return err
}

var _ interface{ Close() error } = (*UDP)(nil)
