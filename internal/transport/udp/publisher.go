// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "rtfft/internal/log"
)

/*
Packet layout (big endian):

	+-----------------+-----------+--------------+---------------------+
	| Sequence uint32 | Time int64| Count uint16 | Values [Count]f32   |
	+-----------------+-----------+--------------+---------------------+
	  4 bytes           8 bytes     2 bytes        Count * 4 bytes

Time is the publish time in nanoseconds since the epoch. Values are the
amplitude bins 0..N/2 of the latest computed window.
*/
const (
	headerSize = 4 + 8 + 2
	// MaxValues keeps a packet inside one IPv4 UDP datagram.
	MaxValues = (65507 - headerSize) / 4
)

// Latest is the polling side of the parameter registry.
type Latest interface {
	CopyLatest(name string, dst []float64) ([]float64, uint64, bool)
}

// Publisher sends the latest amplitude spectrum over UDP at a fixed interval.
// A tick without a new window sends nothing.
type Publisher struct {
	sender   *Sender
	latest   Latest
	param    string
	interval time.Duration
	bins     int

	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup

	sequenceNum uint32
	lastSeq     uint64

	values []float64
	packet []byte
}

// NewPublisher creates a publisher for the amplitude parameter param of a
// window of nfft samples. An interval <= 0 defaults to 16ms.
func NewPublisher(interval time.Duration, sender *Sender, latest Latest, param string, nfft int) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if latest == nil {
		return nil, errors.New("UDPPublisher: parameter source cannot be nil")
	}
	if nfft <= 0 {
		return nil, fmt.Errorf("UDPPublisher: invalid nfft %d", nfft)
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	bins := nfft/2 + 1
	if bins > MaxValues {
		applog.Warnf("UDPPublisher: %d bins exceed one datagram, sending the first %d", bins, MaxValues)
		bins = MaxValues
	}
	applog.Infof("UDPPublisher: Initializing (Param: %s, Interval: %s, Bins: %d)", param, interval, bins)

	return &Publisher{
		sender:   sender,
		latest:   latest,
		param:    param,
		interval: interval,
		bins:     bins,
		values:   make([]float64, 0, nfft),
		packet:   make([]byte, headerSize+4*bins),
	}, nil
}

// Start launches the publishing goroutine. Calling Start twice is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		applog.Warnf("UDPPublisher: Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker, done := p.ticker, p.doneChan

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-done:
				return
			}
		}
	}()
}

// Stop terminates the publishing goroutine and waits for it.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

func (p *Publisher) tick() {
	values, seq, ok := p.latest.CopyLatest(p.param, p.values[:0])
	p.values = values
	if !ok || seq == p.lastSeq {
		return
	}
	p.lastSeq = seq

	p.sequenceNum++
	n := p.build(p.sequenceNum, time.Now().UnixNano(), values)
	if err := p.sender.Send(p.packet[:n]); err != nil {
		applog.Debugf("UDPPublisher: %v", err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, n)
}

// build encodes one packet into the pre-allocated buffer and returns its
// length.
func (p *Publisher) build(seq uint32, ts int64, values []float64) int {
	count := min(len(values), p.bins)
	binary.BigEndian.PutUint32(p.packet[0:], seq)
	binary.BigEndian.PutUint64(p.packet[4:], uint64(ts))
	binary.BigEndian.PutUint16(p.packet[12:], uint16(count))
	for i := range count {
		binary.BigEndian.PutUint32(p.packet[headerSize+4*i:], math.Float32bits(float32(values[i])))
	}
	return headerSize + 4*count
}

// Close stops the publisher. The sender is closed by its owner.
func (p *Publisher) Close() error {
	return p.Stop()
}

// Packet is a decoded amplitude datagram.
type Packet struct {
	Sequence uint32
	Time     int64
	Values   []float32
}

// ParsePacket decodes a datagram produced by Publisher.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	count := int(binary.BigEndian.Uint16(b[12:]))
	if len(b) != headerSize+4*count {
		return Packet{}, fmt.Errorf("packet length %d does not match count %d", len(b), count)
	}
	pkt := Packet{
		Sequence: binary.BigEndian.Uint32(b[0:]),
		Time:     int64(binary.BigEndian.Uint64(b[4:])),
		Values:   make([]float32, count),
	}
	for i := range pkt.Values {
		pkt.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(b[headerSize+4*i:]))
	}
	return pkt, nil
}

var _ interface{ Close() error } = (*Publisher)(nil)
