// SPDX-License-Identifier: MIT
// Package transport republishes parameter snapshots to the outside world.
// Every transport is a params.Subscriber; Publish runs on the registry's
// dispatcher goroutine and must hand slow work off rather than block it.
package transport

import (
	"math"
	"strconv"

	"rtfft/internal/params"
)

// Transport is a registry subscriber with a lifetime.
type Transport interface {
	params.Subscriber
	Close() error
}

// Writer is the write path for externally settable parameters.
type Writer interface {
	Write(name string, value float64) error
}

// Message is the JSON form of a snapshot.
type Message struct {
	Param  string    `json:"param"`
	Kind   string    `json:"kind"`
	Seq    uint64    `json:"seq"`
	Time   int64     `json:"time"` // unix nanoseconds
	Values Floats    `json:"values,omitempty"`
	Value  *int64    `json:"value,omitempty"`
}

// NewMessage copies s into a Message that outlives the Publish call.
func NewMessage(s *params.Snapshot) Message {
	m := Message{
		Param: s.Name,
		Kind:  s.Kind.String(),
		Seq:   s.Seq,
		Time:  s.Time.UnixNano(),
	}
	if s.Kind == params.KindInt {
		v := s.Int
		m.Value = &v
	} else {
		m.Values = append(Floats(nil), s.Values...)
	}
	return m
}

// Floats is a value array whose NaN and infinite entries encode as null.
// Samples are never sanitized on the way in, so they have to survive here.
type Floats []float64

func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	b := make([]byte, 0, 2+8*len(f))
	b = append(b, '[')
	for i, v := range f {
		if i > 0 {
			b = append(b, ',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b = append(b, "null"...)
			continue
		}
		b = strconv.AppendFloat(b, v, 'g', -1, 64)
	}
	return append(b, ']'), nil
}

// Command is an inbound parameter write.
type Command struct {
	Param string  `json:"param"`
	Value float64 `json:"value"`
}
