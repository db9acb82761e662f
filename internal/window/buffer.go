// SPDX-License-Identifier: MIT
package window

// Buffer is the fixed-capacity acquisition window. All storage is allocated
// once by New; Append, IsFull and Filled never allocate.
//
// filled keeps counting after the window is full so the owner can observe an
// overrun. Samples beyond capacity are counted and discarded.
type Buffer struct {
	data   []float64
	filled int
}

// New returns a cleared window holding capacity samples.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]float64, capacity)}
}

// Append stores v at the fill position while there is room and always
// advances the fill count.
func (b *Buffer) Append(v float64) {
	if b.filled < len(b.data) {
		b.data[b.filled] = v
	}
	b.filled++
}

// Clear zeroes every slot and resets the fill count.
func (b *Buffer) Clear() {
	clear(b.data)
	b.filled = 0
}

// IsFull reports whether the window holds capacity samples.
func (b *Buffer) IsFull() bool {
	return b.filled >= len(b.data)
}

// Filled returns the number of samples appended since the last Clear,
// including discarded ones.
func (b *Buffer) Filled() int {
	return b.filled
}

// Overrun returns how many appended samples were discarded.
func (b *Buffer) Overrun() int {
	if b.filled > len(b.data) {
		return b.filled - len(b.data)
	}
	return 0
}

// Capacity returns the window length.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Data returns the backing slice. Callers must treat it as read-only; the
// slice header stays valid for the lifetime of the buffer.
func (b *Buffer) Data() []float64 {
	return b.data
}
