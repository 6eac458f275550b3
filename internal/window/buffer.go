// Package window holds the bounded, time-ordered sample buffer the rate
// estimators read from.
package window

import (
	"errors"
	"time"
)

// DefaultCapacity is the long-horizon sample count used when a buffer is
// created with a non-positive capacity.
const DefaultCapacity = 240

// ErrOutOfOrder is returned by Push for a sample older than the newest one
// already buffered.
var ErrOutOfOrder = errors.New("sample older than newest buffered sample")

// Sample is a single distance reading.
type Sample struct {
	Time     time.Time
	Distance float64 // millimetres
}

// Buffer is a fixed-capacity FIFO ring of samples in time order.
type Buffer struct {
	samples  []Sample
	capacity int
	head     int // index of the oldest sample
	size     int
}

// NewBuffer creates a buffer holding at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Push appends s, evicting the oldest sample when the buffer is full.
func (b *Buffer) Push(s Sample) error {
	if newest, ok := b.Newest(); ok && s.Time.Before(newest.Time) {
		return ErrOutOfOrder
	}

	if b.size == b.capacity {
		b.samples[b.head] = s
		b.head = (b.head + 1) % b.capacity
		return nil
	}
	b.samples[(b.head+b.size)%b.capacity] = s
	b.size++
	return nil
}

// Prune drops samples taken before now-maxAge from the front of the buffer
// and returns how many were removed.
func (b *Buffer) Prune(now time.Time, maxAge time.Duration) int {
	cutoff := now.Add(-maxAge)
	removed := 0
	for b.size > 0 && b.samples[b.head].Time.Before(cutoff) {
		b.samples[b.head] = Sample{}
		b.head = (b.head + 1) % b.capacity
		b.size--
		removed++
	}
	if b.size == 0 {
		b.head = 0
	}
	return removed
}

// Slice returns a copy of the most recent min(n, Len()) samples, oldest first.
func (b *Buffer) Slice(n int) []Sample {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Sample, n)
	start := b.head + b.size - n
	for i := range out {
		out[i] = b.samples[(start+i)%b.capacity]
	}
	return out
}

// All returns a copy of every buffered sample, oldest first.
func (b *Buffer) All() []Sample {
	return b.Slice(b.size)
}

// Newest returns the most recent sample, if any.
func (b *Buffer) Newest() (Sample, bool) {
	if b.size == 0 {
		return Sample{}, false
	}
	return b.samples[(b.head+b.size-1)%b.capacity], true
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }
