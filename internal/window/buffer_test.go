package window

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int, dist float64) Sample {
	return Sample{Time: epoch.Add(time.Duration(sec) * time.Second), Distance: dist}
}

func fill(t *testing.T, b *Buffer, secs ...int) {
	t.Helper()
	for _, s := range secs {
		require.NoError(t, b.Push(at(s, float64(s))))
	}
}

func TestNewBuffer_DefaultCapacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Cap())
	assert.Equal(t, DefaultCapacity, NewBuffer(-3).Cap())
	assert.Equal(t, 7, NewBuffer(7).Cap())
}

func TestPush_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	b := NewBuffer(3)
	fill(t, b, 0, 1, 2, 3, 4)

	assert.Equal(t, 3, b.Len())
	want := []Sample{at(2, 2), at(3, 3), at(4, 4)}
	if diff := cmp.Diff(want, b.All()); diff != "" {
		t.Errorf("buffer mismatch (-want +got):\n%s", diff)
	}
	for _, s := range b.All() {
		assert.False(t, s.Time.Equal(at(0, 0).Time), "oldest sample should have been evicted")
	}
}

func TestPush_RejectsOutOfOrder(t *testing.T) {
	t.Parallel()

	b := NewBuffer(5)
	fill(t, b, 10)

	err := b.Push(at(9, 1))
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, 1, b.Len())

	// Equal timestamps keep the sequence non-decreasing.
	assert.NoError(t, b.Push(at(10, 2)))
	assert.Equal(t, 2, b.Len())
}

func TestSlice(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4)
	fill(t, b, 1, 2, 3, 4, 5, 6)

	tests := []struct {
		name string
		n    int
		want []Sample
	}{
		{"zero", 0, nil},
		{"negative", -1, nil},
		{"tail of two", 2, []Sample{at(5, 5), at(6, 6)}},
		{"exactly full", 4, []Sample{at(3, 3), at(4, 4), at(5, 5), at(6, 6)}},
		{"more than held", 60, []Sample{at(3, 3), at(4, 4), at(5, 5), at(6, 6)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, b.Slice(tt.n)); diff != "" {
				t.Errorf("Slice(%d) mismatch (-want +got):\n%s", tt.n, diff)
			}
		})
	}
}

func TestSlice_ReturnsCopy(t *testing.T) {
	t.Parallel()

	b := NewBuffer(2)
	fill(t, b, 1, 2)
	s := b.Slice(2)
	s[0].Distance = 999

	assert.Equal(t, 1.0, b.Slice(2)[0].Distance)
}

func TestPrune_RemovesOnlyOlderThanCutoff(t *testing.T) {
	t.Parallel()

	b := NewBuffer(10)
	fill(t, b, 0, 10, 20, 30, 40)

	// cutoff = 45 - 25 = 20: samples at 0 and 10 go, 20 stays.
	removed := b.Prune(at(45, 0).Time, 25*time.Second)

	assert.Equal(t, 2, removed)
	want := []Sample{at(20, 20), at(30, 30), at(40, 40)}
	if diff := cmp.Diff(want, b.All()); diff != "" {
		t.Errorf("after prune (-want +got):\n%s", diff)
	}
}

func TestPrune_EmptiesStaleBuffer(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4)
	fill(t, b, 0, 1, 2, 3, 4, 5)

	removed := b.Prune(at(500, 0).Time, 240*time.Second)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 0, b.Len())
	_, ok := b.Newest()
	assert.False(t, ok)

	// The ring keeps working after being emptied.
	fill(t, b, 600, 601)
	if diff := cmp.Diff([]Sample{at(600, 600), at(601, 601)}, b.All()); diff != "" {
		t.Errorf("after refill (-want +got):\n%s", diff)
	}
}

func TestPrune_NothingStale(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4)
	assert.Equal(t, 0, b.Prune(epoch, time.Minute))

	fill(t, b, 100, 101)
	assert.Equal(t, 0, b.Prune(at(102, 0).Time, time.Minute))
	assert.Equal(t, 2, b.Len())
}

func TestNewest(t *testing.T) {
	t.Parallel()

	b := NewBuffer(2)
	fill(t, b, 1, 2, 3)
	newest, ok := b.Newest()
	require.True(t, ok)
	assert.Equal(t, at(3, 3), newest)
}
