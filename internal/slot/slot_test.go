package slot

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ratemeter/internal/fsutil"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want int
	}{
		{"zero", 0, 100000},
		{"one nm/s", 1e-6, 101000},
		{"falling 10 nm/s", -1e-5, 90000},
		{"sub-picometre rounds away", 4e-10, 100000},
		{"exactly at max", 1e-4, Max},
		{"exactly at min", -3.73e-4, Min},
		{"plus one mm/s saturates", 1.0, Max},
		{"minus one mm/s saturates", -1.0, Min},
		{"huge", 1e300, Max},
		{"huge negative", -1e300, Min},
		{"positive infinity", math.Inf(1), Max},
		{"negative infinity", math.Inf(-1), Min},
		{"nan", math.NaN(), Offset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.rate))
		})
	}
}

func TestEncode_Monotonic(t *testing.T) {
	t.Parallel()

	rates := []float64{-2, -1e-3, -3.73e-4, -2e-4, -1e-6, -1e-9, 0, 1e-9, 3e-7, 5e-5, 1e-4, 2e-4, 1, 50}
	sort.Float64s(rates)
	for i := 1; i < len(rates); i++ {
		lo, hi := Encode(rates[i-1]), Encode(rates[i])
		assert.LessOrEqual(t, lo, hi, "encode(%g)=%d > encode(%g)=%d", rates[i-1], lo, rates[i], hi)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "   100000\n", string(Format(100000)))
	assert.Equal(t, "  -273000\n", string(Format(Min)))
	assert.Equal(t, "        0\n", string(Format(0)))
	assert.Len(t, Format(Max), Width+1)
}

func TestOpen_CreatesMissingWithDefault(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/out", 0755))

	s, err := Open(fsys, "/out", ShortName, false)
	require.NoError(t, err)
	defer s.Close()

	data, err := fsys.ReadFile("/out/shortterm")
	require.NoError(t, err)
	assert.Equal(t, DefaultContent, string(data))
	assert.Equal(t, "/out/shortterm", s.Path())
	assert.Equal(t, ShortName, s.Name())
}

func TestOpen_KeepsExistingValue(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/out", 0755))
	require.NoError(t, fsys.WriteFile("/out/midterm", []byte("   123456\n"), 0644))

	s, err := Open(fsys, "/out", MidName, false)
	require.NoError(t, err)
	defer s.Close()

	data, _ := fsys.ReadFile("/out/midterm")
	assert.Equal(t, "   123456\n", string(data))
}

func TestOpen_FillsEmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/out", 0755))
	require.NoError(t, fsys.WriteFile("/out/longterm", nil, 0644))

	s, err := Open(fsys, "/out", LongName, false)
	require.NoError(t, err)
	defer s.Close()

	data, _ := fsys.ReadFile("/out/longterm")
	assert.Equal(t, DefaultContent, string(data))
}

func TestOpen_FailsWhenDefaultCannotBeWritten(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/out", 0755))
	diskFull := errors.New("no space left on device")
	fsys.FailWrites("/out/smoothed", diskFull)

	_, err := Open(fsys, "/out", SmoothedName, false)
	assert.ErrorIs(t, err, diskFull)
}

func TestSlot_WriteOverwritesInPlace(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/out", 0755))
	// A longer stale line must not leave trailing bytes behind.
	require.NoError(t, fsys.WriteFile("/out/shortterm", []byte("stale content that is long\n"), 0644))

	s, err := Open(fsys, "/out", ShortName, true)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.WriteRate(1e-6)
	require.NoError(t, err)
	assert.Equal(t, 101000, v)

	data, _ := fsys.ReadFile("/out/shortterm")
	assert.Equal(t, "   101000\n", string(data))

	require.NoError(t, s.Write(7))
	data, _ = fsys.ReadFile("/out/shortterm")
	assert.Equal(t, "        7\n", string(data))
}

func TestSlot_WriteFailureKeepsLastValue(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/out", 0755))
	s, err := Open(fsys, "/out", ShortName, false)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(150000))

	denied := errors.New("permission denied")
	fsys.FailWrites("/out/shortterm", denied)
	err = s.Write(100000)
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), ShortName)

	data, _ := fsys.ReadFile("/out/shortterm")
	assert.Equal(t, "   150000\n", string(data))
}

func TestOpenSet_OnDisk(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ratemeter")
	set, err := OpenSet(fsutil.OSFileSystem{}, dir, true)
	require.NoError(t, err)

	for _, name := range []string{ShortName, MidName, LongName, SmoothedName} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, DefaultContent, string(data), name)
	}

	enc, err := set.Publish(Values{Short: 1.0, Mid: 0, Long: -1.0, Smoothed: 2e-5})
	require.NoError(t, err)
	assert.Equal(t, Encoded{Short: Max, Mid: 100000, Long: Min, Smoothed: 120000}, enc)

	data, err := os.ReadFile(filepath.Join(dir, SmoothedName))
	require.NoError(t, err)
	assert.Equal(t, "   120000\n", string(data))

	require.NoError(t, set.Close())

	// Reopening keeps the last published values.
	set, err = OpenSet(fsutil.OSFileSystem{}, dir, false)
	require.NoError(t, err)
	defer set.Close()
	data, err = os.ReadFile(filepath.Join(dir, LongName))
	require.NoError(t, err)
	assert.Equal(t, "  -273000\n", string(data))
}

func TestSet_PublishContinuesPastFailedSlot(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	set, err := OpenSet(fsys, "/out", false)
	require.NoError(t, err)
	defer set.Close()

	denied := errors.New("permission denied")
	fsys.FailWrites("/out/midterm", denied)

	enc, err := set.Publish(Values{Short: 1e-6, Mid: 1e-6, Long: 1e-6, Smoothed: 1e-6})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 101000, enc.Long)

	for name, want := range map[string]string{
		"/out/shortterm": "   101000\n",
		"/out/midterm":   DefaultContent,
		"/out/longterm":  "   101000\n",
		"/out/smoothed":  "   101000\n",
	} {
		data, _ := fsys.ReadFile(name)
		assert.Equal(t, want, string(data), name)
	}
}

func TestOpenSet_OpenFailure(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	denied := errors.New("read-only file system")
	fsys.FailOpens(denied)

	_, err := OpenSet(fsys, "/out", false)
	assert.ErrorIs(t, err, denied)
}

func TestFailedSlots(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	set, err := OpenSet(fsys, "/out", false)
	require.NoError(t, err)
	defer set.Close()

	_, err = set.Publish(Values{})
	require.NoError(t, err)
	assert.Nil(t, FailedSlots(err))

	denied := errors.New("permission denied")
	fsys.FailWrites("/out/midterm", denied)
	fsys.FailWrites("/out/smoothed", denied)

	_, err = set.Publish(Values{Short: 1e-6})
	require.Error(t, err)
	assert.Equal(t, []string{MidName, SmoothedName}, FailedSlots(err))

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, MidName, we.Slot)
	assert.ErrorIs(t, we, denied)

	assert.Nil(t, FailedSlots(denied), "a plain error names no slot")
}
