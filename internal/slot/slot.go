package slot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/ratemeter/internal/fsutil"
)

// DefaultContent is written to a slot file that is missing or empty at
// startup. The consumer must never read an empty file.
const DefaultContent = "0\n"

// Slot file names inside the output directory.
const (
	ShortName    = "shortterm"
	MidName      = "midterm"
	LongName     = "longterm"
	SmoothedName = "smoothed"
)

// Slot is one persistent single-line output file, overwritten in place.
type Slot struct {
	name  string
	path  string
	file  fsutil.File
	fsync bool
}

// Open opens the slot file dir/name read/write, creating it with
// DefaultContent when it is absent or empty. Existing content is kept.
func Open(fsys fsutil.FileSystem, dir, name string, fsync bool) (*Slot, error) {
	path := filepath.Join(dir, name)
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open slot %s: %w", name, err)
	}

	s := &Slot{name: name, path: path, file: f, fsync: fsync}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat slot %s: %w", name, err)
	}
	if info.Size() == 0 {
		if err := s.overwrite([]byte(DefaultContent)); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialise slot %s: %w", name, err)
		}
	}
	return s, nil
}

// Name returns the slot's file name.
func (s *Slot) Name() string { return s.name }

// Path returns the slot's full path.
func (s *Slot) Path() string { return s.path }

// WriteError reports a failed write to one slot. The slot keeps its
// previous content.
type WriteError struct {
	Slot string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write slot %s: %v", e.Slot, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// FailedSlots returns the names of the slots whose writes failed in err,
// which may be a single WriteError or several joined together.
func FailedSlots(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var names []string
		for _, e := range joined.Unwrap() {
			names = append(names, FailedSlots(e)...)
		}
		return names
	}
	var we *WriteError
	if errors.As(err, &we) {
		return []string{we.Slot}
	}
	return nil
}

// Write replaces the slot content with the formatted value v.
func (s *Slot) Write(v int) error {
	if err := s.overwrite(Format(v)); err != nil {
		return &WriteError{Slot: s.name, Err: err}
	}
	return nil
}

// WriteRate encodes rate and writes it, returning the encoded value.
func (s *Slot) WriteRate(rateMMPerSec float64) (int, error) {
	v := Encode(rateMMPerSec)
	return v, s.Write(v)
}

// overwrite seeks to the start, writes line in a single call, then drops any
// trailing bytes left by a longer previous line.
func (s *Slot) overwrite(line []byte) error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	n, err := s.file.Write(line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return io.ErrShortWrite
	}
	if err := s.file.Truncate(int64(n)); err != nil {
		return err
	}
	if s.fsync {
		return s.file.Sync()
	}
	return nil
}

// Close releases the file handle. The file itself is left in place.
func (s *Slot) Close() error {
	return s.file.Close()
}

// Values are the four rates published each cycle, in mm/s.
type Values struct {
	Short    float64
	Mid      float64
	Long     float64
	Smoothed float64
}

// Encoded are the protocol integers derived from Values.
type Encoded struct {
	Short    int `json:"short"`
	Mid      int `json:"mid"`
	Long     int `json:"long"`
	Smoothed int `json:"smoothed"`
}

// Set is the four output slots.
type Set struct {
	Short    *Slot
	Mid      *Slot
	Long     *Slot
	Smoothed *Slot
}

// OpenSet creates dir if needed and opens all four slots. Any failure closes
// the slots already opened.
func OpenSet(fsys fsutil.FileSystem, dir string, fsync bool) (*Set, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	var opened []*Slot
	open := func(name string) (*Slot, error) {
		s, err := Open(fsys, dir, name, fsync)
		if err != nil {
			for _, o := range opened {
				o.Close()
			}
			return nil, err
		}
		opened = append(opened, s)
		return s, nil
	}

	set := &Set{}
	var err error
	if set.Short, err = open(ShortName); err != nil {
		return nil, err
	}
	if set.Mid, err = open(MidName); err != nil {
		return nil, err
	}
	if set.Long, err = open(LongName); err != nil {
		return nil, err
	}
	if set.Smoothed, err = open(SmoothedName); err != nil {
		return nil, err
	}
	return set, nil
}

// Publish encodes and writes every value. A failed slot does not stop the
// others; all failures are joined into the returned error.
func (s *Set) Publish(v Values) (Encoded, error) {
	var enc Encoded
	var errs []error
	var err error

	if enc.Short, err = s.Short.WriteRate(v.Short); err != nil {
		errs = append(errs, err)
	}
	if enc.Mid, err = s.Mid.WriteRate(v.Mid); err != nil {
		errs = append(errs, err)
	}
	if enc.Long, err = s.Long.WriteRate(v.Long); err != nil {
		errs = append(errs, err)
	}
	if enc.Smoothed, err = s.Smoothed.WriteRate(v.Smoothed); err != nil {
		errs = append(errs, err)
	}
	return enc, errors.Join(errs...)
}

// Close closes every slot.
func (s *Set) Close() error {
	return errors.Join(s.Short.Close(), s.Mid.Close(), s.Long.Close(), s.Smoothed.Close())
}
