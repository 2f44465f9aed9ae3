package snapshot

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/runtable"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/sample"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/cespare/xxhash/v2"
)

// Load reads and verifies a snapshot file.
func Load(path string) (rindex.Snapshot, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("reading snapshot file: %w", err)
	}
	s, h, err := Decode(data)
	if err != nil {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, h, nil
}

// ReadHeader returns only the header of a snapshot file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()
	b := make([]byte, HeaderSize)
	if _, err := f.ReadAt(b, 0); err != nil {
		return Header{}, fmt.Errorf("reading snapshot header: %w", err)
	}
	h := decodeHeader(b)
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptIndex, h.Magic)
	}
	return h, nil
}

// Decode parses the .ridx layout produced by Encode.
func Decode(data []byte) (rindex.Snapshot, Header, error) {
	if len(data) < HeaderSize+FooterSize {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%w: snapshot truncated at %d bytes", apperrors.ErrCorruptIndex, len(data))
	}
	h := decodeHeader(data[:HeaderSize])
	if h.Magic != MagicBytes {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptIndex, h.Magic)
	}
	if h.Version != FormatVersion {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%w: unsupported format version %d", apperrors.ErrCorruptIndex, h.Version)
	}
	if uint64(len(data)) != uint64(HeaderSize+FooterSize)+h.BodySize {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%w: body size %d does not match file size %d", apperrors.ErrCorruptIndex, h.BodySize, len(data))
	}
	end := HeaderSize + int(h.BodySize)
	footer := data[end:]
	if sum := xxhash.Sum64(data[:end]); sum != binary.LittleEndian.Uint64(footer[0:8]) {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%w: checksum mismatch", apperrors.ErrCorruptIndex)
	}

	d := decoder{buf: data[HeaderSize:end]}
	s := rindex.Snapshot{
		Alphabet:  d.take(int(h.AlphabetSize)),
		EndMarker: h.EndMarker,
		Edits:     int(h.Edits),
		Version:   h.IndexVersion,
	}
	s.Runs = make([]runtable.Run, 0, min(h.RunCount, uint64(len(d.buf))))
	for range h.RunCount {
		c := d.next()
		s.Runs = append(s.Runs, runtable.Run{Char: c, Len: d.uvarint()})
	}
	s.Samples = make([]sample.Entry, 0, min(h.SampleCount, uint64(len(d.buf))))
	for range h.SampleCount {
		row := d.uvarint()
		s.Samples = append(s.Samples, sample.Entry{Row: row, Value: d.uvarint()})
	}
	if d.err != nil {
		return rindex.Snapshot{}, Header{}, d.err
	}
	if len(d.buf) != 0 {
		return rindex.Snapshot{}, Header{}, fmt.Errorf("%w: %d trailing body bytes", apperrors.ErrCorruptIndex, len(d.buf))
	}
	return s, h, nil
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = fmt.Errorf("%w: snapshot body truncated", apperrors.ErrCorruptIndex)
	}
	d.buf = nil
}

func (d *decoder) take(n int) []byte {
	if len(d.buf) < n {
		d.fail()
		return nil
	}
	out := slices.Clone(d.buf[:n])
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) next() byte {
	if len(d.buf) == 0 {
		d.fail()
		return 0
	}
	b := d.buf[0]
	d.buf = d.buf[1:]
	return b
}

func (d *decoder) uvarint() int {
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail()
		return 0
	}
	d.buf = d.buf[n:]
	return int(v)
}

// Latest returns the path of the newest snapshot in dir, or "" when there is
// none. Snapshot names sort by index version, then creation time.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("listing snapshot directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "snap_") && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	slices.Sort(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
