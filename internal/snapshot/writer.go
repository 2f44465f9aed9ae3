// Package snapshot persists r-index state to binary .ridx files: a fixed
// header, the alphabet, the BWT runs, the SA samples and an xxhash footer.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/cespare/xxhash/v2"
)

const (
	MagicBytes    uint32 = 0x52494458
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16
	Extension            = ".ridx"
)

// Header is the 64-byte header written at the start of every snapshot.
type Header struct {
	Magic        uint32
	Version      uint32
	EndMarker    byte
	AlphabetSize uint16
	RunCount     uint64
	SampleCount  uint64
	Edits        uint64
	IndexVersion uint64
	CreatedAt    int64
	BodySize     uint64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	b[8] = h.EndMarker
	binary.LittleEndian.PutUint16(b[10:12], h.AlphabetSize)
	binary.LittleEndian.PutUint64(b[16:24], h.RunCount)
	binary.LittleEndian.PutUint64(b[24:32], h.SampleCount)
	binary.LittleEndian.PutUint64(b[32:40], h.Edits)
	binary.LittleEndian.PutUint64(b[40:48], h.IndexVersion)
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[56:64], h.BodySize)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		EndMarker:    b[8],
		AlphabetSize: binary.LittleEndian.Uint16(b[10:12]),
		RunCount:     binary.LittleEndian.Uint64(b[16:24]),
		SampleCount:  binary.LittleEndian.Uint64(b[24:32]),
		Edits:        binary.LittleEndian.Uint64(b[32:40]),
		IndexVersion: binary.LittleEndian.Uint64(b[40:48]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[48:56])),
		BodySize:     binary.LittleEndian.Uint64(b[56:64]),
	}
}

// Writer serialises index snapshots into a directory.
type Writer struct {
	dataDir string
	now     func() time.Time
}

// NewWriter creates a Writer that writes snapshots into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir, now: time.Now}
}

// Write atomically creates a new snapshot file and returns its path. It
// writes to a .tmp file first and renames on success.
func (w *Writer) Write(s rindex.Snapshot) (string, error) {
	created := w.now()
	name := fmt.Sprintf("snap_%020d_%d%s", s.Version, created.UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	data := Encode(s, created)
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing temp snapshot file: %w", err)
	}
	f, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("reopening temp snapshot file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return finalPath, nil
}

// Encode lays out a snapshot in the .ridx format. Runs are (char, uvarint
// length) pairs and samples are (uvarint row, uvarint value) pairs; the
// footer holds the xxhash of header and body followed by the body size.
func Encode(s rindex.Snapshot, created time.Time) []byte {
	body := make([]byte, 0, len(s.Alphabet)+len(s.Runs)*3+len(s.Samples)*6)
	body = append(body, s.Alphabet...)
	for _, r := range s.Runs {
		body = append(body, r.Char)
		body = binary.AppendUvarint(body, uint64(r.Len))
	}
	for _, e := range s.Samples {
		body = binary.AppendUvarint(body, uint64(e.Row))
		body = binary.AppendUvarint(body, uint64(e.Value))
	}

	h := Header{
		Magic:        MagicBytes,
		Version:      FormatVersion,
		EndMarker:    s.EndMarker,
		AlphabetSize: uint16(len(s.Alphabet)),
		RunCount:     uint64(len(s.Runs)),
		SampleCount:  uint64(len(s.Samples)),
		Edits:        uint64(s.Edits),
		IndexVersion: s.Version,
		CreatedAt:    created.Unix(),
		BodySize:     uint64(len(body)),
	}
	out := make([]byte, 0, HeaderSize+len(body)+FooterSize)
	out = append(out, h.encode()...)
	out = append(out, body...)
	sum := xxhash.Sum64(out)
	out = binary.LittleEndian.AppendUint64(out, sum)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(body)))
	return out
}
