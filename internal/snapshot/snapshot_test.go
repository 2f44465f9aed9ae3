package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func editedIndex(t *testing.T) *rindex.Index {
	t.Helper()
	ix, err := rindex.New([]byte("mississippi"), nil, rindex.Options{})
	require.NoError(t, err)
	_, err = ix.InsertString(4, []byte("sip"))
	require.NoError(t, err)
	_, err = ix.Delete(0)
	require.NoError(t, err)
	return ix
}

func TestWriteLoadRoundTrip(t *testing.T) {
	ix := editedIndex(t)
	dir := t.TempDir()

	path, err := NewWriter(dir).Write(ix.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, Extension, filepath.Ext(path))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	snap, h, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ix.Snapshot(), snap)
	assert.Equal(t, uint64(2), h.IndexVersion)
	assert.Equal(t, uint64(ix.RunCount()), h.RunCount)

	restored, err := rindex.FromSnapshot(snap, rindex.Options{})
	require.NoError(t, err)
	text, err := restored.Text()
	require.NoError(t, err)
	assert.Equal(t, "isssipissippi", string(text))
	assert.Equal(t, ix.Version(), restored.Version())

	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, h, hdr)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data := Encode(editedIndex(t).Snapshot(), time.Unix(1700000000, 0))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"too short", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"flipped body byte", func(b []byte) []byte { b[HeaderSize+2] ^= 0x01; return b }},
		{"flipped checksum", func(b []byte) []byte { b[len(b)-FooterSize] ^= 0x01; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(append([]byte(nil), data...))
			_, _, err := Decode(buf)
			assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
		})
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	path, err := Latest(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, path)

	ix := editedIndex(t)
	w := NewWriter(dir)
	first, err := w.Write(ix.Snapshot())
	require.NoError(t, err)
	_, err = ix.Insert(0, 'm')
	require.NoError(t, err)
	second, err := w.Write(ix.Snapshot())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	latest, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, second, latest)
	assert.NotEqual(t, first, latest)
}
