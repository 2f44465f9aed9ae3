// Package alphabet maps text bytes to the dense character codes used by the
// run table. Code 0 is always the end marker, which therefore sorts before
// every other character regardless of its byte value.
package alphabet

import (
	"fmt"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// DefaultEndMarker terminates every indexed text unless configured otherwise.
const DefaultEndMarker byte = 0x01

// Alphabet is an immutable byte <-> code mapping.
type Alphabet struct {
	end   byte
	chars []byte
	codes [256]int16
}

// New builds an alphabet from the given characters plus the end marker.
// Duplicates are ignored; the end marker may not appear in chars.
func New(chars []byte, end byte) (*Alphabet, error) {
	a := &Alphabet{end: end}
	for i := range a.codes {
		a.codes[i] = -1
	}
	sorted := slices.Clone(chars)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if _, found := slices.BinarySearch(sorted, end); found {
		return nil, fmt.Errorf("%w: end marker %q listed as a text character", apperrors.ErrInvalidInput, end)
	}
	if len(sorted) > 255 {
		return nil, fmt.Errorf("%w: alphabet holds %d characters, at most 255 allowed", apperrors.ErrInvalidInput, len(sorted))
	}
	a.chars = append([]byte{end}, sorted...)
	for code, b := range a.chars {
		a.codes[b] = int16(code)
	}
	return a, nil
}

// MustNew is New for alphabets known to be valid at compile time.
func MustNew(chars string, end byte) *Alphabet {
	a, err := New([]byte(chars), end)
	if err != nil {
		panic(err)
	}
	return a
}

// FromText collects the distinct bytes of text into an alphabet.
func FromText(text []byte, end byte) (*Alphabet, error) {
	var seen [256]bool
	chars := make([]byte, 0, 16)
	for _, b := range text {
		if !seen[b] {
			seen[b] = true
			chars = append(chars, b)
		}
	}
	return New(chars, end)
}

// Size is the number of codes, end marker included.
func (a *Alphabet) Size() int { return len(a.chars) }

// End returns the end marker byte.
func (a *Alphabet) End() byte { return a.end }

// Code returns the code of b. The end marker maps to 0.
func (a *Alphabet) Code(b byte) (uint8, bool) {
	c := a.codes[b]
	if c < 0 {
		return 0, false
	}
	return uint8(c), true
}

// TextCode is Code restricted to characters that may appear in edits.
func (a *Alphabet) TextCode(b byte) (uint8, error) {
	c, ok := a.Code(b)
	if !ok || c == 0 {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownCharacter, b)
	}
	return c, nil
}

// Char returns the byte for code.
func (a *Alphabet) Char(code uint8) byte { return a.chars[code] }

// Chars returns the text characters in code order, without the end marker.
func (a *Alphabet) Chars() []byte { return slices.Clone(a.chars[1:]) }

// Encode maps text to codes. Every byte must be a text character.
func (a *Alphabet) Encode(text []byte) ([]uint8, error) {
	out := make([]uint8, len(text))
	for i, b := range text {
		c, err := a.TextCode(b)
		if err != nil {
			return nil, fmt.Errorf("encoding byte %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// Decode maps codes back to bytes.
func (a *Alphabet) Decode(codes []uint8) []byte {
	out := make([]byte, len(codes))
	for i, c := range codes {
		out[i] = a.chars[c]
	}
	return out
}
