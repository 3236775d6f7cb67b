// Package metastring implements Fury's adaptive bit-packed string codec
// (spec.md §4.4), used for the class/field/package identifiers that
// appear throughout the wire format. It picks the narrowest of four
// fixed alphabets — or falls back to raw UTF-8 — for a given input
// string, bit-packs the result MSB-first, and decodes it back exactly.
package metastring

import (
	"fmt"
	"strings"

	"github.com/graildata/fury/ferrors"
)

// Encoding identifies which alphabet (or UTF-8 fallback) a MetaString's
// payload was packed with.
type Encoding byte

const (
	LowerSpecial Encoding = iota
	LowerUpperDigitSpecial
	FirstToLowerSpecial
	AllToLowerSpecial
	UTF8
)

func (e Encoding) String() string {
	switch e {
	case LowerSpecial:
		return "LOWER_SPECIAL"
	case LowerUpperDigitSpecial:
		return "LOWER_UPPER_DIGIT_SPECIAL"
	case FirstToLowerSpecial:
		return "FIRST_TO_LOWER_SPECIAL"
	case AllToLowerSpecial:
		return "ALL_TO_LOWER_SPECIAL"
	case UTF8:
		return "UTF8"
	default:
		return "UNKNOWN"
	}
}

// MaxInputChars is the largest input MetaString will encode (spec.md
// §2's MetaString invariant).
const MaxInputChars = 32767

// SpecialChars is the pair of characters LOWER_UPPER_DIGIT_SPECIAL
// reserves its two non-alphanumeric codepoints (62, 63) for. Fury's
// canonical defaults are '.' and '_', matching LOWER_SPECIAL's own
// special characters.
type SpecialChars struct {
	First  byte
	Second byte
}

// DefaultSpecialChars are the special characters used when a caller has
// no reason to pick different ones.
var DefaultSpecialChars = SpecialChars{First: '.', Second: '_'}

// MetaString is a fully decoded/encoded string: the alphabet it was (or
// will be) packed with, the packed payload, and the bit accounting
// needed to unpack it again without a length-of-string marker.
type MetaString struct {
	Input    string
	Encoding Encoding
	Payload  []byte
	NumBits  int
}

func bitsPerChar(e Encoding) int {
	switch e {
	case LowerSpecial, FirstToLowerSpecial, AllToLowerSpecial:
		return 5
	case LowerUpperDigitSpecial:
		return 6
	case UTF8:
		return 8
	default:
		return 0
	}
}

// lowerSpecialIndex returns c's LOWER_SPECIAL alphabet index and true,
// or false if c is outside that alphabet.
func lowerSpecialIndex(c byte) (int, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return int(c - 'a'), true
	case c == '.':
		return 26, true
	case c == '_':
		return 27, true
	case c == '$':
		return 28, true
	case c == '|':
		return 29, true
	default:
		return 0, false
	}
}

func lowerSpecialChar(idx int) byte {
	switch {
	case idx <= 25:
		return 'a' + byte(idx)
	case idx == 26:
		return '.'
	case idx == 27:
		return '_'
	case idx == 28:
		return '$'
	default:
		return '|'
	}
}

// lowerUpperDigitIndex returns c's LOWER_UPPER_DIGIT_SPECIAL alphabet
// index under sc and true, or false if c is outside that alphabet.
func lowerUpperDigitIndex(c byte, sc SpecialChars) (int, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return int(c - 'a'), true
	case c >= 'A' && c <= 'Z':
		return 26 + int(c-'A'), true
	case c >= '0' && c <= '9':
		return 52 + int(c-'0'), true
	case c == sc.First:
		return 62, true
	case c == sc.Second:
		return 63, true
	default:
		return 0, false
	}
}

func lowerUpperDigitChar(idx int, sc SpecialChars) byte {
	switch {
	case idx <= 25:
		return 'a' + byte(idx)
	case idx <= 51:
		return 'A' + byte(idx-26)
	case idx <= 61:
		return '0' + byte(idx-52)
	case idx == 62:
		return sc.First
	default:
		return sc.Second
	}
}

// SelectEncoding runs the deterministic selection algorithm of spec.md
// §4.4 against s and sc, with no side effects. It is exposed separately
// from Encode so callers (and tests) can inspect the decision without
// paying for a full pack.
func SelectEncoding(s string, sc SpecialChars) Encoding {
	if allInLowerSpecial(s) {
		return LowerSpecial
	}
	if allInLowerUpperDigit(s, sc) {
		hasDigit := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
		if hasDigit {
			return LowerUpperDigitSpecial
		}
		upperCount, firstUpperOnly := countUpperAtStart(s)
		if firstUpperOnly {
			return FirstToLowerSpecial
		}
		n := len(s)
		if (n+upperCount)*5 < n*6 {
			return AllToLowerSpecial
		}
		return LowerUpperDigitSpecial
	}
	return UTF8
}

func allInLowerSpecial(s string) bool {
	for i := 0; i < len(s); i++ {
		if _, ok := lowerSpecialIndex(s[i]); !ok {
			return false
		}
	}
	return true
}

func allInLowerUpperDigit(s string, sc SpecialChars) bool {
	for i := 0; i < len(s); i++ {
		if _, ok := lowerUpperDigitIndex(s[i], sc); !ok {
			return false
		}
	}
	return true
}

// countUpperAtStart reports the total number of uppercase ASCII letters
// in s, and whether that count is exactly one and it occurs at index 0
// (spec.md §4.4 step 2's FIRST_TO_LOWER_SPECIAL condition).
func countUpperAtStart(s string) (upperCount int, firstUpperOnly bool) {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			upperCount++
		}
	}
	firstUpperOnly = upperCount == 1 && len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z'
	return upperCount, firstUpperOnly
}

// Encode selects an alphabet for s (or UTF-8 fallback) and bit-packs it,
// returning the resulting MetaString. It returns OversizedString if s
// exceeds MaxInputChars runes.
func Encode(s string, sc SpecialChars) (MetaString, error) {
	if n := len([]rune(s)); n > MaxInputChars {
		return MetaString{}, ferrors.E(ferrors.OversizedString, fmt.Sprintf("metastring: input length %d exceeds max %d", n, MaxInputChars))
	}
	enc := SelectEncoding(s, sc)
	switch enc {
	case LowerSpecial:
		return packSimple(s, enc, sc, lowerSpecialIndex)
	case LowerUpperDigitSpecial:
		return packLowerUpperDigit(s, sc)
	case FirstToLowerSpecial:
		return packFirstToLower(s)
	case AllToLowerSpecial:
		return packAllToLower(s)
	default:
		payload := []byte(s)
		return MetaString{Input: s, Encoding: UTF8, Payload: payload, NumBits: len(payload) * 8}, nil
	}
}

func packSimple(s string, enc Encoding, sc SpecialChars, index func(byte) (int, bool)) (MetaString, error) {
	w := newBitWriter(len(s) * bitsPerChar(enc))
	for i := 0; i < len(s); i++ {
		idx, ok := index(s[i])
		if !ok {
			ferrors.Fatalf("metastring: %q outside %s alphabet", s[i], enc)
		}
		w.write(uint32(idx), bitsPerChar(enc))
	}
	return MetaString{Input: s, Encoding: enc, Payload: w.bytes(), NumBits: w.bitsWritten}, nil
}

func packLowerUpperDigit(s string, sc SpecialChars) (MetaString, error) {
	w := newBitWriter(len(s) * 6)
	for i := 0; i < len(s); i++ {
		idx, ok := lowerUpperDigitIndex(s[i], sc)
		if !ok {
			ferrors.Fatalf("metastring: %q outside LOWER_UPPER_DIGIT_SPECIAL alphabet", s[i])
		}
		w.write(uint32(idx), 6)
	}
	return MetaString{Input: s, Encoding: LowerUpperDigitSpecial, Payload: w.bytes(), NumBits: w.bitsWritten}, nil
}

func packFirstToLower(s string) (MetaString, error) {
	lowered := strings.ToLower(s[:1]) + s[1:]
	w := newBitWriter(len(lowered) * 5)
	for i := 0; i < len(lowered); i++ {
		idx, ok := lowerSpecialIndex(lowered[i])
		if !ok {
			ferrors.Fatalf("metastring: %q outside LOWER_SPECIAL alphabet", lowered[i])
		}
		w.write(uint32(idx), 5)
	}
	return MetaString{Input: s, Encoding: FirstToLowerSpecial, Payload: w.bytes(), NumBits: w.bitsWritten}, nil
}

func packAllToLower(s string) (MetaString, error) {
	upperCount, _ := countUpperAtStart(s)
	w := newBitWriter((len(s) + upperCount) * 5)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			idx, _ := lowerSpecialIndex('|')
			w.write(uint32(idx), 5)
			lowerIdx, _ := lowerSpecialIndex(c - 'A' + 'a')
			w.write(uint32(lowerIdx), 5)
			continue
		}
		idx, ok := lowerSpecialIndex(c)
		if !ok {
			ferrors.Fatalf("metastring: %q outside LOWER_SPECIAL alphabet", c)
		}
		w.write(uint32(idx), 5)
	}
	return MetaString{Input: s, Encoding: AllToLowerSpecial, Payload: w.bytes(), NumBits: w.bitsWritten}, nil
}

// Decode unpacks payload (numBits significant bits of it, packed per
// Encode's convention) back into the original string.
func Decode(payload []byte, enc Encoding, numBits int, sc SpecialChars) (string, error) {
	switch enc {
	case LowerSpecial:
		return decodeSimple(payload, numBits, 5, lowerSpecialChar)
	case LowerUpperDigitSpecial:
		return decodeSimple(payload, numBits, 6, func(idx int) byte { return lowerUpperDigitChar(idx, sc) })
	case FirstToLowerSpecial:
		return decodeFirstToLower(payload, numBits)
	case AllToLowerSpecial:
		return decodeAllToLower(payload, numBits)
	case UTF8:
		n := numBits / 8
		if n > len(payload) {
			return "", ferrors.E(ferrors.Truncation, "metastring: payload shorter than numBits")
		}
		return string(payload[:n]), nil
	default:
		return "", ferrors.E(ferrors.ProtocolMismatch, fmt.Sprintf("metastring: unknown encoding %d", byte(enc)))
	}
}

func decodeSimple(payload []byte, numBits, bits int, sym func(int) byte) (string, error) {
	r := newBitReader(payload, numBits)
	n := numBits / bits
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		idx, err := r.read(bits)
		if err != nil {
			return "", err
		}
		out[i] = sym(int(idx))
	}
	return string(out), nil
}

func decodeFirstToLower(payload []byte, numBits int) (string, error) {
	r := newBitReader(payload, numBits)
	n := numBits / 5
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		idx, err := r.read(5)
		if err != nil {
			return "", err
		}
		out[i] = lowerSpecialChar(int(idx))
	}
	if n > 0 && out[0] >= 'a' && out[0] <= 'z' {
		out[0] = out[0] - 'a' + 'A'
	}
	return string(out), nil
}

func decodeAllToLower(payload []byte, numBits int) (string, error) {
	r := newBitReader(payload, numBits)
	nSymbols := numBits / 5
	out := make([]byte, 0, nSymbols)
	for read := 0; read < nSymbols; read++ {
		idx, err := r.read(5)
		if err != nil {
			return "", err
		}
		c := lowerSpecialChar(int(idx))
		if c == '|' {
			read++
			if read >= nSymbols {
				return "", ferrors.E(ferrors.ProtocolMismatch, "metastring: dangling escape in ALL_TO_LOWER_SPECIAL")
			}
			nextIdx, err := r.read(5)
			if err != nil {
				return "", err
			}
			lower := lowerSpecialChar(int(nextIdx))
			out = append(out, lower-'a'+'A')
			continue
		}
		out = append(out, c)
	}
	return string(out), nil
}
