package metastring_test

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/graildata/fury/metastring"
)

// TestFuzzRoundTripLowercaseAscii covers the common case: identifier-like
// strings that select LowerSpecial.
func TestFuzzRoundTripLowercaseAscii(t *testing.T) {
	f := fuzz.New().NilChance(0).Funcs(lowercaseAsciiFunc)
	for i := 0; i < 200; i++ {
		var s string
		f.Fuzz(&s)
		require.Equal(t, s, roundTrip(t, s))
	}
}

// TestFuzzRoundTripMixedCaseDigitsSpecial drives strings through every
// ASCII encoding SelectEncoding can pick (LowerSpecial,
// LowerUpperDigitSpecial, FirstToLowerSpecial, AllToLowerSpecial) by
// drawing from the full special-char alphabet plus upper/lower/digit runs.
func TestFuzzRoundTripMixedCaseDigitsSpecial(t *testing.T) {
	alphabet := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._|-")
	f := fuzz.New().NilChance(0).Funcs(func(s *string, c fuzz.Continue) {
		n := c.Intn(60)
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[c.Intn(len(alphabet))]
		}
		*s = string(b)
	})
	for i := 0; i < 200; i++ {
		var s string
		f.Fuzz(&s)
		require.Equal(t, s, roundTrip(t, s))
	}
}

// TestFuzzRoundTripUTF8 exercises the UTF8 fallback encoding with random
// multi-byte runes, including ones outside the special-char alphabet
// entirely.
func TestFuzzRoundTripUTF8(t *testing.T) {
	runes := []rune("你好世界αβγδ€£¥😀😺🚀")
	f := fuzz.New().NilChance(0).Funcs(func(s *string, c fuzz.Continue) {
		n := c.Intn(20)
		rs := make([]rune, n)
		for i := range rs {
			rs[i] = runes[c.Intn(len(runes))]
		}
		*s = string(rs)
	})
	for i := 0; i < 100; i++ {
		var s string
		f.Fuzz(&s)
		require.Equal(t, s, roundTrip(t, s))
	}
}

// TestFuzzRoundTripNearMaxInputChars probes the boundary spec.md calls out
// for MetaString's length limit: strings right up against MaxInputChars
// still round-trip, one past it is rejected (see
// TestOversizedStringRejected for the over-the-line case).
func TestFuzzRoundTripNearMaxInputChars(t *testing.T) {
	f := fuzz.New().NilChance(0).Funcs(lowercaseAsciiFunc)
	for _, n := range []int{metastring.MaxInputChars - 1, metastring.MaxInputChars} {
		b := make([]byte, n)
		var filler string
		f.Fuzz(&filler)
		for i := range b {
			if len(filler) > 0 {
				b[i] = filler[i%len(filler)]
			} else {
				b[i] = 'a'
			}
		}
		s := string(b)
		require.Equal(t, s, roundTrip(t, s))
	}
}

func lowercaseAsciiFunc(s *string, c fuzz.Continue) {
	n := c.Intn(40)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + c.Intn(26))
	}
	*s = string(b)
}
