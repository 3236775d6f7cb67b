package metastring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/metastring"
)

func roundTrip(t *testing.T, s string) string {
	t.Helper()
	ms, err := metastring.Encode(s, metastring.DefaultSpecialChars)
	require.NoError(t, err)
	got, err := metastring.Decode(ms.Payload, ms.Encoding, ms.NumBits, metastring.DefaultSpecialChars)
	require.NoError(t, err)
	return got
}

func TestSelectEncodingLowerSpecial(t *testing.T) {
	require.Equal(t, metastring.LowerSpecial, metastring.SelectEncoding("hello_world.go", metastring.DefaultSpecialChars))
	require.Equal(t, "hello_world.go", roundTrip(t, "hello_world.go"))
}

func TestSelectEncodingLowerUpperDigitSpecial(t *testing.T) {
	enc := metastring.SelectEncoding("ExampleInput123", metastring.DefaultSpecialChars)
	require.Equal(t, metastring.LowerUpperDigitSpecial, enc)
	require.Equal(t, "ExampleInput123", roundTrip(t, "ExampleInput123"))
}

func TestSelectEncodingFirstToLowerSpecial(t *testing.T) {
	enc := metastring.SelectEncoding("Aabcdef", metastring.DefaultSpecialChars)
	require.Equal(t, metastring.FirstToLowerSpecial, enc)
	require.Equal(t, "Aabcdef", roundTrip(t, "Aabcdef"))
}

func TestSelectEncodingAllToLowerSpecial(t *testing.T) {
	// Few scattered uppercase letters relative to length: cheaper to
	// escape each with LOWER_SPECIAL's '|' than to pay LOWER_UPPER_DIGIT's
	// 6 bits/char throughout, per spec.md's (len+upperCount)*5 < len*6
	// test (here upperCount=2, len=28, so 2 < 28/5).
	s := "abcdeFghijklmnopqrstuvwxyZab"
	enc := metastring.SelectEncoding(s, metastring.DefaultSpecialChars)
	require.Equal(t, metastring.AllToLowerSpecial, enc)
	require.Equal(t, s, roundTrip(t, s))
}

func TestSelectEncodingUTF8Fallback(t *testing.T) {
	s := "你好，世界"
	enc := metastring.SelectEncoding(s, metastring.DefaultSpecialChars)
	require.Equal(t, metastring.UTF8, enc)
	require.Equal(t, s, roundTrip(t, s))
}

func TestWireRoundTrip(t *testing.T) {
	for _, s := range []string{"foo.bar_baz", "ExampleInput123", "Aabcdef", "AbCdEfGh", "你好"} {
		ms, err := metastring.Encode(s, metastring.DefaultSpecialChars)
		require.NoError(t, err)

		buf := buffer.New(16)
		metastring.WriteTo(buf, ms)

		rb := buffer.Wrap(buf.Bytes())
		got, err := metastring.ReadFrom(rb, metastring.DefaultSpecialChars)
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestOversizedStringRejected(t *testing.T) {
	huge := make([]rune, metastring.MaxInputChars+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := metastring.Encode(string(huge), metastring.DefaultSpecialChars)
	require.Error(t, err)
}
