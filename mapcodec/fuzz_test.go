package mapcodec_test

import (
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/classes"
	"github.com/graildata/fury/generic"
	"github.com/graildata/fury/mapcodec"
	"github.com/graildata/fury/refs"
)

// fuzzMapWrapper gives gofuzz a concrete field to target; a bare
// map[interface{}]interface{} can't be driven through gofuzz's default
// interface-kind handling, so the Funcs hook below builds the map by hand
// from a fuzz.Continue instead, the same way metastring/fuzz_test.go's
// lowercaseAsciiFunc hand-builds a string rather than leaning on gofuzz
// defaults.
type fuzzMapWrapper struct {
	M map[interface{}]interface{}
}

// scalarPool is the fixed set of Go types registered by
// classes.RegisterBuiltins; every value a fuzzed map holds is drawn from
// one of these, keeping every entry within something WriteMap/ReadMap can
// actually round-trip.
const (
	scalarString = iota
	scalarInt32
	scalarInt64
	scalarFloat64
	scalarBool
	scalarKindCount
)

func randomScalar(c fuzz.Continue, pool []interface{}) interface{} {
	// Occasionally hand back a pool entry so the generated map contains
	// repeated (identity-shareable) values, the case reference tracking
	// exists to compress and the case that exposed the header-bit bug:
	// a chunk whose values are all a non-ref-bearing builtin type
	// (int32/int64/float64/bool, classes/builtins.go) must still
	// round-trip when TrackValueRef is requested.
	if len(pool) > 0 && c.Intn(4) == 0 {
		return pool[c.Intn(len(pool))]
	}
	switch c.Intn(scalarKindCount) {
	case scalarString:
		n := c.Intn(12)
		b := make([]byte, n)
		for i := range b {
			b[i] = byte('a' + c.Intn(26))
		}
		return string(b)
	case scalarInt32:
		return int32(c.Intn(2_000_000) - 1_000_000)
	case scalarInt64:
		return int64(c.Intn(2_000_000_000) - 1_000_000_000)
	case scalarFloat64:
		return float64(c.Intn(2_000_000)-1_000_000) / 137.0
	default:
		return c.Intn(2) == 1
	}
}

func randomFuzzMap(f *fuzz.Fuzzer) map[interface{}]interface{} {
	var w fuzzMapWrapper
	f.Fuzz(&w)
	return w.M
}

func newFuzzer(nullChance float64) *fuzz.Fuzzer {
	return fuzz.New().NilChance(0).Funcs(func(w *fuzzMapWrapper, c fuzz.Continue) {
		n := c.Intn(40)
		m := make(map[interface{}]interface{}, n)
		var pool []interface{}
		for i := 0; i < n; i++ {
			var key interface{}
			if nullChance > 0 && c.Intn(20) == 0 {
				key = nil
			} else {
				key = randomScalar(c, pool)
			}
			var val interface{}
			if c.Intn(20) == 0 {
				val = nil
			} else {
				val = randomScalar(c, pool)
			}
			if key != nil {
				pool = append(pool, key)
			}
			if val != nil {
				pool = append(pool, val)
			}
			m[key] = val
		}
		w.M = m
	})
}

// TestFuzzMapRoundTrip generates random maps with mixed key/value types
// (string, int32, int64, float64, bool; some ref-bearing per
// classes/builtins.go, some not), nulls, and repeated values, and checks
// decode(encode(m)) == m across every TrackKeyRef/TrackValueRef
// combination (spec.md §8 invariant 1). This is the property test that
// would have caught a chunk header claiming ref-tracking for a side whose
// entries never actually took the ref-tracked write path.
func TestFuzzMapRoundTrip(t *testing.T) {
	for _, trackKey := range []bool{false, true} {
		for _, trackValue := range []bool{false, true} {
			opts := mapcodec.Options{TrackKeyRef: trackKey, TrackValueRef: trackValue}
			f := newFuzzer(1)
			for iter := 0; iter < 30; iter++ {
				m := randomFuzzMap(f)

				cr := classes.NewResolver(true)
				classes.RegisterBuiltins(cr)
				c := mapcodec.New(refs.New(), cr, generic.NewStack())

				buf := buffer.New(64)
				require.NoError(t, c.WriteMap(buf, m, opts))

				c2 := mapcodec.New(refs.New(), cr, generic.NewStack())
				got, err := c2.ReadMap(buffer.Wrap(buf.Bytes()), reflect.TypeOf(m), opts)
				require.NoError(t, err)
				require.Equal(t, m, got)
			}
		}
	}
}

// TestFuzzMapRoundTripNonRefBearingValues narrows the fuzz population to
// exactly the types classes/builtins.go marks WritesReferences=false
// (int32, int64, float64, bool), with TrackValueRef always on, so every
// generated map exercises the configuration that previously desynced the
// chunk header from what the writer actually wrote.
func TestFuzzMapRoundTripNonRefBearingValues(t *testing.T) {
	opts := mapcodec.Options{
		KeyType:       generic.Of(reflect.TypeOf("")),
		TrackKeyRef:   true,
		TrackValueRef: true,
	}
	nonRefKinds := []int{scalarInt32, scalarInt64, scalarFloat64, scalarBool}

	f := fuzz.New().NilChance(0).Funcs(func(w *fuzzMapWrapper, c fuzz.Continue) {
		n := c.Intn(40)
		m := make(map[interface{}]interface{}, n)
		var pool []interface{}
		for i := 0; i < n; i++ {
			kn := c.Intn(12)
			key := "k" + string(rune('a'+kn))
			var val interface{}
			if len(pool) > 0 && c.Intn(3) == 0 {
				val = pool[c.Intn(len(pool))]
			} else {
				switch nonRefKinds[c.Intn(len(nonRefKinds))] {
				case scalarInt32:
					val = int32(c.Intn(2_000_000) - 1_000_000)
				case scalarInt64:
					val = int64(c.Intn(2_000_000_000) - 1_000_000_000)
				case scalarFloat64:
					val = float64(c.Intn(2_000_000)-1_000_000) / 137.0
				default:
					val = c.Intn(2) == 1
				}
				pool = append(pool, val)
			}
			m[key] = val
		}
		w.M = m
	})

	for iter := 0; iter < 30; iter++ {
		m := randomFuzzMap(f)

		cr := classes.NewResolver(true)
		classes.RegisterBuiltins(cr)
		c := mapcodec.New(refs.New(), cr, generic.NewStack())

		buf := buffer.New(64)
		require.NoError(t, c.WriteMap(buf, m, opts))

		c2 := mapcodec.New(refs.New(), cr, generic.NewStack())
		got, err := c2.ReadMap(buffer.Wrap(buf.Bytes()), reflect.TypeOf(m), opts)
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}
