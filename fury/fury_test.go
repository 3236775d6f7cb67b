package fury_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graildata/fury"
	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/generic"
)

func TestEncodeDecodeMapRoundTrips(t *testing.T) {
	f := fury.New(fury.Config{})
	m := map[string]int32{"a": 1, "b": 2, "c": 3}

	buf := buffer.New(32)
	kt := generic.Of(reflect.TypeOf(""))
	vt := generic.Of(reflect.TypeOf(int32(0)))
	require.NoError(t, f.EncodeMap(buf, m, kt, vt))

	f2 := fury.New(fury.Config{})
	got, err := f2.DecodeMap(buffer.Wrap(buf.Bytes()), reflect.TypeOf(m), kt, vt)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestEncodeMapBytesRoundTripsUncompressed(t *testing.T) {
	f := fury.New(fury.Config{})
	m := map[string]interface{}{"a": "x", "b": float64(2), "c": nil}
	kt := generic.Of(reflect.TypeOf(""))
	vt := generic.Dynamic()

	framed, err := f.EncodeMapBytes(m, kt, vt)
	require.NoError(t, err)

	got, err := f.DecodeMapBytes(framed, reflect.TypeOf(m), kt, vt)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestEncodeMapBytesCompressesPastThreshold(t *testing.T) {
	cfg := fury.Config{Compress: &fury.CompressConfig{Threshold: 1}}
	f := fury.New(cfg)
	m := map[string]int32{"aaaaaaaaaaaaaaaaaaaa": 1, "bbbbbbbbbbbbbbbbbbbb": 2}
	kt := generic.Of(reflect.TypeOf(""))
	vt := generic.Of(reflect.TypeOf(int32(0)))

	framed, err := f.EncodeMapBytes(m, kt, vt)
	require.NoError(t, err)

	got, err := f.DecodeMapBytes(framed, reflect.TypeOf(m), kt, vt)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMetaStringRoundTrips(t *testing.T) {
	f := fury.New(fury.Config{})
	ms, err := f.EncodeMetaString("some.package_name")
	require.NoError(t, err)

	s, err := f.DecodeMetaString(ms.Payload, ms.Encoding, ms.NumBits)
	require.NoError(t, err)
	require.Equal(t, "some.package_name", s)
}

func TestPoolEncodesConcurrently(t *testing.T) {
	p := fury.NewPool(fury.Config{})
	kt := generic.Of(reflect.TypeOf(""))
	vt := generic.Of(reflect.TypeOf(int32(0)))

	maps := []map[string]int32{
		{"a": 1},
		{"b": 2},
		{"c": 3},
	}
	out := make([][]byte, len(maps))
	err := p.EncodeAll(context.Background(), len(maps), func(ctx context.Context, i int, f *fury.Fury) error {
		framed, err := f.EncodeMapBytes(maps[i], kt, vt)
		if err != nil {
			return err
		}
		out[i] = framed
		return nil
	})
	require.NoError(t, err)

	f := fury.New(fury.Config{})
	for i, framed := range out {
		got, err := f.DecodeMapBytes(framed, reflect.TypeOf(maps[i]), kt, vt)
		require.NoError(t, err)
		require.Equal(t, maps[i], got)
	}
}
