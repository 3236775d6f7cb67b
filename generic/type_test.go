package generic_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graildata/fury/generic"
)

func TestOfMonomorphicConcreteType(t *testing.T) {
	gt := generic.Of(reflect.TypeOf(int32(0)))
	require.True(t, gt.Monomorphic)
}

func TestOfInterfaceIsPolymorphic(t *testing.T) {
	var errType = reflect.TypeOf((*error)(nil)).Elem()
	gt := generic.Of(errType)
	require.False(t, gt.Monomorphic)
}

func TestDynamicIsPolymorphic(t *testing.T) {
	require.False(t, generic.Dynamic().Monomorphic)
	require.Nil(t, generic.Dynamic().Concrete)
}

func TestParamFallsBackToDynamic(t *testing.T) {
	gt := generic.Of(reflect.TypeOf(map[string]int32{}))
	require.Equal(t, generic.Dynamic(), gt.Param(0))

	inner := generic.Of(reflect.TypeOf(int32(0)))
	outer := generic.Of(reflect.TypeOf(map[string]int32{}), generic.Of(reflect.TypeOf("")), inner)
	require.Equal(t, inner, outer.Param(1))
}

func TestStackPushPopTop(t *testing.T) {
	s := generic.NewStack()
	_, ok := s.Top()
	require.False(t, ok)

	kt := generic.Of(reflect.TypeOf(""))
	vt := generic.Of(reflect.TypeOf(int32(0)))
	s.Push(kt, vt)
	require.Equal(t, 1, s.Depth())

	f, ok := s.Top()
	require.True(t, ok)
	require.Equal(t, kt, f.Key)
	require.Equal(t, vt, f.Value)

	s.Push(generic.Dynamic(), generic.Dynamic())
	require.Equal(t, 2, s.Depth())
	s.Pop()
	require.Equal(t, 1, s.Depth())

	f2, ok := s.Top()
	require.True(t, ok)
	require.Equal(t, kt, f2.Key)

	s.Pop()
	require.Equal(t, 0, s.Depth())
}
