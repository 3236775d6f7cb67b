package classes_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/classes"
)

func TestRegisterAndRoundTripClassTag(t *testing.T) {
	r := classes.NewResolver(true)
	classes.RegisterBuiltins(r)
	require.NoError(t, r.Err())

	info, err := r.GetClassInfo(reflect.TypeOf(""), nil)
	require.NoError(t, err)
	require.Equal(t, classes.ClassIDString, info.ClassID)
	require.True(t, info.WritesReferences)

	buf := buffer.New(4)
	r.WriteClass(buf, info)

	rb := buffer.Wrap(buf.Bytes())
	got, err := r.ReadClassInfo(rb, nil)
	require.NoError(t, err)
	require.Equal(t, info.ClassID, got.ClassID)
}

func TestGetClassInfoUnregisteredType(t *testing.T) {
	r := classes.NewResolver(true)
	_, err := r.GetClassInfo(reflect.TypeOf(3.0), nil)
	require.Error(t, err)
}

func TestReadClassInfoUnknownID(t *testing.T) {
	r := classes.NewResolver(true)
	classes.RegisterBuiltins(r)
	buf := buffer.New(2)
	buf.WriteVarUint32Small7(999)
	_, err := r.ReadClassInfo(buffer.Wrap(buf.Bytes()), nil)
	require.Error(t, err)
}

func TestCacheHolderShortCircuitsRepeatedLookup(t *testing.T) {
	r := classes.NewResolver(true)
	classes.RegisterBuiltins(r)
	holder := new(classes.CacheHolder)

	t1 := reflect.TypeOf(int32(0))
	info1, err := r.GetClassInfo(t1, holder)
	require.NoError(t, err)

	// A second lookup of the same type through the holder returns the
	// very ClassInfo cached by the first one.
	info2, err := r.GetClassInfo(t1, holder)
	require.NoError(t, err)
	require.Same(t, info1, info2)
}

func TestNeedToWriteRefPerTypeOptOut(t *testing.T) {
	r := classes.NewResolver(true)
	intType := reflect.TypeOf(int32(0))
	require.True(t, r.NeedToWriteRef(intType))
	r.SetRefTrackingExcluded(intType, true)
	require.False(t, r.NeedToWriteRef(intType))

	r2 := classes.NewResolver(false)
	require.False(t, r2.NeedToWriteRef(intType))
}

func TestRegisterConflictRecordsError(t *testing.T) {
	r := classes.NewResolver(true)
	r.Register(reflect.TypeOf(""), 42, nil, true)
	r.Register(reflect.TypeOf(int32(0)), 42, nil, false)
	require.Error(t, r.Err())
}
