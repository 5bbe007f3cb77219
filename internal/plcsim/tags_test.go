package plcsim

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimulator_WriteAndReadInt32RoundTrips(t *testing.T) {
	s := New(testLogger())
	require.NoError(t, s.WriteInt32(tagZStacks, 5))
	v, err := s.ReadInt32(tagZStacks)
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)
}

func TestSimulator_WriteAndReadBoolRoundTrips(t *testing.T) {
	s := New(testLogger())
	require.NoError(t, s.WriteBool(tagStartUp, true))
	v, err := s.ReadBool(tagStartUp)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestSimulator_UnknownTagRejected(t *testing.T) {
	s := New(testLogger())
	_, err := s.ReadInt32("not.a.tag")
	assert.ErrorIs(t, err, ErrUnknownTag)
	_, err = s.ReadBool("not.a.tag")
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestSimulator_KindMismatchRejected(t *testing.T) {
	s := New(testLogger())
	_, err := s.ReadBool(tagZStacks)
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = s.ReadInt32(tagStartUp)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestSimulator_ReadOnlyDoneTagsRejectWrites(t *testing.T) {
	s := New(testLogger())
	err := s.WriteBool(tagStartUpDone, true)
	assert.ErrorIs(t, err, ErrWrongKind)
	err = s.WriteBool(tagMakeSurfaceDone, true)
	assert.ErrorIs(t, err, ErrWrongKind)
	err = s.WriteBool(tagLaySurfaceDone, true)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestSimulator_MirroredPositionTagsRejectDirectWrites(t *testing.T) {
	s := New(testLogger())
	err := s.WriteInt32(tagMarcerSourcePosition, 10)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestSimulator_Snapshot_ReflectsCurrentTagState(t *testing.T) {
	s := New(testLogger())
	require.NoError(t, s.WriteBool(tagLaySurface, true))
	snap := s.Snapshot()
	assert.False(t, snap.PowderSurfaceDone, "LaySurface_Done is separate from LaySurface and starts false")
}
