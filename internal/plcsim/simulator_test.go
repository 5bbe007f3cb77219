package plcsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_StartupSequence_CompletesAfterDelay(t *testing.T) {
	s := New(testLogger())
	go s.Run()
	defer s.Stop()

	require.NoError(t, s.WriteBool(tagStartUp, true))

	deadline := time.After(4 * time.Second)
	for {
		done, err := s.ReadBool(tagStartUpDone)
		require.NoError(t, err)
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("StartUp_Done never rose")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestSimulator_MakeSurface_StepsPositionByDelta(t *testing.T) {
	s := New(testLogger())
	go s.Run()
	defer s.Stop()

	require.NoError(t, s.WriteInt32(tagZStacks, 3))
	require.NoError(t, s.WriteInt32(tagDeltaSource, 10))
	require.NoError(t, s.WriteInt32(tagDeltaSink, -5))
	require.NoError(t, s.WriteBool(tagStartSurfaces, true))

	deadline := time.After(4 * time.Second)
	for {
		done, err := s.ReadBool(tagMakeSurfaceDone)
		require.NoError(t, err)
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("MakeSurface_Done never rose")
		case <-time.After(20 * time.Millisecond):
		}
	}

	source, err := s.ReadInt32(tagMarcerSourcePosition)
	require.NoError(t, err)
	sink, err := s.ReadInt32(tagMarcerSinkPosition)
	require.NoError(t, err)
	assert.Equal(t, int32(30), source)
	assert.Equal(t, int32(-15), sink)
}

func TestSimulator_MakeSurfaceDone_ClearsWhenStartSurfacesDrops(t *testing.T) {
	s := New(testLogger())
	go s.Run()
	defer s.Stop()

	require.NoError(t, s.WriteInt32(tagZStacks, 1))
	require.NoError(t, s.WriteBool(tagStartSurfaces, true))

	deadline := time.After(3 * time.Second)
	for {
		done, _ := s.ReadBool(tagMakeSurfaceDone)
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("MakeSurface_Done never rose")
		case <-time.After(20 * time.Millisecond):
		}
	}

	require.NoError(t, s.WriteBool(tagStartSurfaces, false))

	deadline = time.After(2 * time.Second)
	for {
		done, _ := s.ReadBool(tagMakeSurfaceDone)
		if !done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("MakeSurface_Done never cleared after StartSurfaces dropped")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestSimulator_LaySurface_RisingEdgeCompletesAndSteps(t *testing.T) {
	s := New(testLogger())
	go s.Run()
	defer s.Stop()

	require.NoError(t, s.WriteInt32(tagStepSource, 7))
	require.NoError(t, s.WriteInt32(tagStepSink, 3))
	require.NoError(t, s.WriteBool(tagLaySurface, true))

	deadline := time.After(4 * time.Second)
	for {
		done, err := s.ReadBool(tagLaySurfaceDone)
		require.NoError(t, err)
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("LaySurface_Done never rose")
		case <-time.After(50 * time.Millisecond):
		}
	}

	source, err := s.ReadInt32(tagMarcerSourcePosition)
	require.NoError(t, err)
	assert.Equal(t, int32(7), source)
}

func TestSimulator_GlobalPositionMirrorsActualPosition(t *testing.T) {
	s := New(testLogger())
	go s.Run()
	defer s.Stop()

	require.NoError(t, s.WriteInt32(tagZStacks, 1))
	require.NoError(t, s.WriteInt32(tagDeltaSource, 42))
	require.NoError(t, s.WriteBool(tagStartSurfaces, true))

	deadline := time.After(3 * time.Second)
	for {
		global, _ := s.ReadInt32(tagGMarcerSourcePos)
		if global == 42 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("g_Marcer_Source_Cylinder_ActualPosition never mirrored the actual position")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
