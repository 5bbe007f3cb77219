package rtc

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"industrial-4.0-demo/internal/paramlib"
	"industrial-4.0-demo/internal/types"
)

func testCalibration() Calibration {
	return Calibration{FieldSizeMM: 200, MaxBits: 100000, ScaleCorrection: 1.0}
}

func TestBuilder_Build_HatchEmitsJumpMarkPairs(t *testing.T) {
	b := New(testCalibration(), nil)
	layer := types.Layer{
		Number: 1,
		Hatches: []types.Hatch{
			{Tag: types.GeometryTag{TypeID: 3}, Lines: []types.Line{
				{A: types.Point{X: 0, Y: 0}, B: types.Point{X: 10, Y: 0}},
				{A: types.Point{X: 0, Y: 1}, B: types.Point{X: 10, Y: 1}},
			}},
		},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	require.Len(t, block.Commands, 4)
	assert.Equal(t, types.CommandJump, block.Commands[0].Kind)
	assert.Equal(t, types.CommandMark, block.Commands[1].Kind)
	assert.Equal(t, types.CommandJump, block.Commands[2].Kind)
	assert.Equal(t, types.CommandMark, block.Commands[3].Kind)
}

func TestBuilder_Build_GeometryOrderIsHatchThenPolylineThenPolygon(t *testing.T) {
	b := New(testCalibration(), nil)
	layer := types.Layer{
		Number: 1,
		Hatches: []types.Hatch{
			{Lines: []types.Line{{A: types.Point{X: 0, Y: 0}, B: types.Point{X: 1, Y: 0}}}},
		},
		Polylines: []types.Polyline{
			{Points: []types.Point{{X: 2, Y: 0}, {X: 3, Y: 0}}},
		},
		Polygons: []types.Polygon{
			{Points: []types.Point{{X: 4, Y: 0}, {X: 5, Y: 0}, {X: 6, Y: 0}}},
		},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	// hatch: jump+mark (2), polyline: jump+mark (2), polygon: jump+mark+mark+mark-close (4)
	require.Len(t, block.Commands, 8)
	assert.Equal(t, int32(0), block.Commands[0].X) // hatch jump at x=0
	assert.Equal(t, int32(2)*int32(testCalibration().BitsPerMM()), block.Commands[2].X)
}

func TestBuilder_Build_PolygonClosesLoop(t *testing.T) {
	b := New(testCalibration(), nil)
	layer := types.Layer{
		Number: 1,
		Polygons: []types.Polygon{
			{Points: []types.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}},
		},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	// jump(0,0) mark(10,0) mark(10,10) mark(0,0) -- closing back to the first vertex
	require.Len(t, block.Commands, 4)
	last := block.Commands[3]
	first := block.Commands[0]
	assert.Equal(t, types.CommandMark, last.Kind)
	assert.Equal(t, first.X, last.X)
	assert.Equal(t, first.Y, last.Y)
}

func TestBuilder_Build_EmptyGeometryEmitsNoCommandsOrSegment(t *testing.T) {
	b := New(testCalibration(), nil)
	layer := types.Layer{
		Number:    1,
		Polylines: []types.Polyline{{Points: nil}},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	assert.Empty(t, block.Commands)
	assert.Empty(t, block.ParameterSegments)
}

func TestBuilder_Build_NonFiniteCoordinateFails(t *testing.T) {
	b := New(testCalibration(), nil)
	layer := types.Layer{
		Number: 3,
		Polylines: []types.Polyline{
			{Points: []types.Point{{X: float32(math.Inf(1)), Y: 0}, {X: 1, Y: 1}}},
		},
	}

	_, err := b.Build(layer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer 3 conversion failed")
}

func TestBuilder_ResolveStyle_FallsBackToDefaultFallbackID(t *testing.T) {
	lib := mustLibrary(t, map[uint32]types.BuildStyle{
		paramlib.DefaultFallbackID: {ID: paramlib.DefaultFallbackID, Name: "fallback", LaserPowerW: 50, MarkSpeedMMPerS: 500},
	})
	b := New(testCalibration(), lib)

	layer := types.Layer{
		Number: 1,
		Hatches: []types.Hatch{
			{Tag: types.GeometryTag{TypeID: 99}, Lines: []types.Line{{A: types.Point{X: 0, Y: 0}, B: types.Point{X: 1, Y: 0}}}},
		},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	require.Len(t, block.ParameterSegments, 1)
	assert.Equal(t, paramlib.DefaultFallbackID, block.ParameterSegments[0].BuildStyleID)
}

func TestBuilder_ResolveStyle_PrefersGeometryOwnTypeOverFallback(t *testing.T) {
	lib := mustLibrary(t, map[uint32]types.BuildStyle{
		3:                          {ID: 3, Name: "specific", LaserPowerW: 200, MarkSpeedMMPerS: 1000},
		paramlib.DefaultFallbackID: {ID: paramlib.DefaultFallbackID, Name: "fallback", LaserPowerW: 50, MarkSpeedMMPerS: 500},
	})
	b := New(testCalibration(), lib)

	layer := types.Layer{
		Number: 1,
		Hatches: []types.Hatch{
			{Tag: types.GeometryTag{TypeID: 3}, Lines: []types.Line{{A: types.Point{X: 0, Y: 0}, B: types.Point{X: 1, Y: 0}}}},
		},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	require.Len(t, block.ParameterSegments, 1)
	assert.Equal(t, uint32(3), block.ParameterSegments[0].BuildStyleID)
}

func TestBuilder_ResolveStyle_NilLibraryEmitsNoSegment(t *testing.T) {
	b := New(testCalibration(), nil)
	layer := types.Layer{
		Number: 1,
		Hatches: []types.Hatch{
			{Tag: types.GeometryTag{TypeID: 3}, Lines: []types.Line{{A: types.Point{X: 0, Y: 0}, B: types.Point{X: 1, Y: 0}}}},
		},
	}

	block, err := b.Build(layer)
	require.NoError(t, err)
	assert.Empty(t, block.ParameterSegments)
}

// mustLibrary builds a paramlib.Library from a JSON document written to a
// temp file, since Library has no exported constructor besides Load.
func mustLibrary(t *testing.T, styles map[uint32]types.BuildStyle) *paramlib.Library {
	t.Helper()

	type doc struct {
		ID         int     `json:"id"`
		Name       string  `json:"name"`
		LaserPower float64 `json:"laserPower"`
		LaserSpeed float64 `json:"laserSpeed"`
	}
	var docs []doc
	for _, s := range styles {
		docs = append(docs, doc{ID: int(s.ID), Name: s.Name, LaserPower: s.LaserPowerW, LaserSpeed: s.MarkSpeedMMPerS})
	}
	payload, err := json.Marshal(struct {
		BuildStyles []doc `json:"buildStyles"`
	}{BuildStyles: docs})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "buildstyles.json")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	lib, err := paramlib.Load(path)
	require.NoError(t, err)
	return lib
}
