// Package rtc converts a decoded slice-file Layer into an RtcCommandBlock:
// an ordered sequence of device commands plus the parameter segments that
// group them by laser/scanner settings. It performs the mm-to-device-unit
// calibration; no unit conversion happens earlier in the pipeline.
package rtc

import (
	"fmt"
	"math"

	"industrial-4.0-demo/internal/paramlib"
	"industrial-4.0-demo/internal/slmerr"
	"industrial-4.0-demo/internal/types"
)

// Calibration holds the field geometry used to convert millimeters to
// signed device-unit integers.
type Calibration struct {
	FieldSizeMM     float64
	MaxBits         int32
	ScaleCorrection float64
}

// DefaultCalibration matches the galvo field/optics this system ships
// against by default.
func DefaultCalibration() Calibration {
	return Calibration{
		FieldSizeMM:     163.4,
		MaxBits:         524287,
		ScaleCorrection: 1.0,
	}
}

// BitsPerMM returns the calibration's device-units-per-millimeter factor.
func (c Calibration) BitsPerMM() float64 {
	return (2.0 * float64(c.MaxBits)) / c.FieldSizeMM * c.ScaleCorrection
}

// MMToBits converts a millimeter coordinate to a clamped, rounded
// device-unit integer. It is monotonic non-decreasing and saturates at
// ±MaxBits.
func (c Calibration) MMToBits(mm float64) int32 {
	bits := mm * c.BitsPerMM()
	if math.IsNaN(bits) {
		bits = 0
	}
	max := float64(c.MaxBits)
	if bits > max {
		bits = max
	}
	if bits < -max {
		bits = -max
	}
	return int32(math.Round(bits))
}

// Builder converts Layers into RtcCommandBlocks against a fixed
// calibration and parameter library.
type Builder struct {
	calib Calibration
	lib   *paramlib.Library
}

// New returns a Builder. lib may be nil, in which case no geometry ever
// resolves a parameter segment.
func New(calib Calibration, lib *paramlib.Library) *Builder {
	return &Builder{calib: calib, lib: lib}
}

// Build converts one Layer into an RtcCommandBlock. Geometries are
// processed in on-disk order: hatches, then polylines, then polygons.
func (b *Builder) Build(layer types.Layer) (types.RtcCommandBlock, error) {
	block := types.RtcCommandBlock{
		LayerNumber:      layer.Number,
		LayerHeightMM:    layer.HeightMM,
		LayerThicknessMM: layer.ThicknessMM,
	}

	for _, h := range layer.Hatches {
		if err := b.appendHatch(&block, h); err != nil {
			return block, &slmerr.ConversionFailed{LayerNumber: layer.Number, Cause: err}
		}
	}
	for _, p := range layer.Polylines {
		if err := b.appendPolyline(&block, p); err != nil {
			return block, &slmerr.ConversionFailed{LayerNumber: layer.Number, Cause: err}
		}
	}
	for _, p := range layer.Polygons {
		if err := b.appendPolygon(&block, p); err != nil {
			return block, &slmerr.ConversionFailed{LayerNumber: layer.Number, Cause: err}
		}
	}

	return block, nil
}

func (b *Builder) appendHatch(block *types.RtcCommandBlock, h types.Hatch) error {
	startIdx := len(block.Commands)
	for _, line := range h.Lines {
		if err := b.appendJumpMark(block, line.A, line.B); err != nil {
			return err
		}
	}
	b.closeSegment(block, startIdx, h.Tag.TypeID)
	return nil
}

func (b *Builder) appendPolyline(block *types.RtcCommandBlock, p types.Polyline) error {
	startIdx := len(block.Commands)
	if len(p.Points) == 0 {
		b.closeSegment(block, startIdx, p.Tag.TypeID)
		return nil
	}
	if err := b.appendJump(block, p.Points[0]); err != nil {
		return err
	}
	for i := 1; i < len(p.Points); i++ {
		if err := b.appendMark(block, p.Points[i]); err != nil {
			return err
		}
	}
	b.closeSegment(block, startIdx, p.Tag.TypeID)
	return nil
}

func (b *Builder) appendPolygon(block *types.RtcCommandBlock, p types.Polygon) error {
	startIdx := len(block.Commands)
	if len(p.Points) == 0 {
		b.closeSegment(block, startIdx, p.Tag.TypeID)
		return nil
	}
	if err := b.appendJump(block, p.Points[0]); err != nil {
		return err
	}
	for i := 1; i < len(p.Points); i++ {
		if err := b.appendMark(block, p.Points[i]); err != nil {
			return err
		}
	}
	// Close the loop: mark back to the first vertex. The on-disk vertex
	// list does not include this repeat.
	if err := b.appendMark(block, p.Points[0]); err != nil {
		return err
	}
	b.closeSegment(block, startIdx, p.Tag.TypeID)
	return nil
}

func (b *Builder) appendJumpMark(block *types.RtcCommandBlock, a, c types.Point) error {
	if err := b.appendJump(block, a); err != nil {
		return err
	}
	return b.appendMark(block, c)
}

func (b *Builder) appendJump(block *types.RtcCommandBlock, p types.Point) error {
	x, y, err := b.convert(p)
	if err != nil {
		return err
	}
	block.Commands = append(block.Commands, types.Command{Kind: types.CommandJump, X: x, Y: y})
	return nil
}

func (b *Builder) appendMark(block *types.RtcCommandBlock, p types.Point) error {
	x, y, err := b.convert(p)
	if err != nil {
		return err
	}
	block.Commands = append(block.Commands, types.Command{Kind: types.CommandMark, X: x, Y: y})
	return nil
}

func (b *Builder) convert(p types.Point) (int32, int32, error) {
	if math.IsNaN(float64(p.X)) || math.IsNaN(float64(p.Y)) || math.IsInf(float64(p.X), 0) || math.IsInf(float64(p.Y), 0) {
		return 0, 0, fmt.Errorf("non-finite coordinate (%v, %v)", p.X, p.Y)
	}
	return b.calib.MMToBits(float64(p.X)), b.calib.MMToBits(float64(p.Y)), nil
}

// closeSegment appends a ParameterSegment for the geometry that spans
// [startIdx, len(block.Commands)-1], if a style resolved and the geometry
// emitted at least one command. An empty geometry emits no segment.
func (b *Builder) closeSegment(block *types.RtcCommandBlock, startIdx int, geometryTypeID uint32) {
	endIdx := len(block.Commands) - 1
	if startIdx == len(block.Commands) {
		return // empty geometry: no commands, no segment
	}
	style := b.resolveStyle(geometryTypeID)
	if style == nil {
		return
	}
	block.ParameterSegments = append(block.ParameterSegments, types.ParameterSegment{
		StartCmd:        startIdx,
		EndCmd:          endIdx,
		BuildStyleID:    style.ID,
		LaserPowerW:     style.LaserPowerW,
		MarkSpeedMMPerS: style.MarkSpeedMMPerS,
		JumpSpeedMMPerS: style.JumpSpeedMMPerS,
		LaserMode:       style.LaserMode,
		LaserFocusMM:    style.LaserFocusMM,
	})
}

// resolveStyle implements the fallback chain: the geometry's own type id,
// then the default fallback id, then no style at all.
func (b *Builder) resolveStyle(geometryTypeID uint32) *types.BuildStyle {
	if b.lib == nil {
		return nil
	}
	if s := b.lib.GetForGeometryType(geometryTypeID); s != nil {
		return s
	}
	return b.lib.GetByID(paramlib.DefaultFallbackID)
}
