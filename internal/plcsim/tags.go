package plcsim

import (
	"fmt"

	"industrial-4.0-demo/internal/types"
)

// tag identifiers, duplicated from internal/plc rather than imported, to
// keep the simulator's tag space self-contained: a real PLC program has
// no Go-side dependency on this repo's client code either.
const (
	tagStartUp              = "CECC.MaTe_DLMS.StartUpSequence.StartUp"
	tagStartUpDone          = "CECC.MaTe_DLMS.StartUpSequence.StartUp_Done"
	tagZStacks              = "CECC.MaTe_DLMS.MakeSurface.Z_Stacks"
	tagDeltaSource          = "CECC.MaTe_DLMS.MakeSurface.Delta_Source"
	tagDeltaSink            = "CECC.MaTe_DLMS.MakeSurface.Delta_Sink"
	tagMakeSurfaceDone      = "CECC.MaTe_DLMS.MakeSurface.MakeSurface_Done"
	tagMarcerSourcePosition = "CECC.MaTe_DLMS.MakeSurface.Marcer_Source_Cylinder_ActualPosition"
	tagMarcerSinkPosition   = "CECC.MaTe_DLMS.MakeSurface.Marcer_Sink_Cylinder_ActualPosition"
	tagStartSurfaces        = "CECC.MaTe_DLMS.GVL.StartSurfaces"
	tagGMarcerSourcePos     = "CECC.MaTe_DLMS.GVL.g_Marcer_Source_Cylinder_ActualPosition"
	tagGMarcerSinkPos       = "CECC.MaTe_DLMS.GVL.g_Marcer_Sink_Cylinder_ActualPosition"
	tagLaySurface           = "CECC.MaTe_DLMS.Prepare2Process.LaySurface"
	tagLaySurfaceDone       = "CECC.MaTe_DLMS.Prepare2Process.LaySurface_Done"
	tagStepSource           = "CECC.MaTe_DLMS.Prepare2Process.Step_Source"
	tagStepSink             = "CECC.MaTe_DLMS.Prepare2Process.Step_Sink"
	tagLayStacks            = "CECC.MaTe_DLMS.Prepare2Process.Lay_Stacks"
)

// ErrUnknownTag is returned by ReadInt32/ReadBool/WriteInt32/WriteBool for
// any identifier outside the fixed sixteen-tag namespace.
var ErrUnknownTag = fmt.Errorf("unknown tag")

// ErrWrongKind is returned when a tag is read or written as the wrong
// scalar type (e.g. ReadInt32 against a Bool tag).
var ErrWrongKind = fmt.Errorf("tag kind mismatch")

func (s *Simulator) ReadBool(tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tag {
	case tagStartUpDone:
		return s.startUpDone, nil
	case tagMakeSurfaceDone:
		return s.makeSurfaceDone, nil
	case tagLaySurfaceDone:
		return s.laySurfaceDone, nil
	case tagStartUp:
		return s.startUp, nil
	case tagStartSurfaces:
		return s.startSurfaces, nil
	case tagLaySurface:
		return s.laySurface, nil
	default:
		if isInt32Tag(tag) {
			return false, ErrWrongKind
		}
		return false, ErrUnknownTag
	}
}

func (s *Simulator) WriteBool(tag string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tag {
	case tagStartUp:
		s.startUp = v
	case tagStartSurfaces:
		s.startSurfaces = v
	case tagLaySurface:
		s.laySurface = v
	default:
		if isInt32Tag(tag) || isReadOnlyBoolTag(tag) {
			return ErrWrongKind
		}
		return ErrUnknownTag
	}
	return nil
}

func (s *Simulator) ReadInt32(tag string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tag {
	case tagMarcerSourcePosition:
		return s.marcerSourcePosition, nil
	case tagMarcerSinkPosition:
		return s.marcerSinkPosition, nil
	case tagGMarcerSourcePos:
		return s.gMarcerSourcePosition, nil
	case tagGMarcerSinkPos:
		return s.gMarcerSinkPosition, nil
	case tagZStacks:
		return s.zStacks, nil
	case tagDeltaSource:
		return s.deltaSource, nil
	case tagDeltaSink:
		return s.deltaSink, nil
	case tagStepSource:
		return s.stepSource, nil
	case tagStepSink:
		return s.stepSink, nil
	case tagLayStacks:
		return s.layStacks, nil
	default:
		if isBoolTag(tag) {
			return 0, ErrWrongKind
		}
		return 0, ErrUnknownTag
	}
}

func (s *Simulator) WriteInt32(tag string, v int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tag {
	case tagZStacks:
		s.zStacks = v
	case tagDeltaSource:
		s.deltaSource = v
	case tagDeltaSink:
		s.deltaSink = v
	case tagStepSource:
		s.stepSource = v
	case tagStepSink:
		s.stepSink = v
	case tagLayStacks:
		s.layStacks = v
	case tagMarcerSourcePosition, tagMarcerSinkPosition:
		return ErrWrongKind // RW in principle, but the simulator owns these; no external writer needs to set them directly
	default:
		if isBoolTag(tag) {
			return ErrWrongKind
		}
		return ErrUnknownTag
	}
	return nil
}

// Snapshot returns a consistent read of every tag ReadSnapshot exposes.
func (s *Simulator) Snapshot() types.OpcSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.OpcSnapshot{
		StartupDone:                  s.startUpDone,
		ReadyToPowder:                s.makeSurfaceDone,
		PowderSurfaceDone:            s.laySurfaceDone,
		SourceCylinderActualPosition: s.marcerSourcePosition,
		SinkCylinderActualPosition:   s.marcerSinkPosition,
		GlobalSourceCylinderPosition: s.gMarcerSourcePosition,
		GlobalSinkCylinderPosition:   s.gMarcerSinkPosition,
	}
}

func isInt32Tag(tag string) bool {
	switch tag {
	case tagZStacks, tagDeltaSource, tagDeltaSink, tagMarcerSourcePosition,
		tagMarcerSinkPosition, tagGMarcerSourcePos, tagGMarcerSinkPos,
		tagStepSource, tagStepSink, tagLayStacks:
		return true
	}
	return false
}

func isBoolTag(tag string) bool {
	switch tag {
	case tagStartUp, tagStartUpDone, tagMakeSurfaceDone, tagStartSurfaces,
		tagLaySurface, tagLaySurfaceDone:
		return true
	}
	return false
}

func isReadOnlyBoolTag(tag string) bool {
	switch tag {
	case tagStartUpDone, tagMakeSurfaceDone, tagLaySurfaceDone:
		return true
	}
	return false
}
