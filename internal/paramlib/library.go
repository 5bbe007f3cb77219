// Package paramlib loads the parameter library — the JSON document
// mapping geometry-type ids to BuildStyle records — once at startup and
// exposes it as a read-only lookup table. No lock is needed: the library
// never mutates after Load returns.
package paramlib

import (
	"encoding/json"
	"fmt"
	"os"

	"industrial-4.0-demo/internal/slmerr"
	"industrial-4.0-demo/internal/types"
)

// DefaultFallbackID is the style id the command block builder falls back
// to when a geometry's own type id has no matching style.
const DefaultFallbackID uint32 = 8

type buildStyleDoc struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	LaserID           int     `json:"laserId"`
	LaserMode         int     `json:"laserMode"`
	LaserPower        float64 `json:"laserPower"`
	LaserFocus        float64 `json:"laserFocus"`
	LaserSpeed        float64 `json:"laserSpeed"`
	HatchSpacing      float64 `json:"hatchSpacing"`
	LayerThickness    float64 `json:"layerThickness"`
	PointDistance     float64 `json:"pointDistance"`
	PointDelay        int     `json:"pointDelay"`
	PointExposureTime int     `json:"pointExposureTime"`
	JumpSpeed         float64 `json:"jumpSpeed"`
	JumpDelay         float64 `json:"jumpDelay"`
}

type libraryDoc struct {
	BuildStyles []buildStyleDoc `json:"buildStyles"`
}

// Library is an immutable, read-only map from geometry-type id and from
// build-style id to BuildStyle.
type Library struct {
	byGeometryType map[uint32]types.BuildStyle
	byID           map[uint32]types.BuildStyle
}

// Load reads and validates a parameter library JSON document.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &slmerr.ConfigInvalid{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	var doc libraryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &slmerr.ConfigInvalid{Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	lib := &Library{
		byGeometryType: make(map[uint32]types.BuildStyle, len(doc.BuildStyles)),
		byID:           make(map[uint32]types.BuildStyle, len(doc.BuildStyles)),
	}
	for _, d := range doc.BuildStyles {
		style := types.BuildStyle{
			ID:                uint32(d.ID),
			Name:              d.Name,
			Description:       d.Description,
			LaserID:           uint32(d.LaserID),
			LaserMode:         uint32(d.LaserMode),
			LaserPowerW:       d.LaserPower,
			LaserFocusMM:      d.LaserFocus,
			MarkSpeedMMPerS:   d.LaserSpeed,
			JumpSpeedMMPerS:   d.JumpSpeed,
			HatchSpacingMM:    d.HatchSpacing,
			LayerThicknessMM:  d.LayerThickness,
			PointDistanceMM:   d.PointDistance,
			PointDelay:        uint32(d.PointDelay),
			PointExposureTime: uint32(d.PointExposureTime),
			JumpDelayMS:       d.JumpDelay,
		}
		if !style.Valid() {
			return nil, &slmerr.ConfigInvalid{Reason: fmt.Sprintf("buildStyle id=%d fails validation (id>0, name, power>0, speed>0 required)", d.ID)}
		}
		// The geometry-type-id -> style mapping and the style-id -> style
		// mapping share the same numeric space in the source data: a
		// geometry tag's TypeID is looked up directly against style IDs.
		lib.byGeometryType[style.ID] = style
		lib.byID[style.ID] = style
	}
	return lib, nil
}

// GetForGeometryType returns the style registered for a geometry type id,
// or nil if none is registered.
func (l *Library) GetForGeometryType(id uint32) *types.BuildStyle {
	if s, ok := l.byGeometryType[id]; ok {
		return &s
	}
	return nil
}

// GetByID returns the style registered under a build-style id, or nil if
// none is registered.
func (l *Library) GetByID(id uint32) *types.BuildStyle {
	if s, ok := l.byID[id]; ok {
		return &s
	}
	return nil
}

// Count returns the number of styles loaded.
func (l *Library) Count() int { return len(l.byID) }
