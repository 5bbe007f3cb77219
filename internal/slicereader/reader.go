// Package slicereader decodes a MARC binary slice file one layer at a
// time. It mirrors the source's StreamingMarcReader: the header is read
// eagerly, layers are decoded strictly sequentially, and the file is
// never seeked.
package slicereader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"industrial-4.0-demo/internal/slmerr"
	"industrial-4.0-demo/internal/types"
)

const (
	headerSize  = 148
	magicString = "MARC"
)

// Header is the 148-byte MARC file header.
type Header struct {
	Version          uint32
	TotalLayers      uint32
	IndexTableOffset uint64
	Timestamp        uint64
	PrinterID        [32]byte
}

// Reader streams layers out of one open MARC file. It is not safe for
// concurrent use — spec.md assigns it to a single producer goroutine.
type Reader struct {
	f      *os.File
	r      *bufio.Reader
	header Header
	read   uint32
}

// Open validates the header and returns a Reader positioned at the first
// layer.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slice file: %w", err)
	}
	rd := &Reader{f: f, r: bufio.NewReaderSize(f, 64*1024)}
	if err := rd.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return rd, nil
}

func (r *Reader) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return fmt.Errorf("read header: %w", slmerr.ErrUnexpectedEOF)
		}
		return fmt.Errorf("read header: %w", err)
	}
	if string(buf[0:4]) != magicString {
		return fmt.Errorf("bad magic %q: %w", buf[0:4], slmerr.ErrInvalidFormat)
	}
	r.header.Version = binary.LittleEndian.Uint32(buf[4:8])
	r.header.TotalLayers = binary.LittleEndian.Uint32(buf[8:12])
	r.header.IndexTableOffset = binary.LittleEndian.Uint64(buf[12:20])
	r.header.Timestamp = binary.LittleEndian.Uint64(buf[20:28])
	copy(r.header.PrinterID[:], buf[28:60])
	return nil
}

// TotalLayers returns the header's declared layer count.
func (r *Reader) TotalLayers() uint32 { return r.header.TotalLayers }

// HasNext reports whether at least one more layer remains per the header's
// declared count.
func (r *Reader) HasNext() bool { return r.read < r.header.TotalLayers }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// ReadNext decodes and returns the next layer. It fails with
// slmerr.LayerCorrupt wrapping the underlying cause on any per-layer
// decode error, and with slmerr.ErrUnexpectedEOF on truncation.
func (r *Reader) ReadNext() (types.Layer, error) {
	var layer types.Layer
	if !r.HasNext() {
		return layer, fmt.Errorf("read layer %d: no more layers declared in header", r.read)
	}
	index := r.read
	L, err := r.readLayer()
	if err != nil {
		return layer, &slmerr.LayerCorrupt{LayerIndex: index, Cause: err}
	}
	r.read++
	return L, nil
}

func (r *Reader) readLayer() (types.Layer, error) {
	var L types.Layer
	var err error

	if L.Number, err = r.readU32(); err != nil {
		return L, err
	}
	if L.HeightMM, err = r.readF32(); err != nil {
		return L, err
	}
	L.ThicknessMM = 0 // not serialized

	hatchCount, err := r.readU32()
	if err != nil {
		return L, err
	}
	L.Hatches = make([]types.Hatch, 0, hatchCount)
	for i := uint32(0); i < hatchCount; i++ {
		h, err := r.readHatch()
		if err != nil {
			return L, err
		}
		L.Hatches = append(L.Hatches, h)
	}

	polylineCount, err := r.readU32()
	if err != nil {
		return L, err
	}
	L.Polylines = make([]types.Polyline, 0, polylineCount)
	for i := uint32(0); i < polylineCount; i++ {
		p, err := r.readPolyline()
		if err != nil {
			return L, err
		}
		L.Polylines = append(L.Polylines, p)
	}

	polygonCount, err := r.readU32()
	if err != nil {
		return L, err
	}
	L.Polygons = make([]types.Polygon, 0, polygonCount)
	for i := uint32(0); i < polygonCount; i++ {
		p, err := r.readPolygon()
		if err != nil {
			return L, err
		}
		L.Polygons = append(L.Polygons, p)
	}

	// No circles are serialized in current files.
	L.SupportCircles = nil

	return L, nil
}

func (r *Reader) readGeometryTag() (types.GeometryTag, error) {
	var tag types.GeometryTag
	var err error
	if tag.TypeID, err = r.readU32(); err != nil {
		return tag, err
	}
	if tag.Category, err = r.readU32(); err != nil {
		return tag, err
	}
	if tag.PointCount, err = r.readU32(); err != nil {
		return tag, err
	}
	return tag, nil
}

func (r *Reader) readHatch() (types.Hatch, error) {
	var h types.Hatch
	tag, err := r.readGeometryTag()
	if err != nil {
		return h, err
	}
	h.Tag = tag
	lineCount := tag.PointCount / 2
	h.Lines = make([]types.Line, 0, lineCount)
	for i := uint32(0); i < lineCount; i++ {
		a, err := r.readPoint()
		if err != nil {
			return h, err
		}
		b, err := r.readPoint()
		if err != nil {
			return h, err
		}
		h.Lines = append(h.Lines, types.Line{A: a, B: b})
	}
	if tag.PointCount%2 == 1 {
		// Discard the trailing unpaired vertex.
		if _, err := r.readPoint(); err != nil {
			return h, err
		}
	}
	return h, nil
}

func (r *Reader) readPolyline() (types.Polyline, error) {
	var p types.Polyline
	tag, err := r.readGeometryTag()
	if err != nil {
		return p, err
	}
	p.Tag = tag
	p.Points = make([]types.Point, tag.PointCount)
	for i := range p.Points {
		if p.Points[i], err = r.readPoint(); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (r *Reader) readPolygon() (types.Polygon, error) {
	var p types.Polygon
	tag, err := r.readGeometryTag()
	if err != nil {
		return p, err
	}
	p.Tag = tag
	p.Points = make([]types.Point, tag.PointCount)
	for i := range p.Points {
		if p.Points[i], err = r.readPoint(); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (r *Reader) readPoint() (types.Point, error) {
	x, err := r.readF32()
	if err != nil {
		return types.Point{}, err
	}
	y, err := r.readF32()
	if err != nil {
		return types.Point{}, err
	}
	return types.Point{X: x, Y: y}, nil
}

func (r *Reader) readU32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", slmerr.ErrUnexpectedEOF, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (r *Reader) readF32() (float32, error) {
	v, err := r.readU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
