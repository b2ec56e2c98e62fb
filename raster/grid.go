package raster

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
)

const DefaultDriver = "GTiff"

var GDALTypes = map[godal.DataType]string{godal.Unknown: "Unknown", godal.Byte: "Byte",
	godal.UInt16: "UInt16", godal.Int16: "Int16", godal.UInt32: "UInt32", godal.Int32: "Int32",
	godal.Float32: "Float32", godal.Float64: "Float64"}

// ParseDataType maps a GDAL type name such as "Int16" to its godal value.
// An empty name maps to godal.Unknown.
func ParseDataType(name string) (godal.DataType, error) {
	if name == "" {
		return godal.Unknown, nil
	}
	for dt, n := range GDALTypes {
		if n == name {
			return dt, nil
		}
	}
	return godal.Unknown, fmt.Errorf("unsupported data type: %s", name)
}

// Meta mirrors the metadata record that travels with a grid.
type Meta struct {
	Driver    string
	Height    int
	Width     int
	Count     int
	DataType  godal.DataType
	Transform [6]float64
	CRS       string
	NoData    float64
	HasNoData bool
}

// Grid is a band-sequential (band, row, col) sample buffer plus its
// georeferencing. X and Y hold the pixel-centre coordinates along each axis.
type Grid struct {
	Meta
	Data []float64
	X    []float64
	Y    []float64
	Path string
}

// NewGrid allocates a grid for meta, filled with the nodata value when one is
// set.
func NewGrid(meta Meta) *Grid {
	if meta.Driver == "" {
		meta.Driver = DefaultDriver
	}
	g := &Grid{Meta: meta, Data: make([]float64, meta.Count*meta.Height*meta.Width)}
	if meta.HasNoData && meta.NoData != 0 {
		for i := range g.Data {
			g.Data[i] = meta.NoData
		}
	}
	g.X, g.Y = Coords(meta.Transform, meta.Width, meta.Height)
	return g
}

// Coords returns pixel-centre coordinates for a north-up geotransform.
func Coords(gt [6]float64, width, height int) ([]float64, []float64) {
	xs := make([]float64, width)
	for i := range xs {
		xs[i] = gt[0] + (float64(i)+0.5)*gt[1]
	}
	ys := make([]float64, height)
	for j := range ys {
		ys[j] = gt[3] + (float64(j)+0.5)*gt[5]
	}
	return xs, ys
}

// BBox2Geot returns the geotransform of a width x height grid covering bbox
// (xMin, yMin, xMax, yMax).
func BBox2Geot(width, height int, bbox []float64) [6]float64 {
	return [6]float64{bbox[0], (bbox[2] - bbox[0]) / float64(width), 0, bbox[3], 0, (bbox[1] - bbox[3]) / float64(height)}
}

// FromOrigin mirrors rasterio's transform.from_origin.
func FromOrigin(west, north, xsize, ysize float64) [6]float64 {
	return [6]float64{west, xsize, 0, north, 0, -ysize}
}

func (g *Grid) Validate() error {
	if g.Height < 0 || g.Width < 0 || g.Count < 0 {
		return fmt.Errorf("invalid grid shape: %d bands, %dx%d", g.Count, g.Width, g.Height)
	}
	if len(g.Data) != g.Count*g.Height*g.Width {
		return fmt.Errorf("grid data has %d samples, metadata expects %d bands of %dx%d", len(g.Data), g.Count, g.Width, g.Height)
	}
	if len(g.X) != g.Width || len(g.Y) != g.Height {
		return fmt.Errorf("grid coordinates %dx%d do not match size %dx%d", len(g.X), len(g.Y), g.Width, g.Height)
	}
	return nil
}

// Band returns the samples of band b (0 based). The slice aliases g.Data.
func (g *Grid) Band(b int) []float64 {
	size := g.Height * g.Width
	return g.Data[b*size : (b+1)*size]
}

func (g *Grid) At(band, row, col int) float64 {
	return g.Data[(band*g.Height+row)*g.Width+col]
}

// Bounds returns (left, bottom, right, top) of the grid extent.
func (g *Grid) Bounds() (float64, float64, float64, float64) {
	return gridBounds(g.Transform, g.Width, g.Height)
}

func gridBounds(gt [6]float64, width, height int) (float64, float64, float64, float64) {
	x0 := gt[0]
	x1 := gt[0] + float64(width)*gt[1]
	y0 := gt[3]
	y1 := gt[3] + float64(height)*gt[5]
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

// SameShape reports whether two grids have the same band count and size.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Count == o.Count && g.Height == o.Height && g.Width == o.Width
}

// Cast converts every sample through the Go type matching dt. Out of range
// values are neither clamped nor rounded beyond what the conversion does.
func (g *Grid) Cast(dt godal.DataType) error {
	conv, err := caster(dt)
	if err != nil {
		return err
	}
	for i, v := range g.Data {
		g.Data[i] = conv(v)
	}
	if g.HasNoData {
		g.NoData = conv(g.NoData)
	}
	g.DataType = dt
	return nil
}

// Representable reports whether v survives a conversion to dt unchanged.
func Representable(dt godal.DataType, v float64) bool {
	conv, err := caster(dt)
	if err != nil {
		return false
	}
	return conv(v) == v
}

func caster(dt godal.DataType) (func(float64) float64, error) {
	switch dt {
	case godal.Byte:
		return func(v float64) float64 { return float64(uint8(int64(v))) }, nil
	case godal.UInt16:
		return func(v float64) float64 { return float64(uint16(int64(v))) }, nil
	case godal.Int16:
		return func(v float64) float64 { return float64(int16(int64(v))) }, nil
	case godal.UInt32:
		return func(v float64) float64 { return float64(uint32(int64(v))) }, nil
	case godal.Int32:
		return func(v float64) float64 { return float64(int32(int64(v))) }, nil
	case godal.Float32:
		return func(v float64) float64 { return float64(float32(v)) }, nil
	case godal.Float64:
		return func(v float64) float64 { return v }, nil
	default:
		return nil, fmt.Errorf("cannot cast to data type %v", GDALTypes[dt])
	}
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{Meta: g.Meta, Path: g.Path}
	out.Data = append([]float64(nil), g.Data...)
	out.X = append([]float64(nil), g.X...)
	out.Y = append([]float64(nil), g.Y...)
	return out
}
