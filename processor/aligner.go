package processor

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/nci/rscube/raster"
)

// DefaultAlignNoData fills pixels of an aligned grid that the source does
// not cover.
const DefaultAlignNoData = -1

// Align resamples other onto the pixel grid of reference with nearest
// neighbour, writes the result to outputPath and reads it back. The returned
// grid carries reference's CRS, transform and coordinate vectors exactly, so
// the two can be compared pixel for pixel.
//
// Pixels other does not cover hold nodata. When nodata does not fit other's
// data type, e.g. -1 for a Byte raster, the output is written with the
// smallest wider type that holds both.
func Align(reference, other *raster.Grid, outputPath string, nodata float64) (*raster.Grid, error) {
	if outputPath == "" {
		return nil, fmt.Errorf("align requires an output path")
	}
	if err := reference.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reference grid: %v", err)
	}

	meta := raster.Meta{
		Driver:    raster.DefaultDriver,
		Height:    reference.Height,
		Width:     reference.Width,
		Count:     other.Count,
		DataType:  alignDataType(other.DataType, nodata),
		Transform: reference.Transform,
		CRS:       reference.CRS,
		NoData:    nodata,
		HasNoData: true,
	}
	if err := raster.Reproject(other, meta, outputPath, "nearest"); err != nil {
		return nil, err
	}

	aligned, err := raster.ReadGrid(outputPath)
	if err != nil {
		return nil, err
	}
	aligned.CRS = reference.CRS
	aligned.Transform = reference.Transform
	aligned.X = append([]float64(nil), reference.X...)
	aligned.Y = append([]float64(nil), reference.Y...)
	aligned.Path = outputPath
	return aligned, nil
}

var widerTypes = map[godal.DataType][]godal.DataType{
	godal.Byte:    {godal.Int16, godal.Int32, godal.Float64},
	godal.UInt16:  {godal.Int32, godal.Float64},
	godal.Int16:   {godal.Int32, godal.Float64},
	godal.UInt32:  {godal.Float64},
	godal.Int32:   {godal.Float64},
	godal.Float32: {godal.Float64},
}

// alignDataType keeps dt when nodata fits it, else promotes it.
func alignDataType(dt godal.DataType, nodata float64) godal.DataType {
	if dt == godal.Unknown {
		return godal.Float64
	}
	if raster.Representable(dt, nodata) {
		return dt
	}
	for _, wider := range widerTypes[dt] {
		if raster.Representable(wider, nodata) {
			return wider
		}
	}
	return godal.Float64
}
