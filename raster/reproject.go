package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// Reproject resamples every band of src onto the grid described by dst and
// writes the result as a GeoTIFF at path. dst supplies the CRS, transform,
// size, data type and nodata of the output; pixels src does not cover keep
// the dst nodata value.
func Reproject(src *Grid, dst Meta, path, resampling string) error {
	alg, err := ResamplingAlg(resampling)
	if err != nil {
		return err
	}
	if src.CRS == "" || dst.CRS == "" {
		return fmt.Errorf("reprojection needs a CRS on both grids")
	}

	if err = ensureDir(path); err != nil {
		return err
	}

	srcDS, err := src.Dataset(godal.Memory, "")
	if err != nil {
		return err
	}
	defer srcDS.Close()

	dstDS, err := NewGrid(dst).Dataset(godal.GTiff, path, "COMPRESS=DEFLATE", "TILED=YES")
	if err != nil {
		return err
	}

	switches := []string{"-r", alg}
	if src.HasNoData {
		switches = append(switches, "-srcnodata", fmt.Sprintf("%v", src.NoData))
	}
	if dst.HasNoData {
		switches = append(switches, "-dstnodata", fmt.Sprintf("%v", dst.NoData))
	}
	if err = dstDS.WarpInto([]*godal.Dataset{srcDS}, switches); err != nil {
		dstDS.Close()
		return fmt.Errorf("failed to reproject onto %s: %v", path, err)
	}
	if err = dstDS.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %v", path, err)
	}
	return nil
}
