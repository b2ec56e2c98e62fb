package raster

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
)

const DefaultResampling = "cubic"

// resamplingAlgs maps the accepted resampling names to gdalwarp -r values.
var resamplingAlgs = map[string]string{
	"nearest":      "near",
	"bilinear":     "bilinear",
	"cubic":        "cubic",
	"cubic_spline": "cubicspline",
	"lanczos":      "lanczos",
	"average":      "average",
	"mode":         "mode",
	"max":          "max",
	"min":          "min",
	"med":          "med",
	"q1":           "q1",
	"q3":           "q3",
	"sum":          "sum",
	"rms":          "rms",
}

// ResamplingMethods lists the accepted resampling names in sorted order.
func ResamplingMethods() []string {
	names := make([]string, 0, len(resamplingAlgs))
	for n := range resamplingAlgs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResamplingAlg validates name and returns the gdalwarp kernel for it. An
// empty name selects DefaultResampling.
func ResamplingAlg(name string) (string, error) {
	if name == "" {
		name = DefaultResampling
	}
	alg, ok := resamplingAlgs[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown resampling method %q, expected one of %s", name, strings.Join(ResamplingMethods(), ", "))
	}
	return alg, nil
}

// WarpGrid computes the output grid of a warp: the region bounds in crs,
// with pixel size taken from the region resolution in crs and the pixel count
// rounded down on each axis.
func WarpGrid(region *Region, crs string) (Meta, error) {
	left, bottom, right, top, err := region.BoundsIn(crs)
	if err != nil {
		return Meta{}, err
	}
	xRes, yRes, err := region.ResolutionIn(crs)
	if err != nil {
		return Meta{}, err
	}
	xRes, yRes = math.Abs(xRes), math.Abs(yRes)
	if xRes == 0 || yRes == 0 {
		return Meta{}, fmt.Errorf("region resolution must be non zero to warp, got %v x %v", xRes, yRes)
	}

	width := int(math.Floor((right - left) / xRes))
	height := int(math.Floor((top - bottom) / yRes))
	if width <= 0 || height <= 0 {
		return Meta{}, fmt.Errorf("region %s is smaller than one pixel of %v x %v", region, xRes, yRes)
	}

	return Meta{
		Driver:    DefaultDriver,
		Width:     width,
		Height:    height,
		Transform: FromOrigin(left, top, xRes, yRes),
		CRS:       crs,
	}, nil
}

// Warp resamples the tile onto the grid WarpGrid derives for region and crs.
// Destination pixels not covered by the source keep the tile nodata value,
// or zero when the tile has none.
func (ts *TileSource) Warp(region *Region, crs, resampling string) (*Grid, error) {
	alg, err := ResamplingAlg(resampling)
	if err != nil {
		return nil, err
	}
	meta, err := WarpGrid(region, crs)
	if err != nil {
		return nil, err
	}
	meta.Count = ts.meta.Count
	meta.DataType = ts.meta.DataType
	meta.NoData = ts.meta.NoData
	meta.HasNoData = ts.meta.HasNoData

	dst := NewGrid(meta)
	mem, err := dst.Dataset(godal.Memory, "")
	if err != nil {
		return nil, err
	}
	defer mem.Close()

	switches := []string{"-r", alg}
	if meta.HasNoData {
		nd := fmt.Sprintf("%v", meta.NoData)
		switches = append(switches, "-srcnodata", nd, "-dstnodata", nd)
	}
	if err = mem.WarpInto([]*godal.Dataset{ts.ds}, switches); err != nil {
		return nil, &SourceReadError{Path: ts.path, Err: fmt.Errorf("warp failed: %v", err)}
	}

	for i, band := range mem.Bands() {
		if err = band.Read(0, 0, dst.Band(i), dst.Width, dst.Height); err != nil {
			return nil, fmt.Errorf("failed to read warped band %d: %v", i+1, err)
		}
	}
	dst.Path = ts.path
	return dst, nil
}
