package raster

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
)

// Window is a pixel window into a tile.
type Window struct {
	ColOff, RowOff int
	Width, Height  int
}

// TileSource is one opened raster file.
type TileSource struct {
	path string
	ds   *godal.Dataset
	meta Meta
}

// OpenTile opens path read-only. Any failure to open or interpret the file
// is reported as a *SourceReadError.
func OpenTile(path string) (*TileSource, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, &SourceReadError{Path: path, Err: err}
	}

	st := ds.Structure()
	if st.NBands == 0 {
		ds.Close()
		return nil, &SourceReadError{Path: path, Err: fmt.Errorf("dataset has no raster bands")}
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, &SourceReadError{Path: path, Err: fmt.Errorf("no geotransform: %v", err)}
	}
	if gt[2] != 0 || gt[4] != 0 {
		ds.Close()
		return nil, &SourceReadError{Path: path, Err: fmt.Errorf("rotated geotransforms are not supported: %v", gt)}
	}

	meta := Meta{
		Driver:    DefaultDriver,
		Height:    st.SizeY,
		Width:     st.SizeX,
		Count:     st.NBands,
		DataType:  st.DataType,
		Transform: gt,
		CRS:       ds.Projection(),
	}
	meta.NoData, meta.HasNoData = ds.Bands()[0].NoData()

	return &TileSource{path: path, ds: ds, meta: meta}, nil
}

func (ts *TileSource) Close() {
	if ts.ds != nil {
		ts.ds.Close()
		ts.ds = nil
	}
}

func (ts *TileSource) Path() string { return ts.path }

// CRS returns the WKT of the tile's native reference system.
func (ts *TileSource) CRS() string { return ts.meta.CRS }

func (ts *TileSource) Meta() Meta { return ts.meta }

// Region describes the full tile extent at native resolution.
func (ts *TileSource) Region() (*Region, error) {
	if ts.meta.CRS == "" {
		return nil, &SourceReadError{Path: ts.path, Err: fmt.Errorf("dataset has no spatial reference")}
	}
	left, bottom, right, top := gridBounds(ts.meta.Transform, ts.meta.Width, ts.meta.Height)
	return RegionFromBounds(left, bottom, right, top, ts.meta.CRS, ts.meta.Transform[1], ts.meta.Transform[5])
}

// ReadAll reads the whole tile without cropping or warping.
func (ts *TileSource) ReadAll() (*Grid, error) {
	return ts.readWindow(Window{Width: ts.meta.Width, Height: ts.meta.Height})
}

// Crop masks the tile with region and clips it to the smallest pixel window
// enclosing the region in the tile CRS. The native CRS is returned with the
// grid. A region that keeps no pixel centre is a *GeometryMismatchError,
// even when its bounding box overlaps the tile.
func (ts *TileSource) Crop(region *Region) (*Grid, string, error) {
	if ts.meta.CRS == "" {
		return nil, "", &SourceReadError{Path: ts.path, Err: fmt.Errorf("dataset has no spatial reference")}
	}
	native, err := region.Project(ts.meta.CRS)
	if err != nil {
		return nil, "", err
	}
	geom := native.geom
	b := geom.Bound()

	gt := ts.meta.Transform
	c0 := (b.Min[0] - gt[0]) / gt[1]
	c1 := (b.Max[0] - gt[0]) / gt[1]
	r0 := (b.Max[1] - gt[3]) / gt[5]
	r1 := (b.Min[1] - gt[3]) / gt[5]
	win := Window{
		ColOff: int(math.Floor(math.Min(c0, c1))),
		RowOff: int(math.Floor(math.Min(r0, r1))),
	}
	win.Width = int(math.Ceil(math.Max(c0, c1))) - win.ColOff
	win.Height = int(math.Ceil(math.Max(r0, r1))) - win.RowOff

	win, ok := ts.clip(win)
	if !ok {
		return nil, "", &GeometryMismatchError{Path: ts.path, Bounds: [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}}
	}

	grid, err := ts.readWindow(win)
	if err != nil {
		return nil, "", err
	}
	if maskGrid(grid, geom, grid.NoData) == 0 {
		return nil, "", &GeometryMismatchError{Path: ts.path, Bounds: [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}}
	}
	return grid, ts.meta.CRS, nil
}

// CropSimple reads a pixel window without geometric masking.
func (ts *TileSource) CropSimple(win Window) (*Grid, error) {
	clipped, ok := ts.clip(win)
	if !ok {
		left, bottom, right, top := gridBounds(ts.windowTransform(win), win.Width, win.Height)
		return nil, &GeometryMismatchError{Path: ts.path, Bounds: [4]float64{left, bottom, right, top}}
	}
	return ts.readWindow(clipped)
}

func (ts *TileSource) clip(win Window) (Window, bool) {
	c0 := max(win.ColOff, 0)
	r0 := max(win.RowOff, 0)
	c1 := min(win.ColOff+win.Width, ts.meta.Width)
	r1 := min(win.RowOff+win.Height, ts.meta.Height)
	if c1 <= c0 || r1 <= r0 {
		return Window{}, false
	}
	return Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}, true
}

func (ts *TileSource) windowTransform(win Window) [6]float64 {
	gt := ts.meta.Transform
	gt[0] += float64(win.ColOff) * gt[1]
	gt[3] += float64(win.RowOff) * gt[5]
	return gt
}

func (ts *TileSource) readWindow(win Window) (*Grid, error) {
	meta := ts.meta
	meta.Driver = DefaultDriver
	meta.Width = win.Width
	meta.Height = win.Height
	meta.Transform = ts.windowTransform(win)

	grid := NewGrid(meta)
	for i, band := range ts.ds.Bands() {
		err := band.Read(win.ColOff, win.RowOff, grid.Band(i), win.Width, win.Height)
		if err != nil {
			return nil, &SourceReadError{Path: ts.path, Err: fmt.Errorf("band %d: %v", i+1, err)}
		}
	}
	grid.Path = ts.path
	return grid, nil
}
