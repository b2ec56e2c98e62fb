package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Number of points per edge used when projecting bounds, matching the
// densification GDAL and rasterio apply in transform_bounds.
const densifyPoints = 21

// Region is an immutable region of interest: a polygonal geometry, the CRS
// it is expressed in and the nominal pixel size wanted in that CRS.
type Region struct {
	geom orb.Geometry
	crs  string
	xRes float64
	yRes float64
}

// NewRegion accepts orb.Polygon, orb.MultiPolygon, orb.Ring and orb.Bound
// geometries. The geometry is copied.
func NewRegion(geom orb.Geometry, crs string, xRes, yRes float64) (*Region, error) {
	switch g := geom.(type) {
	case orb.Bound:
		geom = g.ToPolygon()
	case orb.Ring:
		geom = orb.Polygon{g}
	case orb.Polygon, orb.MultiPolygon:
	case nil:
		return nil, fmt.Errorf("region geometry is nil")
	default:
		return nil, fmt.Errorf("unsupported region geometry: %s", geom.GeoJSONType())
	}
	if crs == "" {
		return nil, fmt.Errorf("region CRS is empty")
	}
	if geom.Bound().IsEmpty() {
		return nil, fmt.Errorf("region geometry has an empty extent")
	}
	return &Region{geom: orb.Clone(geom), crs: crs, xRes: math.Abs(xRes), yRes: math.Abs(yRes)}, nil
}

// RegionFromBounds builds a rectangular region from left, bottom, right, top.
func RegionFromBounds(left, bottom, right, top float64, crs string, xRes, yRes float64) (*Region, error) {
	return NewRegion(orb.Bound{Min: orb.Point{left, bottom}, Max: orb.Point{right, top}}, crs, xRes, yRes)
}

func RegionFromWKT(geomWKT, crs string, xRes, yRes float64) (*Region, error) {
	geom, err := wkt.Unmarshal(geomWKT)
	if err != nil {
		return nil, fmt.Errorf("failed to parse region WKT: %v", err)
	}
	return NewRegion(geom, crs, xRes, yRes)
}

// RegionFromGeoJSON parses a GeoJSON geometry, or the first feature of a
// feature collection.
func RegionFromGeoJSON(data []byte, crs string, xRes, yRes float64) (*Region, error) {
	if g, err := geojson.UnmarshalGeometry(data); err == nil && g.Coordinates != nil {
		return NewRegion(g.Geometry(), crs, xRes, yRes)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse region GeoJSON: %v", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("region GeoJSON has no features")
	}
	return NewRegion(fc.Features[0].Geometry, crs, xRes, yRes)
}

// RegionFromTile describes the whole extent of a tile in its own CRS, at its
// native resolution.
func RegionFromTile(path string) (*Region, error) {
	ts, err := OpenTile(path)
	if err != nil {
		return nil, err
	}
	defer ts.Close()
	return ts.Region()
}

func (r *Region) CRS() string { return r.crs }

// Geometry returns a copy of the region geometry.
func (r *Region) Geometry() orb.Geometry { return orb.Clone(r.geom) }

func (r *Region) Resolution() (float64, float64) { return r.xRes, r.yRes }

// WithResolution returns a copy of the region with another pixel size.
func (r *Region) WithResolution(xRes, yRes float64) *Region {
	return &Region{geom: orb.Clone(r.geom), crs: r.crs, xRes: math.Abs(xRes), yRes: math.Abs(yRes)}
}

func (r *Region) WKT() string { return wkt.MarshalString(r.geom) }

func (r *Region) String() string {
	return fmt.Sprintf("%s [%s]", r.WKT(), r.crs)
}

// Project returns the region expressed in crs. Vertices are transformed as
// they are, without densification; the resolution follows ResolutionIn.
func (r *Region) Project(crs string) (*Region, error) {
	same, err := SameCRS(r.crs, crs)
	if err != nil {
		return nil, err
	}
	if same {
		return &Region{geom: orb.Clone(r.geom), crs: crs, xRes: r.xRes, yRes: r.yRes}, nil
	}

	geom := orb.Clone(r.geom)
	var xs, ys []float64
	visitPoints(geom, func(p *orb.Point) {
		xs = append(xs, p[0])
		ys = append(ys, p[1])
	})
	if err = transformPoints(r.crs, crs, xs, ys); err != nil {
		return nil, err
	}
	i := 0
	visitPoints(geom, func(p *orb.Point) {
		p[0], p[1] = xs[i], ys[i]
		i++
	})

	xRes, yRes, err := r.ResolutionIn(crs)
	if err != nil {
		return nil, err
	}
	return &Region{geom: geom, crs: crs, xRes: xRes, yRes: yRes}, nil
}

// BoundsIn returns (left, bottom, right, top) of the region in crs.
func (r *Region) BoundsIn(crs string) (float64, float64, float64, float64, error) {
	b := r.geom.Bound()
	same, err := SameCRS(r.crs, crs)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if same {
		return b.Min[0], b.Min[1], b.Max[0], b.Max[1], nil
	}

	xs, ys := densifyBound(b, densifyPoints)
	if err = transformPoints(r.crs, crs, xs, ys); err != nil {
		return 0, 0, 0, 0, err
	}
	left, bottom := math.Inf(1), math.Inf(1)
	right, top := math.Inf(-1), math.Inf(-1)
	for i := range xs {
		left = math.Min(left, xs[i])
		right = math.Max(right, xs[i])
		bottom = math.Min(bottom, ys[i])
		top = math.Max(top, ys[i])
	}
	return left, bottom, right, top, nil
}

// ResolutionIn scales the nominal resolution by the ratio between the
// projected and native spans on each axis.
func (r *Region) ResolutionIn(crs string) (float64, float64, error) {
	same, err := SameCRS(r.crs, crs)
	if err != nil {
		return 0, 0, err
	}
	if same {
		return r.xRes, r.yRes, nil
	}
	b := r.geom.Bound()
	left, bottom, right, top, err := r.BoundsIn(crs)
	if err != nil {
		return 0, 0, err
	}
	xRes := r.xRes * (right - left) / (b.Max[0] - b.Min[0])
	yRes := r.yRes * (top - bottom) / (b.Max[1] - b.Min[1])
	return xRes, yRes, nil
}

// Contains reports whether the point lies inside the region geometry.
func (r *Region) Contains(p orb.Point) bool {
	return geometryContains(r.geom, p)
}

func densifyBound(b orb.Bound, n int) ([]float64, []float64) {
	corners := []orb.Point{b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]}}
	xs := make([]float64, 0, 4*n)
	ys := make([]float64, 0, 4*n)
	for c := 0; c < 4; c++ {
		p0, p1 := corners[c], corners[(c+1)%4]
		for i := 0; i < n; i++ {
			t := float64(i) / float64(n)
			xs = append(xs, p0[0]+t*(p1[0]-p0[0]))
			ys = append(ys, p0[1]+t*(p1[1]-p0[1]))
		}
	}
	return xs, ys
}

func visitPoints(geom orb.Geometry, fn func(p *orb.Point)) {
	switch g := geom.(type) {
	case orb.Polygon:
		for _, ring := range g {
			for i := range ring {
				fn(&ring[i])
			}
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			visitPoints(poly, fn)
		}
	}
}
