package raster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func geometryContains(geom orb.Geometry, p orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}

// maskGrid sets every pixel whose centre falls outside geom to fill. The
// geometry must be in the grid CRS. It returns the number of pixels kept.
func maskGrid(g *Grid, geom orb.Geometry, fill float64) int {
	size := g.Height * g.Width
	kept := 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if geometryContains(geom, orb.Point{g.X[col], g.Y[row]}) {
				kept++
				continue
			}
			for b := 0; b < g.Count; b++ {
				g.Data[b*size+row*g.Width+col] = fill
			}
		}
	}
	return kept
}
