package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// NewSpatialRef builds a spatial reference from any GDAL user input string
// (EPSG:n, WKT, PROJ). The caller owns the returned reference.
func NewSpatialRef(crs string) (*godal.SpatialRef, error) {
	if crs == "" {
		return nil, fmt.Errorf("empty CRS")
	}
	sr, err := godal.NewSpatialRef(crs)
	if err != nil {
		return nil, fmt.Errorf("invalid CRS %q: %v", crs, err)
	}
	return sr, nil
}

// CRSToWKT normalises a CRS identifier to WKT.
func CRSToWKT(crs string) (string, error) {
	sr, err := NewSpatialRef(crs)
	if err != nil {
		return "", err
	}
	defer sr.Close()
	return sr.WKT()
}

// SameCRS reports whether two CRS identifiers describe the same reference
// system. Textual equality short-circuits the GDAL comparison.
func SameCRS(a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	srA, err := NewSpatialRef(a)
	if err != nil {
		return false, err
	}
	defer srA.Close()
	srB, err := NewSpatialRef(b)
	if err != nil {
		return false, err
	}
	defer srB.Close()
	return srA.IsSame(srB), nil
}

// transformPoints reprojects xs/ys in place from src to dst.
func transformPoints(src, dst string, xs, ys []float64) error {
	same, err := SameCRS(src, dst)
	if err != nil {
		return err
	}
	if same {
		return nil
	}

	srcSR, err := NewSpatialRef(src)
	if err != nil {
		return err
	}
	defer srcSR.Close()
	dstSR, err := NewSpatialRef(dst)
	if err != nil {
		return err
	}
	defer dstSR.Close()

	trn, err := godal.NewTransform(srcSR, dstSR)
	if err != nil {
		return fmt.Errorf("failed to create coordinate transformation: %v", err)
	}
	defer trn.Close()

	ok := make([]bool, len(xs))
	if err = trn.TransformEx(xs, ys, nil, ok); err != nil {
		return fmt.Errorf("coordinate transformation failed: %v", err)
	}
	for i, success := range ok {
		if !success {
			return fmt.Errorf("coordinate transformation failed for point (%f, %f)", xs[i], ys[i])
		}
	}
	return nil
}
