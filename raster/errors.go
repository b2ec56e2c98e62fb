package raster

import "fmt"

// SourceReadError is returned when a tile is missing, corrupt or unreadable.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// GeometryMismatchError is returned when a requested region does not
// intersect the tile extent.
type GeometryMismatchError struct {
	Path   string
	Bounds [4]float64
}

func (e *GeometryMismatchError) Error() string {
	return fmt.Sprintf("region %v does not overlap raster %s", e.Bounds, e.Path)
}
