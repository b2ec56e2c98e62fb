package processor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/nci/rscube/raster"
)

// ProvenanceDateFormat keys TimeCube.Paths. Tiles acquired on the same
// calendar day share a key and the later slice wins.
const ProvenanceDateFormat = "2006-01-02"

// TimeCube stacks same shaped grids along a time axis sorted ascending.
type TimeCube struct {
	raster.Meta
	X, Y   []float64
	Times  []time.Time
	Slices []*raster.Grid

	// Paths maps the calendar day of each slice to the file it came from.
	Paths    map[string]string
	Failures []*TileResult
}

type provenanceRow struct {
	Date string `csv:"date"`
	Path string `csv:"path"`
}

// NewTimeCube stacks the successful results. Failed results are kept in
// Failures; when nothing succeeded the failures are returned as a
// *BatchError. Every slice must have the shape of the first one.
func NewTimeCube(results []*TileResult) (*TimeCube, error) {
	cube := &TimeCube{Paths: make(map[string]string)}
	var ok []*TileResult
	for _, r := range results {
		if r.Err != nil {
			cube.Failures = append(cube.Failures, r)
			continue
		}
		ok = append(ok, r)
	}
	if len(ok) == 0 {
		if len(cube.Failures) == 0 {
			return nil, fmt.Errorf("no slices to stack")
		}
		return nil, &BatchError{Failures: cube.Failures}
	}

	first := ok[0].Grid
	for _, r := range ok[1:] {
		if !r.Grid.SameShape(first) {
			return nil, fmt.Errorf("slice %s is %dx%dx%d, expected %dx%dx%d", r.Path,
				r.Grid.Count, r.Grid.Height, r.Grid.Width, first.Count, first.Height, first.Width)
		}
	}

	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Time.Before(ok[j].Time) })

	cube.Meta = first.Meta
	cube.X = append([]float64(nil), first.X...)
	cube.Y = append([]float64(nil), first.Y...)
	for _, r := range ok {
		cube.Times = append(cube.Times, r.Time)
		cube.Slices = append(cube.Slices, r.Grid)
		cube.Paths[r.Time.UTC().Format(ProvenanceDateFormat)] = r.Path
	}
	return cube, nil
}

func (c *TimeCube) Len() int { return len(c.Slices) }

func (c *TimeCube) Slice(i int) *raster.Grid { return c.Slices[i] }

func (c *TimeCube) At(t, band, row, col int) float64 {
	return c.Slices[t].At(band, row, col)
}

// WriteProvenanceCSV writes the date to path map ordered by date.
func (c *TimeCube) WriteProvenanceCSV(w io.Writer) error {
	dates := make([]string, 0, len(c.Paths))
	for d := range c.Paths {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	rows := make([]*provenanceRow, len(dates))
	for i, d := range dates {
		rows[i] = &provenanceRow{Date: d, Path: c.Paths[d]}
	}
	return gocsv.Marshal(rows, w)
}

// WriteSlices writes each slice as <dir>/<prefix>_<idx>_<date>.tif and
// returns the written paths.
func (c *TimeCube) WriteSlices(dir, prefix string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}
	var written []string
	for i, g := range c.Slices {
		name := fmt.Sprintf("%s_%03d_%s.tif", prefix, i, c.Times[i].UTC().Format("20060102T150405"))
		path := filepath.Join(dir, name)
		if err := raster.WriteGrid(g, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
