package raster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// Dataset materialises the grid as a GDAL dataset with the given driver.
// The caller must Close it.
func (g *Grid) Dataset(driver godal.DriverName, name string, opts ...string) (*godal.Dataset, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	dt := g.DataType
	if dt == godal.Unknown {
		dt = godal.Float64
	}

	var createOpts []godal.DatasetCreateOption
	if len(opts) > 0 {
		createOpts = append(createOpts, godal.CreationOption(opts...))
	}
	ds, err := godal.Create(driver, name, g.Count, dt, g.Width, g.Height, createOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s dataset %q: %v", driver, name, err)
	}

	if err = g.fillDataset(ds); err != nil {
		ds.Close()
		return nil, err
	}
	return ds, nil
}

func (g *Grid) fillDataset(ds *godal.Dataset) error {
	if err := ds.SetGeoTransform(g.Transform); err != nil {
		return fmt.Errorf("failed to set geotransform: %v", err)
	}
	if g.CRS != "" {
		sr, err := NewSpatialRef(g.CRS)
		if err != nil {
			return err
		}
		defer sr.Close()
		if err = ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("failed to set spatial reference: %v", err)
		}
	}

	for i, band := range ds.Bands() {
		if g.HasNoData {
			if err := band.SetNoData(g.NoData); err != nil {
				return fmt.Errorf("failed to set nodata on band %d: %v", i+1, err)
			}
		}
		if err := band.Write(0, 0, g.Band(i), g.Width, g.Height); err != nil {
			return fmt.Errorf("failed to write band %d: %v", i+1, err)
		}
	}
	return nil
}

// WriteGrid writes the grid to path as a deflate compressed GeoTIFF.
func WriteGrid(g *Grid, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	ds, err := g.Dataset(godal.GTiff, path, "COMPRESS=DEFLATE", "TILED=YES")
	if err != nil {
		return err
	}
	if err = ds.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %v", path, err)
	}
	return nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	return nil
}

// ReadGrid reads a whole raster file into a grid.
func ReadGrid(path string) (*Grid, error) {
	ts, err := OpenTile(path)
	if err != nil {
		return nil, err
	}
	defer ts.Close()
	return ts.ReadAll()
}
