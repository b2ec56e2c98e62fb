package processor

import (
	"time"

	"github.com/nci/rscube/metrics"
	"github.com/nci/rscube/raster"
)

// ReadOptions configures one read. Zero values select the defaults: cubic
// resampling, one worker, the tile's own CRS and ./out for staging.
type ReadOptions struct {
	Region       *raster.Region
	Window       *raster.Window
	TargetCRS    string
	AlignToFirst bool
	ForceWarp    bool
	CastType     string
	Resampling   string

	Concurrency       int
	KeepIntermediates bool
	OutDir            string
	Mute              bool

	Metrics *metrics.MetricsCollector
}

// TileResult is the outcome of reading one path. Exactly one of Grid and
// Err is set.
type TileResult struct {
	Path      string
	Time      time.Time
	Grid      *raster.Grid
	Region    *raster.Region
	Artifacts []string
	Warped    bool
	Err       error
}

func (o *ReadOptions) outDir() string {
	if o.OutDir == "" {
		return raster.DefaultOutDir
	}
	return o.OutDir
}
