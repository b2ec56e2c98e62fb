package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/nci/rscube/raster"
	"github.com/schollz/progressbar/v3"
)

// RasterReader turns tile paths into in-memory grids: crop to a region,
// warp when the CRS differs from the target, then cast.
type RasterReader struct {
	Verbose bool
}

func NewRasterReader(verbose bool) *RasterReader {
	return &RasterReader{Verbose: verbose}
}

// Read reads every path with opts. The returned slice has one result per
// path, in input order; per path failures are stored in TileResult.Err and
// do not stop the batch. The error return is reserved for invalid options,
// a failure to derive the AlignToFirst region and cancellation of ctx.
func (r *RasterReader) Read(ctx context.Context, paths []string, opts ReadOptions) ([]*TileResult, error) {
	t0 := time.Now()
	if _, err := raster.ResamplingAlg(opts.Resampling); err != nil {
		return nil, err
	}
	castType, err := raster.ParseDataType(opts.CastType)
	if err != nil {
		return nil, err
	}
	if opts.Window != nil && (opts.Region != nil || opts.AlignToFirst) {
		return nil, fmt.Errorf("a pixel window cannot be combined with a region")
	}

	results := make([]*TileResult, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	if opts.Region == nil && opts.AlignToFirst && opts.Window == nil {
		opts.Region, err = raster.RegionFromTile(paths[0])
		if err != nil {
			return nil, fmt.Errorf("failed to derive region from %s: %v", paths[0], err)
		}
		if r.Verbose {
			log.Printf("aligning to %s: %v", paths[0], opts.Region)
		}
	}

	var bar *progressbar.ProgressBar
	if opts.Mute {
		bar = progressbar.DefaultSilent(int64(len(paths)), "Reading tiles")
	} else {
		bar = progressbar.Default(int64(len(paths)), "Reading tiles")
	}

	cLimiter := NewConcLimiter(opts.Concurrency)
	for i, path := range paths {
		if err = cLimiter.Acquire(ctx); err != nil {
			break
		}
		go func(i int, path string) {
			defer cLimiter.Decrease()
			res := r.readTile(ctx, path, castType, &opts)
			results[i] = res
			if opts.Metrics != nil {
				opts.Metrics.RecordTile(res.Warped, gridPixels(res.Grid), res.Err)
			}
			if res.Err != nil && r.Verbose {
				log.Printf("failed to read %s: %v", path, res.Err)
			}
			bar.Add(1)
		}(i, path)
	}
	cLimiter.Wait()
	bar.Finish()

	if !opts.KeepIntermediates {
		raster.RemoveStageRoot(opts.outDir())
	}
	if opts.Metrics != nil {
		opts.Metrics.Info.Reader.Duration = time.Since(t0)
	}

	if err = ctx.Err(); err != nil {
		for i, res := range results {
			if res == nil {
				results[i] = &TileResult{Path: paths[i], Err: err}
			}
		}
		return results, err
	}
	return results, nil
}

// ReadRaster reads a single path. A nil region reads the whole tile.
func ReadRaster(ctx context.Context, path string, region *raster.Region, opts ReadOptions) (*raster.Grid, *raster.Region, error) {
	opts.Region = region
	opts.Concurrency = 1
	opts.Mute = true
	results, err := NewRasterReader(false).Read(ctx, []string{path}, opts)
	if err != nil {
		return nil, nil, err
	}
	res := results[0]
	if res.Err != nil {
		return nil, nil, res.Err
	}
	return res.Grid, res.Region, nil
}

func (r *RasterReader) readTile(ctx context.Context, path string, castType godal.DataType, opts *ReadOptions) *TileResult {
	res := &TileResult{Path: path}
	if res.Err = ctx.Err(); res.Err != nil {
		return res
	}

	ts, err := raster.OpenTile(path)
	if err != nil {
		res.Err = err
		return res
	}
	defer ts.Close()

	switch {
	case opts.Window != nil:
		res.Grid, res.Err = ts.CropSimple(*opts.Window)
		if res.Err == nil && res.Grid.CRS != "" {
			res.Region, res.Err = gridRegion(res.Grid)
		}
	case opts.Region == nil:
		res.Grid, res.Err = ts.ReadAll()
		if res.Err == nil {
			res.Region, res.Err = ts.Region()
		}
	default:
		res.Region = opts.Region
		res.Err = r.cropAndWarp(ctx, ts, res, opts)
	}
	if res.Err != nil {
		res.Grid = nil
		return res
	}

	if castType != godal.Unknown {
		if err = res.Grid.Cast(castType); err != nil {
			res.Grid = nil
			res.Err = err
			return res
		}
	}
	res.Grid.Path = path
	return res
}

// cropAndWarp runs the staged crop then warp sequence for one tile. The
// stage is private to the tile and released on every return unless
// intermediates are kept.
func (r *RasterReader) cropAndWarp(ctx context.Context, ts *raster.TileSource, res *TileResult, opts *ReadOptions) error {
	cropped, srcCRS, err := ts.Crop(opts.Region)
	if err != nil {
		return err
	}

	targetCRS := opts.TargetCRS
	if targetCRS == "" {
		targetCRS = srcCRS
	}
	same, err := raster.SameCRS(srcCRS, targetCRS)
	if err != nil {
		return err
	}
	needWarp := opts.ForceWarp || !same

	if !needWarp && !opts.KeepIntermediates {
		res.Grid = cropped
		return nil
	}

	stage, err := raster.NewStage(opts.outDir(), opts.KeepIntermediates)
	if err != nil {
		return err
	}
	defer stage.Release()
	defer func() {
		if opts.KeepIntermediates {
			res.Artifacts = stage.Artifacts()
		}
	}()

	croppedPath, err := stage.Write(cropped, ts.Path(), raster.CroppedSuffix)
	if err != nil {
		return err
	}
	if !needWarp {
		res.Grid = cropped
		return nil
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	region, err := warpRegion(opts.Region, cropped)
	if err != nil {
		return err
	}
	staged, err := raster.OpenTile(croppedPath)
	if err != nil {
		return err
	}
	warped, err := staged.Warp(region, targetCRS, opts.Resampling)
	staged.Close()
	if err != nil {
		return err
	}
	if r.Verbose {
		log.Printf("warped %s onto %dx%d grid", ts.Path(), warped.Width, warped.Height)
	}
	if err = stage.Drop(croppedPath); err != nil {
		return err
	}

	if opts.KeepIntermediates {
		if _, err = stage.Write(warped, ts.Path(), raster.WarpedSuffix); err != nil {
			return err
		}
	}
	res.Grid = warped
	res.Warped = true
	return nil
}

// warpRegion fills in a missing region resolution with the native pixel
// size of the tile, expressed in the region CRS.
func warpRegion(region *raster.Region, native *raster.Grid) (*raster.Region, error) {
	xRes, yRes := region.Resolution()
	if xRes != 0 && yRes != 0 {
		return region, nil
	}
	nativeRegion, err := gridRegion(native)
	if err != nil {
		return nil, err
	}
	nx, ny, err := nativeRegion.ResolutionIn(region.CRS())
	if err != nil {
		return nil, err
	}
	if xRes == 0 {
		xRes = nx
	}
	if yRes == 0 {
		yRes = ny
	}
	return region.WithResolution(xRes, yRes), nil
}

func gridRegion(g *raster.Grid) (*raster.Region, error) {
	left, bottom, right, top := g.Bounds()
	return raster.RegionFromBounds(left, bottom, right, top, g.CRS, g.Transform[1], g.Transform[5])
}

func gridPixels(g *raster.Grid) int64 {
	if g == nil {
		return 0
	}
	return int64(len(g.Data))
}
