package processor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/nci/rscube/crawl"
	"github.com/nci/rscube/metrics"
	"github.com/nci/rscube/raster"
)

const testCRS = "EPSG:32633"

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

// writeTile writes a 100x100 Int16 tile at 10 m covering
// x 500000..501000, y 6000000..6001000 with pixel value offset+row*100+col.
func writeTile(t *testing.T, dir, name string, offset float64) string {
	t.Helper()
	g := raster.NewGrid(raster.Meta{
		Width:     100,
		Height:    100,
		Count:     1,
		DataType:  godal.Int16,
		Transform: raster.FromOrigin(500000, 6001000, 10, 10),
		CRS:       testCRS,
		NoData:    -9999,
		HasNoData: true,
	})
	for i := range g.Data {
		g.Data[i] = offset + float64(i)
	}
	path := filepath.Join(dir, name)
	if err := raster.WriteGrid(g, path); err != nil {
		t.Fatalf("failed to write tile: %v", err)
	}
	return path
}

func testRegion(t *testing.T) *raster.Region {
	t.Helper()
	region, err := raster.RegionFromBounds(500100, 6000500, 500400, 6000700, testCRS, 10, 10)
	if err != nil {
		t.Fatalf("failed to create region: %v", err)
	}
	return region
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestConcLimiter(t *testing.T) {
	cl := NewConcLimiter(2)
	var mu sync.Mutex
	running, peak := 0, 0
	for i := 0; i < 10; i++ {
		cl.Increase()
		go func() {
			defer cl.Decrease()
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	cl.Wait()
	if peak > 2 {
		t.Errorf("concurrency exceeded the limit: %d", peak)
	}

	if cap(NewConcLimiter(0).Pool) != 1 {
		t.Errorf("a non positive level should fall back to 1")
	}

	full := NewConcLimiter(1)
	full.Increase()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := full.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	full.Decrease()
	full.Wait()
}

func TestReadPassThrough(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeTile(t, dir, "a.tif", 0), writeTile(t, dir, "b.tif", 10000)}

	results, err := NewRasterReader(false).Read(context.Background(), paths, ReadOptions{Mute: true, OutDir: dir})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("%s: %v", res.Path, res.Err)
		}
		if res.Path != paths[i] || res.Grid.Path != paths[i] {
			t.Errorf("result %d has path %s, expected %s", i, res.Path, paths[i])
		}
		if res.Grid.Width != 100 || res.Grid.Height != 100 {
			t.Errorf("pass-through should read the whole tile, got %dx%d", res.Grid.Width, res.Grid.Height)
		}
		left, bottom, right, top, err := res.Region.BoundsIn(res.Region.CRS())
		if err != nil || left != 500000 || bottom != 6000000 || right != 501000 || top != 6001000 {
			t.Errorf("unexpected tile region %v %v %v %v (%v)", left, bottom, right, top, err)
		}
	}
	if results[1].Grid.At(0, 0, 0) != 10000 {
		t.Errorf("results are out of order")
	}
}

func TestReadCrop(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	path := writeTile(t, dir, "scene.tif", 0)

	results, err := NewRasterReader(false).Read(context.Background(), []string{path}, ReadOptions{
		Region: testRegion(t),
		Mute:   true,
		OutDir: out,
	})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("crop failed: %v", res.Err)
	}
	if res.Warped {
		t.Errorf("a tile already in the target CRS should not be warped")
	}
	if res.Grid.Width != 30 || res.Grid.Height != 20 {
		t.Errorf("unexpected crop size %dx%d, expected 30x20", res.Grid.Width, res.Grid.Height)
	}
	if v := res.Grid.At(0, 0, 0); v != 3010 {
		t.Errorf("unexpected first value %v, expected 3010", v)
	}
	if exists(filepath.Join(out, raster.StageDirName)) {
		t.Errorf("staging directory should not outlive the read")
	}
}

func TestReadForceWarp(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	path := writeTile(t, dir, "scene.tif", 0)
	mc := metrics.NewMetricsCollector(nil)

	opts := ReadOptions{
		Region:     testRegion(t),
		TargetCRS:  testCRS,
		ForceWarp:  true,
		Resampling: "nearest",
		Mute:       true,
		OutDir:     out,
		Metrics:    mc,
	}
	results, err := NewRasterReader(false).Read(context.Background(), []string{path}, opts)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("warp failed: %v", res.Err)
	}
	if !res.Warped {
		t.Errorf("ForceWarp should warp the tile")
	}
	if res.Grid.CRS != testCRS {
		t.Errorf("warped CRS %q, expected %q", res.Grid.CRS, testCRS)
	}
	if res.Grid.Transform != raster.FromOrigin(500100, 6000700, 10, 10) {
		t.Errorf("unexpected warped transform %v", res.Grid.Transform)
	}
	if res.Grid.Width != 30 || res.Grid.Height != 20 || res.Grid.At(0, 0, 0) != 3010 {
		t.Errorf("unexpected warped grid %dx%d first %v", res.Grid.Width, res.Grid.Height, res.Grid.At(0, 0, 0))
	}
	if res.Grid.Path != path {
		t.Errorf("warped grid should keep its source path, got %s", res.Grid.Path)
	}
	if len(res.Artifacts) != 0 || exists(filepath.Join(out, raster.StageDirName)) {
		t.Errorf("intermediates should be removed: %v", res.Artifacts)
	}
	if mc.Info.Reader.NumTiles != 1 || mc.Info.Reader.NumWarped != 1 || mc.Info.Reader.PixelsRead != 600 {
		t.Errorf("unexpected reader metrics %+v", *mc.Info.Reader)
	}

	opts.KeepIntermediates = true
	opts.Metrics = nil
	results, err = NewRasterReader(false).Read(context.Background(), []string{path}, opts)
	if err != nil || results[0].Err != nil {
		t.Fatalf("read failed: %v %v", err, results[0].Err)
	}
	artifacts := results[0].Artifacts
	if len(artifacts) != 2 {
		t.Fatalf("expected cropped and warped artifacts, got %v", artifacts)
	}
	if !strings.HasSuffix(artifacts[0], "scene_cropped.tif") || !strings.HasSuffix(artifacts[1], "scene_warped.tif") {
		t.Errorf("unexpected artifact names %v", artifacts)
	}
	for _, a := range artifacts {
		if !exists(a) {
			t.Errorf("kept artifact %s is missing", a)
		}
		if !strings.HasPrefix(a, filepath.Join(out, raster.StageDirName)) {
			t.Errorf("artifact %s is outside the staging root", a)
		}
	}
}

func TestConcurrentReadsShareOutDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	var paths []string
	for _, name := range []string{"a.tif", "b.tif", "c.tif"} {
		paths = append(paths, writeTile(t, dir, name, 0))
	}
	opts := ReadOptions{
		Region:      testRegion(t),
		TargetCRS:   testCRS,
		ForceWarp:   true,
		Resampling:  "nearest",
		Concurrency: 2,
		Mute:        true,
		OutDir:      out,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				results, err := NewRasterReader(false).Read(context.Background(), paths, opts)
				if err != nil {
					errs <- err
					return
				}
				if err = CheckResults(results); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}
	if exists(filepath.Join(out, raster.StageDirName)) {
		t.Errorf("staging root should be removed once every read is done")
	}
}

func TestReadReprojects(t *testing.T) {
	dir := t.TempDir()
	path := writeTile(t, dir, "scene.tif", 0)

	grid, _, err := ReadRaster(context.Background(), path, testRegion(t), ReadOptions{
		TargetCRS: "EPSG:4326",
		OutDir:    dir,
	})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if grid.CRS != "EPSG:4326" {
		t.Errorf("unexpected CRS %q", grid.CRS)
	}
	if grid.Width <= 0 || grid.Height <= 0 || grid.Transform[1] >= 1 {
		t.Errorf("unexpected geographic grid %dx%d %v", grid.Width, grid.Height, grid.Transform)
	}
}

func TestReadWarpNativeResolution(t *testing.T) {
	dir := t.TempDir()
	path := writeTile(t, dir, "scene.tif", 0)
	region, err := raster.RegionFromBounds(500100, 6000500, 500400, 6000700, testCRS, 0, 0)
	if err != nil {
		t.Fatalf("failed to create region: %v", err)
	}

	grid, _, err := ReadRaster(context.Background(), path, region, ReadOptions{
		TargetCRS:  testCRS,
		ForceWarp:  true,
		Resampling: "nearest",
		OutDir:     dir,
	})
	if err != nil {
		t.Fatalf("warp without a region resolution failed: %v", err)
	}
	if grid.Width != 30 || grid.Height != 20 || grid.Transform != raster.FromOrigin(500100, 6000700, 10, 10) {
		t.Errorf("expected the native 10 m grid, got %dx%d %v", grid.Width, grid.Height, grid.Transform)
	}

	grid, _, err = ReadRaster(context.Background(), path, region, ReadOptions{TargetCRS: "EPSG:4326", OutDir: dir})
	if err != nil {
		t.Fatalf("reprojection without a region resolution failed: %v", err)
	}
	if grid.Width <= 0 || grid.Height <= 0 {
		t.Errorf("unexpected geographic grid %dx%d", grid.Width, grid.Height)
	}
}

func TestReadFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeTile(t, dir, "good.tif", 0)
	corrupt := filepath.Join(dir, "corrupt.tif")
	if err := os.WriteFile(corrupt, []byte("not a raster"), 0644); err != nil {
		t.Fatal(err)
	}
	outside, _ := raster.RegionFromBounds(700000, 6000000, 701000, 6001000, testCRS, 10, 10)

	reader := NewRasterReader(false)
	results, err := reader.Read(context.Background(), []string{corrupt, good, filepath.Join(dir, "missing.tif")},
		ReadOptions{Concurrency: 3, Mute: true, OutDir: dir})
	if err != nil {
		t.Fatalf("per tile failures should not fail the call: %v", err)
	}
	var readErr *raster.SourceReadError
	if !errors.As(results[0].Err, &readErr) || readErr.Path != corrupt {
		t.Errorf("expected a SourceReadError for %s, got %v", corrupt, results[0].Err)
	}
	if results[1].Err != nil || results[1].Grid == nil {
		t.Errorf("a failing neighbour should not affect %s: %v", good, results[1].Err)
	}
	if results[2].Err == nil {
		t.Errorf("expected an error for a missing file")
	}

	err = CheckResults(results)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) || len(batchErr.Failures) != 2 {
		t.Fatalf("expected a BatchError with 2 failures, got %v", err)
	}
	if !errors.As(err, &readErr) {
		t.Errorf("BatchError should unwrap to the tile errors")
	}

	results, _ = reader.Read(context.Background(), []string{good}, ReadOptions{Region: outside, Mute: true, OutDir: dir})
	var mismatch *raster.GeometryMismatchError
	if !errors.As(results[0].Err, &mismatch) {
		t.Errorf("expected a GeometryMismatchError, got %v", results[0].Err)
	}

	if _, err = reader.Read(context.Background(), []string{good}, ReadOptions{Resampling: "gauss"}); err == nil {
		t.Errorf("expected an error for an unknown resampling method")
	}
	if _, err = reader.Read(context.Background(), []string{good}, ReadOptions{CastType: "Complex64"}); err == nil {
		t.Errorf("expected an error for an unknown cast type")
	}
}

func TestReadCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeTile(t, dir, "scene.tif", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewRasterReader(false).Read(ctx, []string{path, path}, ReadOptions{Mute: true, OutDir: dir})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("expected every tile to be abandoned, got %v", res.Err)
		}
	}
}

func TestReadWindowAndCast(t *testing.T) {
	dir := t.TempDir()
	path := writeTile(t, dir, "scene.tif", 0)

	results, err := NewRasterReader(false).Read(context.Background(), []string{path}, ReadOptions{
		Window:   &raster.Window{ColOff: 95, RowOff: 90, Width: 10, Height: 5},
		CastType: "Byte",
		Mute:     true,
		OutDir:   dir,
	})
	if err != nil || results[0].Err != nil {
		t.Fatalf("read failed: %v %v", err, results[0].Err)
	}
	g := results[0].Grid
	if g.Width != 5 || g.Height != 5 {
		t.Errorf("window should be clipped to 5x5, got %dx%d", g.Width, g.Height)
	}
	if g.DataType != godal.Byte {
		t.Errorf("unexpected data type %v", raster.GDALTypes[g.DataType])
	}
	// 9095 wraps to 9095 % 256
	if v := g.At(0, 0, 0); v != 135 {
		t.Errorf("unexpected cast value %v, expected 135", v)
	}
	if results[0].Region == nil {
		t.Errorf("window reads should report their region")
	}

	if _, err = NewRasterReader(false).Read(context.Background(), []string{path}, ReadOptions{
		Window: &raster.Window{Width: 1, Height: 1},
		Region: testRegion(t),
	}); err == nil {
		t.Errorf("expected an error when combining a window with a region")
	}
}

func TestReadAlignToFirst(t *testing.T) {
	dir := t.TempDir()
	first := writeTile(t, dir, "first.tif", 0)
	g := raster.NewGrid(raster.Meta{
		Width:     50,
		Height:    50,
		Count:     1,
		DataType:  godal.Int16,
		Transform: raster.FromOrigin(500500, 6000500, 10, 10),
		CRS:       testCRS,
	})
	second := filepath.Join(dir, "second.tif")
	if err := raster.WriteGrid(g, second); err != nil {
		t.Fatal(err)
	}

	results, err := NewRasterReader(false).Read(context.Background(), []string{first, second}, ReadOptions{
		AlignToFirst: true,
		Mute:         true,
		OutDir:       dir,
	})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if results[0].Grid.Width != 100 {
		t.Errorf("first tile should be read whole, got width %d", results[0].Grid.Width)
	}
	if results[1].Err != nil || results[1].Grid.Width != 50 {
		t.Errorf("second tile should be cropped to its overlap: %v", results[1].Err)
	}

	if _, err = NewRasterReader(false).Read(context.Background(), []string{filepath.Join(dir, "missing.tif")},
		ReadOptions{AlignToFirst: true, Mute: true}); err == nil {
		t.Errorf("expected an error when the first tile cannot be opened")
	}
}

func januaryCatalog(t *testing.T, dir string) *crawl.TemporalCatalog {
	t.Helper()
	var paths []string
	for i, name := range []string{"scene_20200103.tif", "scene_20200101.tif", "scene_20200102.tif", "scene_20200215.tif"} {
		paths = append(paths, writeTile(t, dir, name, float64(i*5000)))
	}
	resolver, err := crawl.FieldOrder(`_(\d{4})(\d{2})(\d{2})\.tif$`, crawl.Year, crawl.Month, crawl.Day)
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := crawl.NewTemporalCatalog(paths, nil, resolver)
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	return catalog
}

func TestTimeSeriesQuery(t *testing.T) {
	dir := t.TempDir()
	catalog := januaryCatalog(t, dir)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	mc := metrics.NewMetricsCollector(nil)

	tr := NewTimeSeriesReader(catalog, false)
	cube, err := tr.Query(context.Background(), TimeQuery{
		Start: &start,
		End:   &end,
		ReadOptions: ReadOptions{
			Region:      testRegion(t),
			Concurrency: 2,
			Mute:        true,
			OutDir:      filepath.Join(dir, "out"),
			Metrics:     mc,
		},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if cube.Len() != 3 {
		t.Fatalf("expected 3 slices, got %d", cube.Len())
	}
	for i := 1; i < cube.Len(); i++ {
		if !cube.Times[i-1].Before(cube.Times[i]) {
			t.Errorf("time axis is not ascending: %v", cube.Times)
		}
	}
	if cube.Width != 30 || cube.Height != 20 || len(cube.X) != 30 || len(cube.Y) != 20 {
		t.Errorf("unexpected cube shape %dx%d", cube.Width, cube.Height)
	}
	// scene_20200101 was written second
	if v := cube.At(0, 0, 0, 0); v != 8010 {
		t.Errorf("unexpected first slice value %v", v)
	}
	expected := map[string]string{
		"2020-01-01": filepath.Join(dir, "scene_20200101.tif"),
		"2020-01-02": filepath.Join(dir, "scene_20200102.tif"),
		"2020-01-03": filepath.Join(dir, "scene_20200103.tif"),
	}
	for date, path := range expected {
		if cube.Paths[date] != path {
			t.Errorf("provenance of %s is %s, expected %s", date, cube.Paths[date], path)
		}
	}
	if len(cube.Paths) != 3 || len(cube.Failures) != 0 {
		t.Errorf("unexpected provenance %v, failures %d", cube.Paths, len(cube.Failures))
	}
	if mc.Info.Indexer.NumFiles != 4 || mc.Info.Indexer.NumMatched != 3 || mc.Info.Reader.NumTiles != 3 {
		t.Errorf("unexpected metrics %+v %+v", *mc.Info.Indexer, *mc.Info.Reader)
	}

	var buf bytes.Buffer
	if err = cube.WriteProvenanceCSV(&buf); err != nil {
		t.Fatalf("failed to write provenance: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || lines[0] != "date,path" || !strings.HasPrefix(lines[1], "2020-01-01,") {
		t.Errorf("unexpected provenance CSV:\n%s", buf.String())
	}

	written, err := cube.WriteSlices(filepath.Join(dir, "slices"), "jan")
	if err != nil || len(written) != 3 {
		t.Fatalf("failed to write slices: %v", err)
	}
	back, err := raster.ReadGrid(written[2])
	if err != nil {
		t.Fatalf("failed to read slice back: %v", err)
	}
	if back.At(0, 0, 0) != cube.At(2, 0, 0, 0) || back.Transform != cube.Transform {
		t.Errorf("slice round trip mismatch")
	}
}

func TestTimeSeriesQueryEmpty(t *testing.T) {
	dir := t.TempDir()
	tr := NewTimeSeriesReader(januaryCatalog(t, dir), false)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := tr.Query(context.Background(), TimeQuery{Start: &start, ReadOptions: ReadOptions{Mute: true}})
	var empty *EmptyResultError
	if !errors.As(err, &empty) {
		t.Fatalf("expected an EmptyResultError, got %v", err)
	}

	idx := 3
	cube, err := tr.Query(context.Background(), TimeQuery{Index: &idx, ReadOptions: ReadOptions{Mute: true, OutDir: dir}})
	if err != nil {
		t.Fatalf("index query failed: %v", err)
	}
	if cube.Len() != 1 || cube.Times[0].Month() != time.February {
		t.Errorf("index 3 should select the February tile, got %v", cube.Times)
	}

	if _, err = tr.Query(context.Background(), TimeQuery{Index: &idx, Start: &start}); err == nil {
		t.Errorf("expected an error when combining an index with a range")
	}
}

func TestNewTimeCube(t *testing.T) {
	small := raster.NewGrid(raster.Meta{Width: 2, Height: 2, Count: 1})
	large := raster.NewGrid(raster.Meta{Width: 3, Height: 2, Count: 1})
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := NewTimeCube([]*TileResult{
		{Path: "a", Time: day, Grid: small},
		{Path: "b", Time: day.Add(time.Hour), Grid: large},
	}); err == nil {
		t.Errorf("expected an error for mismatched slice shapes")
	}

	cube, err := NewTimeCube([]*TileResult{
		{Path: "late", Time: day.Add(6 * time.Hour), Grid: small},
		{Path: "early", Time: day, Grid: small.Clone()},
		{Path: "broken", Err: errors.New("unreadable")},
	})
	if err != nil {
		t.Fatalf("failed to stack: %v", err)
	}
	if cube.Len() != 2 || cube.Times[0] != day || len(cube.Failures) != 1 {
		t.Errorf("unexpected cube %v failures %d", cube.Times, len(cube.Failures))
	}
	if cube.Paths["2020-01-01"] != "late" {
		t.Errorf("same day provenance should keep the later slice, got %s", cube.Paths["2020-01-01"])
	}

	_, err = NewTimeCube([]*TileResult{{Path: "broken", Err: errors.New("unreadable")}})
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Errorf("expected a BatchError when every slice failed, got %v", err)
	}
}

func TestAlign(t *testing.T) {
	dir := t.TempDir()
	reference := raster.NewGrid(raster.Meta{
		Width:     100,
		Height:    100,
		Count:     1,
		DataType:  godal.Int16,
		Transform: raster.FromOrigin(500000, 6001000, 10, 10),
		CRS:       testCRS,
	})
	other := raster.NewGrid(raster.Meta{
		Width:     25,
		Height:    25,
		Count:     1,
		DataType:  godal.Int16,
		Transform: raster.FromOrigin(500000, 6001000, 20, 20),
		CRS:       testCRS,
	})
	for i := range other.Data {
		other.Data[i] = float64(i)
	}

	out := filepath.Join(dir, "aligned", "other.tif")
	aligned, err := Align(reference, other, out, DefaultAlignNoData)
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if !exists(out) || aligned.Path != out {
		t.Errorf("aligned grid should be written to %s", out)
	}
	if aligned.Width != 100 || aligned.Height != 100 || aligned.Transform != reference.Transform || aligned.CRS != reference.CRS {
		t.Errorf("aligned grid does not match the reference grid")
	}
	for i := range reference.X {
		if aligned.X[i] != reference.X[i] {
			t.Fatalf("x coordinate %d differs: %v != %v", i, aligned.X[i], reference.X[i])
		}
	}
	for i := range reference.Y {
		if aligned.Y[i] != reference.Y[i] {
			t.Fatalf("y coordinate %d differs: %v != %v", i, aligned.Y[i], reference.Y[i])
		}
	}

	for _, c := range []struct {
		row, col int
		value    float64
	}{{0, 0, 0}, {1, 1, 0}, {2, 2, 26}, {49, 49, 624}, {99, 99, DefaultAlignNoData}} {
		if v := aligned.At(0, c.row, c.col); v != c.value {
			t.Errorf("aligned value at (%d, %d) is %v, expected %v", c.row, c.col, v, c.value)
		}
	}

	if _, err = Align(reference, other, "", DefaultAlignNoData); err == nil {
		t.Errorf("expected an error without an output path")
	}
}

func TestAlignPromotesNoData(t *testing.T) {
	reference := raster.NewGrid(raster.Meta{
		Width:     100,
		Height:    100,
		Count:     1,
		DataType:  godal.Byte,
		Transform: raster.FromOrigin(500000, 6001000, 10, 10),
		CRS:       testCRS,
	})
	other := raster.NewGrid(raster.Meta{
		Width:     25,
		Height:    25,
		Count:     1,
		DataType:  godal.Byte,
		Transform: raster.FromOrigin(500000, 6001000, 20, 20),
		CRS:       testCRS,
	})
	for i := range other.Data {
		other.Data[i] = float64(i % 256)
	}

	aligned, err := Align(reference, other, filepath.Join(t.TempDir(), "classes.tif"), DefaultAlignNoData)
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if aligned.DataType != godal.Int16 {
		t.Errorf("a Byte raster aligned with nodata -1 should be Int16, got %v", raster.GDALTypes[aligned.DataType])
	}
	if v := aligned.At(0, 99, 99); v != DefaultAlignNoData {
		t.Errorf("uncovered pixel is %v, expected %v", v, DefaultAlignNoData)
	}
	if v := aligned.At(0, 49, 49); v != 112 {
		t.Errorf("covered pixel is %v, expected 112", v)
	}

	for _, c := range []struct {
		dt, expected godal.DataType
		nodata       float64
	}{
		{godal.Byte, godal.Byte, 255},
		{godal.UInt16, godal.Int32, -1},
		{godal.Int16, godal.Int16, -1},
		{godal.UInt32, godal.Float64, -1},
		{godal.Byte, godal.Float64, 0.5},
		{godal.Unknown, godal.Float64, -1},
	} {
		if dt := alignDataType(c.dt, c.nodata); dt != c.expected {
			t.Errorf("%v with nodata %v: got %v, expected %v", raster.GDALTypes[c.dt], c.nodata,
				raster.GDALTypes[dt], raster.GDALTypes[c.expected])
		}
	}
}
