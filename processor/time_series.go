package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nci/rscube/crawl"
)

// TimeQuery selects tiles either by an inclusive time range, where nil
// bounds are open, or by their position in the catalog.
type TimeQuery struct {
	Start, End *time.Time
	Index      *int
	ReadOptions
}

// TimeSeriesReader answers time queries against a catalog and stacks the
// matching tiles into a TimeCube.
type TimeSeriesReader struct {
	Catalog *crawl.TemporalCatalog
	Reader  *RasterReader
	Verbose bool
}

func NewTimeSeriesReader(catalog *crawl.TemporalCatalog, verbose bool) *TimeSeriesReader {
	return &TimeSeriesReader{
		Catalog: catalog,
		Reader:  NewRasterReader(verbose),
		Verbose: verbose,
	}
}

func (tr *TimeSeriesReader) Query(ctx context.Context, q TimeQuery) (*TimeCube, error) {
	records, err := tr.resolve(q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &EmptyResultError{Start: q.Start, End: q.End}
	}
	if tr.Verbose {
		log.Printf("%d of %d tiles matched", len(records), tr.Catalog.Len())
	}

	paths := make([]string, len(records))
	for i, rec := range records {
		paths[i] = rec.Path
	}
	results, err := tr.Reader.Read(ctx, paths, q.ReadOptions)
	if err != nil {
		return nil, err
	}
	for i, res := range results {
		res.Time = records[i].Time
	}

	cube, err := NewTimeCube(results)
	if err != nil {
		return nil, err
	}
	if len(cube.Failures) > 0 {
		log.Printf("%d of %d tiles could not be read", len(cube.Failures), len(results))
	}
	return cube, nil
}

func (tr *TimeSeriesReader) resolve(q TimeQuery) ([]crawl.TileRecord, error) {
	t0 := time.Now()
	if q.Index != nil && (q.Start != nil || q.End != nil) {
		return nil, fmt.Errorf("query by index cannot be combined with a time range")
	}

	var records []crawl.TileRecord
	if q.Index != nil {
		rec, err := tr.Catalog.Index(*q.Index)
		if err != nil {
			return nil, err
		}
		records = []crawl.TileRecord{rec}
	} else {
		records = tr.Catalog.RangeQuery(q.Start, q.End)
	}

	if mc := q.Metrics; mc != nil {
		mc.Info.Query.Start = q.Start
		mc.Info.Query.End = q.End
		mc.Info.Query.Index = q.Index
		mc.Info.Query.TargetCRS = q.TargetCRS
		mc.Info.Query.Resampling = q.Resampling
		mc.Info.Indexer.Duration = time.Since(t0)
		mc.Info.Indexer.NumFiles = tr.Catalog.Len()
		mc.Info.Indexer.NumMatched = len(records)
		if q.Region != nil {
			mc.Info.Indexer.Geometry = q.Region.WKT()
			mc.Info.Indexer.SRS = q.Region.CRS()
		}
	}
	return records, nil
}
