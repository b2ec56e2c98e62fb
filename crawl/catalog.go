package crawl

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
)

const ISOFormat = "2006-01-02T15:04:05.000Z"

// TileRecord is one catalogued tile.
type TileRecord struct {
	Path string
	Time time.Time
}

// TemporalCatalog maps tile paths to acquisition times. It is built once and
// is read-only afterwards, so it is safe for concurrent use.
type TemporalCatalog struct {
	times   map[string]time.Time
	records []TileRecord
	min     time.Time
	max     time.Time
}

// NewTemporalCatalog keeps the paths accepted by include (nil accepts all)
// and resolves each of them once. Construction fails with *DateParseError on
// the first included path without a valid date. Duplicate paths are kept
// once.
func NewTemporalCatalog(paths []string, include Predicate, resolver *DateResolver) (*TemporalCatalog, error) {
	if resolver == nil {
		return nil, fmt.Errorf("catalog requires a date resolver")
	}
	if include == nil {
		include = All
	}

	times := make(map[string]time.Time, len(paths))
	for _, path := range paths {
		if _, seen := times[path]; seen {
			continue
		}
		ok, err := include(path, TypeFile)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		t, err := resolver.Resolve(path)
		if err != nil {
			return nil, err
		}
		times[path] = t
	}
	return newCatalog(times), nil
}

func newCatalog(times map[string]time.Time) *TemporalCatalog {
	c := &TemporalCatalog{times: times, records: make([]TileRecord, 0, len(times))}
	for path, t := range times {
		c.records = append(c.records, TileRecord{Path: path, Time: t})
	}
	sort.Slice(c.records, func(i, j int) bool {
		a, b := c.records[i], c.records[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Path < b.Path
	})
	if len(c.records) > 0 {
		c.min = c.records[0].Time
		c.max = c.records[len(c.records)-1].Time
	}
	return c
}

func (c *TemporalCatalog) Len() int { return len(c.records) }

// Min returns the earliest timestamp, the zero time for an empty catalog.
func (c *TemporalCatalog) Min() time.Time { return c.min }

// Max returns the latest timestamp, the zero time for an empty catalog.
func (c *TemporalCatalog) Max() time.Time { return c.max }

// Records returns every record in canonical order: ascending time, ties
// broken by path.
func (c *TemporalCatalog) Records() []TileRecord {
	return append([]TileRecord(nil), c.records...)
}

func (c *TemporalCatalog) Lookup(path string) (time.Time, bool) {
	t, ok := c.times[path]
	return t, ok
}

// Index returns the i-th record in canonical order.
func (c *TemporalCatalog) Index(i int) (TileRecord, error) {
	if i < 0 || i >= len(c.records) {
		return TileRecord{}, fmt.Errorf("catalog index %d out of range [0, %d)", i, len(c.records))
	}
	return c.records[i], nil
}

// RangeQuery returns the records with start <= time <= end in canonical
// order. A nil bound defaults to the catalog min or max. No match yields an
// empty result.
func (c *TemporalCatalog) RangeQuery(start, end *time.Time) []TileRecord {
	lo, hi := c.min, c.max
	if start != nil {
		lo = *start
	}
	if end != nil {
		hi = *end
	}

	first := sort.Search(len(c.records), func(i int) bool { return !c.records[i].Time.Before(lo) })
	var out []TileRecord
	for _, rec := range c.records[first:] {
		if rec.Time.After(hi) {
			break
		}
		out = append(out, rec)
	}
	return out
}

type catalogRow struct {
	Path string `csv:"path"`
	Time string `csv:"time"`
}

// WriteCSV lists the catalog in canonical order as path,time rows.
func (c *TemporalCatalog) WriteCSV(w io.Writer) error {
	rows := make([]*catalogRow, len(c.records))
	for i, rec := range c.records {
		rows[i] = &catalogRow{Path: rec.Path, Time: rec.Time.UTC().Format(ISOFormat)}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write catalog CSV: %v", err)
	}
	return nil
}

// ReadCatalogCSV rebuilds a catalog from the output of WriteCSV.
func ReadCatalogCSV(r io.Reader) (*TemporalCatalog, error) {
	var rows []*catalogRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read catalog CSV: %v", err)
	}
	times := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		t, err := time.Parse(ISOFormat, row.Time)
		if err != nil {
			return nil, &DateParseError{Path: row.Path, Reason: err.Error()}
		}
		times[row.Path] = t
	}
	return newCatalog(times), nil
}
