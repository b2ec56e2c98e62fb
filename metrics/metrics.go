package metrics

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"sync"
	"time"

	"github.com/nci/rscube/raster"
	"github.com/paulmach/orb/planar"
)

const areaSRS = "EPSG:4326"

type QueryInfo struct {
	Collection string     `json:"collection"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Index      *int       `json:"index,omitempty"`
	TargetCRS  string     `json:"target_crs,omitempty"`
	Resampling string     `json:"resampling,omitempty"`
}

type IndexerInfo struct {
	Duration     time.Duration `json:"duration"`
	Geometry     string        `json:"geometry"`
	SRS          string        `json:"-"`
	GeometryArea float64       `json:"geometry_area"`
	NumFiles     int           `json:"num_files"`
	NumMatched   int           `json:"num_matched"`
}

type ReaderInfo struct {
	Duration   time.Duration `json:"duration"`
	NumTiles   int           `json:"num_tiles"`
	NumFailed  int           `json:"num_failed"`
	NumWarped  int           `json:"num_warped"`
	PixelsRead int64         `json:"pixels_read"`
}

type MetricsInfo struct {
	ReqTime     string        `json:"req_time"`
	ReqDuration time.Duration `json:"req_duration"`
	Query       QueryInfo     `json:"query"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Indexer     *IndexerInfo  `json:"indexer"`
	Reader      *ReaderInfo   `json:"reader"`
}

// MetricsCollector accumulates the metrics of one query and hands them to
// the logger. A collector without a logger discards everything.
type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
	start  time.Time
	mu     sync.Mutex
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	now := time.Now()
	return &MetricsCollector{
		Info: &MetricsInfo{
			ReqTime: now.Format(time.RFC3339),
			Indexer: &IndexerInfo{},
			Reader:  &ReaderInfo{},
		},
		logger: logger,
		start:  now,
	}
}

// RecordTile accounts one tile read. It is safe for concurrent use.
func (m *MetricsCollector) RecordTile(warped bool, pixels int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Info.Reader.NumTiles++
	if err != nil {
		m.Info.Reader.NumFailed++
		return
	}
	if warped {
		m.Info.Reader.NumWarped++
	}
	m.Info.Reader.PixelsRead += pixels
}

// Log stamps the request duration and status, then emits the record.
func (m *MetricsCollector) Log(err error) {
	if m.logger == nil {
		return
	}
	m.Info.ReqDuration = time.Since(m.start)
	if err != nil {
		m.Info.Status = "error"
		m.Info.Error = err.Error()
	} else {
		m.Info.Status = "ok"
	}
	m.logger.Log(m.Info)
}

func (i *MetricsInfo) ToJSON() (string, error) {
	err := i.normaliseGeometry()
	if err != nil {
		log.Printf("metrics: normaliseGeometry() error: %v", err)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err = enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}

// normaliseGeometry reprojects the query geometry to EPSG:4326 and records
// its planar area in square degrees.
func (i *MetricsInfo) normaliseGeometry() error {
	if i.Indexer == nil {
		return nil
	}
	if len(i.Indexer.Geometry) == 0 {
		i.Indexer.Geometry = "POLYGON EMPTY"
		return nil
	}
	if i.Indexer.GeometryArea > 0 && i.Indexer.SRS == areaSRS {
		return nil
	}

	region, err := raster.RegionFromWKT(i.Indexer.Geometry, i.Indexer.SRS, 0, 0)
	if err != nil {
		return err
	}
	geographic, err := region.Project(areaSRS)
	if err != nil {
		return err
	}
	i.Indexer.Geometry = geographic.WKT()
	i.Indexer.SRS = areaSRS
	i.Indexer.GeometryArea = math.Abs(planar.Area(geographic.Geometry()))
	return nil
}
