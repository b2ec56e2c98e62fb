package crawl

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/nci/gomemcache/memcache"
)

// MASDataset is one dataset entry of a MAS intersects response.
type MASDataset struct {
	DSName     string      `json:"ds_name"`
	ArrayType  string      `json:"array_type"`
	TimeStamps []time.Time `json:"timestamps"`
	Polygon    string      `json:"polygon"`
}

type MetadataResponse struct {
	Files        []string     `json:"files"`
	GDALDatasets []MASDataset `json:"gdal"`
}

// MASQuery selects datasets of a collection from the MAS index. Empty
// fields are passed to the database as null.
type MASQuery struct {
	Collection string
	SRS        string
	WKT        string
	Start      *time.Time
	End        *time.Time
	Namespaces []string
}

// MASSource lists collection tiles from a MAS PostgreSQL index, optionally
// through memcache.
type MASSource struct {
	db      *sql.DB
	mc      *memcache.Client
	Verbose bool
}

// NewMASSource connects lazily to dsn, e.g.
// "user=api host=/var/run/postgresql dbname=mas sslmode=disable".
func NewMASSource(dsn, memcacheURI string, pool, limit int) (*MASSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MAS database: %v", err)
	}
	if pool > 0 {
		db.SetMaxIdleConns(pool)
	}
	if limit > 0 {
		db.SetMaxOpenConns(limit)
	}

	src := &MASSource{db: db}
	if memcacheURI != "" {
		// lazy connection; errors returned in .Get
		src.mc = memcache.New(memcacheURI)
	}
	return src, nil
}

func (m *MASSource) Close() error {
	return m.db.Close()
}

func (m *MASSource) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func formatNullableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(ISOFormat)
}

// Intersects runs mas_intersects for q and decodes the JSON payload.
func (m *MASSource) Intersects(ctx context.Context, q MASQuery) (*MetadataResponse, error) {
	args := []string{
		q.Collection,
		q.SRS,
		q.WKT,
		formatNullableTime(q.Start),
		formatNullableTime(q.End),
		strings.Join(q.Namespaces, ","),
	}

	var hash string
	var payload []byte
	if m.mc != nil {
		buff := md5.Sum([]byte(strings.Join(args, "\x00")))
		hash = hex.EncodeToString(buff[:])
		if cached, err := m.mc.Get(hash); err == nil {
			payload = cached.Value
		}
	}

	if payload == nil {
		var raw string
		err := m.db.QueryRowContext(ctx,
			`select mas_intersects(
				nullif($1,'')::text,
				nullif($2,'')::text,
				nullif($3,'')::text,
				null::integer,
				nullif($4,'')::timestamptz,
				nullif($5,'')::timestamptz,
				string_to_array(nullif($6,''), ','),
				null::numeric,
				null::text
			) as json`,
			args[0], args[1], args[2], args[3], args[4], args[5],
		).Scan(&raw)
		if err != nil {
			return nil, fmt.Errorf("MAS query for %s failed: %v", q.Collection, err)
		}
		payload = []byte(raw)

		if m.mc != nil {
			// memcache may not necessarily retain this anyway
			if err = m.mc.Set(&memcache.Item{Key: hash, Value: payload}); err != nil && m.Verbose {
				log.Printf("memcache set failed: %v", err)
			}
		}
	}

	var resp MetadataResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid MAS response: %v", err)
	}
	return &resp, nil
}

// Catalog builds a temporal catalog from the first timestamp of every
// dataset MAS returns for q. A dataset without timestamps fails the build.
func (m *MASSource) Catalog(ctx context.Context, q MASQuery) (*TemporalCatalog, error) {
	resp, err := m.Intersects(ctx, q)
	if err != nil {
		return nil, err
	}
	return catalogFromDatasets(resp.GDALDatasets)
}

func catalogFromDatasets(datasets []MASDataset) (*TemporalCatalog, error) {
	stamps := make(map[string][]time.Time, len(datasets))
	paths := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		if _, found := stamps[ds.DSName]; !found {
			paths = append(paths, ds.DSName)
		}
		stamps[ds.DSName] = append(stamps[ds.DSName], ds.TimeStamps...)
	}

	resolver := ResolverFunc(func(path string) (time.Time, error) {
		ts := stamps[path]
		if len(ts) == 0 {
			return time.Time{}, fmt.Errorf("no timestamps in MAS index")
		}
		return ts[0], nil
	})
	return NewTemporalCatalog(paths, nil, resolver)
}
