package main

/* rscube answers time range queries against a collection of georeferenced
   raster tiles. The collection is declared in a config.json document and
   its tiles are either crawled from a data directory, dated with a rule
   set, or listed from a MAS index. Matching tiles are cropped to the query
   region, reprojected when needed and written out as one GeoTIFF per time
   slice together with a provenance CSV. */

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nci/rscube/crawl"
	"github.com/nci/rscube/metrics"
	proc "github.com/nci/rscube/processor"
	"github.com/nci/rscube/raster"
	"github.com/nci/rscube/utils"
)

var (
	configDir   = flag.String("config", utils.EtcDir, "Config directory.")
	dataDir     = flag.String("data_dir", utils.DataDir, "Search path for data directories and rule files.")
	collection  = flag.String("collection", "", "Collection name, optionally namespace/name.")
	startDate   = flag.String("start", "", "Start of the time range (inclusive).")
	endDate     = flag.String("end", "", "End of the time range (inclusive).")
	index       = flag.Int("index", -1, "Select the tile at this catalog position instead of a time range.")
	bbox        = flag.String("bbox", "", "Query region as left,bottom,right,top.")
	geomWKT     = flag.String("wkt", "", "Query region as WKT polygon.")
	geojsonFile = flag.String("geojson", "", "Query region from a GeoJSON file.")
	regionSRS   = flag.String("srs", "EPSG:4326", "CRS of the query region.")
	resolution  = flag.String("res", "", "Pixel size of the query region as xres[,yres] in region CRS units. Defaults to the native pixel size of each tile.")
	targetCRS   = flag.String("crs", "", "Target CRS. Defaults to the collection target_crs.")
	outDir      = flag.String("out", raster.DefaultOutDir, "Output directory.")
	keep        = flag.Bool("keep", false, "Keep intermediate files.")
	listOnly    = flag.Bool("list", false, "Write the collection catalog as CSV to stdout and exit.")
	mute        = flag.Bool("mute", false, "Hide the progress bar.")
	verbose     = flag.Bool("v", false, "Verbose mode.")
)

func loadEnv() {
	err := godotenv.Load(".env")
	if err != nil {
		err = godotenv.Load("../.env")
	}
	if err != nil && *verbose {
		log.Printf("no .env file loaded: %v", err)
	}
}

func main() {
	flag.Parse()
	loadEnv()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if *collection == "" {
		return fmt.Errorf("-collection is required")
	}

	configMap, err := utils.LoadAllConfigFiles(*configDir)
	if err != nil {
		return err
	}
	config, coll, err := utils.FindCollection(configMap, *collection)
	if err != nil {
		return err
	}
	utils.InitGdal(config.ServiceConfig.GDALEnv)

	var logger metrics.Logger
	if config.ServiceConfig.MetricsLog {
		if config.ServiceConfig.LogDir != "" {
			fileLogger, err := metrics.NewFileLogger(config.ServiceConfig.LogDir, 0, 0, *verbose)
			if err != nil {
				return err
			}
			defer fileLogger.Close()
			logger = fileLogger
		} else {
			logger = metrics.NewStdoutLogger()
		}
	}
	mc := metrics.NewMetricsCollector(logger)
	mc.Info.Query.Collection = coll.Name

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = query(ctx, config, coll, mc)
	mc.Log(err)
	return err
}

func query(ctx context.Context, config *utils.Config, coll *utils.Collection, mc *metrics.MetricsCollector) error {
	region, err := parseRegion()
	if err != nil {
		return err
	}

	start, end := coll.Start, coll.End
	if *startDate != "" {
		if start, err = utils.ParseISODate(*startDate); err != nil {
			return err
		}
	}
	if *endDate != "" {
		if end, err = utils.ParseISODate(*endDate); err != nil {
			return err
		}
	}

	t0 := time.Now()
	catalog, err := buildCatalog(ctx, config, coll, region, start, end)
	if err != nil {
		return err
	}
	if *verbose {
		log.Printf("%s: %d tiles catalogued in %v", coll.Name, catalog.Len(), time.Since(t0))
	}

	if *listOnly {
		return catalog.WriteCSV(os.Stdout)
	}

	q := proc.TimeQuery{
		Start: start,
		End:   end,
		ReadOptions: proc.ReadOptions{
			Region:            region,
			TargetCRS:         coll.TargetCRS,
			CastType:          coll.CastType,
			Resampling:        coll.Resampling,
			Concurrency:       coll.Concurrency,
			KeepIntermediates: coll.KeepIntermediates || *keep,
			OutDir:            *outDir,
			Mute:              *mute,
			Metrics:           mc,
		},
	}
	if *targetCRS != "" {
		q.TargetCRS = *targetCRS
	}
	if *index >= 0 {
		q.Start, q.End = nil, nil
		q.Index = index
	}

	cube, err := proc.NewTimeSeriesReader(catalog, *verbose).Query(ctx, q)
	if err != nil {
		return err
	}

	written, err := cube.WriteSlices(*outDir, coll.Name)
	if err != nil {
		return err
	}
	provenance := filepath.Join(*outDir, coll.Name+"_provenance.csv")
	f, err := os.Create(provenance)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", provenance, err)
	}
	defer f.Close()
	if err = cube.WriteProvenanceCSV(f); err != nil {
		return err
	}

	for _, failed := range cube.Failures {
		log.Printf("skipped %s: %v", failed.Path, failed.Err)
	}
	log.Printf("%s: wrote %d slices to %s", coll.Name, len(written), *outDir)
	return nil
}

func buildCatalog(ctx context.Context, config *utils.Config, coll *utils.Collection, region *raster.Region, start, end *time.Time) (*crawl.TemporalCatalog, error) {
	switch coll.Source {
	case utils.SourceMAS:
		mas, err := crawl.NewMASSource(config.ServiceConfig.MASDatabase, config.ServiceConfig.MemcacheURI, 0, 0)
		if err != nil {
			return nil, err
		}
		defer mas.Close()
		mas.Verbose = *verbose

		q := crawl.MASQuery{
			Collection: coll.MASPath,
			Start:      start,
			End:        end,
			Namespaces: coll.Namespaces,
		}
		if region != nil {
			q.SRS = region.CRS()
			q.WKT = region.WKT()
		}
		return mas.Catalog(ctx, q)

	default:
		resolver := utils.NewRuntimeFileResolver(*dataDir + string(os.PathListSeparator) + *configDir)
		rulesFile, err := resolver.Lookup(config.ServiceConfig.RulesFile)
		if err != nil {
			return nil, err
		}
		ruleSets, err := crawl.LoadRuleSets(rulesFile)
		if err != nil {
			return nil, err
		}
		rs, found := ruleSets[coll.RuleSet]
		if !found {
			return nil, fmt.Errorf("rule set %s not found in %s", coll.RuleSet, rulesFile)
		}
		collDataDir, err := resolver.Lookup(coll.DataDir)
		if err != nil {
			return nil, err
		}
		return rs.Catalog(collDataDir, config.ServiceConfig.CrawlConcurrency)
	}
}

// parseRegion builds the query region from -bbox, -wkt or -geojson. No
// region flag means whole tiles are read.
func parseRegion() (*raster.Region, error) {
	xRes, yRes, err := parseResolution(*resolution)
	if err != nil {
		return nil, err
	}

	switch {
	case *bbox != "":
		parts := strings.Split(*bbox, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("-bbox needs left,bottom,right,top: %s", *bbox)
		}
		var coords [4]float64
		for i, p := range parts {
			if coords[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
				return nil, fmt.Errorf("invalid -bbox value %q: %v", p, err)
			}
		}
		return raster.RegionFromBounds(coords[0], coords[1], coords[2], coords[3], *regionSRS, xRes, yRes)
	case *geomWKT != "":
		return raster.RegionFromWKT(*geomWKT, *regionSRS, xRes, yRes)
	case *geojsonFile != "":
		data, err := os.ReadFile(*geojsonFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %v", *geojsonFile, err)
		}
		return raster.RegionFromGeoJSON(data, *regionSRS, xRes, yRes)
	}
	return nil, nil
}

func parseResolution(s string) (float64, float64, error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("-res needs xres[,yres]: %s", s)
	}
	xRes, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid -res: %v", err)
	}
	yRes := xRes
	if len(parts) == 2 {
		if yRes, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
			return 0, 0, fmt.Errorf("invalid -res: %v", err)
		}
	}
	return xRes, yRes, nil
}
