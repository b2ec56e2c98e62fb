package utils

import (
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// InitGdal sets GDAL configuration defaults in the environment, applies
// overrides and registers the drivers. Variables already present in the
// environment win over the defaults but not over overrides.
func InitGdal(overrides map[string]string) {
	setDefaultEnv("GDAL_PAM_ENABLED", "NO")
	setDefaultEnv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
	setDefaultEnv("GDAL_MAX_DATASET_POOL_SIZE", "10")
	setDefaultEnv("GDAL_NUM_THREADS", "ALL_CPUS")
	setDefaultEnv("GTIFF_SRS_SOURCE", "EPSG")

	exeFilePath, err := os.Executable()
	if err == nil {
		setDefaultEnv("GDAL_DRIVER_PATH", filepath.Dir(exeFilePath))
	}

	for k, v := range overrides {
		os.Setenv(k, v)
	}

	godal.RegisterAll()
}

func setDefaultEnv(envVar string, defaultVal string) {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, defaultVal)
	}
}
