package crawl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

var sidecarDateFormats = []string{"2006-01-02T15:04:05Z", time.RFC3339Nano, "2006-01-02 15:04:05.0", "2006-1-2 15:4:5"}

// sidecarMetadata is the subset of an ARD metadata document holding the
// acquisition time.
type sidecarMetadata struct {
	Extent struct {
		Center_dt string
	}
	Properties struct {
		Datetime string `yaml:"datetime"`
	}
}

// SidecarPath returns the metadata document expected next to a tile,
// <dir>/<base>.yaml.
func SidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".yaml"
}

// SidecarTime reads the acquisition time of a tile from its YAML sidecar,
// using extent.center_dt or properties.datetime.
func SidecarTime(path string) (time.Time, error) {
	filename := SidecarPath(path)
	rawData, err := os.ReadFile(filename)
	if err != nil {
		return time.Time{}, err
	}

	md := sidecarMetadata{}
	if err = yaml.Unmarshal(rawData, &md); err != nil {
		return time.Time{}, fmt.Errorf("invalid sidecar %s: %v", filename, err)
	}

	raw := md.Extent.Center_dt
	if raw == "" {
		raw = md.Properties.Datetime
	}
	if raw == "" {
		return time.Time{}, fmt.Errorf("sidecar %s has no acquisition time", filename)
	}
	for _, format := range sidecarDateFormats {
		if t, err := time.ParseInLocation(format, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time string: %s", raw)
}
