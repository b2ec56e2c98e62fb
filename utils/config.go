package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var EtcDir = "."
var DataDir = "."

// string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

const (
	SourcePosix = "posix"
	SourceMAS   = "mas"
)

type ServiceConfig struct {
	LogDir           string            `json:"log_dir"`
	MetricsLog       bool              `json:"metrics_log"`
	MASDatabase      string            `json:"mas_database"`
	MemcacheURI      string            `json:"memcache"`
	RulesFile        string            `json:"rules_file"`
	CrawlConcurrency int               `json:"crawl_concurrency"`
	GDALEnv          map[string]string `json:"gdal_env"`
}

// Collection is one time-indexed set of tiles and the read defaults used
// when querying it. Tiles come either from crawling DataDir with the named
// rule set, or from the MAS index under MASPath.
type Collection struct {
	Name              string   `json:"name"`
	Source            string   `json:"source"`
	DataDir           string   `json:"data_dir"`
	RuleSet           string   `json:"rule_set"`
	MASPath           string   `json:"mas_path"`
	Namespaces        []string `json:"namespaces"`
	TargetCRS         string   `json:"target_crs"`
	Resampling        string   `json:"resampling"`
	CastType          string   `json:"cast_type"`
	Concurrency       int      `json:"concurrency"`
	OutDir            string   `json:"out_dir"`
	KeepIntermediates bool     `json:"keep_intermediates"`
	StartISODate      string   `json:"start_isodate"`
	EndISODate        string   `json:"end_isodate"`

	Start     *time.Time `json:"-"`
	End       *time.Time `json:"-"`
	NameSpace string     `json:"-"`
}

// Config is the configuration of one namespace: service settings plus the
// collections it exposes.
type Config struct {
	ServiceConfig ServiceConfig `json:"service_config"`
	Collections   []Collection  `json:"collections"`
}

func LoadAllConfigFiles(rootDir string) (map[string]*Config, error) {
	configMap := make(map[string]*Config)
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.Name() == "config.json" {
			relPath, _ := filepath.Rel(rootDir, filepath.Dir(path))
			log.Printf("Loading config file: %s under namespace: %s\n", path, relPath)

			config := &Config{}
			e := config.LoadConfigFile(path)
			if e != nil {
				return e
			}

			configMap[relPath] = config

			for i := range config.Collections {
				ns := relPath
				if relPath == "." {
					ns = ""
				}
				config.Collections[i].NameSpace = ns
			}
		}
		return nil
	})

	if err == nil && len(configMap) == 0 {
		err = fmt.Errorf("No config file found")
	}

	return configMap, err
}

// LoadConfigFile unmarshals the config.json document and validates the
// collections it declares.
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	err = json.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v", configFile, err)
	}

	seen := make(map[string]struct{})
	for i := range config.Collections {
		coll := &config.Collections[i]
		if strings.TrimSpace(coll.Name) == "" {
			return fmt.Errorf("collection %d in %s has no name", i, configFile)
		}
		if _, found := seen[coll.Name]; found {
			return fmt.Errorf("duplicate collection %s in %s", coll.Name, configFile)
		}
		seen[coll.Name] = struct{}{}

		if coll.Source == "" {
			coll.Source = SourcePosix
		}
		switch coll.Source {
		case SourcePosix:
			if coll.DataDir == "" || coll.RuleSet == "" {
				return fmt.Errorf("collection %s: posix collections need data_dir and rule_set", coll.Name)
			}
		case SourceMAS:
			if coll.MASPath == "" || config.ServiceConfig.MASDatabase == "" {
				return fmt.Errorf("collection %s: mas collections need mas_path and service_config.mas_database", coll.Name)
			}
		default:
			return fmt.Errorf("collection %s: unknown source %s", coll.Name, coll.Source)
		}

		if coll.Concurrency <= 0 {
			coll.Concurrency = 1
		}
		if coll.Start, err = ParseISODate(coll.StartISODate); err != nil {
			return fmt.Errorf("collection %s: invalid start_isodate: %v", coll.Name, err)
		}
		if coll.End, err = ParseISODate(coll.EndISODate); err != nil {
			return fmt.Errorf("collection %s: invalid end_isodate: %v", coll.Name, err)
		}
	}

	if config.ServiceConfig.CrawlConcurrency <= 0 {
		config.ServiceConfig.CrawlConcurrency = 4
	}
	return nil
}

// Collection looks up a collection by name.
func (config *Config) Collection(name string) (*Collection, error) {
	for i := range config.Collections {
		if config.Collections[i].Name == name {
			return &config.Collections[i], nil
		}
	}
	return nil, fmt.Errorf("collection %s not found", name)
}

// FindCollection searches every namespace of configMap for a collection.
// A "namespace/name" form restricts the search to one namespace.
func FindCollection(configMap map[string]*Config, name string) (*Config, *Collection, error) {
	ns := ""
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		ns, name = name[:idx], name[idx+1:]
	}
	for key, config := range configMap {
		if ns != "" && key != ns {
			continue
		}
		if coll, err := config.Collection(name); err == nil {
			return config, coll, nil
		}
	}
	return nil, nil, fmt.Errorf("collection %s not found", name)
}

// ParseISODate accepts ISOFormat, RFC 3339 or a plain date. An empty string
// yields nil.
func ParseISODate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{ISOFormat, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("could not parse time string: %s", s)
}
