package crawl

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Date sources a rule set can use.
const (
	DateFromName    = "name"
	DateFromSidecar = "sidecar"
)

// RuleSet describes how the tiles of one collection are found and dated.
//
//	collections:
//	  - name: s2_ndvi
//	    include: 'type == "d" || ext == ".tif"'
//	    pattern: '^S2_(\d{4})(\d{2})(\d{2})_ndvi\.tif$'
//	    fields: [year, month, day]
type RuleSet struct {
	Name          string            `yaml:"name"`
	Pattern       string            `yaml:"pattern"`
	Fields        []string          `yaml:"fields"`
	Groups        map[string]string `yaml:"groups"`
	Glob          string            `yaml:"glob"`
	Include       string            `yaml:"include"`
	DateSource    string            `yaml:"date_source"`
	FollowSymlink bool              `yaml:"follow_symlink"`
}

type ruleFile struct {
	Collections []*RuleSet `yaml:"collections"`
}

// LoadRuleSets reads a YAML rule file and indexes its rule sets by name.
func LoadRuleSets(path string) (map[string]*RuleSet, error) {
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleSets(rawData)
}

func ParseRuleSets(rawData []byte) (map[string]*RuleSet, error) {
	rf := ruleFile{}
	if err := yaml.Unmarshal(rawData, &rf); err != nil {
		return nil, fmt.Errorf("invalid rule file: %v", err)
	}

	ruleSets := make(map[string]*RuleSet, len(rf.Collections))
	for i, rs := range rf.Collections {
		if strings.TrimSpace(rs.Name) == "" {
			return nil, fmt.Errorf("rule set %d has no name", i)
		}
		if _, found := ruleSets[rs.Name]; found {
			return nil, fmt.Errorf("duplicate rule set: %s", rs.Name)
		}
		if _, err := rs.Resolver(); err != nil {
			return nil, fmt.Errorf("rule set %s: %v", rs.Name, err)
		}
		if _, err := rs.Predicate(); err != nil {
			return nil, fmt.Errorf("rule set %s: %v", rs.Name, err)
		}
		ruleSets[rs.Name] = rs
	}
	return ruleSets, nil
}

// Resolver builds the date resolver of the rule set: the YAML sidecar when
// date_source is "sidecar", field order when fields are listed, named groups
// otherwise.
func (rs *RuleSet) Resolver() (*DateResolver, error) {
	switch rs.DateSource {
	case DateFromSidecar:
		return ResolverFunc(SidecarTime), nil
	case "", DateFromName:
	default:
		return nil, fmt.Errorf("unknown date source: %s", rs.DateSource)
	}

	if rs.Pattern == "" {
		return nil, fmt.Errorf("a filename pattern is required")
	}
	if len(rs.Fields) > 0 {
		return FieldOrder(rs.Pattern, rs.Fields...)
	}
	return NamedGroups(rs.Pattern, rs.Groups)
}

// Predicate combines the glob and the include expression. Both must accept a
// path when both are set.
func (rs *RuleSet) Predicate() (Predicate, error) {
	var preds []Predicate
	if rs.Glob != "" {
		p, err := GlobPredicate(rs.Glob)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if strings.TrimSpace(rs.Include) != "" {
		p, err := ExpressionPredicate(rs.Include)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	switch len(preds) {
	case 0:
		return All, nil
	case 1:
		return preds[0], nil
	}
	return func(path, fileType string) (bool, error) {
		for _, p := range preds {
			ok, err := p(path, fileType)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}, nil
}

// Catalog crawls dataDir with conc concurrent directory reads and builds the
// temporal catalog of the collection.
func (rs *RuleSet) Catalog(dataDir string, conc int) (*TemporalCatalog, error) {
	include, err := rs.Predicate()
	if err != nil {
		return nil, err
	}
	resolver, err := rs.Resolver()
	if err != nil {
		return nil, err
	}
	paths, err := ListFiles(dataDir, conc, include, rs.FollowSymlink)
	if err != nil {
		return nil, fmt.Errorf("crawling %s: %v", dataDir, err)
	}
	return NewTemporalCatalog(paths, include, resolver)
}
