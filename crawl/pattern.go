package crawl

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// File types passed to predicates.
const (
	TypeFile = "f"
	TypeDir  = "d"
)

// Predicate decides whether a path is part of a collection. fileType is
// TypeFile or TypeDir; directories rejected by a predicate are not walked.
type Predicate func(path, fileType string) (bool, error)

// All accepts every path.
func All(path, fileType string) (bool, error) { return true, nil }

// GlobPredicate matches the base name of files against a shell pattern.
// Directories are always accepted.
func GlobPredicate(pattern string) (Predicate, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid glob %q: %v", pattern, err)
	}
	return func(path, fileType string) (bool, error) {
		if fileType == TypeDir {
			return true, nil
		}
		return filepath.Match(pattern, filepath.Base(path))
	}, nil
}

// RegexPredicate matches the base name of files against a regular
// expression. Directories are always accepted.
func RegexPredicate(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %v", pattern, err)
	}
	return func(path, fileType string) (bool, error) {
		if fileType == TypeDir {
			return true, nil
		}
		return re.MatchString(filepath.Base(path)), nil
	}, nil
}

var expressionVariables = map[string]struct{}{"path": {}, "name": {}, "ext": {}, "type": {}}

// ExpressionPredicate compiles a govaluate expression over the variables
// path, name (base name), ext and type ("f" or "d"), for example
//
//	type == "d" || (ext == ".tif" && name =~ "^S2")
//
// An empty expression accepts everything.
func ExpressionPredicate(pattern string) (Predicate, error) {
	expr, err := parsePatternExpression(pattern)
	if err != nil {
		return nil, err
	}
	if expr == nil {
		return All, nil
	}
	return func(path, fileType string) (bool, error) {
		return evaluatePatternExpression(expr, path, fileType)
	}, nil
}

func parsePatternExpression(pattern string) (*goeval.EvaluableExpression, error) {
	if len(strings.TrimSpace(pattern)) == 0 {
		return nil, nil
	}

	expr, err := goeval.NewEvaluableExpression(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern expression: %v", err)
	}

	for _, token := range expr.Tokens() {
		if token.Kind == goeval.VARIABLE {
			varName, ok := token.Value.(string)
			if !ok {
				return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
			}
			if _, found := expressionVariables[varName]; !found {
				return nil, fmt.Errorf("variable %v is not supported, valid variables are path, name, ext and type", varName)
			}
		}
	}
	return expr, nil
}

func evaluatePatternExpression(expr *goeval.EvaluableExpression, path, fileType string) (bool, error) {
	name := filepath.Base(path)
	parameters := map[string]interface{}{
		"path": path,
		"name": name,
		"ext":  strings.ToLower(filepath.Ext(name)),
		"type": fileType,
	}
	result, err := expr.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("pattern expression: %v", err)
	}

	val, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("pattern expression: result '%v' is not boolean", result)
	}
	return val, nil
}
