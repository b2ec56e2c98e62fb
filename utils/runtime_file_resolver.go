package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RuntimeFileResolver finds relative data dirs and rule files by searching
// a colon separated path list, then the working directory, then the
// directory of the executable.
type RuntimeFileResolver struct {
	DataDirs []string

	mu         sync.Mutex
	fileLookup map[string]string
}

func NewRuntimeFileResolver(searchPath string) *RuntimeFileResolver {
	resolver := &RuntimeFileResolver{
		fileLookup: make(map[string]string),
	}

	for _, dataDir := range filepath.SplitList(searchPath) {
		dataDir = strings.TrimSpace(dataDir)
		if len(dataDir) == 0 {
			continue
		}
		resolver.DataDirs = append(resolver.DataDirs, os.ExpandEnv(dataDir))
	}

	cwd, err := os.Getwd()
	if err == nil {
		resolver.DataDirs = append(resolver.DataDirs, cwd)
	} else {
		log.Printf("Failed to get CWD: %v", err)
	}

	if exe, err := os.Executable(); err == nil {
		resolver.DataDirs = append(resolver.DataDirs, filepath.Dir(exe))
	}
	return resolver
}

// Resolve returns the first existing match of filePath. Environment
// variables in filePath are expanded; absolute paths are only checked.
func (r *RuntimeFileResolver) Resolve(filePath string) (string, error) {
	filePath = os.ExpandEnv(filePath)
	if filepath.IsAbs(filePath) {
		_, err := os.Stat(filePath)
		return filePath, err
	}

	for _, dataDir := range r.DataDirs {
		path := filepath.Clean(filepath.Join(dataDir, filePath))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return filePath, fmt.Errorf("Failed to resolve %v", filePath)
}

// Lookup is Resolve with memoisation of successful results.
func (r *RuntimeFileResolver) Lookup(filePath string) (string, error) {
	r.mu.Lock()
	path, found := r.fileLookup[filePath]
	r.mu.Unlock()
	if found {
		return path, nil
	}

	path, err := r.Resolve(filePath)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.fileLookup[filePath] = path
	r.mu.Unlock()
	return path, nil
}
