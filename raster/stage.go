package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	StageDirName   = "query_out"
	CroppedSuffix  = "_cropped"
	WarpedSuffix   = "_warped"
	DefaultOutDir  = "out"
	stageDirPrefix = "stage-"
	stageRetries   = 3
)

// Stage is a private scratch directory for the intermediate files of one
// read. Every stage lives under <outDir>/query_out so concurrent reads never
// share artifact paths.
type Stage struct {
	dir       string
	keep      bool
	artifacts []string
}

func NewStage(outDir string, keep bool) (*Stage, error) {
	if outDir == "" {
		outDir = DefaultOutDir
	}
	root := filepath.Join(outDir, StageDirName)
	dir, err := makeStageDir(root)
	for i := 0; i < stageRetries && os.IsNotExist(err); i++ {
		// another read removed the empty root between the two calls
		dir, err = makeStageDir(root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %v", err)
	}
	return &Stage{dir: dir, keep: keep}, nil
}

func makeStageDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(root, stageDirPrefix)
}

func (s *Stage) Dir() string { return s.dir }

// ArtifactPath names the intermediate derived from src, e.g.
// scene.tif -> <stage>/scene_cropped.tif. Non GeoTIFF sources get a .tif
// extension since artifacts are always written as GeoTIFF.
func (s *Stage) ArtifactPath(src, suffix string) string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext)
	switch strings.ToLower(ext) {
	case ".tif", ".tiff":
	default:
		ext = ".tif"
	}
	return filepath.Join(s.dir, base+suffix+ext)
}

// Write stores g as the artifact of src with the given suffix.
func (s *Stage) Write(g *Grid, src, suffix string) (string, error) {
	path := s.ArtifactPath(src, suffix)
	if err := WriteGrid(g, path); err != nil {
		return "", err
	}
	s.artifacts = append(s.artifacts, path)
	return path, nil
}

// Drop deletes one artifact once it has been consumed, unless intermediates
// are kept.
func (s *Stage) Drop(path string) error {
	if s.keep {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact %s: %v", path, err)
	}
	for i, a := range s.artifacts {
		if a == path {
			s.artifacts = append(s.artifacts[:i], s.artifacts[i+1:]...)
			break
		}
	}
	return nil
}

// Artifacts lists the files written so far.
func (s *Stage) Artifacts() []string {
	return append([]string(nil), s.artifacts...)
}

// Release removes the stage directory unless intermediates are kept.
func (s *Stage) Release() error {
	if s.keep {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove staging directory %s: %v", s.dir, err)
	}
	s.artifacts = nil
	return nil
}

// RemoveStageRoot removes <outDir>/query_out when it is empty. A root that
// still holds a live stage is left alone, and NewStage recreates a root
// removed under it.
func RemoveStageRoot(outDir string) {
	if outDir == "" {
		outDir = DefaultOutDir
	}
	os.Remove(filepath.Join(outDir, StageDirName))
}
