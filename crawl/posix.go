package crawl

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const DefaultMaxPosixErrors = 1000

// PosixInfo describes one file found by the crawler.
type PosixInfo struct {
	FilePath string    `json:"file_path" csv:"path"`
	Size     int64     `json:"size" csv:"size"`
	MTime    time.Time `json:"mtime" csv:"-"`
	ID       string    `json:"id" csv:"id"`
}

func GetPosixInfo(filePath string, fStat os.FileInfo) *PosixInfo {
	mtime := fStat.ModTime().UTC()
	fileSignature := fmt.Sprintf("%s%d%d", filePath, fStat.Size(), mtime.UnixNano())
	return &PosixInfo{
		FilePath: filePath,
		Size:     fStat.Size(),
		MTime:    mtime,
		ID:       fmt.Sprintf("%x", md5.Sum([]byte(fileSignature))),
	}
}

// PosixCrawler walks a directory tree with at most conc directories read
// concurrently. Directories beyond the limit are walked by the goroutine
// that found them.
type PosixCrawler struct {
	include       Predicate
	followSymlink bool
	concLimit     chan struct{}
	wg            sync.WaitGroup

	mu     sync.Mutex
	infos  []*PosixInfo
	errors []string
}

func NewPosixCrawler(conc int, include Predicate, followSymlink bool) *PosixCrawler {
	if conc < 1 {
		conc = 1
	}
	if include == nil {
		include = All
	}
	return &PosixCrawler{
		include:       include,
		followSymlink: followSymlink,
		concLimit:     make(chan struct{}, conc),
	}
}

// Crawl returns every accepted regular file under rootDir sorted by path.
// Errors on individual entries do not stop the walk; they are joined into
// the returned error alongside the files that were found. Each call starts
// from an empty result, but calls must not overlap.
func (pc *PosixCrawler) Crawl(rootDir string) ([]*PosixInfo, error) {
	pc.infos = nil
	pc.errors = nil

	absRootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(absRootDir); err != nil {
		return nil, err
	}

	pc.wg.Add(1)
	pc.concLimit <- struct{}{}
	pc.crawlDir(absRootDir, false)
	pc.wg.Wait()

	sort.Slice(pc.infos, func(i, j int) bool { return pc.infos[i].FilePath < pc.infos[j].FilePath })
	if len(pc.errors) > 0 {
		return pc.infos, fmt.Errorf("%s", strings.Join(pc.errors, "\n"))
	}
	return pc.infos, nil
}

// ListFiles crawls rootDir and returns the accepted file paths.
func ListFiles(rootDir string, conc int, include Predicate, followSymlink bool) ([]string, error) {
	infos, err := NewPosixCrawler(conc, include, followSymlink).Crawl(rootDir)
	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.FilePath
	}
	return paths, err
}

func (pc *PosixCrawler) reportError(err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	switch {
	case len(pc.errors) < DefaultMaxPosixErrors:
		pc.errors = append(pc.errors, err.Error())
	case len(pc.errors) == DefaultMaxPosixErrors:
		pc.errors = append(pc.errors, " ... too many errors")
	}
}

func (pc *PosixCrawler) crawlDir(currPath string, serialised bool) {
	defer pc.wg.Done()
	if !serialised {
		defer func() { <-pc.concLimit }()
	}
	entries, err := os.ReadDir(currPath)
	if err != nil {
		pc.reportError(fmt.Errorf("could not read dir %s: %v", currPath, err))
		return
	}

	for _, entry := range entries {
		filePath := filepath.Join(currPath, entry.Name())
		mode := entry.Type()

		var fStat os.FileInfo
		if mode&os.ModeSymlink != 0 {
			if !pc.followSymlink {
				continue
			}
			fStat, err = os.Stat(filePath)
			if err != nil {
				pc.reportError(err)
				continue
			}
			mode = fStat.Mode().Type()
		}

		var fileType string
		switch {
		case mode.IsDir():
			fileType = TypeDir
		case mode.IsRegular():
			fileType = TypeFile
		default:
			continue
		}

		ok, err := pc.include(filePath, fileType)
		if err != nil {
			pc.reportError(err)
			continue
		}
		if !ok {
			continue
		}

		if fileType == TypeDir {
			pc.wg.Add(1)
			select {
			case pc.concLimit <- struct{}{}:
				go pc.crawlDir(filePath, false)
			default:
				pc.crawlDir(filePath, true)
			}
			continue
		}

		if fStat == nil {
			fStat, err = entry.Info()
			if err != nil {
				pc.reportError(err)
				continue
			}
		}
		info := GetPosixInfo(filePath, fStat)
		pc.mu.Lock()
		pc.infos = append(pc.infos, info)
		pc.mu.Unlock()
	}
}
