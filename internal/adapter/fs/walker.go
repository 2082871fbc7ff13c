package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// patternSet is a list of doublestar globs matched against slash-separated
// paths relative to the walk root.
type patternSet []string

func (p patternSet) match(rel string) bool {
	for _, pattern := range p {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (p patternSet) validate() error {
	for _, pattern := range p {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	return nil
}

// Walker finds ingestible documents under a root. Directories matching an
// exclude pattern (with a trailing slash) are pruned whole.
type Walker struct {
	includes patternSet
	excludes patternSet
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{includes: includes, excludes: excludes}
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

func fileInfo(path string, info fs.FileInfo) FileInfo {
	return FileInfo{Path: path, ModTime: info.ModTime().Unix(), Size: info.Size()}
}

// Walk returns matching files in lexical order. A root that is a regular
// file is returned as is, without pattern matching.
func (w *Walker) Walk(ctx context.Context, root string) ([]FileInfo, error) {
	if err := w.includes.validate(); err != nil {
		return nil, err
	}
	if err := w.excludes.validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return []FileInfo{fileInfo(root, st)}, nil
	}

	var found []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			if rel != "." && w.excludes.match(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		case !w.includes.match(rel), w.excludes.match(rel):
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		found = append(found, fileInfo(path, info))
		return nil
	})
	return found, err
}
