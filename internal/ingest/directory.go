package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/lease-abstractor/constants"
)

type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
}

// CollectPDFs expands the given paths into document files. Plain files are
// kept as given; directories are walked in lexical order, which is also the
// order documents are added in, so "01 Lease.pdf, 02 Amendment.pdf" naming
// yields chronological order.
func CollectPDFs(paths []string, skipHidden bool) ([]string, DirStats, error) {
	var (
		out   []string
		stats DirStats
	)
	for _, root := range paths {
		if strings.TrimSpace(root) == "" {
			return nil, stats, errors.New("empty path")
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, stats, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			stats.Scanned++
			stats.Matched++
			out = append(out, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && skipHidden && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			stats.Scanned++
			if !AllowedExt(filepath.Ext(path)) {
				stats.Skipped++
				return nil
			}
			stats.Matched++
			out = append(out, path)
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return out, stats, nil
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
