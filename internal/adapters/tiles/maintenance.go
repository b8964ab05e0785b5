// Package tiles keeps the offline map tile cache within its age and size
// limits and prefetches tiles along the travel direction.
package tiles

import (
	"container/heap"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PurgeOld deletes cache files whose mtime is older than maxAgeDays and
// returns the number removed. Directories are left in place.
func PurgeOld(dir string, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	removed := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("purge %s: %w", dir, err)
	}
	return removed, nil
}

// cacheFile is a heap entry ordered by mtime, oldest first.
type cacheFile struct {
	path  string
	size  int64
	mtime time.Time
}

type fileHeap []cacheFile

func (h fileHeap) Len() int            { return len(h) }
func (h fileHeap) Less(i, j int) bool  { return h[i].mtime.Before(h[j].mtime) }
func (h fileHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *fileHeap) Push(x interface{}) { *h = append(*h, x.(cacheFile)) }
func (h *fileHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EnforceLimit deletes the oldest cache files until the total size fits under
// limitMB. Returns the number of files removed.
func EnforceLimit(dir string, limitMB int) (int, error) {
	if limitMB <= 0 {
		return 0, nil
	}
	limit := int64(limitMB) * 1024 * 1024

	files := &fileHeap{}
	var total int64
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		heap.Push(files, cacheFile{path: path, size: info.Size(), mtime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	removed := 0
	for total > limit && files.Len() > 0 {
		oldest := heap.Pop(files).(cacheFile)
		if err := os.Remove(oldest.path); err != nil {
			return removed, err
		}
		total -= oldest.size
		removed++
	}
	return removed, nil
}

// VacuumMBTiles compacts the MBTiles container in place.
func VacuumMBTiles(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open mbtiles %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum %s: %w", path, err)
	}
	slog.Info("mbtiles vacuumed", "path", path)
	return nil
}

// CacheStats returns the file count and total byte size of the cache.
func CacheStats(dir string) (count int, bytes int64, err error) {
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		count++
		bytes += info.Size()
		return nil
	})
	return count, bytes, err
}
