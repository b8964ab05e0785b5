package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// rotateLogs shifts path to path.1 and each existing archive one slot up,
// keeping at most archives numbered copies. With cleanup set, stale archives
// beyond the limit (left over from a lower setting) are removed as well.
// A missing log file is a no-op.
func rotateLogs(path string, archives int, cleanup bool) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if archives < 1 {
		archives = 1
	}

	// The oldest slot falls off the end.
	os.Remove(archiveName(path, archives))
	for i := archives - 1; i >= 1; i-- {
		src := archiveName(path, i)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, archiveName(path, i+1)); err != nil {
				return err
			}
		}
	}
	if err := os.Rename(path, archiveName(path, 1)); err != nil {
		return err
	}

	if cleanup {
		return removeStaleArchives(path, archives)
	}
	return nil
}

func archiveName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func removeStaleArchives(path string, archives int) error {
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return err
	}
	for _, m := range matches {
		suffix := strings.TrimPrefix(m, path+".")
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > archives {
			if err := os.Remove(m); err != nil {
				return err
			}
		}
	}
	return nil
}
