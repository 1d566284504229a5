package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"filesentry/logger"
	"filesentry/utils"
)

type walker interface {
	Walk(ctx context.Context, startPath string, fn fs.WalkDirFunc) error
}

// stackWalker visits entries depth-first in lexical order. Cancellation is
// checked before every entry.
type stackWalker struct{}

func (stackWalker) Walk(ctx context.Context, startPath string, fn fs.WalkDirFunc) error {
	info, err := os.Stat(startPath)
	if err != nil {
		return fn(startPath, nil, err)
	}
	type pending struct {
		path  string
		entry fs.DirEntry
	}
	stack := []pending{{path: startPath, entry: fs.FileInfoToDirEntry(info)}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(next.path, next.entry, nil); err != nil {
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
		if !next.entry.IsDir() {
			continue
		}

		children, err := os.ReadDir(next.path)
		if err != nil {
			if ferr := fn(next.path, next.entry, err); ferr != nil && !errors.Is(ferr, fs.SkipDir) {
				return ferr
			}
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pending{
				path:  filepath.Join(next.path, children[i].Name()),
				entry: children[i],
			})
		}
	}
	return nil
}

type fileScanTask struct {
	path string
	info os.FileInfo
}

type entryVerdict int

const (
	entryQueued entryVerdict = iota
	// entryIgnored covers directories, non-matching names and special files.
	entryIgnored
	// entrySkipped is a candidate file passed over; it counts in the summary.
	entrySkipped
)

// fileSelector turns walked entries into scan tasks.
type fileSelector struct {
	matcher *utils.PatternMatcher
	guard   *utils.PathGuard
	maxSize int64
}

func (s fileSelector) selectEntry(path string, d fs.DirEntry) (fileScanTask, entryVerdict) {
	if d == nil || d.IsDir() || !s.matcher.ShouldInclude(path) {
		return fileScanTask{}, entryIgnored
	}
	if d.Type()&fs.ModeSymlink != 0 && !s.guard.Contains(path) {
		logger.Warnf("Skipping symlink outside target paths: %s", path)
		return fileScanTask{}, entrySkipped
	}
	info, err := os.Stat(path)
	if err != nil {
		logger.Warnf("Failed to stat %s: %v", path, err)
		return fileScanTask{}, entrySkipped
	}
	if !info.Mode().IsRegular() {
		return fileScanTask{}, entryIgnored
	}
	if s.maxSize > 0 && info.Size() > s.maxSize {
		logger.Debugf("Skipping large file %s", path)
		return fileScanTask{}, entrySkipped
	}
	return fileScanTask{path: path, info: info}, entryQueued
}
