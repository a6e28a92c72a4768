package oci

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ScannedFile is one filesystem observation streamed by the Scanner: a
// repository-relative path with live metadata. Ignored paths are tagged, not
// dropped, so callers decide whether to surface them; an ignored directory is
// reported once and its subtree is never read.
type ScannedFile struct {
	RelPath  string
	Size     uint64
	Modified int64
	IsDir    bool
	Ignored  bool
}

// Scanner walks the tree under a repository root in the store's path order,
// applying the ignore matcher inline. Scans are stateless between calls and
// finite for any finite tree.
type Scanner struct {
	root    string
	matcher *IgnoreMatcher
}

// NewScanner creates a scanner for the given root and rule set.
func NewScanner(root string, matcher *IgnoreMatcher) *Scanner {
	return &Scanner{root: root, matcher: matcher}
}

// Scan streams files under start ("" means the whole repository) to fn in
// pathCompare order. With recursive false, only the immediate children of a
// directory are reported. A single file start path yields exactly that file.
// fn returning an error aborts the scan with that error.
func (s *Scanner) Scan(start string, recursive bool, fn func(*ScannedFile) error) error {
	if IsDebugEnabled("scan") {
		VerboseLog(3, "scan: start=%q recursive=%t root=%s", start, recursive, s.root)
	}

	if start == "" {
		return s.scanDir("", true, fn)
	}

	// The control directory is tool state, not a user path; it is not part
	// of the scannable tree at all.
	if start == ControlDirName || isPathUnder(start, ControlDirName) {
		return fmt.Errorf("%w: %s", ErrNotFound, start)
	}

	abs := filepath.Join(s.root, filepath.FromSlash(start))
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, start)
		}
		return fmt.Errorf("failed to stat %s: %w", start, err)
	}

	if info.IsDir() {
		if s.matcher.Match(start, true) {
			return fn(&ScannedFile{RelPath: start, IsDir: true, Ignored: true})
		}
		return s.scanDir(start, recursive, fn)
	}

	return fn(&ScannedFile{
		RelPath:  start,
		Size:     uint64(info.Size()),
		Modified: epochMillis(info.ModTime()),
		Ignored:  s.matcher.Match(start, false),
	})
}

// scanDir reports the children of one directory (already known not to be
// ignored) in sorted order, recursing where asked. Sorting treats directory
// names as name+"/" so emission order equals pathCompare order of the full
// relative paths.
func (s *Scanner) scanDir(rel string, recursive bool, fn func(*ScannedFile) error) error {
	abs := s.root
	if rel != "" {
		abs = filepath.Join(s.root, filepath.FromSlash(rel))
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", abs, err)
	}

	// Keys must be ordered by pathCompare, not plain byte order: a sibling
	// pair like "a-b/" and "a/" sorts the other way around under '<'.
	sort.Slice(dirEntries, func(i, j int) bool {
		a := childSortKey(dirEntries[i].Name(), dirEntries[i].IsDir())
		b := childSortKey(dirEntries[j].Name(), dirEntries[j].IsDir())
		return pathCompare(a, b) < 0
	})

	for _, de := range dirEntries {
		// Skip the control directory silently, without even an ignored
		// observation: it is never a candidate for anything.
		if rel == "" && de.Name() == ControlDirName {
			continue
		}

		childRel := de.Name()
		if rel != "" {
			childRel = rel + "/" + de.Name()
		}

		if de.IsDir() {
			if s.matcher.Match(childRel, true) {
				// Traversal-time prune: report the directory once and
				// skip the whole subtree.
				if err := fn(&ScannedFile{RelPath: childRel, IsDir: true, Ignored: true}); err != nil {
					return err
				}
				continue
			}
			if recursive {
				if err := s.scanDir(childRel, true, fn); err != nil {
					return err
				}
			}
			continue
		}

		if !de.Type().IsRegular() {
			continue
		}

		info, err := de.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", childRel, err)
		}

		if err := fn(&ScannedFile{
			RelPath:  childRel,
			Size:     uint64(info.Size()),
			Modified: epochMillis(info.ModTime()),
			Ignored:  s.matcher.Match(childRel, false),
		}); err != nil {
			return err
		}
	}
	return nil
}
