package oci

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// pathCompare orders repository-relative paths so that every file under a
// directory sorts immediately after the directory name, regardless of what
// bytes follow the directory name in sibling entries ('/' is treated as
// sorting before every other byte). The scanner's traversal, the store's
// skiplist and the change detector's merge join all use this single ordering;
// the merge join breaks if any of them disagree.
func pathCompare(a, b string) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if ca == '/' {
			return -1
		}
		if cb == '/' {
			return 1
		}
		if ca < cb {
			return -1
		}
		return 1
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// childSortKey is the name a directory entry sorts under within its parent:
// directories get a trailing slash so they interleave with files exactly the
// way pathCompare orders the full paths beneath them.
func childSortKey(name string, isDir bool) string {
	if isDir {
		return name + "/"
	}
	return name
}

// isPathUnder checks if childPath is under parentPath (both slash-separated
// relative paths; empty parent means the repository root).
func isPathUnder(childPath, parentPath string) bool {
	if parentPath == "" {
		return true
	}
	return strings.HasPrefix(childPath, parentPath+"/")
}

// toRelPath converts an absolute path inside root to the slash-separated
// repository-relative form used as index keys.
func toRelPath(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("path %s is outside repository %s: %w", abs, root, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside repository %s", abs, root)
	}
	if rel == "." {
		rel = ""
	}
	return rel, nil
}

// epochMillis converts a time to milliseconds since the Unix epoch, the
// resolution the index records for modification times.
func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseHumanSize parses sizes like "8192", "64K", "2M", "1G" into bytes.
func ParseHumanSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := 1
	switch s[len(s)-1] {
	case 'k', 'K':
		multiplier = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive, got %d", n)
	}
	return n * multiplier, nil
}

// HumanBytes formats a byte count with a MB suffix for display alongside the
// raw value, matching the status and stats output format.
func HumanBytes(n uint64) string {
	return fmt.Sprintf("%d bytes (%.2f MB)", n, float64(n)/1048576.0)
}
