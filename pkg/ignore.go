package oci

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnoreContent is written to the rule file on init. It covers common
// intermediate and derived files; users edit or delete patterns freely.
const defaultIgnoreContent = `# oci ignore patterns
#
# One gitignore-style glob per line. Trailing '/' anchors a pattern to
# directories and suppresses the whole subtree. Lines starting with # are
# comments. The .oci control directory is always ignored.

# Package manager dependencies (downloaded/managed automatically)
node_modules/
bower_components/
jspm_packages/

# Python intermediate files
__pycache__/
*.pyc
*.pyo
*.pyd
*.egg-info/
.eggs/

# Python virtual environments
.venv/
.env/

# Python tool-specific cache directories
.pytest_cache/
.mypy_cache/
.ruff_cache/
.tox/

# Compiled object files (intermediate)
*.o
*.obj
*.class

# Package manager cache directories
.npm/
.yarn/
.gradle/
.pnpm-store/

# Framework-specific build/cache directories
.next/
.nuxt/
.svelte-kit/
.angular/

# Generic cache directory
.cache/

# Editor temporary files
*.swp
*.swo
*.swn
*~

# OS-specific metadata files
.DS_Store
Thumbs.db
desktop.ini

# Test coverage output
.coverage
.nyc_output/
htmlcov/
__coverage__/
`

// IgnoreMatcher decides per-path inclusion from a compiled rule set. Matching
// is a pure function of the rules; the control directory is ignored
// unconditionally, regardless of user patterns.
type IgnoreMatcher struct {
	patterns []string
	compiled *ignore.GitIgnore
}

// NewIgnoreMatcher compiles a rule set. Every pattern is validated before
// compilation; a malformed glob fails with ErrInvalidPattern rather than being
// skipped, since scanning and classification must agree exactly on what a rule
// set means.
func NewIgnoreMatcher(patterns []string) (*IgnoreMatcher, error) {
	kept := make([]string, 0, len(patterns))
	for i, raw := range patterns {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := validatePattern(line); err != nil {
			return nil, fmt.Errorf("pattern %d (%q): %w", i+1, line, err)
		}
		kept = append(kept, line)
	}

	m := &IgnoreMatcher{patterns: kept}
	if len(kept) > 0 {
		m.compiled = ignore.CompileIgnoreLines(kept...)
	}
	return m, nil
}

// LoadIgnoreFile reads the rule file (one pattern per line) and compiles it.
// A missing file yields an empty rule set: the control directory is still
// ignored, nothing else is.
func LoadIgnoreFile(path string) (*IgnoreMatcher, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewIgnoreMatcher(nil)
		}
		return nil, fmt.Errorf("failed to open ignore file %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}

	m, err := NewIgnoreMatcher(lines)
	if err != nil {
		return nil, fmt.Errorf("ignore file %s: %w", path, err)
	}
	return m, nil
}

// Match reports whether a repository-relative path is excluded. Directory
// matches suppress the entire subtree; the scanner consults this before
// recursing, not just before reporting.
func (m *IgnoreMatcher) Match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)

	if relPath == ControlDirName || strings.HasPrefix(relPath, ControlDirName+"/") {
		return true
	}
	if m.compiled == nil {
		return false
	}
	if m.compiled.MatchesPath(relPath) {
		return true
	}
	// Directory-anchored patterns ("build/") only match paths that look like
	// directories, so retry with the trailing slash present.
	if isDir && m.compiled.MatchesPath(relPath+"/") {
		return true
	}
	return false
}

// HasPatterns returns true if the rule set contains any user patterns.
func (m *IgnoreMatcher) HasPatterns() bool {
	return len(m.patterns) > 0
}

// Patterns returns the compiled pattern lines.
func (m *IgnoreMatcher) Patterns() []string {
	return m.patterns
}

// validatePattern rejects glob syntax the matcher cannot compile: an
// unterminated character class or a trailing escape. Negation and directory
// anchoring are stripped before checking.
func validatePattern(pattern string) error {
	p := strings.TrimPrefix(pattern, "!")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	for i := 0; i < len(p); {
		switch p[i] {
		case '\\':
			if i+1 >= len(p) {
				return fmt.Errorf("%w: trailing escape", ErrInvalidPattern)
			}
			i += 2
		case '[':
			j := i + 1
			if j < len(p) && (p[j] == '^' || p[j] == '!') {
				j++
			}
			closed := false
			for ; j < len(p); j++ {
				if p[j] == '\\' {
					j++
					continue
				}
				if p[j] == ']' && j > i+1 {
					closed = true
					break
				}
			}
			if !closed {
				return fmt.Errorf("%w: unterminated character class", ErrInvalidPattern)
			}
			i = j + 1
		default:
			i++
		}
	}
	return nil
}

// WriteDefaultIgnoreFile creates the rule file with the documented default
// pattern set. Only writes if the file does not already exist.
func WriteDefaultIgnoreFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create control directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultIgnoreContent), 0644); err != nil {
		return fmt.Errorf("failed to create ignore file %s: %w", path, err)
	}
	return nil
}

// AppendIgnorePattern validates a pattern and appends it to the rule file.
func AppendIgnorePattern(path, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if err := validatePattern(pattern); err != nil {
		return err
	}

	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}

	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	existing += pattern + "\n"

	if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
		return fmt.Errorf("failed to write ignore file %s: %w", path, err)
	}
	return nil
}
