package oci

import (
	"fmt"
	"os"
	"path/filepath"
)

// Repository binds one indexed tree: its root, config, compiled ignore rules
// and entry store. Commands receive an explicit Repository rather than any
// global state; the tool version travels with it.
type Repository struct {
	Root        string
	ToolVersion string

	Config  *Config
	Ignore  *IgnoreMatcher
	Store   EntryStore
	Scanner *Scanner

	algorithm   *HashAlgorithm
	hashWorkers int
	hashBuffer  int
}

// FindRepoRoot walks from start upward looking for a control directory.
func FindRepoRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for {
		controlDir := filepath.Join(dir, ControlDirName)
		if info, err := os.Stat(controlDir); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// Init creates an empty index at root: the control directory, an empty store
// image, the default ignore rule file, and a config recording the tool
// version. Fails with ErrAlreadyInitialized when a control directory exists.
func Init(root, toolVersion string) (*Repository, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	controlDir := filepath.Join(root, ControlDirName)
	if _, err := os.Stat(controlDir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, controlDir)
	}
	if err := os.MkdirAll(controlDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create control directory: %w", err)
	}

	if err := WriteDefaultIgnoreFile(filepath.Join(controlDir, IgnoreFileName)); err != nil {
		return nil, err
	}

	repo, err := openAt(root, toolVersion)
	if err != nil {
		return nil, err
	}

	// Persist an empty image so the index file exists from the start.
	if err := repo.Store.ApplyBatch(nil); err != nil {
		return nil, err
	}
	return repo, nil
}

// Open locates the repository containing start (walking upward) and loads its
// config, ignore rules and store. An index created by a different tool
// version opens normally; the mismatch is only logged.
func Open(start, toolVersion string) (*Repository, error) {
	root, err := FindRepoRoot(start)
	if err != nil {
		return nil, err
	}
	return openAt(root, toolVersion)
}

// OpenRoot opens the repository rooted exactly at root, without walking
// upward. Used for prune source indexes given as explicit paths.
func OpenRoot(root, toolVersion string) (*Repository, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if info, err := os.Stat(filepath.Join(root, ControlDirName)); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, root)
	}
	return openAt(root, toolVersion)
}

func openAt(root, toolVersion string) (*Repository, error) {
	controlDir := filepath.Join(root, ControlDirName)

	cfg, err := LoadConfig(filepath.Join(controlDir, ConfigFileName), toolVersion)
	if err != nil {
		return nil, err
	}
	if v := cfg.Version(); v != "" && v != toolVersion {
		VerboseLog(1, "index config written by version %s, running %s", v, toolVersion)
	}

	algorithm, err := GetHashAlgorithm(cfg.GetHashConfig().Default)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Rules are re-read on every open; nothing is cached across invocations.
	matcher, err := LoadIgnoreFile(filepath.Join(controlDir, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(filepath.Join(controlDir, IndexFileName), algorithm, toolVersion)
	if err != nil {
		return nil, err
	}
	if fs, ok := store.(*fileStore); ok {
		algorithm = fs.Algorithm()
	}

	perf := cfg.GetPerformanceConfig()

	return &Repository{
		Root:        root,
		ToolVersion: toolVersion,
		Config:      cfg,
		Ignore:      matcher,
		Store:       store,
		Scanner:     NewScanner(root, matcher),
		algorithm:   algorithm,
		hashWorkers: perf.HashWorkers,
		hashBuffer:  cfg.HashBufferBytes(),
	}, nil
}

// Close releases the repository. The store persists on every batch, so there
// is nothing to flush here; Close exists for symmetry and future engines.
func (r *Repository) Close() error {
	return nil
}

// ControlDir returns the absolute control directory path.
func (r *Repository) ControlDir() string {
	return filepath.Join(r.Root, ControlDirName)
}

// IgnoreFilePath returns the absolute path of the ignore rule file.
func (r *Repository) IgnoreFilePath() string {
	return filepath.Join(r.ControlDir(), IgnoreFileName)
}

// PruneyardDir returns the absolute quarantine directory path.
func (r *Repository) PruneyardDir() string {
	return filepath.Join(r.ControlDir(), PruneyardDirName)
}

// pruneManifestPath returns the absolute quarantine manifest path.
func (r *Repository) pruneManifestPath() string {
	return filepath.Join(r.ControlDir(), PruneManifestFileName)
}

// AbsPath converts a repository-relative path to an absolute one.
func (r *Repository) AbsPath(rel string) string {
	if rel == "" {
		return r.Root
	}
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// RelPath converts an absolute path inside the repository to the relative
// form used as index keys.
func (r *Repository) RelPath(abs string) (string, error) {
	return toRelPath(r.Root, abs)
}

// Algorithm returns the digest algorithm of this repository's index.
func (r *Repository) Algorithm() *HashAlgorithm {
	return r.algorithm
}

// HashFile digests a repository file with the index's algorithm.
func (r *Repository) HashFile(rel string) ([]byte, error) {
	return HashFile(r.AbsPath(rel), r.algorithm, r.hashBuffer)
}

// Reset removes the control directory entirely: index, config, ignore rules,
// and any quarantined files. Irreversible; confirm must approve unless force
// is set.
func (r *Repository) Reset(force bool, confirm func(prompt string) bool) error {
	if !force {
		prompt := fmt.Sprintf("This will permanently delete the index at %s", r.ControlDir())
		if confirm == nil || !confirm(prompt) {
			return fmt.Errorf("reset cancelled")
		}
	}

	if err := os.RemoveAll(r.ControlDir()); err != nil {
		return fmt.Errorf("failed to remove control directory: %w", err)
	}
	return nil
}
