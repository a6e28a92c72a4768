package oci

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-ini/ini"
	"golang.org/x/sys/unix"
)

// PruneReason records why a file was quarantined. When several reasons apply
// to one file, the highest-priority one wins: duplicate over source-ignored
// over locally-ignored.
type PruneReason int

const (
	PruneDuplicate PruneReason = iota
	PruneSourceIgnored
	PruneLocalIgnored
)

func (r PruneReason) String() string {
	switch r {
	case PruneDuplicate:
		return "duplicate"
	case PruneSourceIgnored:
		return "source-ignored"
	case PruneLocalIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

func parsePruneReason(s string) (PruneReason, error) {
	switch s {
	case "duplicate":
		return PruneDuplicate, nil
	case "source-ignored":
		return PruneSourceIgnored, nil
	case "ignored":
		return PruneLocalIgnored, nil
	}
	return 0, fmt.Errorf("unknown prune reason %q", s)
}

// PruneCandidate is one file the prune plan would quarantine.
type PruneCandidate struct {
	Path     string
	Reason   PruneReason
	Size     uint64
	Modified int64
	Entry    *IndexEntry // nil when the file was never indexed
}

// PruneOptions configure one prune run.
type PruneOptions struct {
	// Source is the reference index: local files whose digest exists there
	// count as duplicates, and files matching its ignore rules count as
	// source-ignored. May be nil when only IncludeLocalIgnored is wanted.
	Source *Repository

	// NoIgnore suppresses the source-ignored reason.
	NoIgnore bool

	// IncludeLocalIgnored quarantines files the local rules ignore.
	IncludeLocalIgnored bool
}

// PruneResult reports what one prune commit moved.
type PruneResult struct {
	Moved []*PruneCandidate
	Bytes uint64
}

// RestoreResult reports what one restore run moved back.
type RestoreResult struct {
	Restored  []string
	Reindexed int
	Rehashed  int // restored files whose metadata no longer matched the record
}

// QuarantineRecord is one manifest line: enough to put the file back and, for
// indexed files, to re-insert the entry without rehashing.
type QuarantineRecord struct {
	Path     string
	Reason   PruneReason
	Size     uint64
	Modified int64
	HexHash  string
	Indexed  bool
	PrunedAt int64
}

// PruneEngine quarantines files into the control directory's pruneyard and
// restores or purges them later. Every run validates first and mutates only
// after validation passes.
type PruneEngine struct {
	repo *Repository
}

// NewPruneEngine creates a prune engine for the repository.
func NewPruneEngine(repo *Repository) *PruneEngine {
	return &PruneEngine{repo: repo}
}

// Plan validates the preconditions and enumerates the files a commit would
// quarantine, in path order. Nothing is mutated. A non-empty pending diff in
// the local repository, or in the source when one is given, fails with
// ErrPendingChanges; an index only prunes from a settled state.
func (p *PruneEngine) Plan(opts PruneOptions) ([]*PruneCandidate, error) {
	if opts.Source != nil && opts.Source.Root == p.repo.Root {
		return nil, fmt.Errorf("source index %s is the local index itself", opts.Source.Root)
	}

	if pending, err := NewChangeDetector(p.repo).HasPendingChanges(); err != nil {
		return nil, err
	} else if pending {
		return nil, fmt.Errorf("%w in %s, run update first", ErrPendingChanges, p.repo.Root)
	}
	if opts.Source != nil {
		if pending, err := NewChangeDetector(opts.Source).HasPendingChanges(); err != nil {
			return nil, err
		} else if pending {
			return nil, fmt.Errorf("%w in source %s, run update there first", ErrPendingChanges, opts.Source.Root)
		}
	}

	var candidates []*PruneCandidate
	detector := NewChangeDetector(p.repo)

	err := detector.Classify(ClassifyOptions{Recursive: true}, func(se *StatusEntry) error {
		switch se.Class {
		case ClassUnchanged:
			if c := p.classifyCandidate(se.Path, se.FSSize, se.FSModified, se.Entry, opts); c != nil {
				candidates = append(candidates, c)
			}
		case ClassIgnored:
			if !se.OnDisk {
				return nil
			}
			if se.IsDir {
				return p.collectIgnoredDir(se.Path, opts, &candidates)
			}
			if c := p.classifyCandidate(se.Path, se.FSSize, se.FSModified, se.Entry, opts); c != nil {
				candidates = append(candidates, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	VerboseLog(1, "prune plan: %d candidates", len(candidates))
	return candidates, nil
}

// classifyCandidate applies the reasons in priority order; nil means the file
// stays.
func (p *PruneEngine) classifyCandidate(relPath string, size uint64, modified int64, entry *IndexEntry, opts PruneOptions) *PruneCandidate {
	// The control directory is never a candidate; quarantining it would
	// destroy the index being pruned. The scanner already excludes it, this
	// guard keeps the invariant even if a caller feeds paths directly.
	if relPath == ControlDirName || isPathUnder(relPath, ControlDirName) {
		return nil
	}

	c := &PruneCandidate{Path: relPath, Size: size, Modified: modified, Entry: entry}

	if opts.Source != nil && entry != nil && len(opts.Source.Store.FindByHash(entry.Hash)) > 0 {
		c.Reason = PruneDuplicate
		return c
	}
	if opts.Source != nil && !opts.NoIgnore && opts.Source.Ignore.Match(relPath, false) {
		c.Reason = PruneSourceIgnored
		return c
	}
	if opts.IncludeLocalIgnored && p.repo.Ignore.Match(relPath, false) {
		c.Reason = PruneLocalIgnored
		return c
	}
	return nil
}

// collectIgnoredDir walks an ignored directory's subtree, which the scanner
// deliberately never enters, and classifies every regular file inside it.
func (p *PruneEngine) collectIgnoredDir(relDir string, opts PruneOptions, out *[]*PruneCandidate) error {
	if relDir == ControlDirName || isPathUnder(relDir, ControlDirName) {
		return nil
	}

	abs := p.repo.AbsPath(relDir)

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", abs, err)
	}
	sort.Slice(dirEntries, func(i, j int) bool {
		return pathCompare(childSortKey(dirEntries[i].Name(), dirEntries[i].IsDir()),
			childSortKey(dirEntries[j].Name(), dirEntries[j].IsDir())) < 0
	})

	for _, de := range dirEntries {
		childRel := relDir + "/" + de.Name()
		if de.IsDir() {
			if err := p.collectIgnoredDir(childRel, opts, out); err != nil {
				return err
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
		var entry *IndexEntry
		if e, ok := p.repo.Store.Get(childRel); ok {
			entry = e
		}
		if c := p.classifyCandidate(childRel, uint64(info.Size()), epochMillis(info.ModTime()), entry, opts); c != nil {
			*out = append(*out, c)
		}
	}
	return nil
}

// Commit moves each candidate into the pruneyard, records it in the manifest,
// and removes the quarantined entries from the index in one batch. A move
// failure stops the run: files already moved stay quarantined and their index
// deletions still commit, so index and filesystem agree about every file the
// run actually touched.
func (p *PruneEngine) Commit(candidates []*PruneCandidate) (*PruneResult, error) {
	if len(candidates) == 0 {
		return &PruneResult{}, nil
	}

	manifest, err := p.loadManifest()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	var deletions []EntryOp
	var moveErr error

	for _, c := range candidates {
		src := p.repo.AbsPath(c.Path)
		dst := filepath.Join(p.repo.PruneyardDir(), filepath.FromSlash(c.Path))

		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			moveErr = fmt.Errorf("failed to create quarantine directory for %s: %w", c.Path, err)
			break
		}
		if err := moveFile(src, dst); err != nil {
			moveErr = fmt.Errorf("failed to quarantine %s: %w", c.Path, err)
			break
		}

		record := &QuarantineRecord{
			Path:     c.Path,
			Reason:   c.Reason,
			Size:     c.Size,
			Modified: c.Modified,
			Indexed:  c.Entry != nil,
			PrunedAt: epochMillis(time.Now()),
		}
		if c.Entry != nil {
			record.HexHash = c.Entry.HexHash()
			deletions = append(deletions, EntryOp{Op: OpDelete, Path: c.Path})
		}
		if err := appendManifestRecord(manifest, record); err != nil {
			moveErr = err
			break
		}

		result.Moved = append(result.Moved, c)
		result.Bytes += c.Size
		VerboseLog(2, "pruned %s (%s)", c.Path, c.Reason)
	}

	// Persist what actually happened, even on a partial run.
	if err := manifest.SaveTo(p.repo.pruneManifestPath()); err != nil {
		return nil, fmt.Errorf("failed to save quarantine manifest: %w", err)
	}
	if len(deletions) > 0 {
		if err := p.repo.Store.ApplyBatch(deletions); err != nil {
			return nil, err
		}
	}

	for _, c := range result.Moved {
		p.removeEmptyParents(c.Path)
	}

	if moveErr != nil {
		return result, moveErr
	}
	return result, nil
}

// Restore moves every quarantined file back to its original path and
// re-inserts the recorded index entries. All destinations are checked before
// anything moves: a single conflict aborts the whole restore with ErrConflict
// and no mutation.
func (p *PruneEngine) Restore() (*RestoreResult, error) {
	records, err := p.manifestRecords()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: nothing quarantined", ErrNotFound)
	}

	for _, rec := range records {
		dst := p.repo.AbsPath(rec.Path)
		if _, err := os.Lstat(dst); err == nil {
			return nil, fmt.Errorf("%w: %s already exists", ErrConflict, rec.Path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", rec.Path, err)
		}
		src := filepath.Join(p.repo.PruneyardDir(), filepath.FromSlash(rec.Path))
		if _, err := os.Lstat(src); err != nil {
			return nil, fmt.Errorf("quarantined copy of %s missing: %w", rec.Path, err)
		}
	}

	result := &RestoreResult{}
	var inserts []EntryOp

	for _, rec := range records {
		src := filepath.Join(p.repo.PruneyardDir(), filepath.FromSlash(rec.Path))
		dst := p.repo.AbsPath(rec.Path)

		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return result, fmt.Errorf("failed to create directory for %s: %w", rec.Path, err)
		}
		if err := moveFile(src, dst); err != nil {
			return result, fmt.Errorf("failed to restore %s: %w", rec.Path, err)
		}
		result.Restored = append(result.Restored, rec.Path)

		if !rec.Indexed {
			continue
		}

		entry := &IndexEntry{Path: rec.Path, Size: rec.Size, Modified: rec.Modified}
		if entry.Hash, err = decodeHex(rec.HexHash); err != nil {
			return result, fmt.Errorf("manifest entry for %s: %w", rec.Path, err)
		}

		// Quarantine should preserve metadata; rehash only when it did not.
		info, err := os.Lstat(dst)
		if err != nil {
			return result, fmt.Errorf("failed to stat restored %s: %w", rec.Path, err)
		}
		if uint64(info.Size()) != rec.Size || epochMillis(info.ModTime()) != rec.Modified {
			if entry.Hash, err = p.repo.HashFile(rec.Path); err != nil {
				return result, err
			}
			entry.Size = uint64(info.Size())
			entry.Modified = epochMillis(info.ModTime())
			result.Rehashed++
		}

		inserts = append(inserts, EntryOp{Op: OpPut, Entry: entry})
		result.Reindexed++
	}

	if len(inserts) > 0 {
		if err := p.repo.Store.ApplyBatch(inserts); err != nil {
			return result, err
		}
	}

	if err := os.RemoveAll(p.repo.PruneyardDir()); err != nil {
		return result, fmt.Errorf("failed to remove pruneyard: %w", err)
	}
	if err := os.Remove(p.repo.pruneManifestPath()); err != nil && !os.IsNotExist(err) {
		return result, fmt.Errorf("failed to remove quarantine manifest: %w", err)
	}
	return result, nil
}

// Purge permanently deletes everything in the pruneyard. The empty-diff
// precondition is re-checked first: time may have passed since the prune, and
// an unsettled tree means the user's intent is no longer clear. Irreversible;
// confirm must approve unless force is set.
func (p *PruneEngine) Purge(force bool, confirm func(prompt string) bool) (int, error) {
	records, err := p.manifestRecords()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	if pending, err := NewChangeDetector(p.repo).HasPendingChanges(); err != nil {
		return 0, err
	} else if pending {
		return 0, fmt.Errorf("%w in %s, run update first", ErrPendingChanges, p.repo.Root)
	}

	if !force {
		prompt := fmt.Sprintf("This will permanently delete %d quarantined file(s)", len(records))
		if confirm == nil || !confirm(prompt) {
			return 0, fmt.Errorf("purge cancelled")
		}
	}

	if err := os.RemoveAll(p.repo.PruneyardDir()); err != nil {
		return 0, fmt.Errorf("failed to remove pruneyard: %w", err)
	}
	if err := os.Remove(p.repo.pruneManifestPath()); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to remove quarantine manifest: %w", err)
	}
	return len(records), nil
}

// Quarantined lists the current manifest records in path order.
func (p *PruneEngine) Quarantined() ([]*QuarantineRecord, error) {
	return p.manifestRecords()
}

func (p *PruneEngine) loadManifest() (*ini.File, error) {
	path := p.repo.pruneManifestPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ini.Empty(), nil
	}
	manifest, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load quarantine manifest: %w", err)
	}
	return manifest, nil
}

func (p *PruneEngine) manifestRecords() ([]*QuarantineRecord, error) {
	manifest, err := p.loadManifest()
	if err != nil {
		return nil, err
	}

	var records []*QuarantineRecord
	for _, section := range manifest.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		rec := &QuarantineRecord{Path: section.Name()}
		if rec.Reason, err = parsePruneReason(section.Key("reason").String()); err != nil {
			return nil, fmt.Errorf("manifest entry %s: %w", rec.Path, err)
		}
		if rec.Size, err = section.Key("size").Uint64(); err != nil {
			return nil, fmt.Errorf("manifest entry %s: bad size: %w", rec.Path, err)
		}
		if rec.Modified, err = section.Key("modified").Int64(); err != nil {
			return nil, fmt.Errorf("manifest entry %s: bad modified: %w", rec.Path, err)
		}
		rec.HexHash = section.Key("hash").String()
		rec.Indexed = section.Key("indexed").MustBool(false)
		rec.PrunedAt = section.Key("pruned_at").MustInt64(0)
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return pathCompare(records[i].Path, records[j].Path) < 0
	})
	return records, nil
}

func appendManifestRecord(manifest *ini.File, rec *QuarantineRecord) error {
	section, err := manifest.NewSection(rec.Path)
	if err != nil {
		return fmt.Errorf("failed to record quarantine of %s: %w", rec.Path, err)
	}
	section.Key("reason").SetValue(rec.Reason.String())
	section.Key("size").SetValue(fmt.Sprintf("%d", rec.Size))
	section.Key("modified").SetValue(fmt.Sprintf("%d", rec.Modified))
	section.Key("hash").SetValue(rec.HexHash)
	section.Key("indexed").SetValue(fmt.Sprintf("%t", rec.Indexed))
	section.Key("pruned_at").SetValue(fmt.Sprintf("%d", rec.PrunedAt))
	return nil
}

// removeEmptyParents removes now-empty directories above a pruned file,
// walking toward the root and stopping at the first non-empty one. The
// control directory is never touched.
func (p *PruneEngine) removeEmptyParents(relPath string) {
	dir := filepath.Dir(filepath.FromSlash(relPath))
	for dir != "." && dir != "/" {
		if filepath.ToSlash(dir) == ControlDirName {
			return
		}
		abs := filepath.Join(p.repo.Root, dir)
		if err := os.Remove(abs); err != nil {
			return // non-empty or already gone
		}
		dir = filepath.Dir(dir)
	}
}

// moveFile renames src to dst, falling back to copy-and-delete when they live
// on different filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || linkErr.Err != unix.EXDEV {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
