package oci

// The change detector is the one comparison algorithm in the tool: status
// consumes its stream read-only, update consumes the same stream and commits.
// Identical filesystem/index state therefore always yields identical
// classifications, whichever command asked.

import (
	"fmt"
)

// Classification labels one path in the filesystem-vs-index diff.
type Classification int

const (
	ClassUnchanged Classification = iota
	ClassModified
	ClassAdded
	ClassRemoved
	ClassIgnored
)

// String returns the status marker used in command output.
func (c Classification) String() string {
	switch c {
	case ClassUnchanged:
		return " "
	case ClassModified:
		return "U"
	case ClassAdded:
		return "+"
	case ClassRemoved:
		return "-"
	case ClassIgnored:
		return "I"
	default:
		return "?"
	}
}

// StatusEntry is one element of the classification stream. Exactly one entry
// is produced for every path present in the scanned filesystem or the scoped
// index, never more.
type StatusEntry struct {
	Path  string
	Class Classification

	// Live filesystem metadata; valid when the path was seen on disk.
	FSSize     uint64
	FSModified int64
	OnDisk     bool
	IsDir      bool

	// Index side; nil for Added and for ignored paths that were never
	// indexed.
	Entry *IndexEntry

	// Digest computed during this classification (Added, Modified, and
	// metadata-only touches). Unchanged files are never hashed.
	NewHash []byte

	// MetadataOnly marks a file whose size or mtime moved but whose digest
	// matched the stored one. Classified Unchanged; update still refreshes
	// the stored metadata so the next run skips the rehash.
	MetadataOnly bool
}

// ChangeDetector merge-joins the scanner's stream against the scoped index
// entries. Both sides arrive in pathCompare order, so the join is a single
// linear pass. Rehashes run on the repository's hash worker pool in bounded
// batches; emission order never changes.
type ChangeDetector struct {
	repo *Repository

	// noRehash classifies from metadata alone: a size/mtime mismatch counts
	// as Modified without reading content. Used by the prune precondition,
	// where a metadata touch is still a reason to refuse.
	noRehash bool
}

// NewChangeDetector creates a detector for the repository.
func NewChangeDetector(repo *Repository) *ChangeDetector {
	return &ChangeDetector{repo: repo}
}

// ClassifyOptions scope one classification run.
type ClassifyOptions struct {
	Start     string // repository-relative; "" scans the whole tree
	Recursive bool
}

// pendingStatus is a classification result waiting for its digest (if any)
// before emission.
type pendingStatus struct {
	entry *StatusEntry
	job   *hashJob // nil when no hashing is needed
}

// Classify streams the classification of every path in scope, in path order,
// to emit. An error from emit aborts the run and is returned unchanged.
func (d *ChangeDetector) Classify(opts ClassifyOptions, emit func(*StatusEntry) error) error {
	indexed := d.scopedEntries(opts)
	i := 0

	pool := newHashPool(d.repo.hashWorkers, d.repo.algorithm, d.repo.hashBuffer)
	var pending []*pendingStatus

	flush := func() error {
		var jobs []*hashJob
		for _, p := range pending {
			if p.job != nil {
				jobs = append(jobs, p.job)
			}
		}
		if err := pool.hashAll(jobs); err != nil {
			return err
		}
		for _, p := range pending {
			if p.job != nil {
				d.resolveHashed(p)
			}
			if err := emit(p.entry); err != nil {
				return err
			}
		}
		pending = pending[:0]
		return nil
	}

	push := func(p *pendingStatus) error {
		pending = append(pending, p)
		if len(pending) >= hashBatchSize {
			return flush()
		}
		return nil
	}

	// Emit Removed for every index entry ordered before the given path.
	drainRemovedBefore := func(path string) error {
		for i < len(indexed) && pathCompare(indexed[i].Path, path) < 0 {
			if err := push(&pendingStatus{entry: &StatusEntry{
				Path:  indexed[i].Path,
				Class: ClassRemoved,
				Entry: indexed[i],
			}}); err != nil {
				return err
			}
			i++
		}
		return nil
	}

	scanErr := d.repo.Scanner.Scan(opts.Start, opts.Recursive || opts.Start == "", func(sf *ScannedFile) error {
		if sf.Ignored {
			return d.classifyIgnored(sf, indexed, &i, drainRemovedBefore, push)
		}

		if err := drainRemovedBefore(sf.RelPath); err != nil {
			return err
		}

		se := &StatusEntry{
			Path:       sf.RelPath,
			FSSize:     sf.Size,
			FSModified: sf.Modified,
			OnDisk:     true,
		}

		if i < len(indexed) && indexed[i].Path == sf.RelPath {
			entry := indexed[i]
			i++
			se.Entry = entry

			if entry.Size == sf.Size && entry.Modified == sf.Modified {
				// Metadata heuristic: identical size and mtime means
				// unchanged, without reading content.
				se.Class = ClassUnchanged
				return push(&pendingStatus{entry: se})
			}

			if d.noRehash {
				se.Class = ClassModified
				return push(&pendingStatus{entry: se})
			}

			return push(&pendingStatus{
				entry: se,
				job:   &hashJob{path: d.repo.AbsPath(sf.RelPath)},
			})
		}

		se.Class = ClassAdded
		if d.noRehash {
			return push(&pendingStatus{entry: se})
		}
		return push(&pendingStatus{
			entry: se,
			job:   &hashJob{path: d.repo.AbsPath(sf.RelPath)},
		})
	})
	if scanErr != nil {
		return scanErr
	}

	// Whatever remains in the index was not seen on disk.
	for i < len(indexed) {
		if err := push(&pendingStatus{entry: &StatusEntry{
			Path:  indexed[i].Path,
			Class: ClassRemoved,
			Entry: indexed[i],
		}}); err != nil {
			return err
		}
		i++
	}

	return flush()
}

// classifyIgnored handles an ignored scan observation. Index entries beneath
// an ignored directory surface as Ignored too (never Removed): ignored paths
// are excluded from hashing and from mutation regardless of prior state, and
// every indexed path still appears in the stream exactly once.
func (d *ChangeDetector) classifyIgnored(sf *ScannedFile, indexed []*IndexEntry, i *int,
	drainRemovedBefore func(string) error, push func(*pendingStatus) error) error {

	if err := drainRemovedBefore(sf.RelPath); err != nil {
		return err
	}

	se := &StatusEntry{
		Path:       sf.RelPath,
		Class:      ClassIgnored,
		FSSize:     sf.Size,
		FSModified: sf.Modified,
		OnDisk:     true,
		IsDir:      sf.IsDir,
	}

	if !sf.IsDir && *i < len(indexed) && indexed[*i].Path == sf.RelPath {
		se.Entry = indexed[*i]
		*i++
	}
	if err := push(&pendingStatus{entry: se}); err != nil {
		return err
	}

	if sf.IsDir {
		for *i < len(indexed) && isPathUnder(indexed[*i].Path, sf.RelPath) {
			if err := push(&pendingStatus{entry: &StatusEntry{
				Path:  indexed[*i].Path,
				Class: ClassIgnored,
				Entry: indexed[*i],
			}}); err != nil {
				return err
			}
			*i++
		}
	}
	return nil
}

// resolveHashed finalizes a classification once its digest is available.
func (d *ChangeDetector) resolveHashed(p *pendingStatus) {
	se := p.entry
	se.NewHash = p.job.digest

	if se.Entry == nil {
		se.Class = ClassAdded
		return
	}
	if se.Entry.SameHash(p.job.digest) {
		// Touched but not edited: clock skew, cp -p, touch. Reported
		// Unchanged; update refreshes the stored metadata.
		se.Class = ClassUnchanged
		se.MetadataOnly = true
		return
	}
	se.Class = ClassModified
}

// scopedEntries returns the index entries inside the classification scope,
// in store order. Non-recursive scopes keep only immediate children.
func (d *ChangeDetector) scopedEntries(opts ClassifyOptions) []*IndexEntry {
	entries := d.repo.Store.List(opts.Start)
	if opts.Recursive || opts.Start == "" {
		return entries
	}

	filtered := entries[:0]
	for _, e := range entries {
		if e.Path == opts.Start {
			filtered = append(filtered, e)
			continue
		}
		rest := e.Path[len(opts.Start)+1:]
		if !containsSlash(rest) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}

// HasPendingChanges reports whether the repository's diff is non-empty,
// judging from metadata alone (a touched-but-identical file still counts, as
// it would need an update run to settle). Stops at the first change found.
func (d *ChangeDetector) HasPendingChanges() (bool, error) {
	probe := &ChangeDetector{repo: d.repo, noRehash: true}
	pendingFound := fmt.Errorf("pending change found")

	err := probe.Classify(ClassifyOptions{Recursive: true}, func(se *StatusEntry) error {
		switch se.Class {
		case ClassAdded, ClassRemoved, ClassModified:
			return pendingFound
		}
		return nil
	})
	if err == pendingFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
