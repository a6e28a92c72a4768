package oci

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pruneFixture builds a source index holding "common bytes" and a local index
// with one duplicate of it plus one unique file, both settled.
func pruneFixture(t *testing.T) (local, source *Repository) {
	t.Helper()
	source = newTestRepo(t)
	writeTestFile(t, source, "archive/copy.txt", "common bytes", testBase)
	mustUpdate(t, source)

	local = newTestRepo(t)
	writeTestFile(t, local, "dup.txt", "common bytes", testBase)
	writeTestFile(t, local, "unique.txt", "only here", testBase)
	mustUpdate(t, local)
	return local, source
}

func TestPrunePlanFindsDuplicates(t *testing.T) {
	local, source := pruneFixture(t)

	candidates, err := NewPruneEngine(local).Plan(PruneOptions{Source: source})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("planned %d candidates, want 1", len(candidates))
	}
	c := candidates[0]
	if c.Path != "dup.txt" || c.Reason != PruneDuplicate || c.Entry == nil {
		t.Errorf("candidate = %+v", c)
	}
}

func TestPrunePlanSkipsControlDir(t *testing.T) {
	local, source := pruneFixture(t)
	engine := NewPruneEngine(local)

	// Every matcher treats the control directory as ignored, but it must
	// never surface as a candidate under any reason.
	candidates, err := engine.Plan(PruneOptions{Source: source, IncludeLocalIgnored: true})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for _, c := range candidates {
		if c.Path == ControlDirName || isPathUnder(c.Path, ControlDirName) {
			t.Errorf("control directory file planned for quarantine: %s (%s)", c.Path, c.Reason)
		}
	}
	if len(candidates) != 1 || candidates[0].Path != "dup.txt" {
		t.Fatalf("candidates = %+v", candidates)
	}

	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	for _, name := range []string{IndexFileName, ConfigFileName, IgnoreFileName} {
		if _, err := os.Stat(filepath.Join(local.ControlDir(), name)); err != nil {
			t.Errorf("control file %s missing after prune: %v", name, err)
		}
	}
}

func TestPrunePlanRefusesPendingChanges(t *testing.T) {
	local, source := pruneFixture(t)
	writeTestFile(t, local, "new.txt", "unsettled", testBase)

	_, err := NewPruneEngine(local).Plan(PruneOptions{Source: source})
	if !errors.Is(err, ErrPendingChanges) {
		t.Fatalf("expected ErrPendingChanges, got %v", err)
	}
	// Nothing may have moved.
	if _, statErr := os.Stat(local.AbsPath("dup.txt")); statErr != nil {
		t.Error("a refused plan must not touch the tree")
	}

	// A pending source refuses too.
	if err := os.Remove(local.AbsPath("new.txt")); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	writeTestFile(t, source, "pending.txt", "x", testBase)
	if _, err := NewPruneEngine(local).Plan(PruneOptions{Source: source}); !errors.Is(err, ErrPendingChanges) {
		t.Errorf("expected ErrPendingChanges for dirty source, got %v", err)
	}
}

func TestPrunePlanRejectsSelfSource(t *testing.T) {
	local, _ := pruneFixture(t)
	if _, err := NewPruneEngine(local).Plan(PruneOptions{Source: local}); err == nil {
		t.Error("pruning against the local index itself must fail")
	}
}

func TestPruneCommitQuarantines(t *testing.T) {
	local, source := pruneFixture(t)
	engine := NewPruneEngine(local)

	candidates, err := engine.Plan(PruneOptions{Source: source})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	result, err := engine.Commit(candidates)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(result.Moved) != 1 || result.Bytes != uint64(len("common bytes")) {
		t.Errorf("result = %+v", result)
	}

	// Moved out of the tree, into the pruneyard, out of the index.
	if _, err := os.Stat(local.AbsPath("dup.txt")); !os.IsNotExist(err) {
		t.Error("dup.txt should be gone from the tree")
	}
	quarantined := filepath.Join(local.PruneyardDir(), "dup.txt")
	if _, err := os.Stat(quarantined); err != nil {
		t.Errorf("quarantined copy missing: %v", err)
	}
	if _, ok := local.Store.Get("dup.txt"); ok {
		t.Error("dup.txt should be out of the index")
	}
	if _, ok := local.Store.Get("unique.txt"); !ok {
		t.Error("unique.txt must survive")
	}

	records, err := engine.Quarantined()
	if err != nil {
		t.Fatalf("Quarantined failed: %v", err)
	}
	if len(records) != 1 || records[0].Path != "dup.txt" || !records[0].Indexed {
		t.Errorf("manifest records = %+v", records)
	}
}

func TestPruneRestoreRoundTrip(t *testing.T) {
	local, source := pruneFixture(t)
	engine := NewPruneEngine(local)

	candidates, _ := engine.Plan(PruneOptions{Source: source})
	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	restored, err := engine.Restore()
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if len(restored.Restored) != 1 || restored.Reindexed != 1 {
		t.Errorf("restore result = %+v", restored)
	}

	// Back in the tree, back in the index, pruneyard gone, and the whole
	// cycle left no pending diff.
	data, err := os.ReadFile(local.AbsPath("dup.txt"))
	if err != nil || string(data) != "common bytes" {
		t.Errorf("restored content = %q, %v", data, err)
	}
	entry, ok := local.Store.Get("dup.txt")
	if !ok {
		t.Fatal("dup.txt should be re-indexed")
	}
	if entry.Size != uint64(len("common bytes")) {
		t.Errorf("restored entry size = %d", entry.Size)
	}
	if _, err := os.Stat(local.PruneyardDir()); !os.IsNotExist(err) {
		t.Error("pruneyard should be removed after restore")
	}

	pending, err := NewChangeDetector(local).HasPendingChanges()
	if err != nil {
		t.Fatalf("HasPendingChanges failed: %v", err)
	}
	if pending {
		t.Error("prune+restore must leave a settled tree")
	}
}

func TestPruneRestoreConflictAborts(t *testing.T) {
	local, source := pruneFixture(t)
	engine := NewPruneEngine(local)

	candidates, _ := engine.Plan(PruneOptions{Source: source})
	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Recreate the original path: restore must refuse and move nothing.
	writeTestFile(t, local, "dup.txt", "newer content", testBase.Add(time.Hour))

	if _, err := engine.Restore(); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	data, err := os.ReadFile(local.AbsPath("dup.txt"))
	if err != nil || string(data) != "newer content" {
		t.Errorf("conflicting file clobbered: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(local.PruneyardDir(), "dup.txt")); err != nil {
		t.Errorf("quarantined copy must survive an aborted restore: %v", err)
	}
}

func TestPruneLocalIgnoredNotReindexedOnRestore(t *testing.T) {
	local := newTestRepo(t)
	writeTestFile(t, local, "keep.txt", "k", testBase)
	mustUpdate(t, local)

	if err := AppendIgnorePattern(local.IgnoreFilePath(), "*.tmp"); err != nil {
		t.Fatalf("AppendIgnorePattern failed: %v", err)
	}
	local, err := Open(local.Root, testVersion)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	writeTestFile(t, local, "scratch.tmp", "never indexed", testBase)

	engine := NewPruneEngine(local)
	candidates, err := engine.Plan(PruneOptions{IncludeLocalIgnored: true})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Reason != PruneLocalIgnored || candidates[0].Entry != nil {
		t.Fatalf("candidates = %+v", candidates)
	}

	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	restored, err := engine.Restore()
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Reindexed != 0 {
		t.Errorf("never-indexed file was re-indexed: %+v", restored)
	}
	if _, err := os.Stat(local.AbsPath("scratch.tmp")); err != nil {
		t.Errorf("file not restored: %v", err)
	}
	if _, ok := local.Store.Get("scratch.tmp"); ok {
		t.Error("restore must not index a file that was never indexed")
	}
}

func TestPruneIgnoredDirSubtree(t *testing.T) {
	local := newTestRepo(t)
	writeTestFile(t, local, "keep.txt", "k", testBase)
	mustUpdate(t, local)

	if err := AppendIgnorePattern(local.IgnoreFilePath(), "junk/"); err != nil {
		t.Fatalf("AppendIgnorePattern failed: %v", err)
	}
	local, err := Open(local.Root, testVersion)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	writeTestFile(t, local, "junk/a.tmp", "a", testBase)
	writeTestFile(t, local, "junk/deep/b.tmp", "b", testBase)

	engine := NewPruneEngine(local)
	candidates, err := engine.Plan(PruneOptions{IncludeLocalIgnored: true})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("planned %d candidates, want 2", len(candidates))
	}

	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	// The emptied directories disappear from the tree.
	if _, err := os.Stat(local.AbsPath("junk")); !os.IsNotExist(err) {
		t.Error("emptied ignored directory should be removed")
	}
}

func TestPrunePurge(t *testing.T) {
	local, source := pruneFixture(t)
	engine := NewPruneEngine(local)

	candidates, _ := engine.Plan(PruneOptions{Source: source})
	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Declined confirmation leaves everything in place.
	if _, err := engine.Purge(false, func(string) bool { return false }); err == nil {
		t.Error("declined purge should fail")
	}
	if _, err := os.Stat(local.PruneyardDir()); err != nil {
		t.Fatalf("pruneyard should survive a declined purge: %v", err)
	}

	purged, err := engine.Purge(true, nil)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, err := os.Stat(local.PruneyardDir()); !os.IsNotExist(err) {
		t.Error("pruneyard should be gone after purge")
	}
	if _, err := os.Stat(local.AbsPath("dup.txt")); !os.IsNotExist(err) {
		t.Error("purged file must not reappear in the tree")
	}

	// Purging an empty quarantine is a no-op.
	if purged, err := engine.Purge(true, nil); err != nil || purged != 0 {
		t.Errorf("empty purge = %d, %v", purged, err)
	}
}

func TestPrunePurgeRefusesPendingChanges(t *testing.T) {
	local, source := pruneFixture(t)
	engine := NewPruneEngine(local)

	candidates, _ := engine.Plan(PruneOptions{Source: source})
	if _, err := engine.Commit(candidates); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// The tree moved on since the prune: purge must refuse, even forced,
	// and leave the quarantine intact.
	writeTestFile(t, local, "later.txt", "new work", testBase.Add(time.Hour))

	if _, err := engine.Purge(true, nil); !errors.Is(err, ErrPendingChanges) {
		t.Fatalf("expected ErrPendingChanges, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(local.PruneyardDir(), "dup.txt")); err != nil {
		t.Errorf("refused purge must keep the quarantine: %v", err)
	}

	// Settle the tree; purge goes through.
	mustUpdate(t, local)
	purged, err := engine.Purge(true, nil)
	if err != nil {
		t.Fatalf("Purge after update failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}

func TestPruneSourceIgnoredReason(t *testing.T) {
	source := newTestRepo(t)
	if err := AppendIgnorePattern(source.IgnoreFilePath(), "*.log"); err != nil {
		t.Fatalf("AppendIgnorePattern failed: %v", err)
	}
	source, err := Open(source.Root, testVersion)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	local := newTestRepo(t)
	writeTestFile(t, local, "app.log", "log line", testBase)
	writeTestFile(t, local, "app.txt", "text", testBase)
	mustUpdate(t, local)

	engine := NewPruneEngine(local)
	candidates, err := engine.Plan(PruneOptions{Source: source})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Path != "app.log" || candidates[0].Reason != PruneSourceIgnored {
		t.Fatalf("candidates = %+v", candidates)
	}

	// --no-ignore suppresses the source-ignored reason.
	candidates, err = engine.Plan(PruneOptions{Source: source, NoIgnore: true})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("with NoIgnore, candidates = %+v", candidates)
	}
}
