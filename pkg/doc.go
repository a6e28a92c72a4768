// Package oci maintains a persisted index of file identity (size, modification
// time, content hash) for a directory tree and reconciles it against the live
// filesystem on demand.
//
// # Core API
//
// The main entry point is Repository, which binds the index for a tree:
//
//	repo, err := oci.Open(dir, toolVersion)
//	defer repo.Close()
//
// # Basic Operations
//
// Report differences between the filesystem and the index:
//
//	result, err := oci.Status(repo, oci.StatusOptions{})
//	if result.HasChanges() {
//		fmt.Printf("%d change(s)\n", result.TotalChanges())
//	}
//
// Commit the current filesystem state to the index:
//
//	result, err := oci.Update(repo, oci.UpdateOptions{})
//
// Find duplicate content:
//
//	groups := oci.FindDuplicates(repo)
//
// Reconcile against another index, quarantining local files whose content the
// other index already has:
//
//	engine := oci.NewPruneEngine(repo)
//	candidates, err := engine.Plan(oci.PruneOptions{Source: other})
//	res, err := engine.Commit(candidates)
//
// # Note on Internal API
//
// Types below Repository (EntryStore, ChangeDetector, Scanner) are exported for
// testing and tooling but their contracts may tighten between minor versions.
package oci
