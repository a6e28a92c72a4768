package oci

// UpdateResult reports what one update run committed.
type UpdateResult struct {
	Added     []*StatusEntry
	Updated   []*StatusEntry
	Removed   []*StatusEntry
	Refreshed int // metadata-only touches whose stored size/mtime were renewed
	Unchanged int
	Ignored   int
}

// UpdateOptions scope an update run.
type UpdateOptions struct {
	Start     string
	Recursive bool
}

// Update reconciles the index with the filesystem: inserts added files,
// rehashes modified ones, drops removed ones, and renews stored metadata for
// touched-but-identical files. The whole run commits as one batch; on any
// error the index is left exactly as it was.
func Update(repo *Repository, opts UpdateOptions) (*UpdateResult, error) {
	detector := NewChangeDetector(repo)
	result := &UpdateResult{}
	var ops []EntryOp

	err := detector.Classify(ClassifyOptions{Start: opts.Start, Recursive: opts.Recursive}, func(se *StatusEntry) error {
		switch se.Class {
		case ClassAdded:
			ops = append(ops, EntryOp{Op: OpPut, Entry: &IndexEntry{
				Path:     se.Path,
				Size:     se.FSSize,
				Modified: se.FSModified,
				Hash:     se.NewHash,
			}})
			result.Added = append(result.Added, se)

		case ClassModified:
			ops = append(ops, EntryOp{Op: OpPut, Entry: &IndexEntry{
				Path:     se.Path,
				Size:     se.FSSize,
				Modified: se.FSModified,
				Hash:     se.NewHash,
			}})
			result.Updated = append(result.Updated, se)

		case ClassRemoved:
			ops = append(ops, EntryOp{Op: OpDelete, Path: se.Path})
			result.Removed = append(result.Removed, se)

		case ClassUnchanged:
			if se.MetadataOnly {
				// Same content, new metadata. Renew the stored values so
				// the next run's heuristic does not rehash again.
				ops = append(ops, EntryOp{Op: OpPut, Entry: &IndexEntry{
					Path:     se.Path,
					Size:     se.FSSize,
					Modified: se.FSModified,
					Hash:     se.NewHash,
				}})
				result.Refreshed++
			} else {
				result.Unchanged++
			}

		case ClassIgnored:
			// Ignored paths are never written, even when previously indexed.
			result.Ignored++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(ops) > 0 {
		if err := repo.Store.ApplyBatch(ops); err != nil {
			return nil, err
		}
	}

	VerboseLog(1, "update: %d added, %d updated, %d removed, %d refreshed, %d unchanged",
		len(result.Added), len(result.Updated), len(result.Removed), result.Refreshed, result.Unchanged)

	return result, nil
}

// TotalChanges counts committed entry mutations, metadata refreshes included.
func (r *UpdateResult) TotalChanges() int {
	return len(r.Added) + len(r.Updated) + len(r.Removed) + r.Refreshed
}
