package oci

// StatusResult collects one classification run for display. Status is
// read-only: the store is never touched, only compared against.
type StatusResult struct {
	Added    []*StatusEntry
	Modified []*StatusEntry
	Removed  []*StatusEntry

	Unchanged int
	Ignored   int

	// IgnoredPaths carries the ignored observations when the caller asked
	// for them (verbose status); nil otherwise.
	IgnoredPaths []*StatusEntry
}

// StatusOptions scope a status run.
type StatusOptions struct {
	Start       string
	Recursive   bool
	ShowIgnored bool
}

// Status classifies the scoped tree against the index and collects the
// result. Metadata-only touches count as unchanged here; update settles them.
func Status(repo *Repository, opts StatusOptions) (*StatusResult, error) {
	detector := NewChangeDetector(repo)
	result := &StatusResult{}

	err := detector.Classify(ClassifyOptions{Start: opts.Start, Recursive: opts.Recursive}, func(se *StatusEntry) error {
		switch se.Class {
		case ClassAdded:
			result.Added = append(result.Added, se)
		case ClassModified:
			result.Modified = append(result.Modified, se)
		case ClassRemoved:
			result.Removed = append(result.Removed, se)
		case ClassUnchanged:
			result.Unchanged++
		case ClassIgnored:
			result.Ignored++
			if opts.ShowIgnored {
				result.IgnoredPaths = append(result.IgnoredPaths, se)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	VerboseLog(2, "status: %d added, %d modified, %d removed, %d unchanged, %d ignored",
		len(result.Added), len(result.Modified), len(result.Removed), result.Unchanged, result.Ignored)

	return result, nil
}

// HasChanges reports whether the run found anything to update.
func (r *StatusResult) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Modified) > 0 || len(r.Removed) > 0
}

// TotalChanges counts the entries an update run would commit.
func (r *StatusResult) TotalChanges() int {
	return len(r.Added) + len(r.Modified) + len(r.Removed)
}
