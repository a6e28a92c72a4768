package oci

import (
	"sort"
)

// DuplicateGroup is a set of indexed paths sharing one content digest.
type DuplicateGroup struct {
	Hash  string // hex digest
	Size  uint64 // per-member size
	Paths []string
}

// FindDuplicates groups the indexed entries by digest and returns every group
// with two or more members. Comparison is digest equality only; file contents
// are never re-read. Groups come back in ascending digest order, members in
// path order, so repeated runs over the same index print identically.
func FindDuplicates(repo *Repository) []*DuplicateGroup {
	byHash := make(map[string]*DuplicateGroup)

	repo.Store.ForEach(func(e *IndexEntry) bool {
		hex := e.HexHash()
		group, ok := byHash[hex]
		if !ok {
			group = &DuplicateGroup{Hash: hex, Size: e.Size}
			byHash[hex] = group
		}
		group.Paths = append(group.Paths, e.Path)
		return true
	})

	var groups []*DuplicateGroup
	for _, group := range byHash {
		if len(group.Paths) < 2 {
			continue
		}
		sort.Slice(group.Paths, func(i, j int) bool {
			return pathCompare(group.Paths[i], group.Paths[j]) < 0
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Hash < groups[j].Hash
	})

	VerboseLog(2, "duplicates: %d groups", len(groups))
	return groups
}

// CrossIndexDuplicates returns the local entries whose digest also exists in
// the source index, in path order. Used to answer "which files here are
// already stored over there".
func CrossIndexDuplicates(local, source *Repository) []*IndexEntry {
	var matches []*IndexEntry
	local.Store.ForEach(func(e *IndexEntry) bool {
		if len(source.Store.FindByHash(e.Hash)) > 0 {
			matches = append(matches, e)
		}
		return true
	})
	return matches
}

// IndexStats summarizes one index: sizes, digest cardinality, and how much
// space duplicate content costs.
type IndexStats struct {
	TotalFiles      int
	TotalBytes      uint64
	UniqueHashes    int
	DuplicateFiles  int // every member of a group with more than one path
	DuplicateGroups int
	WastedBytes     uint64 // bytes beyond one copy per group
}

// ComputeStats derives IndexStats from the index alone.
func ComputeStats(repo *Repository) *IndexStats {
	stats := &IndexStats{}
	sizes := make(map[string]uint64)
	counts := make(map[string]int)

	repo.Store.ForEach(func(e *IndexEntry) bool {
		stats.TotalFiles++
		stats.TotalBytes += e.Size
		hex := e.HexHash()
		sizes[hex] = e.Size
		counts[hex]++
		return true
	})

	stats.UniqueHashes = len(counts)
	for hex, n := range counts {
		if n > 1 {
			stats.DuplicateGroups++
			stats.DuplicateFiles += n
			stats.WastedBytes += uint64(n-1) * sizes[hex]
		}
	}
	return stats
}

// EfficiencyPercent is the share of indexed bytes that is not duplicate
// waste; 100 means every file is unique.
func (s *IndexStats) EfficiencyPercent() float64 {
	if s.TotalBytes == 0 {
		return 100.0
	}
	return float64(s.TotalBytes-s.WastedBytes) / float64(s.TotalBytes) * 100.0
}
