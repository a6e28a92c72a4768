package oci

import "bytes"

// IndexEntry is the persisted identity record for one file: its
// repository-relative path (the key, unique within an index), size in bytes,
// modification time in epoch milliseconds, and content digest. Entries are
// immutable once written except by a full replace.
type IndexEntry struct {
	Path     string
	Size     uint64
	Modified int64
	Hash     []byte
}

// HexHash renders the entry's digest as a hex string.
func (e *IndexEntry) HexHash() string {
	return HexDigest(e.Hash)
}

// SameHash reports whether the entry's digest equals the given one.
func (e *IndexEntry) SameHash(digest []byte) bool {
	return bytes.Equal(e.Hash, digest)
}

// clone returns a copy so callers can hold entries across store mutations.
func (e *IndexEntry) clone() *IndexEntry {
	c := *e
	c.Hash = append([]byte(nil), e.Hash...)
	return &c
}

// EntryOpType selects the mutation an EntryOp performs.
type EntryOpType int

const (
	OpPut EntryOpType = iota
	OpDelete
)

// EntryOp is one mutation in a transactional batch. Put upserts Entry;
// Delete removes Path.
type EntryOp struct {
	Op    EntryOpType
	Entry *IndexEntry // Put
	Path  string      // Delete
}

// EntryStore is the persisted store contract the change detector, duplicate
// analyzer and prune engine consume. List results are ordered by pathCompare;
// ApplyBatch is atomic: either every op lands on disk or none do.
type EntryStore interface {
	Get(path string) (*IndexEntry, bool)
	Put(entry *IndexEntry) error
	Delete(path string) error
	List(prefix string) []*IndexEntry
	ForEach(fn func(*IndexEntry) bool)
	FindByHash(digest []byte) []*IndexEntry
	ApplyBatch(ops []EntryOp) error
	Len() int
}
