package oci

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"unsafe"

	"github.com/google/vectorio"
	zcsl "github.com/mattkeenan/zerocopyskiplist"
	"golang.org/x/sys/unix"
)

// fileStore is the embedded store engine behind the EntryStore contract. In
// memory it keeps a skiplist ordered by pathCompare plus a digest->paths map
// for hash lookups. On disk it is a single whole-image file: commits serialize
// the skiplist, writev it to a temp file, fsync, and rename over the previous
// image, so a crash at any point leaves the last committed image intact.
type fileStore struct {
	path        string
	algorithm   *HashAlgorithm
	toolVersion string

	list   *zcsl.ZeroCopySkiplist[IndexEntry, string, string]
	byHash map[string][]string
}

const storeContext = "main"

func newEntrySkiplist() *zcsl.ZeroCopySkiplist[IndexEntry, string, string] {
	getKey := func(e *IndexEntry) string {
		return e.Path
	}
	getSize := func(e *IndexEntry) int {
		return entryRecordSize(e)
	}
	return zcsl.MakeZeroCopySkiplist[IndexEntry, string, string](16, getKey, getSize, pathCompare)
}

// OpenStore loads the index image at path, creating an empty store if the
// file does not exist yet. The algorithm argument is the configured default;
// an existing image's recorded algorithm wins, since a whole index hashes
// with a single algorithm for its lifetime.
func OpenStore(path string, algorithm *HashAlgorithm, toolVersion string) (EntryStore, error) {
	s := &fileStore{
		path:        path,
		algorithm:   algorithm,
		toolVersion: toolVersion,
		list:        newEntrySkiplist(),
		byHash:      make(map[string][]string),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Algorithm returns the hash algorithm this index was created with.
func (s *fileStore) Algorithm() *HashAlgorithm {
	return s.algorithm
}

func (s *fileStore) Get(path string) (*IndexEntry, bool) {
	node, _ := s.list.Find(path)
	if node == nil {
		return nil, false
	}
	return node.Item().clone(), true
}

func (s *fileStore) Put(entry *IndexEntry) error {
	return s.ApplyBatch([]EntryOp{{Op: OpPut, Entry: entry}})
}

func (s *fileStore) Delete(path string) error {
	return s.ApplyBatch([]EntryOp{{Op: OpDelete, Path: path}})
}

func (s *fileStore) List(prefix string) []*IndexEntry {
	var result []*IndexEntry
	s.ForEach(func(e *IndexEntry) bool {
		if prefix == "" || e.Path == prefix || isPathUnder(e.Path, prefix) {
			result = append(result, e)
		}
		return true
	})
	return result
}

func (s *fileStore) ForEach(fn func(*IndexEntry) bool) {
	for cur := s.list.First(); cur != nil; cur = cur.Next() {
		if !fn(cur.Item().clone()) {
			break
		}
	}
}

func (s *fileStore) FindByHash(digest []byte) []*IndexEntry {
	paths := s.byHash[HexDigest(digest)]
	result := make([]*IndexEntry, 0, len(paths))
	for _, p := range paths {
		if node, _ := s.list.Find(p); node != nil {
			result = append(result, node.Item().clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return pathCompare(result[i].Path, result[j].Path) < 0
	})
	return result
}

// ApplyBatch applies every op to the in-memory index and persists the result
// atomically. If persisting fails the in-memory state is reloaded from the
// last committed image so memory never drifts ahead of disk.
func (s *fileStore) ApplyBatch(ops []EntryOp) error {
	for _, op := range ops {
		switch op.Op {
		case OpPut:
			if op.Entry == nil {
				return fmt.Errorf("put op without entry")
			}
			s.removeFromMemory(op.Entry.Path)
			s.insertIntoMemory(op.Entry.clone())
		case OpDelete:
			s.removeFromMemory(op.Path)
		default:
			return fmt.Errorf("unknown entry op %d", op.Op)
		}
	}

	if err := s.persist(); err != nil {
		if reloadErr := s.reload(); reloadErr != nil {
			return fmt.Errorf("failed to persist index (and reload failed: %v): %w", reloadErr, err)
		}
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

func (s *fileStore) Len() int {
	return s.list.Length()
}

func (s *fileStore) insertIntoMemory(entry *IndexEntry) {
	s.list.Insert(entry, storeContext)
	hex := entry.HexHash()
	s.byHash[hex] = append(s.byHash[hex], entry.Path)
}

func (s *fileStore) removeFromMemory(path string) {
	node, _ := s.list.Find(path)
	if node == nil {
		return
	}
	hex := node.Item().HexHash()
	s.list.Delete(path)

	paths := s.byHash[hex]
	for i, p := range paths {
		if p == path {
			s.byHash[hex] = append(paths[:i], paths[i+1:]...)
			break
		}
	}
	if len(s.byHash[hex]) == 0 {
		delete(s.byHash, hex)
	}
}

func (s *fileStore) reload() error {
	s.list = newEntrySkiplist()
	s.byHash = make(map[string][]string)
	return s.load()
}

// ============================================================================
// ON-DISK IMAGE
// ============================================================================
//
// Image layout, all integers little-endian:
//
//	header:  magic "ocix" | u32 format | u16 hashType | u16 toolVerLen |
//	         u32 entryCount | toolVersion bytes
//	entry:   u32 recordSize | u64 size | u64 modified | u16 hashLen |
//	         u16 pathLen | hash bytes | path bytes
//
// The tool version in the header is informational only: an image written by a
// different tool version loads fine as long as the format version and hash
// algorithm are readable.

func entryRecordSize(e *IndexEntry) int {
	return 4 + 8 + 8 + 2 + 2 + len(e.Hash) + len(e.Path)
}

func (s *fileStore) encodeHeader(entryCount int) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(indexMagic)
	binary.Write(buf, binary.LittleEndian, uint32(indexFormatVersion))
	binary.Write(buf, binary.LittleEndian, s.algorithm.TypeID)
	binary.Write(buf, binary.LittleEndian, uint16(len(s.toolVersion)))
	binary.Write(buf, binary.LittleEndian, uint32(entryCount))
	buf.WriteString(s.toolVersion)
	return buf.Bytes()
}

func encodeEntry(e *IndexEntry) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, entryRecordSize(e)))
	binary.Write(buf, binary.LittleEndian, uint32(entryRecordSize(e)))
	binary.Write(buf, binary.LittleEndian, e.Size)
	binary.Write(buf, binary.LittleEndian, uint64(e.Modified))
	binary.Write(buf, binary.LittleEndian, uint16(len(e.Hash)))
	binary.Write(buf, binary.LittleEndian, uint16(len(e.Path)))
	buf.Write(e.Hash)
	buf.WriteString(e.Path)
	return buf.Bytes()
}

// persist writes the full image to a temp file with writev and renames it
// over the committed image. The directory is fsynced after the rename so the
// new name itself survives a crash.
func (s *fileStore) persist() error {
	buffers := make([][]byte, 0, s.list.Length()+1)
	buffers = append(buffers, s.encodeHeader(s.list.Length()))
	for cur := s.list.First(); cur != nil; cur = cur.Next() {
		buffers = append(buffers, encodeEntry(cur.Item()))
	}

	iovecs := make([]syscall.Iovec, len(buffers))
	total := 0
	for i, b := range buffers {
		iovecs[i] = syscall.Iovec{
			Base: (*byte)(unsafe.Pointer(&b[0])),
			Len:  uint64(len(b)),
		}
		total += len(b)
	}

	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp index file %s: %w", tempPath, err)
	}

	written := 0
	for offset := 0; offset < len(iovecs); offset += iovChunkSize {
		end := offset + iovChunkSize
		if end > len(iovecs) {
			end = len(iovecs)
		}
		nw, err := vectorio.WritevRaw(uintptr(file.Fd()), iovecs[offset:end])
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write index image: %w", err)
		}
		written += nw
	}
	if written != total {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("index image write incomplete: wrote %d bytes, expected %d", written, total)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync index image: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close index image: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to commit index image: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		unix.Fsync(int(dir.Fd()))
		dir.Close()
	}
	return nil
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read index file %s: %w", s.path, err)
	}

	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != indexMagic {
		return fmt.Errorf("%w: bad magic in %s", ErrIndexFormat, s.path)
	}

	var format uint32
	var hashType, toolVerLen uint16
	var entryCount uint32
	if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
		return fmt.Errorf("%w: truncated header in %s", ErrIndexFormat, s.path)
	}
	if format != indexFormatVersion {
		return fmt.Errorf("%w: format version %d (this build reads %d)", ErrIndexFormat, format, indexFormatVersion)
	}
	if err := binary.Read(r, binary.LittleEndian, &hashType); err != nil {
		return fmt.Errorf("%w: truncated header in %s", ErrIndexFormat, s.path)
	}
	if err := binary.Read(r, binary.LittleEndian, &toolVerLen); err != nil {
		return fmt.Errorf("%w: truncated header in %s", ErrIndexFormat, s.path)
	}
	if err := binary.Read(r, binary.LittleEndian, &entryCount); err != nil {
		return fmt.Errorf("%w: truncated header in %s", ErrIndexFormat, s.path)
	}

	writerVersion := make([]byte, toolVerLen)
	if _, err := io.ReadFull(r, writerVersion); err != nil {
		return fmt.Errorf("%w: truncated header in %s", ErrIndexFormat, s.path)
	}
	if string(writerVersion) != s.toolVersion {
		VerboseLog(1, "index written by tool version %q, running %q", writerVersion, s.toolVersion)
	}

	algorithm, err := GetHashAlgorithmByType(hashType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFormat, err)
	}
	s.algorithm = algorithm

	for i := uint32(0); i < entryCount; i++ {
		entry, err := decodeEntry(r)
		if err != nil {
			return fmt.Errorf("index file %s entry %d: %w", s.path, i, err)
		}
		s.insertIntoMemory(entry)
	}
	return nil
}

func decodeEntry(r *bytes.Reader) (*IndexEntry, error) {
	var recordSize uint32
	var size, modified uint64
	var hashLen, pathLen uint16

	if err := binary.Read(r, binary.LittleEndian, &recordSize); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &modified); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &hashLen); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}

	expected := uint32(4 + 8 + 8 + 2 + 2 + int(hashLen) + int(pathLen))
	if recordSize != expected {
		return nil, fmt.Errorf("record size %d does not match contents %d", recordSize, expected)
	}

	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(r, hash); err != nil {
		return nil, fmt.Errorf("truncated hash: %w", err)
	}
	path := make([]byte, pathLen)
	if _, err := io.ReadFull(r, path); err != nil {
		return nil, fmt.Errorf("truncated path: %w", err)
	}

	return &IndexEntry{
		Path:     string(path),
		Size:     size,
		Modified: int64(modified),
		Hash:     hash,
	}, nil
}
