package oci

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) (EntryStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index")
	alg, _ := GetHashAlgorithm("sha256")
	store, err := OpenStore(path, alg, testVersion)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	return store, path
}

func testEntry(path string, size uint64, hashSeed byte) *IndexEntry {
	hash := make([]byte, HashSizeSHA256)
	for i := range hash {
		hash[i] = hashSeed
	}
	return &IndexEntry{Path: path, Size: size, Modified: 1700000000000, Hash: hash}
}

func TestStorePutGetDelete(t *testing.T) {
	store, _ := testStore(t)

	if err := store.Put(testEntry("a.txt", 10, 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, ok := store.Get("a.txt")
	if !ok {
		t.Fatal("expected a.txt")
	}
	if entry.Size != 10 {
		t.Errorf("size = %d, want 10", entry.Size)
	}

	if err := store.Delete("a.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Get("a.txt"); ok {
		t.Error("a.txt should be gone")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}

func TestStoreListOrderAndPrefix(t *testing.T) {
	store, _ := testStore(t)

	// Inserted out of order; List must come back in pathCompare order.
	for i, path := range []string{"b.txt", "a/z.txt", "a-b/c.txt", "a/a.txt"} {
		if err := store.Put(testEntry(path, uint64(i+1), byte(i+1))); err != nil {
			t.Fatalf("Put %s failed: %v", path, err)
		}
	}

	want := []string{"a/a.txt", "a/z.txt", "a-b/c.txt", "b.txt"}
	all := store.List("")
	if len(all) != len(want) {
		t.Fatalf("List returned %d entries, want %d", len(all), len(want))
	}
	for i, e := range all {
		if e.Path != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, e.Path, want[i])
		}
	}

	under := store.List("a")
	if len(under) != 2 {
		t.Fatalf("List(a) returned %d entries, want 2", len(under))
	}
	if under[0].Path != "a/a.txt" || under[1].Path != "a/z.txt" {
		t.Errorf("List(a) = %s, %s", under[0].Path, under[1].Path)
	}
}

func TestStoreFindByHash(t *testing.T) {
	store, _ := testStore(t)

	if err := store.ApplyBatch([]EntryOp{
		{Op: OpPut, Entry: testEntry("one.txt", 5, 7)},
		{Op: OpPut, Entry: testEntry("two.txt", 5, 7)},
		{Op: OpPut, Entry: testEntry("other.txt", 5, 9)},
	}); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	matches := store.FindByHash(testEntry("", 0, 7).Hash)
	if len(matches) != 2 {
		t.Fatalf("FindByHash returned %d entries, want 2", len(matches))
	}
	if matches[0].Path != "one.txt" || matches[1].Path != "two.txt" {
		t.Errorf("FindByHash order = %s, %s", matches[0].Path, matches[1].Path)
	}

	// Replacing an entry must drop its old digest from the lookup.
	if err := store.Put(testEntry("one.txt", 5, 9)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n := len(store.FindByHash(testEntry("", 0, 7).Hash)); n != 1 {
		t.Errorf("after replace, old digest matches %d entries, want 1", n)
	}
	if n := len(store.FindByHash(testEntry("", 0, 9).Hash)); n != 2 {
		t.Errorf("after replace, new digest matches %d entries, want 2", n)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	store, path := testStore(t)

	if err := store.ApplyBatch([]EntryOp{
		{Op: OpPut, Entry: testEntry("x/y.txt", 42, 3)},
		{Op: OpPut, Entry: testEntry("z.txt", 7, 4)},
	}); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	alg, _ := GetHashAlgorithm("sha256")
	reopened, err := OpenStore(path, alg, testVersion)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened Len = %d, want 2", reopened.Len())
	}
	entry, ok := reopened.Get("x/y.txt")
	if !ok {
		t.Fatal("expected x/y.txt after reopen")
	}
	if entry.Size != 42 || entry.Modified != 1700000000000 {
		t.Errorf("entry metadata lost: size=%d modified=%d", entry.Size, entry.Modified)
	}
	if !entry.SameHash(testEntry("", 0, 3).Hash) {
		t.Error("entry digest lost across reopen")
	}
}

func TestStoreAlgorithmFromImageWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	sha1, _ := GetHashAlgorithm("sha1")
	store, err := OpenStore(path, sha1, testVersion)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	if err := store.ApplyBatch(nil); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	// Reopening with a different configured default must keep sha1.
	sha256, _ := GetHashAlgorithm("sha256")
	reopened, err := OpenStore(path, sha256, testVersion)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if fs, ok := reopened.(*fileStore); !ok || fs.Algorithm().Name != "sha1" {
		t.Error("image's recorded algorithm should win over the configured default")
	}
}

func TestStoreRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	if err := os.WriteFile(path, []byte("definitely not an index image"), 0644); err != nil {
		t.Fatalf("failed to write garbage: %v", err)
	}

	alg, _ := GetHashAlgorithm("sha256")
	if _, err := OpenStore(path, alg, testVersion); !errors.Is(err, ErrIndexFormat) {
		t.Errorf("expected ErrIndexFormat, got %v", err)
	}
}

func TestStoreBatchIsAllOrNothing(t *testing.T) {
	store, path := testStore(t)
	if err := store.Put(testEntry("keep.txt", 1, 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A batch that fails midway (delete of a missing path is fine, so force
	// failure by making the image path unwritable) must leave memory equal to
	// the last committed image.
	if err := os.Chmod(filepath.Dir(path), 0555); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	defer os.Chmod(filepath.Dir(path), 0755)

	err := store.ApplyBatch([]EntryOp{{Op: OpPut, Entry: testEntry("new.txt", 2, 2)}})
	if err == nil {
		t.Skip("filesystem permitted the write despite read-only directory")
	}

	if _, ok := store.Get("new.txt"); ok {
		t.Error("failed batch must not leave new.txt in memory")
	}
	if _, ok := store.Get("keep.txt"); !ok {
		t.Error("failed batch must not lose committed entries")
	}
}
