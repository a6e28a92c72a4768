package oci

import "testing"

func TestPathCompareOrdersSlashFirst(t *testing.T) {
	// Files under a directory must sort immediately after the directory,
	// before any sibling whose name shares the prefix but continues with a
	// byte above '/'.
	cases := []struct {
		a, b string
		want int
	}{
		{"a", "a", 0},
		{"a", "b", -1},
		{"a/z", "a-b/c", -1},
		{"a-b/c", "a/z", 1},
		{"a/b", "a.txt", -1},
		{"dir/file", "dir2", -1},
		{"a", "a/b", -1},
		{"abc", "ab", 1},
	}

	for _, c := range cases {
		got := pathCompare(c.a, c.b)
		if (got < 0) != (c.want < 0) || (got > 0) != (c.want > 0) {
			t.Errorf("pathCompare(%q, %q) = %d, want sign of %d", c.a, c.b, got, c.want)
		}
	}
}

func TestChildSortKeyInterleavesDirsAndFiles(t *testing.T) {
	// Under pathCompare, "a/" (directory key) sorts before "a.txt" and
	// before "a-b/", matching how the full paths beneath them order.
	if pathCompare(childSortKey("a", true), childSortKey("a.txt", false)) >= 0 {
		t.Error("directory key should sort before a.txt sibling")
	}
	if pathCompare(childSortKey("a", true), childSortKey("a-b", true)) >= 0 {
		t.Error("a/ should sort before a-b/")
	}
}

func TestIsPathUnder(t *testing.T) {
	if !isPathUnder("a/b/c", "a/b") {
		t.Error("a/b/c should be under a/b")
	}
	if isPathUnder("a/bc", "a/b") {
		t.Error("a/bc is not under a/b")
	}
	if !isPathUnder("anything", "") {
		t.Error("everything is under the root")
	}
}

func TestParseHumanSize(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"8192", 8192, true},
		{"64K", 64 * 1024, true},
		{"2M", 2 * 1024 * 1024, true},
		{"1g", 1024 * 1024 * 1024, true},
		{"", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
	}

	for _, c := range cases {
		got, err := ParseHumanSize(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseHumanSize(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseHumanSize(%q) should fail", c.in)
		}
	}
}
