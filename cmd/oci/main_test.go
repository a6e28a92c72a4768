package main

import (
	"os"
	"path/filepath"
	"testing"

	oci "github.com/ocitools/oci/pkg"
)

func initTestRepo(t *testing.T) *oci.Repository {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	repo, err := oci.Init(root, toolVersion)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return repo
}

func TestScopeArgDefaultsToWorkingDirectory(t *testing.T) {
	repo := initTestRepo(t)
	sub := filepath.Join(repo.Root, "sub", "dir")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	t.Chdir(sub)
	scope, err := scopeArg(repo, nil)
	if err != nil {
		t.Fatalf("scopeArg failed: %v", err)
	}
	if scope != "sub/dir" {
		t.Errorf("scope = %q, want sub/dir", scope)
	}

	// An explicit argument is resolved against the working directory.
	scope, err = scopeArg(repo, []string{".."})
	if err != nil {
		t.Fatalf("scopeArg failed: %v", err)
	}
	if scope != "sub" {
		t.Errorf("scope = %q, want sub", scope)
	}

	// At the root, the default scope is the whole repository.
	t.Chdir(repo.Root)
	scope, err = scopeArg(repo, nil)
	if err != nil {
		t.Fatalf("scopeArg failed: %v", err)
	}
	if scope != "" {
		t.Errorf("scope at root = %q, want empty", scope)
	}
}

func TestCwdIgnorePattern(t *testing.T) {
	repo := initTestRepo(t)
	sub := filepath.Join(repo.Root, "build")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	t.Chdir(sub)
	pattern, err := cwdIgnorePattern(repo)
	if err != nil {
		t.Fatalf("cwdIgnorePattern failed: %v", err)
	}
	if pattern != "build/" {
		t.Errorf("pattern = %q, want build/", pattern)
	}

	// The repository root is not a valid ignore target.
	t.Chdir(repo.Root)
	if _, err := cwdIgnorePattern(repo); err == nil {
		t.Error("expected error when run from the repository root")
	}
}
