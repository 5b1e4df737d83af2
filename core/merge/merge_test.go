package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"

	"DropFM/core/pipeline"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o640); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestMergePreservesSubtree(t *testing.T) {
	src, lib := t.TempDir(), filepath.Join(t.TempDir(), "library")
	writeTree(t, src, map[string]string{
		"Artist/Album/01 Intro.mp3": "one",
		"Artist/Album/02 Song.mp3":  "two",
		"loose.flac":                "three",
	})

	res, err := New().Merge(context.Background(), src, lib)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Err() != nil || len(res.Merged) != 3 {
		t.Fatalf("result = %+v", res)
	}
	if got := readFile(t, filepath.Join(lib, "Artist/Album/02 Song.mp3")); got != "two" {
		t.Fatalf("content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(src, "loose.flac")); !os.IsNotExist(err) {
		t.Fatal("source file still present after move")
	}
}

func TestMergeFallsBackToCopyAcrossDevices(t *testing.T) {
	src, lib := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a/b.mp3": strings.Repeat("x", 4096)})
	writeTree(t, lib, map[string]string{"a/b.mp3": "old version"})

	m := &Merger{rename: func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}}
	res, err := m.Merge(context.Background(), src, lib)
	if err != nil || res.Err() != nil {
		t.Fatalf("Merge: %v / %v", err, res.Err())
	}
	dest := filepath.Join(lib, "a/b.mp3")
	if got := readFile(t, dest); len(got) != 4096 {
		t.Fatalf("copied %d bytes", len(got))
	}
	info, _ := os.Stat(dest)
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}
	if _, err := os.Stat(filepath.Join(src, "a/b.mp3")); !os.IsNotExist(err) {
		t.Fatal("source not removed after verified copy")
	}
	entries, _ := os.ReadDir(filepath.Join(lib, "a"))
	if len(entries) != 1 {
		t.Fatalf("temp files left in library: %v", entries)
	}
}

func TestMergePartialFailureKeepsMergedFiles(t *testing.T) {
	src, lib := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.mp3": "a", "b.mp3": "b", "c.mp3": "c"})

	m := &Merger{rename: func(oldpath, newpath string) error {
		if filepath.Base(oldpath) == "b.mp3" {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
		}
		return os.Rename(oldpath, newpath)
	}}
	res, err := m.Merge(context.Background(), src, lib)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	sort.Strings(res.Merged)
	if len(res.Merged) != 2 || len(res.Failed) != 1 || res.Failed[0].Path != "b.mp3" {
		t.Fatalf("result = %+v", res)
	}
	mergeErr := res.Err()
	if !errors.Is(mergeErr, pipeline.ErrMerge) || !strings.Contains(mergeErr.Error(), "merged 2 of 3 files") {
		t.Fatalf("Err() = %v", mergeErr)
	}
	for _, name := range []string{"a.mp3", "c.mp3"} {
		if _, err := os.Stat(filepath.Join(lib, name)); err != nil {
			t.Fatalf("%s was rolled back: %v", name, err)
		}
	}
}

func TestMergeSkipsSymlinks(t *testing.T) {
	src, lib := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"real.mp3": "r"})
	secret := filepath.Join(t.TempDir(), "secret")
	os.WriteFile(secret, []byte("s"), 0o600)
	if err := os.Symlink(secret, filepath.Join(src, "link.mp3")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	res, err := New().Merge(context.Background(), src, lib)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Merged) != 1 || len(res.Skipped) != 1 || res.Skipped[0] != "link.mp3" {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Lstat(filepath.Join(lib, "link.mp3")); !os.IsNotExist(err) {
		t.Fatal("symlink was merged into the library")
	}
}

func TestMergeMissingSource(t *testing.T) {
	_, err := New().Merge(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir())
	if !errors.Is(err, pipeline.ErrMerge) {
		t.Fatalf("err = %v", err)
	}
}

func TestResultErrLimitsCauses(t *testing.T) {
	res := &Result{}
	for i := 0; i < 5; i++ {
		res.Failed = append(res.Failed, FileError{Path: "f", Err: errors.New("x")})
	}
	if msg := res.Err().Error(); !strings.Contains(msg, "merged 0 of 5 files") || !strings.Contains(msg, "and 2 more") {
		t.Fatalf("Err() = %q", msg)
	}
}
