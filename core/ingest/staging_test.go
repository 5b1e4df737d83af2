package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"DropFM/model"
)

func TestLibraryPath(t *testing.T) {
	r, err := NewLibraryResolver("/srv/music/")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"no user path", "", "/srv/music", false},
		{"own path", "/home/alice/Music", "/home/alice/Music", false},
		{"shared dir", "/srv/music", "/srv/music/default", false},
		{"shared dir unclean", "/srv/music/./", "/srv/music/default", false},
		{"relative", "Music", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Path(model.Owner{Username: "alice", LibraryPath: tt.path})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Path = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLibraryResolveCreatesDir(t *testing.T) {
	root := t.TempDir()
	r, _ := NewLibraryResolver(root)
	got, err := r.Resolve(model.Owner{LibraryPath: root})
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(got); err != nil || !info.IsDir() || got != filepath.Join(root, "default") {
		t.Fatalf("Resolve = %q (%v)", got, err)
	}
}

func TestNewLibraryResolverRequiresAbsolute(t *testing.T) {
	if _, err := NewLibraryResolver("music"); err == nil {
		t.Fatal("expected error for relative music dir")
	}
}

func TestStagingAllocateIsUnique(t *testing.T) {
	s, err := NewStaging(filepath.Join(t.TempDir(), "staging"))
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Allocate(9)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Allocate(9)
	if err != nil {
		t.Fatal(err)
	}
	if a.Dir == b.Dir {
		t.Fatalf("same dir allocated twice: %s", a.Dir)
	}
	for _, dir := range []string{a.Incoming, a.Organized} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("%s missing: %v", dir, err)
		}
	}
	a.Remove()
	if _, err := os.Stat(a.Dir); !os.IsNotExist(err) {
		t.Fatal("Remove left the directory behind")
	}
}

func TestCleanStale(t *testing.T) {
	root := t.TempDir()
	s, _ := NewStaging(root)
	old, _ := s.Allocate(1)
	fresh, _ := s.Allocate(2)
	unrelated := filepath.Join(root, "keep-me")
	os.Mkdir(unrelated, 0o755)

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old.Dir, past, past); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(unrelated, past, past)

	n, err := s.CleanStale(24 * time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("CleanStale = %d, %v", n, err)
	}
	if _, err := os.Stat(old.Dir); !os.IsNotExist(err) {
		t.Fatal("stale dir kept")
	}
	for _, dir := range []string{fresh.Dir, unrelated} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("%s removed: %v", dir, err)
		}
	}
}
