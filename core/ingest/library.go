package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"DropFM/model"
)

// LibraryResolver maps an owner to the directory merged files land in.
type LibraryResolver struct {
	musicDir string
}

func NewLibraryResolver(musicDir string) (*LibraryResolver, error) {
	if musicDir == "" || !filepath.IsAbs(musicDir) {
		return nil, fmt.Errorf("music dir must be an absolute path, got %q", musicDir)
	}
	return &LibraryResolver{musicDir: filepath.Clean(musicDir)}, nil
}

// Path returns the owner's library without touching the disk. A user whose
// path points at the shared music dir gets <music>/default so that one
// account cannot claim the whole tree.
func (r *LibraryResolver) Path(owner model.Owner) (string, error) {
	if owner.LibraryPath == "" {
		return r.musicDir, nil
	}
	if !filepath.IsAbs(owner.LibraryPath) {
		return "", fmt.Errorf("library path for %s is not absolute: %q", owner.Username, owner.LibraryPath)
	}
	p := filepath.Clean(owner.LibraryPath)
	if p == r.musicDir {
		return filepath.Join(r.musicDir, "default"), nil
	}
	return p, nil
}

// Resolve is Path plus creating the directory.
func (r *LibraryResolver) Resolve(owner model.Owner) (string, error) {
	p, err := r.Path(owner)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create library dir: %w", err)
	}
	return p, nil
}
