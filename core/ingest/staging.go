package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"DropFM/logger"

	"github.com/google/uuid"
)

const stagingPrefix = "attempt-"

// Staging owns the root under which per-attempt directories are created.
type Staging struct {
	root string
	now  func() time.Time
}

// Area is one attempt's private workspace. Incoming holds acquired files,
// Organized holds processor output.
type Area struct {
	Dir       string
	Incoming  string
	Organized string
}

func NewStaging(root string) (*Staging, error) {
	if root == "" {
		return nil, fmt.Errorf("staging dir not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Staging{root: root, now: time.Now}, nil
}

func (s *Staging) Root() string { return s.root }

// Allocate creates attempt-<id>-<uuid8>. Mkdir (not MkdirAll) fails if the
// name already exists, so two attempts never share a directory.
func (s *Staging) Allocate(attemptID int64) (*Area, error) {
	name := fmt.Sprintf("%s%d-%s", stagingPrefix, attemptID, uuid.NewString()[:8])
	dir := filepath.Join(s.root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	area := &Area{
		Dir:       dir,
		Incoming:  filepath.Join(dir, "incoming"),
		Organized: filepath.Join(dir, "organized"),
	}
	for _, sub := range []string{area.Incoming, area.Organized} {
		if err := os.Mkdir(sub, 0o700); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("create staging subdir: %w", err)
		}
	}
	return area, nil
}

// Remove deletes the area. Errors are logged; a leftover dir is picked up by
// CleanStale later.
func (a *Area) Remove() {
	if a == nil {
		return
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		logger.Warn("Failed to remove staging dir", logger.String("dir", a.Dir), logger.ErrorField(err))
	}
}

// CleanStale removes attempt directories older than maxAge and returns how
// many were removed.
func (s *Staging) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read staging root: %w", err)
	}
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove stale staging dir", logger.String("dir", dir), logger.ErrorField(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("Removed stale staging dirs", logger.Int("count", removed))
	}
	return removed, nil
}
