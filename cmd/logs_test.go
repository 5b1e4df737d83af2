package cmd

import (
	"strings"
	"testing"
	"time"

	"DropFM/model"
	"DropFM/storage"
)

func TestRenderUploadLogs(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	done := created.Add(95 * time.Second)
	msg := "acquisition failed: youtube: download: exit status 1"
	out := renderUploadLogs([]*model.UploadLog{
		{ID: 1, UserID: 3, SourceKind: model.SourceFile, Source: "a.mp3", Status: model.UploadStatusCompleted, FileCount: 1, CreatedAt: created, CompletedAt: &done},
		{ID: 2, UserID: 3, SourceKind: model.SourceYouTube, Source: "https://youtu.be/x", Status: model.UploadStatusFailed, ErrorMessage: &msg, CreatedAt: created, CompletedAt: &done},
		{ID: 3, UserID: 4, SourceKind: model.SourceSpotify, Source: "https://open.spotify.com/track/1", Status: model.UploadStatusProcessing, CreatedAt: created},
	})

	for _, want := range []string{"a.mp3", "completed", "failed", "processing", "1m35s", "acquisition failed", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderBucketStats(t *testing.T) {
	out := renderBucketStats("dropfm-library", "3/", &storage.BucketStats{
		TotalObjects: 2,
		TotalSize:    3 << 20,
		ByExtension:  map[string]int64{"mp3": 2 << 20, "": 1 << 20},
	})
	for _, want := range []string{"dropfm-library/3/", "3.0 MiB", "mp3", "(none)"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}
