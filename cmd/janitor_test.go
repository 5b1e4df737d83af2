package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"DropFM/config"
)

func TestJanitorLeavesUploadLogsAloneByDefault(t *testing.T) {
	prev := cfg
	defer func() { cfg = prev }()
	cfg = config.Default()
	cfg.StagingDir = t.TempDir()
	// 不可达的数据库：若默认执行修复，openStores 会失败
	cfg.DBHost = "127.0.0.1"
	cfg.DBPort = "1"

	stale := filepath.Join(cfg.StagingDir, "attempt-7-deadbeef")
	live := filepath.Join(cfg.StagingDir, "attempt-8-cafebabe")
	for _, dir := range []string{stale, live} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * cfg.StagingMaxAge())
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	if f := janitorCmd.Flags().Lookup("recover-interrupted"); f == nil || f.DefValue != "false" {
		t.Fatalf("recover-interrupted flag = %+v", f)
	}
	var out bytes.Buffer
	janitorCmd.SetOut(&out)
	defer janitorCmd.SetOut(nil)
	if err := janitorCmd.RunE(janitorCmd, nil); err != nil {
		t.Fatalf("janitor: %v", err)
	}

	if !strings.Contains(out.String(), "removed 1 stale staging dirs") {
		t.Fatalf("output = %q", out.String())
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale dir still present: %v", err)
	}
	if _, err := os.Stat(live); err != nil {
		t.Fatalf("live dir removed: %v", err)
	}
}
