package acquire

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"DropFM/logger"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a file must go without writes before it is reported.
const settleDelay = 500 * time.Millisecond

// watchStaging reports every new audio file that appears in dir while a
// downloader runs. The returned stop func blocks until the watcher exits.
func watchStaging(ctx context.Context, dir string, extensions map[string]struct{}, notify func(name string)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer watcher.Close()

		pending := make(map[string]time.Time)
		seen := make(map[string]bool)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		flush := func(force bool) {
			now := time.Now()
			for path, last := range pending {
				if !force && now.Sub(last) < settleDelay {
					continue // 可能还在写入
				}
				delete(pending, path)
				name := filepath.Base(path)
				if seen[name] {
					continue
				}
				seen[name] = true
				notify(name)
			}
		}

		for {
			select {
			case <-ctx.Done():
				flush(true)
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(event.Name), "."))
				if _, ok := extensions[ext]; ok {
					pending[event.Name] = time.Now()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Staging watcher error", logger.String("dir", dir), logger.ErrorField(err))
			case <-ticker.C:
				flush(false)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}
