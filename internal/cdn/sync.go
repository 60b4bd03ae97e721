package cdn

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vantagesign/signdeck/internal/logging"
)

// Syncer reconciles a local directory of logo files against the CDN:
// every matching file is uploaded, with re-uploads replacing the logo
// that shares the slug ID.
type Syncer struct {
	pub      *Publisher
	patterns []string
	debounce time.Duration
	log      logging.Logger
}

// NewSyncer builds a syncer over the publisher. patterns are file globs
// matched against base names ("*.png").
func NewSyncer(pub *Publisher, patterns []string, debounce time.Duration, log logging.Logger) *Syncer {
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Syncer{
		pub:      pub,
		patterns: patterns,
		debounce: debounce,
		log:      log.WithComponent("sync"),
	}
}

func (s *Syncer) matches(name string) bool {
	base := filepath.Base(name)
	for _, pattern := range s.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// SyncOnce uploads every matching file in dir (non-recursive, sorted for
// stable ordering) and returns how many logos were published.
func (s *Syncer) SyncOnce(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !s.matches(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	uploaded := 0
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return uploaded, err
		}
		if _, err := s.pub.UploadLogo(ctx, name, content); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	s.log.Info(ctx, "directory synced", "dir", dir, "uploaded", uploaded)
	return uploaded, nil
}

// Watch runs an initial sync, then watches dir and re-uploads files as
// they change, batching rapid events behind the debounce window. It
// blocks until ctx is done.
func (s *Syncer) Watch(ctx context.Context, dir string) error {
	if _, err := s.SyncOnce(ctx, dir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	s.log.Info(ctx, "watching for logo changes", "dir", dir)

	pending := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !s.matches(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			flush = time.After(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn(ctx, err, "watcher error")

		case <-flush:
			for name := range pending {
				content, err := os.ReadFile(name)
				if err != nil {
					s.log.Warn(ctx, err, "skipping unreadable file", "file", name)
					continue
				}
				if _, err := s.pub.UploadLogo(ctx, name, content); err != nil {
					s.log.Error(ctx, err, "upload failed", "file", name)
				}
			}
			pending = make(map[string]struct{})
			flush = nil
		}
	}
}
