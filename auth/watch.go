package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the new token each time the token file is
// rewritten, e.g. by `tradedash login` in another terminal, and with "" when it
// is removed by `tradedash logout`. The directory is watched rather than the
// file because Save replaces it by rename; it is created if missing so a first
// login is seen too. Watch runs until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func(token string)) error {
	if s.Path == "" {
		return errors.New("token file path not configured")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	slog.Info("auth: watching token file", "path", s.Path)

	target := filepath.Clean(s.Path)
	last, _ := s.Load()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			tok, err := s.Load()
			if errors.Is(err, ErrNoToken) {
				tok, err = "", nil
			}
			if err != nil {
				slog.Warn("auth: token reload failed, keeping previous token", "path", s.Path, "err", err)
				continue
			}
			if tok == last {
				continue
			}
			last = tok
			slog.Info("auth: token changed", "path", s.Path)
			onChange(tok)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("auth: watcher error", "err", err)
		}
	}
}
