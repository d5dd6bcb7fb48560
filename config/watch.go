package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the file at path is written or
// replaced, and hands the result to fn. It blocks until ctx is done. The
// directory of the file is watched so that editors that replace the file
// are followed.
func Watch(
	ctx context.Context,
	path string,
	fn func(cfg Config, err error),
	envFiles ...string,
) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != abs {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			fn(Load(path, envFiles...))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			fn(Config{}, fmt.Errorf("watch config: %w", err))
		}
	}
}
