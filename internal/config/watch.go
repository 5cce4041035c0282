package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchFiles watches every non-empty path for writes and invokes onChange
// with the changed path so a long-running process can pick up an edited
// identity profile, permission policy, or monitoring rule file without a
// restart. Returns a nil watcher (and nil error) when no path is given.
// The caller owns the returned watcher's lifetime and must Close it on
// shutdown.
func WatchFiles(paths []string, onChange func(path string)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watching := false
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := w.Add(p); err != nil {
			slog.Warn("failed to watch hot-reloadable config source", "path", p, "error", err)
			continue
		}
		watching = true
	}
	if !watching {
		_ = w.Close()
		return nil, nil
	}

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange(event.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return w, nil
}
