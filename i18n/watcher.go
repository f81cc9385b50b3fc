package i18n

import (
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the override directory whenever a catalog file changes.
// Stop by closing the returned watcher.
func (f *Formatter) Watch(dir string) (*fsnotify.Watcher, error) {
	if err := f.LoadOverrides(dir); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := f.LoadOverrides(dir); err != nil {
					f.logger.Warn("Failed to reload locale overrides",
						"dir", dir, "error", err)
					continue
				}
				f.logger.Info("Locale overrides reloaded", "dir", dir, "trigger", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("Locale watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}
