package rules

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a rule pack whenever its file is written or replaced and
// hands each valid pack to a callback. An invalid edit is logged and
// ignored, so the previous pack stays live.
type Watcher struct {
	path     string
	callback func(*Pack)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for the pack at path.
func NewWatcher(path string, callback func(*Pack)) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The directory is watched rather than the file so
// editors that save by rename are picked up. Call Stop to clean up.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("rules: watching %s for changes", w.path)
	return nil
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("rules: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	pack, err := LoadPack(w.path)
	if err != nil {
		log.Printf("rules: ignoring edit to %s: %v", w.path, err)
		return
	}
	for _, warning := range pack.Warnings {
		log.Printf("rules: warning: %s", warning)
	}
	log.Printf("rules: reloaded pack %s (version %s)", w.path, pack.Snapshot.Version)
	if w.callback != nil {
		w.callback(pack)
	}
}
