package sessiondock

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports out-of-band changes to the filesystem backend's data
// directory. Listings are never cached, so correctness does not depend on
// it; it exists so dashboards refresh when an operator drops or edits a
// session file by hand.
type Watcher struct {
	fsw       *fsnotify.Watcher
	hub       *Hub
	log       zerolog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

func NewWatcher(dir string, hub *Hub, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{
		fsw:  fsw,
		hub:  hub,
		log:  log.With().Str("component", "watcher").Str("dir", dir).Logger(),
		done: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			identifier := filepath.Base(event.Name)
			// Skip the store's own temp files and permission churn.
			if strings.HasSuffix(identifier, ".tmp") || event.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug().Str("identifier", identifier).Str("op", event.Op.String()).Msg("data dir changed")
			w.hub.Publish(ChangeEvent{Type: ChangeExternal, Identifier: identifier})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return w.fsw.Close()
}
