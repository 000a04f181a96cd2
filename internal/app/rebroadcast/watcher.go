package rebroadcast

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// manifestWatcher calls onReady once the manifest shows up in dir.
type manifestWatcher struct {
	w       *fsnotify.Watcher
	path    string
	onReady func()
	logger  zerolog.Logger

	once      sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func watchManifest(dir string, logger zerolog.Logger, onReady func()) (*manifestWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	mw := &manifestWatcher{
		w:       w,
		path:    filepath.Join(dir, manifestFile),
		onReady: onReady,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go mw.loop()
	if _, err := os.Stat(mw.path); err == nil {
		mw.fire()
	}
	return mw, nil
}

func (mw *manifestWatcher) loop() {
	for {
		select {
		case <-mw.done:
			return
		case ev, ok := <-mw.w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == manifestFile && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)) {
				mw.fire()
			}
		case err, ok := <-mw.w.Errors:
			if !ok {
				return
			}
			mw.logger.Warn().Err(err).Msg("manifest watcher error")
		}
	}
}

func (mw *manifestWatcher) fire() {
	mw.once.Do(func() {
		mw.logger.Info().Str("manifest", mw.path).Msg("stream ready")
		if mw.onReady != nil {
			go mw.onReady()
		}
	})
}

func (mw *manifestWatcher) Close() {
	mw.closeOnce.Do(func() {
		close(mw.done)
		_ = mw.w.Close()
	})
}
