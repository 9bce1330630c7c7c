package docs

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// corpusWatcher marks the index dirty when corpus pages change on disk.
type corpusWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onDirty  func()
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

func newCorpusWatcher(logger zerolog.Logger, onDirty func()) (*corpusWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &corpusWatcher{
		watcher:  watcher,
		logger:   logger,
		onDirty:  onDirty,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go cw.run()

	return cw, nil
}

func (cw *corpusWatcher) Watch(path string) error {
	return cw.watcher.Add(path)
}

func (cw *corpusWatcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}

func (cw *corpusWatcher) run() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				cw.logger.Debug().
					Str("page", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Corpus change detected")

				cw.scheduleMarkDirty()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error().Err(err).Msg("Corpus watcher error")

		case <-cw.stopCh:
			return
		}
	}
}

func (cw *corpusWatcher) scheduleMarkDirty() {
	if cw.timer != nil {
		cw.timer.Stop()
	}

	cw.timer = time.AfterFunc(cw.debounce, func() {
		cw.logger.Debug().Msg("Marking docs index dirty after corpus changes")
		cw.onDirty()
	})
}
