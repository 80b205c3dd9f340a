package config

import (
	"path/filepath"
	"sync"

	"github.com/codefionn/livecast/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Instructions holds the current system instructions. When watching is
// enabled the file is reloaded on change, so sessions opened after an edit
// pick up the new text without a restart.
type Instructions struct {
	cfg       *Config
	mu        sync.RWMutex
	text      string
	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewInstructions loads the instructions file and, if cfg.WatchInstructions
// is set, starts watching it.
func NewInstructions(cfg *Config) *Instructions {
	ins := &Instructions{
		cfg:       cfg,
		text:      cfg.ReadSystemInstructions(),
		stopWatch: make(chan struct{}),
		done:      make(chan struct{}),
	}

	if !cfg.WatchInstructions || cfg.SystemInstructionsPath == "" {
		close(ins.done)
		return ins
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to create instructions watcher: %v", err)
		close(ins.done)
		return ins
	}

	// Watch the directory: editors often replace the file via rename.
	dir := filepath.Dir(cfg.SystemInstructionsPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("failed to watch %s: %v", dir, err)
		watcher.Close()
		close(ins.done)
		return ins
	}

	ins.watcher = watcher
	go ins.watch()
	return ins
}

// Current returns the latest loaded instructions.
func (i *Instructions) Current() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.text
}

// Reload re-reads the instructions file.
func (i *Instructions) Reload() {
	text := i.cfg.ReadSystemInstructions()
	i.mu.Lock()
	i.text = text
	i.mu.Unlock()
	logger.Info("System instructions reloaded (%d bytes)", len(text))
}

// Close stops the watcher.
func (i *Instructions) Close() error {
	var err error
	i.closeOnce.Do(func() {
		close(i.stopWatch)
		if i.watcher != nil {
			err = i.watcher.Close()
		}
		<-i.done
	})
	return err
}

func (i *Instructions) watch() {
	defer close(i.done)

	target := filepath.Clean(i.cfg.SystemInstructionsPath)
	for {
		select {
		case <-i.stopWatch:
			return
		case event, ok := <-i.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				i.Reload()
			}
		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("instructions watcher error: %v", err)
		}
	}
}
