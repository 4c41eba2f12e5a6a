package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	extSDAT = ".sdat"
	extESL  = ".esl"
)

// Batch is the full set of export files currently in the inbox, sorted by name.
type Batch struct {
	SDAT []string
	ESL  []string
}

// Empty reports whether the inbox holds no export files.
func (b Batch) Empty() bool {
	return len(b.SDAT) == 0 && len(b.ESL) == 0
}

// Watcher reports the inbox content whenever a *.sdat or *.esl file appears or changes.
type Watcher struct {
	dir          string
	pollInterval time.Duration
	onChange     func(context.Context, Batch)
	logger       *zap.Logger

	mu          sync.Mutex
	fingerprint string
}

// New returns a watcher for dir. onChange receives every file, not just the changed ones.
func New(dir string, pollInterval time.Duration, logger *zap.Logger, onChange func(context.Context, Batch)) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:          dir,
		pollInterval: pollInterval,
		onChange:     onChange,
		logger:       logger,
	}
}

// Run scans once, then watches until ctx is cancelled.
// fsnotify is preferred; the poll loop always runs as a fallback.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	w.check(ctx)

	var events <-chan fsnotify.Event
	var errs <-chan error
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, polling only", zap.Error(err))
	} else {
		defer fsw.Close()
		if err := fsw.Add(w.dir); err != nil {
			w.logger.Warn("failed to watch inbox, polling only", zap.String("dir", w.dir), zap.Error(err))
		} else {
			events, errs = fsw.Events, fsw.Errors
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("inbox watcher started", zap.String("dir", w.dir), zap.Duration("poll", w.pollInterval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if isExport(evt.Name) && evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.check(ctx)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("inbox watch error", zap.Error(err))
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check calls onChange when the set of files or any size/mtime differs from the last call.
func (w *Watcher) check(ctx context.Context) {
	batch, fp, err := w.scan()
	if err != nil {
		w.logger.Warn("inbox scan failed", zap.String("dir", w.dir), zap.Error(err))
		return
	}

	w.mu.Lock()
	changed := fp != w.fingerprint
	w.fingerprint = fp
	w.mu.Unlock()

	if !changed || batch.Empty() {
		return
	}
	w.logger.Debug("inbox changed", zap.Int("sdat", len(batch.SDAT)), zap.Int("esl", len(batch.ESL)))
	w.onChange(ctx, batch)
}

func (w *Watcher) scan() (Batch, string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return Batch{}, "", err
	}

	var batch Batch
	var fp strings.Builder
	for _, entry := range entries {
		if entry.IsDir() || !isExport(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		switch strings.ToLower(filepath.Ext(path)) {
		case extSDAT:
			batch.SDAT = append(batch.SDAT, path)
		case extESL:
			batch.ESL = append(batch.ESL, path)
		}
		fp.WriteString(entry.Name())
		fp.WriteByte('|')
		fp.WriteString(strconv.FormatInt(info.Size(), 10))
		fp.WriteByte('|')
		fp.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
		fp.WriteByte('\n')
	}
	sort.Strings(batch.SDAT)
	sort.Strings(batch.ESL)
	return batch, fp.String(), nil
}

func isExport(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case extSDAT, extESL:
		return true
	}
	return false
}
