package connectivity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ReadState interprets a status file written by the platform's network hook.
// A missing or unreadable file reads as Online, matching the behaviour when no
// signal is available at all.
func ReadState(path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		return Online
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "offline", "down", "0", "false":
		return Offline
	default:
		return Online
	}
}

// FileSource feeds a Monitor from a status file. Changes are picked up through
// filesystem events, never by polling.
type FileSource struct {
	path    string
	monitor *Monitor
	watcher *fsnotify.Watcher
	logger  *log.Entry
}

// NewFileSource watches the directory containing path so that the file may be
// created, replaced or removed by the writer.
func NewFileSource(path string, monitor *Monitor) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve connectivity file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileSource{
		path:    abs,
		monitor: monitor,
		watcher: watcher,
		logger:  log.WithField("component", "connectivity"),
	}, nil
}

// Run applies the current file state and then every change until ctx is done.
func (s *FileSource) Run(ctx context.Context) error {
	defer s.watcher.Close()

	s.apply()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return errors.New("connectivity watcher closed")
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.apply()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return errors.New("connectivity watcher closed")
			}
			s.logger.WithError(err).Warn("connectivity watcher error")
		}
	}
}

func (s *FileSource) apply() {
	state := ReadState(s.path)
	if state != s.monitor.Current() {
		s.logger.WithField("state", state).Info("connectivity changed")
	}
	s.monitor.Set(state)
}
