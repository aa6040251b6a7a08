package quirks

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store serves override tables backed by a YAML file on disk and reloads them
// whenever the file changes. A missing file yields the built-in defaults.
type Store struct {
	file         string
	logger       *log.Logger
	watcher      *fsnotify.Watcher
	refreshDelay time.Duration

	mu     sync.RWMutex
	tables Tables

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewStore loads filePath and starts watching it for changes.
func NewStore(filePath string, debounce time.Duration, logger *log.Logger) (*Store, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	s := &Store{
		file:         filepath.Clean(filePath),
		logger:       logger,
		watcher:      watcher,
		refreshDelay: debounce,
		tables:       Default(),
		done:         make(chan struct{}),
	}

	if err := s.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(s.file)); err != nil {
		watcher.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Close stops the file watcher and releases resources.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// Tables returns the currently loaded overrides.
func (s *Store) Tables() Tables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables
}

// MediaType applies the current mime overrides.
func (s *Store) MediaType(title, fallback string) string {
	return s.Tables().MediaType(title, fallback)
}

// Duration applies the current duration overrides.
func (s *Store) Duration(title string) (int, bool) {
	return s.Tables().Duration(title)
}

func (s *Store) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("quirks watcher error: %v", err)
		case <-s.done:
			return
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != s.file {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.scheduleRefresh()
	}
}

func (s *Store) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.refresh(); err != nil {
			s.logger.Printf("quirks refresh error (keeping previous tables): %v", err)
		}

		s.refreshMu.Lock()
		if s.refreshTimer == timer {
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()
	})
	s.refreshTimer = timer
}

func (s *Store) refresh() error {
	tables, err := Load(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.tables = Default()
			s.mu.Unlock()
			s.logger.Printf("quirks file %s missing; using built-in overrides", s.file)
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.tables = tables
	s.mu.Unlock()

	s.logger.Printf("loaded %d mime and %d duration overrides", len(tables.MimeTypes), len(tables.Durations))
	return nil
}
