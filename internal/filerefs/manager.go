package filerefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/apperrors"
)

// DeleteError is returned when the last reference is dropped but the file could not be removed.
// The path stays registered with one reference so the release can be retried, unless the
// file is already gone, in which case the path is forgotten.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Manager reference-counts temporary media files and is the only thing that deletes them.
//
// A path being downloaded is reserved first. Neither the reserved file nor the
// downloader's intermediates beside it (same name up to the extension) are ever
// removed by RemoveIfUnregistered.
type Manager struct {
	mu       sync.Mutex
	counts   map[string]int
	reserved map[string]struct{}
	logger   *logrus.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		counts:   make(map[string]int),
		reserved: make(map[string]struct{}),
		logger:   logger,
	}
}

// Reserve claims path before a download writes it. A registered path returns
// DuplicateReferenceError; a path already reserved returns an error as well.
func (m *Manager) Reserve(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.counts[path]; exists {
		return apperrors.NewDuplicateReferenceError(path)
	}
	if _, exists := m.reserved[path]; exists {
		return fmt.Errorf("%s is already being downloaded", path)
	}
	m.reserved[path] = struct{}{}
	return nil
}

// Commit turns a reservation into a registration with one reference.
func (m *Manager) Commit(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reserved[path]; !exists {
		return apperrors.NewMissingReferenceError(path)
	}
	delete(m.reserved, path)
	m.counts[path] = 1
	m.logger.WithField("path", path).Debug("file reference added")
	return nil
}

// Abandon drops a reservation after a failed download and removes whatever was written to path.
func (m *Manager) Abandon(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reserved[path]; !exists {
		return
	}
	delete(m.reserved, path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.WithError(err).WithField("path", path).Warn("could not remove abandoned download")
	}
}

// RemoveIfUnregistered deletes path when it is a regular file that is neither registered
// nor part of a reserved download and was last modified before cutoff. It reports whether
// the file was removed.
func (m *Manager) RemoveIfUnregistered(path string, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.counts[path]; exists || m.reservedLocked(path) {
		return false, nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) reservedLocked(path string) bool {
	for reserved := range m.reserved {
		if path == reserved {
			return true
		}
		stem := strings.TrimSuffix(reserved, filepath.Ext(reserved))
		if strings.HasPrefix(path, stem+".") {
			return true
		}
	}
	return false
}

// AddReference registers a freshly produced file with a count of one.
func (m *Manager) AddReference(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.counts[path]; exists {
		return apperrors.NewDuplicateReferenceError(path)
	}
	delete(m.reserved, path)
	m.counts[path] = 1
	m.logger.WithField("path", path).Debug("file reference added")
	return nil
}

// Retain adds a holder to an already registered file.
func (m *Manager) Retain(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, exists := m.counts[path]
	if !exists {
		return apperrors.NewMissingReferenceError(path)
	}
	m.counts[path] = count + 1
	return nil
}

// RemoveReference drops one holder. When the last holder goes the file is deleted
// and the path forgotten before the lock is released.
func (m *Manager) RemoveReference(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, exists := m.counts[path]
	if !exists {
		return apperrors.NewMissingReferenceError(path)
	}

	if count > 1 {
		m.counts[path] = count - 1
		return nil
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			delete(m.counts, path)
		}
		return &DeleteError{Path: path, Err: err}
	}
	delete(m.counts, path)
	m.logger.WithField("path", path).Debug("file reference released, file deleted")
	return nil
}

// Count returns the number of holders for path, zero when unregistered.
func (m *Manager) Count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// Has reports whether path is registered.
func (m *Manager) Has(path string) bool {
	return m.Count(path) > 0
}

// Len returns the number of registered paths.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counts)
}

// Paths returns the registered paths in sorted order.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.counts))
	for path := range m.counts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ReleaseAll drops every holder of every path, deleting the files. Used on shutdown.
func (m *Manager) ReleaseAll() error {
	var firstErr error
	for _, path := range m.Paths() {
		for m.Has(path) {
			if err := m.RemoveReference(path); err != nil {
				m.logger.WithError(err).WithField("path", path).Warn("release on shutdown failed")
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}
	return firstErr
}
