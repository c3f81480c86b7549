package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fluxo/tsv-export/pkg/logger"
)

// Manager hands out per-task paths in a temp directory and removes them
// once they are deleted explicitly or outlive the retention period.
type Manager struct {
	tempDir   string
	retention time.Duration
	logger    *logger.Logger
	mu        sync.RWMutex
	files     map[string]*FileInfo // taskID -> FileInfo
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// FileInfo contains information about a temporary file
type FileInfo struct {
	Path      string
	CreatedAt time.Time
}

// NewManager creates a new storage manager. When cleanupInterval is
// positive a goroutine removes expired files until Close is called.
func NewManager(tempDir string, retention, cleanupInterval time.Duration, log *logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	m := &Manager{
		tempDir:   tempDir,
		retention: retention,
		logger:    log,
		files:     make(map[string]*FileInfo),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.cleanupLoop(cleanupInterval)
	} else {
		close(m.done)
	}

	return m, nil
}

// Allocate reserves a path for the task's output file. The file itself is
// created by the writer.
func (m *Manager) Allocate(taskID string, filename string) (string, error) {
	// Sanitize filename to prevent path traversal
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename for task %s", taskID)
	}

	now := time.Now()
	uniqueName := fmt.Sprintf("%s_%s_%s", taskID, now.Format("20060102-150405"), filename)
	filePath := filepath.Join(m.tempDir, uniqueName)

	m.mu.Lock()
	if _, exists := m.files[taskID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("file already allocated for task: %s", taskID)
	}
	m.files[taskID] = &FileInfo{Path: filePath, CreatedAt: now}
	m.mu.Unlock()

	m.logger.WithContext(context.Background()).WithTaskID(taskID).WithComponent("storage").LogFileCreated(
		"Temporary file allocated",
		logger.Fields{"path": filePath, "filename": filename},
	)

	return filePath, nil
}

// GetFilePath returns the path allocated for a task
func (m *Manager) GetFilePath(taskID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if info, exists := m.files[taskID]; exists {
		return info.Path, nil
	}
	return "", fmt.Errorf("file not found for task: %s", taskID)
}

// DeleteFile removes the task's file from disk and forgets it
func (m *Manager) DeleteFile(taskID string) error {
	m.mu.Lock()
	info, exists := m.files[taskID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("file not found for task: %s", taskID)
	}
	delete(m.files, taskID)
	m.mu.Unlock()

	if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	m.logger.WithContext(context.Background()).WithTaskID(taskID).WithComponent("storage").LogInfo(
		"TempFileDeleted",
		"Temporary file deleted",
		logger.Fields{"path": info.Path},
	)

	return nil
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.cleanup(now)
		}
	}
}

// cleanup removes files older than the retention period
func (m *Manager) cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for taskID, info := range m.files {
		age := now.Sub(info.CreatedAt)
		if age <= m.retention {
			continue
		}
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			m.logger.WithContext(context.Background()).WithTaskID(taskID).WithComponent("storage").LogWarn(
				"TempFileCleanupError",
				"Failed to remove expired file",
				logger.Fields{"path": info.Path, "error": err.Error()},
			)
			continue
		}
		delete(m.files, taskID)
		removed++
		m.logger.WithContext(context.Background()).WithTaskID(taskID).WithComponent("storage").LogInfo(
			"TempFileCleanup",
			"Expired temporary file cleaned up",
			logger.Fields{"path": info.Path, "age": age.String()},
		)
	}
	return removed
}

// Close stops the cleanup loop and waits for it to exit
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
	return nil
}
