package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxo/tsv-export/pkg/config"
	"github.com/fluxo/tsv-export/pkg/export"
	"github.com/fluxo/tsv-export/pkg/logger"
	"github.com/fluxo/tsv-export/pkg/oss"
	"github.com/fluxo/tsv-export/pkg/sink"
	"github.com/fluxo/tsv-export/pkg/storage"
	"github.com/fluxo/tsv-export/pkg/writer"
)

var (
	// ErrTaskNotFound is returned for unknown task IDs.
	ErrTaskNotFound = errors.New("task not found")
	// ErrQueueFull is returned when no export slot frees up in time.
	ErrQueueFull = errors.New("task queue is full")
	// ErrTaskClosed is returned when writing to a finished or failed task.
	ErrTaskClosed = errors.New("task is no longer accepting records")
	// ErrShuttingDown is returned by CreateTask after Shutdown.
	ErrShuttingDown = errors.New("task manager is shutting down")
)

// TaskStatus represents the current state of a task
type TaskStatus int

const (
	StatusProcessing TaskStatus = iota
	StatusUploading
	StatusCompleted
	StatusFailed
)

// String returns the status name
func (s TaskStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusUploading:
		return "uploading"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Uploader publishes a finished file. *oss.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, taskID string, localPath string) (*oss.UploadResult, error)
}

// Task represents an export task. Its writer is only touched under mu.
type Task struct {
	ID       string
	Metadata *export.Metadata

	mu             sync.Mutex
	status         TaskStatus
	writer         writer.Writer
	localPath      string
	records        int64
	location       string
	fileSize       int64
	checksum       string
	lines          int64
	errorCode      string
	errorMessage   string
	startTime      time.Time
	completionTime time.Time
	released       bool
}

// Snapshot is a point-in-time copy of a task's state
type Snapshot struct {
	TaskID           string
	RequestID        string
	Status           TaskStatus
	Format           export.Format
	Filename         string
	RecordsProcessed int64
	LinesWritten     int64
	Location         string
	FileSizeBytes    int64
	Checksum         string
	ErrorCode        string
	ErrorMessage     string
	StartTime        time.Time
	CompletionTime   time.Time
}

// Manager coordinates export tasks, at most MaxConcurrentTasks at a time
type Manager struct {
	config   *config.Config
	logger   *logger.Logger
	storage  *storage.Manager
	uploader Uploader
	tasks    map[string]*Task
	slots    chan struct{}
	mu       sync.RWMutex
	wg       sync.WaitGroup
	closed   bool
}

// NewManager creates a new task manager. uploader may be nil, in which case
// finished files stay in temp storage and their local path is reported.
func NewManager(cfg *config.Config, log *logger.Logger, storageMgr *storage.Manager, uploader Uploader) *Manager {
	return &Manager{
		config:   cfg,
		logger:   log,
		storage:  storageMgr,
		uploader: uploader,
		tasks:    make(map[string]*Task),
		slots:    make(chan struct{}, cfg.Concurrency.MaxConcurrentTasks),
	}
}

// CreateTask reserves an export slot, opens the output file and writes the
// header line.
func (m *Manager) CreateTask(ctx context.Context, metadata *export.Metadata) (*Task, error) {
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.acquireSlot(ctx); err != nil {
		m.wg.Done()
		if errors.Is(err, ErrQueueFull) {
			m.logger.WithContext(ctx).WithComponent("task_manager").WithRequestID(metadata.RequestID).LogWarn(
				"TaskQueueFull", "Timed out waiting for an export slot",
				logger.Fields{"timeout": m.config.Concurrency.QueueTimeout.String()},
			)
		}
		return nil, err
	}

	m.applyDefaults(metadata)

	task := &Task{
		ID:        uuid.New().String(),
		Metadata:  metadata,
		status:    StatusProcessing,
		startTime: time.Now(),
	}

	m.mu.Lock()
	m.pruneLocked(task.startTime)
	m.tasks[task.ID] = task
	m.mu.Unlock()

	contextLogger := m.taskLogger(ctx, task)
	contextLogger.LogTaskCreated("Export task created", logger.Fields{
		"format":   metadata.Format.String(),
		"filename": metadata.Filename,
		"columns":  len(metadata.Columns),
	})

	if err := m.openTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// acquireSlot waits up to QueueTimeout for a free export slot
func (m *Manager) acquireSlot(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(m.config.Concurrency.QueueTimeout)
	defer timer.Stop()

	select {
	case m.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) applyDefaults(metadata *export.Metadata) {
	if metadata.Format == export.FormatTSV {
		if metadata.Options.Encoding == "" {
			metadata.Options.Encoding = m.config.Output.Encoding
		}
		if metadata.Options.LineSeparator == "" {
			metadata.Options.LineSeparator = m.config.Output.LineSeparator
		}
	}
}

// openTask allocates the file, initializes the writer and writes the header
func (m *Manager) openTask(ctx context.Context, task *Task) error {
	task.mu.Lock()
	defer task.mu.Unlock()

	contextLogger := m.taskLogger(ctx, task)

	localPath, err := m.storage.Allocate(task.ID, task.Metadata.Filename)
	if err != nil {
		m.failLocked(task, "STORAGE_ERROR", fmt.Sprintf("Failed to allocate temp file: %v", err), contextLogger)
		return fmt.Errorf("failed to allocate temp file: %w", err)
	}
	task.localPath = localPath

	w, err := writer.New(task.Metadata.Format)
	if err != nil {
		m.failLocked(task, "INVALID_FORMAT", err.Error(), contextLogger)
		return err
	}
	if err := w.Initialize(ctx, task.Metadata, localPath); err != nil {
		w.Cleanup()
		m.failLocked(task, "WRITER_INIT_ERROR", fmt.Sprintf("Failed to initialize writer: %v", err), contextLogger)
		return fmt.Errorf("failed to initialize writer: %w", err)
	}
	task.writer = w

	if err := w.WriteHeader(task.Metadata.Columns); err != nil {
		m.failLocked(task, "WRITER_ERROR", fmt.Sprintf("Failed to write headers: %v", err), contextLogger)
		return fmt.Errorf("failed to write headers: %w", err)
	}
	task.lines = w.LineCount()

	contextLogger.LogInfo("WriterInitialized", "Format writer initialized", logger.Fields{
		"format": task.Metadata.Format.String(),
		"path":   localPath,
	})
	return nil
}

// AppendRecords writes records to the task's file. The first failing record
// aborts the export: the task fails and its partial file is discarded.
func (m *Manager) AppendRecords(ctx context.Context, taskID string, records []export.Record) error {
	task, err := m.GetTask(taskID)
	if err != nil {
		return err
	}

	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status != StatusProcessing {
		return ErrTaskClosed
	}

	contextLogger := m.taskLogger(ctx, task)
	start := time.Now()
	before := task.writer.LineCount()

	err = task.writer.WriteRecords(records)
	task.lines = task.writer.LineCount()
	task.records += task.lines - before
	if err != nil {
		code := "WRITER_ERROR"
		if sink.IsBrokenPipe(err) {
			code = "DESTINATION_CLOSED"
		}
		m.failLocked(task, code, fmt.Sprintf("Failed to write record %d: %v", task.records+1, err), contextLogger)
		return fmt.Errorf("failed to write records: %w", err)
	}

	contextLogger.LogBatchWritten(
		fmt.Sprintf("%d records written", len(records)),
		time.Since(start).Milliseconds(),
		logger.Fields{"records": len(records), "total_records": task.records, "lines": task.lines},
	)
	return nil
}

// FinalizeTask closes the file and publishes it
func (m *Manager) FinalizeTask(ctx context.Context, taskID string) (*Snapshot, error) {
	task, err := m.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status != StatusProcessing {
		return nil, ErrTaskClosed
	}

	contextLogger := m.taskLogger(ctx, task)

	metadata, err := task.writer.Finalize()
	if err != nil {
		m.failLocked(task, "FINALIZE_ERROR", fmt.Sprintf("Failed to finalize file: %v", err), contextLogger)
		return nil, fmt.Errorf("failed to finalize file: %w", err)
	}

	contextLogger.LogFileFinalized(
		"File finalized successfully",
		time.Since(task.startTime).Milliseconds(),
		logger.Fields{
			"file_size": metadata.Size,
			"checksum":  metadata.Checksum,
			"lines":     metadata.RowCount,
		},
	)

	task.fileSize = metadata.Size
	task.checksum = metadata.Checksum
	task.lines = metadata.RowCount
	task.location = metadata.Path

	if m.uploader != nil {
		task.status = StatusUploading

		result, err := m.uploader.Upload(ctx, task.ID, metadata.Path)
		if err != nil {
			m.failLocked(task, "UPLOAD_ERROR", fmt.Sprintf("Failed to upload: %v", err), contextLogger)
			return nil, fmt.Errorf("failed to upload: %w", err)
		}
		task.location = result.SignedURL

		if err := m.storage.DeleteFile(task.ID); err != nil {
			contextLogger.LogWarn("TempFileCleanupError", "Failed to cleanup temp file", logger.Fields{"error": err.Error()})
		}
	}

	task.status = StatusCompleted
	task.completionTime = time.Now()
	m.releaseLocked(task)

	duration := task.completionTime.Sub(task.startTime)
	contextLogger.LogTaskCompleted(
		"Export task completed successfully",
		duration.Milliseconds(),
		logger.Fields{
			"location":  task.location,
			"file_size": task.fileSize,
			"records":   task.records,
		},
	)

	return task.snapshotLocked(), nil
}

// AbortTask fails a running task and removes its file
func (m *Manager) AbortTask(ctx context.Context, taskID string, errorCode string, errorMsg string) error {
	task, err := m.GetTask(taskID)
	if err != nil {
		return err
	}

	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status == StatusCompleted || task.status == StatusFailed {
		return nil
	}
	m.failLocked(task, errorCode, errorMsg, m.taskLogger(ctx, task))
	return nil
}

// failLocked marks a task as failed and frees its resources. task.mu must
// be held.
func (m *Manager) failLocked(task *Task, errorCode string, errorMsg string, contextLogger *logger.ContextLogger) {
	task.status = StatusFailed
	task.errorCode = errorCode
	task.errorMessage = errorMsg
	task.completionTime = time.Now()

	contextLogger.LogTaskFailed("Export task failed", errorCode, errorMsg, logger.Fields{
		"lines_written": task.lines,
	})

	if task.writer != nil {
		if err := task.writer.Cleanup(); err != nil {
			contextLogger.LogWarn("WriterCleanupError", "Failed to clean up writer", logger.Fields{"error": err.Error()})
		}
	}
	if task.localPath != "" {
		m.storage.DeleteFile(task.ID)
	}
	m.releaseLocked(task)
}

// releaseLocked gives the task's slot back exactly once
func (m *Manager) releaseLocked(task *Task) {
	if task.released {
		return
	}
	task.released = true
	<-m.slots
	m.wg.Done()
}

// pruneLocked forgets tasks that finished more than TempRetention before
// now, the same window in which their local files are kept. m.mu must be
// held.
func (m *Manager) pruneLocked(now time.Time) int {
	pruned := 0
	for id, task := range m.tasks {
		task.mu.Lock()
		finished := task.status == StatusCompleted || task.status == StatusFailed
		expired := finished && now.Sub(task.completionTime) > m.config.Storage.TempRetention
		task.mu.Unlock()
		if expired {
			delete(m.tasks, id)
			pruned++
		}
	}
	return pruned
}

func (m *Manager) taskLogger(ctx context.Context, task *Task) *logger.ContextLogger {
	return m.logger.WithContext(ctx).
		WithComponent("task_manager").
		WithTaskID(task.ID).
		WithRequestID(task.Metadata.RequestID)
}

// GetTask retrieves a task by ID
func (m *Manager) GetTask(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// GetTaskStatus returns a snapshot of the task
func (m *Manager) GetTaskStatus(taskID string) (*Snapshot, error) {
	task, err := m.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	task.mu.Lock()
	defer task.mu.Unlock()
	return task.snapshotLocked(), nil
}

func (t *Task) snapshotLocked() *Snapshot {
	return &Snapshot{
		TaskID:           t.ID,
		RequestID:        t.Metadata.RequestID,
		Status:           t.status,
		Format:           t.Metadata.Format,
		Filename:         t.Metadata.Filename,
		RecordsProcessed: t.records,
		LinesWritten:     t.lines,
		Location:         t.location,
		FileSizeBytes:    t.fileSize,
		Checksum:         t.checksum,
		ErrorCode:        t.errorCode,
		ErrorMessage:     t.errorMessage,
		StartTime:        t.startTime,
		CompletionTime:   t.completionTime,
	}
}

// ActiveTasks returns the number of tasks holding a slot
func (m *Manager) ActiveTasks() int {
	return len(m.slots)
}

// Shutdown stops accepting tasks and waits for running ones to finish.
// Tasks still running when ctx is done are aborted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down task manager...")

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Task manager shutdown complete")
		return nil
	case <-ctx.Done():
	}

	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	m.mu.RUnlock()

	for _, task := range tasks {
		m.AbortTask(context.Background(), task.ID, "SHUTDOWN", "Task aborted by shutdown")
	}
	return fmt.Errorf("shutdown timeout: %w", ctx.Err())
}
