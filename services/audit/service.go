package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// ErrBufferFull is returned when a denial is dropped because the queue is full
var ErrBufferFull = errors.New("security audit buffer full")

// ErrNotStarted is returned when entries are recorded before Start or after Stop
var ErrNotStarted = errors.New("security audit writer not started")

// Writer persists security denials in the background. Recording never blocks
// the request path; entries are dropped when the queue is full.
type Writer struct {
	auditRepo    repositories.AuditRepository
	logger       *zap.Logger
	entries      chan *models.SecurityAuditEntry
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	started      bool
	stopped      bool
	dropped      int64
	mu           sync.Mutex
}

// Config holds configuration for the Writer
type Config struct {
	BufferSize   int // Size of the entry queue
	WorkerCount  int // Number of concurrent workers
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewWriter creates a new security audit writer
func NewWriter(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Writer {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	return &Writer{
		auditRepo:    auditRepo,
		logger:       logger,
		entries:      make(chan *models.SecurityAuditEntry, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("security audit writer already started")
	}

	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	w.started = true
	w.logger.Info("started security audit writer",
		zap.Int("worker_count", w.workerCount),
		zap.Int("buffer_size", w.bufferSize))

	return nil
}

// Stop closes the queue and waits for pending entries to be written
func (w *Writer) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return ErrNotStarted
	}
	w.stopped = true
	close(w.entries)
	w.mu.Unlock()

	w.logger.Info("stopping security audit writer", zap.Int("pending_entries", len(w.entries)))

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("security audit writer stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("security audit writer stop timeout after %v", timeout)
	}
}

// Record queues a denial without blocking. ID and CreatedAt are filled when unset.
func (w *Writer) Record(entry *models.SecurityAuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || w.stopped {
		return ErrNotStarted
	}

	select {
	case w.entries <- entry:
		return nil
	default:
		w.dropped++
		w.logger.Warn("security audit queue full, dropping entry",
			zap.String("reason", entry.Reason),
			zap.String("path", entry.Path))
		return ErrBufferFull
	}
}

func (w *Writer) worker(id int) {
	defer w.wg.Done()

	for entry := range w.entries {
		if err := w.write(entry); err != nil {
			w.logger.Error("failed to write security audit entry",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("reason", entry.Reason),
				zap.String("request_id", entry.RequestID))
		}
	}
}

func (w *Writer) write(entry *models.SecurityAuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	return w.auditRepo.InsertSecurityEntry(ctx, entry)
}

// GetStats returns statistics about the writer
func (w *Writer) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		BufferSize:     w.bufferSize,
		PendingEntries: len(w.entries),
		WorkerCount:    w.workerCount,
		Dropped:        w.dropped,
		Started:        w.started && !w.stopped,
	}
}

// Stats represents writer statistics
type Stats struct {
	BufferSize     int
	PendingEntries int
	WorkerCount    int
	Dropped        int64
	Started        bool
}
