package syncmetrics

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mwidmann/replica/pkg/plog"
)

// Metrics defines the interface for collecting and reporting synchronization statistics.
//
// Errors and Warnings are the run's outcome counters: every recoverable
// failure increments one of them at the site that logs it, and the CLI maps
// their final values to the process exit code.
type Metrics interface {
	AddErrors(n int64)
	AddWarnings(n int64)
	AddFilesCopied(n int64)
	AddFilesFailed(n int64)
	AddDirsCreated(n int64)
	AddEntriesDeleted(n int64)
	AddBytesCopied(n int64)
	Errors() int64
	Warnings() int64
	LogSummary(msg string)
}

// RunMetrics holds the atomic counters for one synchronization run.
// It is the concrete implementation of the Metrics interface.
type RunMetrics struct {
	ErrorCount     atomic.Int64
	WarningCount   atomic.Int64
	FilesCopied    atomic.Int64
	FilesFailed    atomic.Int64
	DirsCreated    atomic.Int64
	EntriesDeleted atomic.Int64
	BytesCopied    atomic.Int64

	startTime time.Time
}

// NewRunMetrics creates zeroed counters stamped with the run start time.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{startTime: time.Now()}
}

func (m *RunMetrics) AddErrors(n int64)         { m.ErrorCount.Add(n) }
func (m *RunMetrics) AddWarnings(n int64)       { m.WarningCount.Add(n) }
func (m *RunMetrics) AddFilesCopied(n int64)    { m.FilesCopied.Add(n) }
func (m *RunMetrics) AddFilesFailed(n int64)    { m.FilesFailed.Add(n) }
func (m *RunMetrics) AddDirsCreated(n int64)    { m.DirsCreated.Add(n) }
func (m *RunMetrics) AddEntriesDeleted(n int64) { m.EntriesDeleted.Add(n) }
func (m *RunMetrics) AddBytesCopied(n int64)    { m.BytesCopied.Add(n) }

func (m *RunMetrics) Errors() int64   { return m.ErrorCount.Load() }
func (m *RunMetrics) Warnings() int64 { return m.WarningCount.Load() }

// LogSummary prints a summary of the run with a custom message.
func (m *RunMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Done(msg,
		"files_copied", m.FilesCopied.Load(),
		"files_failed", m.FilesFailed.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"entries_deleted", m.EntriesDeleted.Load(),
		"bytes_copied", humanize.IBytes(uint64(m.BytesCopied.Load())),
		"errors", m.ErrorCount.Load(),
		"warnings", m.WarningCount.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddErrors(n int64)         {}
func (m *NoopMetrics) AddWarnings(n int64)       {}
func (m *NoopMetrics) AddFilesCopied(n int64)    {}
func (m *NoopMetrics) AddFilesFailed(n int64)    {}
func (m *NoopMetrics) AddDirsCreated(n int64)    {}
func (m *NoopMetrics) AddEntriesDeleted(n int64) {}
func (m *NoopMetrics) AddBytesCopied(n int64)    {}
func (m *NoopMetrics) Errors() int64             { return 0 }
func (m *NoopMetrics) Warnings() int64           { return 0 }
func (m *NoopMetrics) LogSummary(msg string)     {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
