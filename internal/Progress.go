package internal

import (
	"sync"
	"time"
)

// ProgressSnapshot is the read model exposed to callers. It is a value;
// rendering it cannot race with the workers feeding the tracker.
type ProgressSnapshot struct {
	CurrentBytes    int64
	TotalBytes      int64
	CurrentFile     int
	TotalFiles      int
	CurrentFilename string
	SpeedBps        float64
	ETA             time.Duration
	StartedAt       time.Time
}

// Percentage reports completion in [0, 100].
func (p ProgressSnapshot) Percentage() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.CurrentBytes) / float64(p.TotalBytes) * 100
}

// ProgressTracker accumulates downloaded-byte counters for one
// installation or update operation and derives throughput and ETA. It is
// transient: created when the operation starts, discarded when it ends.
// All mutation goes through the single mutex so concurrent file workers
// keep the totals correct.
type ProgressTracker struct {
	mu              sync.Mutex
	currentBytes    int64
	totalBytes      int64
	currentFile     int
	totalFiles      int
	currentFilename string
	startedAt       time.Time
	now             func() time.Time
}

// NewProgressTracker starts tracking an operation of known size.
func NewProgressTracker(totalBytes int64, totalFiles int) *ProgressTracker {
	return newProgressTrackerWithNow(totalBytes, totalFiles, time.Now)
}

func newProgressTrackerWithNow(totalBytes int64, totalFiles int, now func() time.Time) *ProgressTracker {
	return &ProgressTracker{
		totalBytes: totalBytes,
		totalFiles: totalFiles,
		startedAt:  now(),
		now:        now,
	}
}

// SetTotals records the operation size once it is known. Update
// operations size their tracker only after the change set is computed.
func (t *ProgressTracker) SetTotals(totalBytes int64, totalFiles int) {
	t.mu.Lock()
	t.totalBytes = totalBytes
	t.totalFiles = totalFiles
	t.mu.Unlock()
}

// AddBytes records verified bytes written by any worker.
func (t *ProgressTracker) AddBytes(n int64) {
	t.mu.Lock()
	t.currentBytes += n
	t.mu.Unlock()
}

// FileStarted records that work began on a file.
func (t *ProgressTracker) FileStarted(filename string) {
	t.mu.Lock()
	t.currentFile++
	t.currentFilename = filename
	t.mu.Unlock()
}

// Snapshot derives speed and ETA from the counters so far.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := ProgressSnapshot{
		CurrentBytes:    t.currentBytes,
		TotalBytes:      t.totalBytes,
		CurrentFile:     t.currentFile,
		TotalFiles:      t.totalFiles,
		CurrentFilename: t.currentFilename,
		StartedAt:       t.startedAt,
	}

	elapsed := t.now().Sub(t.startedAt).Seconds()
	if elapsed > 0 && t.currentBytes > 0 {
		snap.SpeedBps = float64(t.currentBytes) / elapsed
		remaining := t.totalBytes - t.currentBytes
		if remaining > 0 && snap.SpeedBps > 0 {
			snap.ETA = time.Duration(float64(remaining)/snap.SpeedBps) * time.Second
		}
	}
	return snap
}
