package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/dispense/internal/ir"
)

// FileSink appends entries as JSON lines to a size-rotated file.
//
// Thread-safety: Record is safe for concurrent use via internal mutex.
type FileSink struct {
	mu sync.Mutex
	w  *lumberjack.Logger
}

// NewFileSink writes to path, rotating once the file exceeds maxSizeMB.
// Rotated files are compressed and the newest maxBackups are kept.
func NewFileSink(path string, maxSizeMB, maxBackups int) *FileSink {
	return &FileSink{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		},
	}
}

// Record implements Sink.
func (f *FileSink) Record(_ context.Context, entry ir.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Close()
}
