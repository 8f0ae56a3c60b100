package store

import (
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
)

// syncer flushes written data to stable storage
type syncer interface {
	Sync() error
}

// LogWriter handles append-only writes to the data file
type LogWriter struct {
	file       *os.File
	syncer     syncer // Usually file
	codec      *codec.RecordCodec
	fsyncTimer *time.Timer
	config     LogWriterConfig
	mutex      sync.Mutex
	offset     int64 // Current end of file
	syncErr    error // Last error from a deferred fsync
	broken     error // Set when a failed append could not be rolled back
}

// NewLogWriter creates a log writer appending to file. The file must be
// opened with O_APPEND; the writer does not own it and never closes it.
func NewLogWriter(file *os.File, config LogWriterConfig) (*LogWriter, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat data file")
	}

	writer := &LogWriter{
		file:   file,
		syncer: file,
		codec:  codec.NewRecordCodec(),
		config: config,
		offset: stat.Size(),
	}

	if config.FsyncInterval > 0 {
		writer.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			writer.mutex.Lock()
			defer writer.mutex.Unlock()
			if err := writer.syncer.Sync(); err != nil {
				writer.syncErr = err
			}
		})
	}

	return writer, nil
}

// Put appends a frame for key and value and returns the offset it starts at.
// An error marked ErrSyncFailed means the frame was written but not fsynced;
// the offset is valid in that case and the frame will be seen by replay.
func (w *LogWriter) Put(key, value []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.broken != nil {
		return 0, w.broken
	}

	data, err := w.codec.Encode(key, value)
	if err != nil {
		return 0, err
	}

	// One write per frame so a crash leaves at most one torn frame at the tail.
	n, err := w.file.Write(data)
	if err != nil {
		return 0, w.rollback(int64(n), err)
	}

	recordOffset := w.offset
	w.offset += int64(n)

	if w.config.FsyncInterval == 0 {
		if err := w.syncer.Sync(); err != nil {
			return recordOffset, errors.Mark(errors.Wrap(err, "fsync data file"), ErrSyncFailed)
		}
	} else if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return recordOffset, nil
}

// rollback removes a partially written frame so the log still ends on a
// frame boundary.
func (w *LogWriter) rollback(written int64, cause error) error {
	cause = errors.Wrap(cause, "append frame")
	if written == 0 {
		return cause
	}
	if err := w.file.Truncate(w.offset); err != nil {
		w.broken = errors.CombineErrors(cause, errors.Wrap(err, "roll back partial frame"))
		return w.broken
	}
	return cause
}

// Sync forces a fsync to disk
func (w *LogWriter) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.sync()
}

func (w *LogWriter) sync() error {
	if err := w.syncErr; err != nil {
		w.syncErr = nil
		return errors.Wrap(err, "deferred fsync")
	}
	return w.syncer.Sync()
}

// Close stops the fsync timer and performs a final sync. The file itself
// stays open.
func (w *LogWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}
	return w.sync()
}

// Size returns the current size of the log file
func (w *LogWriter) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}
