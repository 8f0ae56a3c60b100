package store

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
)

// IndexEntry represents the location of a key's latest frame in the log
type IndexEntry struct {
	Offset int64 // Byte offset of the frame start
	Size   int64 // Size of the frame in bytes
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FsyncInterval time.Duration // How often to fsync (0 = every write)
}

// HashIndexConfig holds configuration for the hash index
type HashIndexConfig struct {
	InitialCapacity int
}

// KVStoreConfig holds configuration for the key-value store
type KVStoreConfig struct {
	Path            string        // Data file, created if missing
	IndexPath       string        // Index side-file, defaults to Path + ".idx"
	PersistIndex    bool          // Restore from and save to the side-file
	FsyncInterval   time.Duration // Fsync interval for durability
	RecoverTornTail bool          // Cut a truncated final frame instead of failing Load
	Logger          *slog.Logger  // nil discards logs
	Metrics         *Metrics      // nil records to unregistered collectors
}

func (c KVStoreConfig) indexPath() string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return c.Path + IndexFileSuffix
}

// RecordIterator provides streaming access to records
type RecordIterator interface {
	Next() bool
	Record() *codec.Record
	Offset() int64
	Err() error
}

// LoadSource says where Load got its index from.
type LoadSource string

const (
	LoadSourceReplay   LoadSource = "replay"
	LoadSourceSnapshot LoadSource = "snapshot"
)

// LoadResult describes the outcome of KVStore.Load
type LoadResult struct {
	Source             LoadSource
	SnapshotID         string // set when Source is LoadSourceSnapshot
	FramesReplayed     int64
	Keys               int
	TornBytesTruncated int64
	Duration           time.Duration
}

// StoreStats holds statistics about the store
type StoreStats struct {
	Keys       int
	Frames     int64
	Tombstones int64
	DataSize   int64
	LiveSize   int64
}

// Errors
var (
	// ErrCorruption marks any error caused by frames that fail to decode.
	// Use errors.Is to test for it; the codec cause stays reachable too.
	ErrCorruption = errors.New("store: data corruption detected")
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store: store is closed")
	// ErrNotLoaded is returned by operations issued before Load.
	ErrNotLoaded = errors.New("store: index not loaded")
	// ErrAlreadyLoaded is returned by a second call to Load.
	ErrAlreadyLoaded = errors.New("store: index already loaded")
	// ErrSyncFailed marks an append whose bytes reached the file but whose
	// fsync failed.
	ErrSyncFailed = errors.New("store: fsync failed")
	// ErrInvalidSnapshot is returned when an index side-file cannot be used.
	ErrInvalidSnapshot = errors.New("store: invalid index snapshot")
)

// markCorruption tags codec decode failures with ErrCorruption.
func markCorruption(err error) error {
	if errors.Is(err, codec.ErrTruncatedRecord) || errors.Is(err, codec.ErrChecksumMismatch) {
		return errors.Mark(err, ErrCorruption)
	}
	return err
}
