package store

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/actionkv/pkg/codec"
)

type storeState int

const (
	stateOpened storeState = iota // file open, index empty
	stateLoaded                   // index built, accepting operations
	stateClosed
)

// KVStore is an append-only key-value store backed by a single data file.
//
// All methods are safe for concurrent use: one mutex covers the index and the
// file, so an append and its index update are observed together.
type KVStore struct {
	config  KVStoreConfig
	file    *os.File
	writer  *LogWriter
	reader  *LogReader
	index   *HashIndex
	logger  *slog.Logger
	metrics *Metrics
	mutex   sync.Mutex
	state   storeState

	frames     int64
	tombstones int64
	lastFrame  int64 // Offset of the newest frame, -1 when the file is empty
	loadSource LoadSource
	loadedAt   time.Time
}

// NewKVStore opens (creating if needed) the data file. It does not read it;
// call Load before using the store.
func NewKVStore(config KVStoreConfig) (*KVStore, error) {
	if config.Path == "" {
		return nil, errors.New("store: data file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0750); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}

	file, err := os.OpenFile(config.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "open data file")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &KVStore{
		config:    config,
		file:      file,
		reader:    NewLogReader(file),
		index:     NewHashIndex(HashIndexConfig{}),
		logger:    logger.With("file", config.Path),
		metrics:   metrics,
		state:     stateOpened,
		lastFrame: -1,
	}, nil
}

// OpenKVStore opens the data file and loads the index in one step
func OpenKVStore(config KVStoreConfig) (*KVStore, *LoadResult, error) {
	kv, err := NewKVStore(config)
	if err != nil {
		return nil, nil, err
	}

	result, err := kv.Load()
	if err != nil {
		_ = kv.Close()
		return nil, nil, err
	}
	return kv, result, nil
}

// Load builds the index, from the side-file when it is enabled and matches
// the data file, otherwise by replaying every frame. Corrupt frames make
// Load fail. When RecoverTornTail is set a truncated final frame is moved to
// the torn file and cut off instead, unless a valid frame still follows it.
func (kv *KVStore) Load() (*LoadResult, error) {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	switch kv.state {
	case stateClosed:
		return nil, ErrStoreClosed
	case stateLoaded:
		return nil, ErrAlreadyLoaded
	}

	start := time.Now()
	stat, err := kv.file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat data file")
	}
	size := stat.Size()

	result := &LoadResult{Source: LoadSourceReplay}
	if kv.config.PersistIndex {
		if snap := kv.loadSnapshot(size); snap != nil {
			kv.index.replace(snap.Entries)
			kv.frames = snap.Frames
			kv.tombstones = snap.Tombstones
			kv.lastFrame = snap.LastFrame
			result.Source = LoadSourceSnapshot
			result.SnapshotID = snap.ID.String()
		}
	}

	if result.Source == LoadSourceReplay {
		stats, err := kv.index.BuildFromLog(kv.reader)
		if err != nil {
			if !kv.config.RecoverTornTail || !errors.Is(err, codec.ErrTruncatedRecord) {
				kv.index.Clear()
				if errors.Is(markCorruption(err), ErrCorruption) {
					kv.metrics.RecordCorruption()
				}
				return nil, errors.Wrapf(markCorruption(err), "replay %s at offset %d", kv.config.Path, stats.EndOffset)
			}

			if cutErr := kv.cutTornTail(err, stats.EndOffset, size); cutErr != nil {
				kv.index.Clear()
				return nil, cutErr
			}
			result.TornBytesTruncated = size - stats.EndOffset
		}
		kv.frames = stats.Frames
		kv.tombstones = stats.Tombstones
		kv.lastFrame = stats.LastFrame
		result.FramesReplayed = stats.Frames
	}

	writer, err := NewLogWriter(kv.file, LogWriterConfig{FsyncInterval: kv.config.FsyncInterval})
	if err != nil {
		kv.index.Clear()
		return nil, err
	}
	kv.writer = writer
	kv.state = stateLoaded
	kv.loadSource = result.Source
	kv.loadedAt = time.Now()

	result.Keys = kv.index.Size()
	result.Duration = time.Since(start)

	kv.metrics.RecordLoad(result.Source)
	kv.metrics.UpdateStats(result.Keys, kv.writer.Size())
	kv.logger.Debug("index loaded",
		"source", result.Source,
		"keys", result.Keys,
		"frames", kv.frames,
		"duration", result.Duration)

	return result, nil
}

// loadSnapshot returns the side-file contents if they are usable for a data
// file of the given size, or nil to request a replay.
func (kv *KVStore) loadSnapshot(dataSize int64) *indexSnapshot {
	path := kv.config.indexPath()
	snap, err := readIndexSnapshot(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kv.logger.Debug("no index snapshot, replaying", "index", path)
		return nil
	case err != nil:
		kv.logger.Warn("ignoring unreadable index snapshot", "index", path, "error", err)
		return nil
	case snap.DataSize != dataSize:
		kv.logger.Debug("index snapshot is stale, replaying",
			"index", path, "snapshot_size", snap.DataSize, "data_size", dataSize)
		return nil
	}

	// Same size is not enough: the newest frame must still be the one the
	// snapshot was taken after.
	if snap.LastFrame >= 0 {
		record, err := kv.reader.ReadAt(snap.LastFrame)
		if err != nil || record.CRC32 != snap.LastCRC || snap.LastFrame+int64(record.Size()) != dataSize {
			kv.logger.Warn("index snapshot does not match data file, replaying",
				"index", path, "last_frame", snap.LastFrame, "error", err)
			return nil
		}
	}
	return snap
}

func (kv *KVStore) checkReady() error {
	switch kv.state {
	case stateClosed:
		return ErrStoreClosed
	case stateOpened:
		return ErrNotLoaded
	}
	return nil
}

// Get returns the latest value for key. found is false when the key does
// not exist; that is not an error.
func (kv *KVStore) Get(key []byte) (value []byte, found bool, err error) {
	start := time.Now()
	defer func() { kv.metrics.RecordOperation("get", err == nil, time.Since(start)) }()

	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return nil, false, err
	}

	value, _, found, err = kv.getLocked(key)
	return value, found, err
}

// getLocked reads the frame the index holds for key together with the entry
// that located it. The caller holds kv.mutex.
func (kv *KVStore) getLocked(key []byte) ([]byte, IndexEntry, bool, error) {
	entry, exists := kv.index.Get(key)
	if !exists {
		return nil, IndexEntry{}, false, nil
	}

	record, err := kv.reader.ReadAt(entry.Offset)
	if err != nil {
		err = markCorruption(err)
		if errors.Is(err, ErrCorruption) {
			kv.metrics.RecordCorruption()
		}
		return nil, entry, false, errors.Wrapf(err, "get %q at offset %d", key, entry.Offset)
	}

	// The index only ever points at live frames for the same key.
	if !bytes.Equal(record.Key, key) || record.IsTombstone() {
		kv.metrics.RecordCorruption()
		return nil, entry, false, errors.Mark(
			errors.Newf("index entry for %q at offset %d points at a frame for %q", key, entry.Offset, record.Key),
			ErrCorruption)
	}

	return record.Value, entry, true, nil
}

// Insert appends a frame for key unconditionally and points the index at it
func (kv *KVStore) Insert(key, value []byte) (err error) {
	start := time.Now()
	defer func() { kv.metrics.RecordOperation("insert", err == nil, time.Since(start)) }()

	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return err
	}
	return kv.appendLocked(key, value)
}

// Update behaves like Insert but only when key already exists. It reports
// whether the key was found; nothing is written otherwise.
func (kv *KVStore) Update(key, value []byte) (found bool, err error) {
	start := time.Now()
	defer func() { kv.metrics.RecordOperation("update", err == nil, time.Since(start)) }()

	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return false, err
	}
	if _, exists := kv.index.Get(key); !exists {
		return false, nil
	}
	if err := kv.appendLocked(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Delete appends a tombstone for key and drops it from the index. It
// reports whether the key was found; nothing is written otherwise.
func (kv *KVStore) Delete(key []byte) (found bool, err error) {
	start := time.Now()
	defer func() { kv.metrics.RecordOperation("delete", err == nil, time.Since(start)) }()

	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return false, err
	}
	if _, exists := kv.index.Get(key); !exists {
		return false, nil
	}
	if err := kv.appendLocked(key, nil); err != nil {
		return false, err
	}
	return true, nil
}

// appendLocked writes one frame and applies it to the index exactly as
// replay would. A frame that was written but not fsynced is still applied,
// and the sync error is returned. The caller holds kv.mutex.
func (kv *KVStore) appendLocked(key, value []byte) error {
	offset, err := kv.writer.Put(key, value)
	if err != nil && !errors.Is(err, ErrSyncFailed) {
		return errors.Wrapf(err, "append %q", key)
	}

	kv.frames++
	if len(value) == 0 {
		kv.tombstones++
		kv.index.Delete(key)
	} else {
		kv.index.Put(key, IndexEntry{
			Offset: offset,
			Size:   int64(codec.HeaderSize + len(key) + len(value)),
		})
	}

	kv.lastFrame = offset
	kv.metrics.UpdateStats(kv.index.Size(), kv.writer.Size())
	if err != nil {
		return errors.Wrapf(err, "append %q", key)
	}
	return nil
}

// ListKeys returns every live key in bytewise order
func (kv *KVStore) ListKeys() ([][]byte, error) {
	return kv.ListKeysWithPrefix(nil)
}

// ListKeysWithPrefix returns the live keys starting with prefix, sorted
func (kv *KVStore) ListKeysWithPrefix(prefix []byte) ([][]byte, error) {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return nil, err
	}
	return kv.index.KeysWithPrefix(prefix), nil
}

// Stats returns store statistics
func (kv *KVStore) Stats() *StoreStats {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if kv.state != stateLoaded {
		return &StoreStats{}
	}

	return &StoreStats{
		Keys:       kv.index.Size(),
		Frames:     kv.frames,
		Tombstones: kv.tombstones,
		DataSize:   kv.writer.Size(),
		LiveSize:   kv.index.LiveSize(),
	}
}

// SaveIndex syncs the data file and writes the index side-file
func (kv *KVStore) SaveIndex() error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return err
	}
	if err := kv.writer.Sync(); err != nil {
		return errors.Wrap(err, "sync before index save")
	}
	return kv.saveIndexLocked()
}

func (kv *KVStore) saveIndexLocked() error {
	snap := &indexSnapshot{
		ID:         ksuid.New(),
		DataSize:   kv.writer.Size(),
		Frames:     kv.frames,
		Tombstones: kv.tombstones,
		LastFrame:  kv.lastFrame,
		Entries:    kv.index.Entries(),
	}
	if snap.LastFrame >= 0 {
		record, err := kv.reader.ReadAt(snap.LastFrame)
		if err != nil {
			return errors.Wrapf(markCorruption(err), "read last frame at offset %d", snap.LastFrame)
		}
		snap.LastCRC = record.CRC32
	}

	path := kv.config.indexPath()
	if err := writeIndexSnapshot(path, snap); err != nil {
		return errors.Wrapf(err, "save index to %s", path)
	}
	kv.logger.Debug("index snapshot written", "index", path, "snapshot", snap.ID.String(), "keys", len(snap.Entries))
	return nil
}

// Close flushes the data file, writes the index side-file when enabled and
// releases the file handle. Closing twice is a no-op.
func (kv *KVStore) Close() error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if kv.state == stateClosed {
		return nil
	}

	var errs error
	if kv.state == stateLoaded {
		if err := kv.writer.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "sync data file"))
		} else if kv.config.PersistIndex {
			errs = errors.CombineErrors(errs, kv.saveIndexLocked())
		}
	}

	if err := kv.file.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "close data file"))
	}
	kv.state = stateClosed
	kv.index.Clear()

	return errs
}

// Path returns the data file path
func (kv *KVStore) Path() string {
	return kv.config.Path
}
