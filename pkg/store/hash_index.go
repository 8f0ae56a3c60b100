package store

import (
	"bytes"
	"slices"
	"strings"
	"sync"
)

// HashIndex maps each live key to the location of its latest frame
type HashIndex struct {
	entries map[string]IndexEntry
	mutex   sync.RWMutex
}

// NewHashIndex creates a new hash index
func NewHashIndex(config HashIndexConfig) *HashIndex {
	return &HashIndex{
		entries: make(map[string]IndexEntry, config.InitialCapacity),
	}
}

// Put adds or updates an index entry for a key
func (idx *HashIndex) Put(key []byte, entry IndexEntry) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries[string(key)] = entry
}

// Get retrieves the index entry for a key
func (idx *HashIndex) Get(key []byte) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	entry, exists := idx.entries[string(key)]
	return entry, exists
}

// Delete removes a key from the index
func (idx *HashIndex) Delete(key []byte) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	delete(idx.entries, string(key))
}

// Size returns the number of keys in the index
func (idx *HashIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return len(idx.entries)
}

// Clear removes all entries from the index
func (idx *HashIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = make(map[string]IndexEntry)
}

// Keys returns all keys in the index in bytewise order
func (idx *HashIndex) Keys() [][]byte {
	return idx.KeysWithPrefix(nil)
}

// KeysWithPrefix returns all keys that start with the given prefix, sorted
func (idx *HashIndex) KeysWithPrefix(prefix []byte) [][]byte {
	idx.mutex.RLock()
	p := string(prefix)
	keys := make([][]byte, 0, len(idx.entries))
	for key := range idx.entries {
		if strings.HasPrefix(key, p) {
			keys = append(keys, []byte(key))
		}
	}
	idx.mutex.RUnlock()

	slices.SortFunc(keys, bytes.Compare)
	return keys
}

// Entries returns a copy of the whole mapping
func (idx *HashIndex) Entries() map[string]IndexEntry {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	out := make(map[string]IndexEntry, len(idx.entries))
	for k, v := range idx.entries {
		out[k] = v
	}
	return out
}

// LiveSize returns the total size of the frames the index points at
func (idx *HashIndex) LiveSize() int64 {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	var total int64
	for _, e := range idx.entries {
		total += e.Size
	}
	return total
}

// ReplayStats summarizes a BuildFromLog pass
type ReplayStats struct {
	Frames     int64
	Tombstones int64
	EndOffset  int64 // Offset just past the last complete frame
	LastFrame  int64 // Start of the last complete frame, -1 when there is none
}

// BuildFromLog scans the log from offset 0 and rebuilds the index, applying
// last write wins. A tombstone removes its key. Decode errors stop the scan;
// the returned stats still describe every frame read before the error.
func (idx *HashIndex) BuildFromLog(reader *LogReader) (ReplayStats, error) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = make(map[string]IndexEntry)
	reader.Seek(0)

	stats := ReplayStats{LastFrame: -1}
	iterator := reader.Iterator()
	for iterator.Next() {
		record := iterator.Record()
		stats.Frames++
		stats.LastFrame = iterator.Offset()

		if record.IsTombstone() {
			stats.Tombstones++
			delete(idx.entries, string(record.Key))
		} else {
			idx.entries[string(record.Key)] = IndexEntry{
				Offset: iterator.Offset(),
				Size:   int64(record.Size()),
			}
		}
	}
	stats.EndOffset = reader.Offset()

	return stats, iterator.Err()
}

// replace swaps in a fully built mapping, used when restoring a snapshot
func (idx *HashIndex) replace(entries map[string]IndexEntry) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = entries
}
