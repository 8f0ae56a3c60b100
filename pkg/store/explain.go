package store

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

const (
	sampleValueLimit = 64
	deadPctWarning   = 50.0
)

// ExplainOptions configures the explain operation
type ExplainOptions struct {
	WithSamples int    // Number of keys to sample, in key order
	Prefix      []byte // Restrict samples to keys with this prefix
	WithMemory  bool   // Include Go heap usage
}

// ExplainResult holds the results of an explain operation
type ExplainResult struct {
	Global struct {
		LiveKeys    int           `json:"live_keys"`
		Frames      int64         `json:"frames"`
		Tombstones  int64         `json:"tombstones"`
		TotalSizeMB float64       `json:"total_size_mb"`
		LiveSizeMB  float64       `json:"live_size_mb"`
		DeadPct     float64       `json:"dead_pct"`
		HeapMB      float64       `json:"heap_mb,omitempty"` // Whole Go heap, not just the index
		LoadSource  LoadSource    `json:"load_source"`
		Uptime      time.Duration `json:"uptime"`
	} `json:"global"`

	Samples  []Sample `json:"samples,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Sample is one key with a shortened copy of its value
type Sample struct {
	Key    string `json:"key"`
	Value  string `json:"value_truncated"`
	Offset int64  `json:"offset"`
}

// Explain reports what the data file holds and how much of it is still live
func (kv *KVStore) Explain(ctx context.Context, opts ExplainOptions) (*ExplainResult, error) {
	kv.mutex.Lock()
	if err := kv.checkReady(); err != nil {
		kv.mutex.Unlock()
		return nil, err
	}

	res := &ExplainResult{}
	total := kv.writer.Size()
	live := kv.index.LiveSize()
	res.Global.LiveKeys = kv.index.Size()
	res.Global.Frames = kv.frames
	res.Global.Tombstones = kv.tombstones
	res.Global.TotalSizeMB = float64(total) / (1024 * 1024)
	res.Global.LiveSizeMB = float64(live) / (1024 * 1024)
	if total > 0 {
		res.Global.DeadPct = float64(total-live) / float64(total) * 100
	}
	res.Global.LoadSource = kv.loadSource
	res.Global.Uptime = time.Since(kv.loadedAt)

	var keys [][]byte
	if opts.WithSamples > 0 {
		keys = kv.index.KeysWithPrefix(opts.Prefix)
		if len(keys) > opts.WithSamples {
			keys = keys[:opts.WithSamples]
		}
	}
	kv.mutex.Unlock()

	if opts.WithMemory {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		res.Global.HeapMB = float64(m.Alloc) / (1024 * 1024)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, entry, found, err := kv.sample(key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue // deleted since the key list was taken
		}
		res.Samples = append(res.Samples, Sample{
			Key:    strings.ToValidUTF8(string(key), "?"),
			Value:  truncateValue(value),
			Offset: entry.Offset,
		})
	}

	if res.Global.DeadPct > deadPctWarning {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%.1f%% of the data file is superseded frames", res.Global.DeadPct))
	}
	if len(opts.Prefix) > 0 && opts.WithSamples > 0 && len(res.Samples) == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no keys with prefix %q", opts.Prefix))
	}

	return res, nil
}

// sample reads a value and the index entry it came from under one lock, so
// the offset always belongs to the returned value.
func (kv *KVStore) sample(key []byte) ([]byte, IndexEntry, bool, error) {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkReady(); err != nil {
		return nil, IndexEntry{}, false, err
	}
	return kv.getLocked(key)
}

func truncateValue(value []byte) string {
	if len(value) > sampleValueLimit {
		return strings.ToValidUTF8(string(value[:sampleValueLimit]), "?") + "..."
	}
	return strings.ToValidUTF8(string(value), "?")
}
