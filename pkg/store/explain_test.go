package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_Explain(t *testing.T) {
	kv := openTestStore(t, testConfig(t))

	require.NoError(t, kv.Insert([]byte("user:1"), []byte("alice")))
	require.NoError(t, kv.Insert([]byte("user:2"), []byte("bob")))
	require.NoError(t, kv.Insert([]byte("item:1"), []byte(strings.Repeat("x", 100))))
	_, err := kv.Delete([]byte("user:2"))
	require.NoError(t, err)

	res, err := kv.Explain(context.Background(), ExplainOptions{WithSamples: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Global.LiveKeys)
	assert.Equal(t, int64(4), res.Global.Frames)
	assert.Equal(t, int64(1), res.Global.Tombstones)
	assert.Equal(t, LoadSourceReplay, res.Global.LoadSource)
	assert.Greater(t, res.Global.DeadPct, 0.0)
	assert.Less(t, res.Global.DeadPct, 50.0)

	require.Len(t, res.Samples, 2)
	assert.Equal(t, "item:1", res.Samples[0].Key)
	assert.Equal(t, strings.Repeat("x", sampleValueLimit)+"...", res.Samples[0].Value)
	assert.Equal(t, "user:1", res.Samples[1].Key)
	assert.Equal(t, "alice", res.Samples[1].Value)
	assert.Equal(t, int64(0), res.Samples[1].Offset)
	assert.Empty(t, res.Warnings)
}

func TestKVStore_ExplainPrefixAndWarnings(t *testing.T) {
	kv := openTestStore(t, testConfig(t))

	for i := 0; i < 5; i++ {
		require.NoError(t, kv.Insert([]byte("k"), []byte("v")))
	}

	res, err := kv.Explain(context.Background(), ExplainOptions{WithSamples: 1, Prefix: []byte("zzz")})
	require.NoError(t, err)

	assert.Empty(t, res.Samples)
	assert.InDelta(t, 80.0, res.Global.DeadPct, 0.001)
	assert.Len(t, res.Warnings, 2)
}

func TestKVStore_ExplainCancelled(t *testing.T) {
	kv := openTestStore(t, testConfig(t))
	require.NoError(t, kv.Insert([]byte("k"), []byte("v")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := kv.Explain(ctx, ExplainOptions{WithSamples: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKVStore_ExplainNotLoaded(t *testing.T) {
	kv, err := NewKVStore(testConfig(t))
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Explain(context.Background(), ExplainOptions{})
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestKVStore_ExplainSampleOffsetMatchesValue(t *testing.T) {
	kv := openTestStore(t, testConfig(t))

	require.NoError(t, kv.Insert([]byte("a"), []byte("old")))
	require.NoError(t, kv.Insert([]byte("b"), []byte("2")))
	_, err := kv.Update([]byte("a"), []byte("new"))
	require.NoError(t, err)

	res, err := kv.Explain(context.Background(), ExplainOptions{WithSamples: 2, WithMemory: true})
	require.NoError(t, err)
	require.Len(t, res.Samples, 2)
	assert.Greater(t, res.Global.HeapMB, 0.0)

	for _, s := range res.Samples {
		record, err := kv.reader.ReadAt(s.Offset)
		require.NoError(t, err)
		assert.Equal(t, s.Key, string(record.Key))
		assert.Equal(t, s.Value, string(record.Value))
	}
	assert.Equal(t, "new", res.Samples[0].Value)
	assert.Equal(t, int64((12+1+3)+(12+1+1)), res.Samples[0].Offset)
}
