package store

import (
	"bytes"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flipBit xors one bit of the byte at offset through a separate handle.
func flipBit(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	b := make([]byte, 1)
	_, err = f.ReadAt(b, offset)
	require.NoError(t, err)
	b[0] ^= 0x04
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
}

func appendRaw(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(data)
	require.NoError(t, err)
}

func writeTwoFrames(t *testing.T, config KVStoreConfig) int64 {
	t.Helper()
	kv, _, err := OpenKVStore(config)
	require.NoError(t, err)
	require.NoError(t, kv.Insert([]byte("a"), []byte("apple")))
	require.NoError(t, kv.Insert([]byte("b"), []byte("banana")))
	require.NoError(t, kv.Close())
	return fileSize(t, config.Path)
}

func TestCorruption_GetDetectsBitFlip(t *testing.T) {
	config := testConfig(t)
	kv := openTestStore(t, config)

	require.NoError(t, kv.Insert([]byte("key"), []byte("hello")))
	flipBit(t, config.Path, int64(codec.HeaderSize+len("key")+1))

	_, found, err := kv.Get([]byte("key"))
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrCorruption))
	assert.True(t, errors.Is(err, codec.ErrChecksumMismatch))
}

func TestCorruption_LoadFailsOnBitFlip(t *testing.T) {
	config := testConfig(t)
	writeTwoFrames(t, config)

	// Flip a value byte in the first frame.
	flipBit(t, config.Path, codec.HeaderSize+1+2)

	_, _, err := OpenKVStore(config)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruption))
	assert.True(t, errors.Is(err, codec.ErrChecksumMismatch))
	assert.Contains(t, err.Error(), "offset 0")
}

func TestCorruption_LengthFieldFlip(t *testing.T) {
	config := testConfig(t)
	writeTwoFrames(t, config)

	// Inflate the first frame's value length; the frame now claims to run
	// past the end of the file.
	flipBit(t, config.Path, 8+2)

	_, _, err := OpenKVStore(config)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruption))
}

func TestCorruption_LengthFieldFlipNotTreatedAsTornTail(t *testing.T) {
	config := testConfig(t)
	config.RecoverTornTail = true
	size := writeTwoFrames(t, config)

	flipBit(t, config.Path, 8+2)

	_, _, err := OpenKVStore(config)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruption))
	assert.Equal(t, size, fileSize(t, config.Path), "frames after the damaged one must be kept")
	assert.NoFileExists(t, config.Path+TornFileSuffix)

	// Repairing the flipped bit gives back both frames.
	flipBit(t, config.Path, 8+2)
	kv := openTestStore(t, config)
	assert.Equal(t, map[string]string{"a": "apple", "b": "banana"}, snapshotContents(t, kv))
}

func TestCorruption_ChecksumMismatchIsFatalEvenWithRecovery(t *testing.T) {
	config := testConfig(t)
	config.RecoverTornTail = true
	size := writeTwoFrames(t, config)

	flipBit(t, config.Path, size-1)

	_, _, err := OpenKVStore(config)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrChecksumMismatch))
	assert.Equal(t, size, fileSize(t, config.Path), "corrupt frame must not be truncated")
}

func TestTornTail_FatalByDefault(t *testing.T) {
	tests := []struct {
		name string
		torn []byte
	}{
		{"partial header", []byte{0x01, 0x02, 0x03, 0x04, 0x05}},
		{"short payload", func() []byte {
			frame, _ := codec.NewRecordCodec().Encode([]byte("c"), []byte("cherry"))
			return frame[:len(frame)-2]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig(t)
			writeTwoFrames(t, config)
			appendRaw(t, config.Path, tt.torn)

			_, _, err := OpenKVStore(config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, codec.ErrTruncatedRecord))
			assert.True(t, errors.Is(err, ErrCorruption))
		})
	}
}

func TestTornTail_Recovered(t *testing.T) {
	config := testConfig(t)
	config.RecoverTornTail = true
	size := writeTwoFrames(t, config)

	frame, err := codec.NewRecordCodec().Encode([]byte("c"), []byte("cherry"))
	require.NoError(t, err)
	appendRaw(t, config.Path, frame[:7])

	kv, result, err := OpenKVStore(config)
	require.NoError(t, err)

	assert.Equal(t, int64(7), result.TornBytesTruncated)
	assert.Equal(t, int64(2), result.FramesReplayed)
	assert.Equal(t, size, fileSize(t, config.Path))

	torn, err := os.ReadFile(config.Path + TornFileSuffix)
	require.NoError(t, err)
	assert.Equal(t, frame[:7], torn)

	// New appends land on a clean frame boundary.
	require.NoError(t, kv.Insert([]byte("c"), []byte("cherry")))
	require.NoError(t, kv.Close())

	config.RecoverTornTail = false
	reopened := openTestStore(t, config)
	assert.Equal(t, map[string]string{
		"a": "apple",
		"b": "banana",
		"c": "cherry",
	}, snapshotContents(t, reopened))
}

func TestTornTail_RecoveredPartialPayload(t *testing.T) {
	config := testConfig(t)
	config.RecoverTornTail = true
	size := writeTwoFrames(t, config)

	frame, err := codec.NewRecordCodec().Encode([]byte("c"), bytes.Repeat([]byte("cherry"), 20))
	require.NoError(t, err)
	appendRaw(t, config.Path, frame[:len(frame)-1])

	kv, result, err := OpenKVStore(config)
	require.NoError(t, err)
	defer kv.Close()

	assert.Equal(t, int64(len(frame)-1), result.TornBytesTruncated)
	assert.Equal(t, size, fileSize(t, config.Path))
	assert.Equal(t, map[string]string{"a": "apple", "b": "banana"}, snapshotContents(t, kv))
}

func TestFindFrameAfter(t *testing.T) {
	data := encodeFrames(t, "a", "apple", "b", "banana")

	off, found := findFrameAfter(bytes.NewReader(data), 0, int64(len(data)))
	require.True(t, found)
	assert.Equal(t, int64(18), off)

	_, found = findFrameAfter(bytes.NewReader(data), 18, int64(len(data)))
	assert.False(t, found)

	_, found = findFrameAfter(bytes.NewReader(data), 0, int64(len(data)-1))
	assert.False(t, found, "a frame cut short by the end must not count")
}

func TestCorruption_SnapshotDoesNotHideBitFlip(t *testing.T) {
	config := testConfig(t)
	config.PersistIndex = true
	writeTwoFrames(t, config)

	flipBit(t, config.Path, codec.HeaderSize+1+2)

	// Size and last frame still match, so the side-file is trusted and load
	// succeeds; the damage surfaces on the first read of that frame.
	kv, result, err := OpenKVStore(config)
	require.NoError(t, err)
	defer kv.Close()
	assert.Equal(t, LoadSourceSnapshot, result.Source)

	_, _, err = kv.Get([]byte("a"))
	assert.True(t, errors.Is(err, ErrCorruption))

	value, found, err := kv.Get([]byte("b"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "banana", string(value))
}
