package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAppendFile(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	return file
}

func TestNewLogWriter(t *testing.T) {
	file := openAppendFile(t)

	writer, err := NewLogWriter(file, LogWriterConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), writer.Size())
	assert.NoError(t, writer.Close())
}

func TestNewLogWriter_ExistingFile(t *testing.T) {
	file := openAppendFile(t)
	_, err := file.Write([]byte("0123456789"))
	require.NoError(t, err)

	writer, err := NewLogWriter(file, LogWriterConfig{})
	require.NoError(t, err)
	defer writer.Close()

	assert.Equal(t, int64(10), writer.Size())
}

func TestLogWriter_PutOffsets(t *testing.T) {
	file := openAppendFile(t)
	writer, err := NewLogWriter(file, LogWriterConfig{})
	require.NoError(t, err)
	defer writer.Close()

	offset1, err := writer.Put([]byte("a"), []byte("1"))
	require.NoError(t, err)
	offset2, err := writer.Put([]byte("bb"), []byte("22"))
	require.NoError(t, err)
	offset3, err := writer.Put([]byte("a"), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), offset1)
	assert.Equal(t, int64(codec.HeaderSize+2), offset2)
	assert.Equal(t, int64(2*codec.HeaderSize+2+4), offset3)
	assert.Equal(t, int64(3*codec.HeaderSize+2+4+1), writer.Size())

	stat, err := file.Stat()
	require.NoError(t, err)
	assert.Equal(t, writer.Size(), stat.Size())
}

func TestLogWriter_FramesDecode(t *testing.T) {
	file := openAppendFile(t)
	writer, err := NewLogWriter(file, LogWriterConfig{})
	require.NoError(t, err)

	offset, err := writer.Put([]byte("key"), []byte("value"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	record, err := NewLogReader(file).ReadAt(offset)
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), record.Key)
	assert.Equal(t, []byte("value"), record.Value)
	assert.NoError(t, record.Validate())
}

func TestLogWriter_DeferredFsync(t *testing.T) {
	file := openAppendFile(t)
	writer, err := NewLogWriter(file, LogWriterConfig{FsyncInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := writer.Put([]byte("k"), []byte("v"))
		require.NoError(t, err)
	}

	// Let the timer fire at least once.
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, writer.Sync())
	assert.NoError(t, writer.Close())
	assert.Equal(t, int64(10*(codec.HeaderSize+2)), writer.Size())
}

func TestLogWriter_WriteFailure(t *testing.T) {
	file := openAppendFile(t)
	writer, err := NewLogWriter(file, LogWriterConfig{})
	require.NoError(t, err)

	_, err = writer.Put([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = writer.Put([]byte("b"), []byte("2"))
	assert.Error(t, err)
	assert.Equal(t, int64(codec.HeaderSize+2), writer.Size(), "failed append must not move the offset")
}

// failingSyncer reports err from every Sync call.
type failingSyncer struct {
	err error
}

func (f failingSyncer) Sync() error { return f.err }

func TestLogWriter_SyncFailureAfterWrite(t *testing.T) {
	file := openAppendFile(t)
	writer, err := NewLogWriter(file, LogWriterConfig{})
	require.NoError(t, err)

	_, err = writer.Put([]byte("a"), []byte("1"))
	require.NoError(t, err)

	diskErr := errors.New("disk full")
	writer.syncer = failingSyncer{err: diskErr}

	offset, err := writer.Put([]byte("b"), []byte("2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncFailed))
	assert.True(t, errors.Is(err, diskErr))
	assert.Equal(t, int64(codec.HeaderSize+2), offset, "written frame keeps its offset")
	assert.Equal(t, int64(2*(codec.HeaderSize+2)), writer.Size())

	record, err := NewLogReader(file).ReadAt(offset)
	require.NoError(t, err)
	assert.Equal(t, "b", string(record.Key))
}
