package store

import (
	"bufio"
	"io"
	"math"

	"github.com/ssargent/actionkv/pkg/codec"
)

// LogReader provides sequential and random access to records in a log
type LogReader struct {
	src    io.ReaderAt
	reader *bufio.Reader
	codec  *codec.RecordCodec
	offset int64 // Start of the next frame ReadNext will return
}

// NewLogReader creates a reader over src, positioned at offset 0
func NewLogReader(src io.ReaderAt) *LogReader {
	r := &LogReader{
		src:   src,
		codec: codec.NewRecordCodec(),
	}
	r.Seek(0)
	return r
}

// ReadNext decodes the frame at the current offset and advances past it.
// It returns io.EOF at a clean end of the log.
func (r *LogReader) ReadNext() (*codec.Record, error) {
	record, err := r.codec.Decode(r.reader)
	if err != nil {
		return nil, err
	}
	r.offset += int64(record.Size())
	return record, nil
}

// ReadAt decodes the single frame starting at offset
func (r *LogReader) ReadAt(offset int64) (*codec.Record, error) {
	section := io.NewSectionReader(r.src, offset, math.MaxInt64-offset)
	return r.codec.Decode(section)
}

// Seek sets the read offset for ReadNext
func (r *LogReader) Seek(offset int64) {
	section := io.NewSectionReader(r.src, offset, math.MaxInt64-offset)
	r.reader = bufio.NewReaderSize(section, 64*1024)
	r.offset = offset
}

// Offset returns the offset of the next frame ReadNext will decode
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator over the remaining records
func (r *LogReader) Iterator() RecordIterator {
	return &logRecordIterator{reader: r}
}

// logRecordIterator implements RecordIterator for streaming access
type logRecordIterator struct {
	reader *LogReader
	record *codec.Record
	offset int64
	err    error
}

func (it *logRecordIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.offset = it.reader.Offset()
	it.record, it.err = it.reader.ReadNext()
	return it.err == nil
}

func (it *logRecordIterator) Record() *codec.Record {
	return it.record
}

// Offset returns the start offset of the current record, or of the frame
// that failed to decode once Next has returned false.
func (it *logRecordIterator) Offset() int64 {
	return it.offset
}

// Err returns the error that stopped iteration; a clean end yields nil.
func (it *logRecordIterator) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}
