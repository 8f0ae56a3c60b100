package store

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
	"golang.org/x/exp/mmap"
)

// ScanSummary describes a ScanFile pass
type ScanSummary struct {
	Frames     int64
	Tombstones int64
	Bytes      int64 // Size of the file
	ValidBytes int64 // Bytes covered by frames that decoded cleanly
}

// ScanFunc is called for every frame ScanFile decodes. Returning an error
// stops the scan and ScanFile returns it unchanged.
type ScanFunc func(offset int64, record *codec.Record) error

// ScanFile walks every frame in the data file at path through a read-only
// memory map, without building an index or taking the file for writing.
// A frame that fails to decode ends the scan with an ErrCorruption error
// naming its offset; the summary covers the frames before it.
func ScanFile(path string, fn ScanFunc) (ScanSummary, error) {
	var summary ScanSummary

	r, err := mmap.Open(path)
	if err != nil {
		return summary, errors.Wrapf(err, "map %s", path)
	}
	defer r.Close()

	summary.Bytes = int64(r.Len())
	reader := NewLogReader(r)
	iterator := reader.Iterator()
	for iterator.Next() {
		record := iterator.Record()
		summary.Frames++
		if record.IsTombstone() {
			summary.Tombstones++
		}
		if fn != nil {
			if err := fn(iterator.Offset(), record); err != nil {
				summary.ValidBytes = reader.Offset()
				return summary, err
			}
		}
	}
	summary.ValidBytes = reader.Offset()

	if err := iterator.Err(); err != nil {
		return summary, errors.Wrapf(markCorruption(err), "frame at offset %d", iterator.Offset())
	}
	return summary, nil
}
