package store

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
	"golang.org/x/exp/mmap"
)

// TornFileSuffix is appended to the data file path to name the file that
// keeps bytes cut off the end of the data file during torn-tail recovery.
const TornFileSuffix = ".torn"

// cutTornTail moves the bytes from end to size into the torn file and
// truncates the data file at end. It refuses when a complete frame that
// passes its checksum still starts after end: the truncated frame is then
// damage inside the log, not an interrupted append.
func (kv *KVStore) cutTornTail(replayErr error, end, size int64) error {
	if size-end >= codec.HeaderSize {
		m, err := mmap.Open(kv.config.Path)
		if err != nil {
			return errors.Wrap(err, "map data file")
		}
		next, found := findFrameAfter(m, end, size)
		_ = m.Close()
		if found {
			kv.metrics.RecordCorruption()
			return errors.Wrapf(markCorruption(replayErr),
				"replay %s at offset %d: valid frame follows at offset %d", kv.config.Path, end, next)
		}
	}

	tornPath := kv.config.Path + TornFileSuffix
	if err := saveTornBytes(tornPath, io.NewSectionReader(kv.file, end, size-end)); err != nil {
		return errors.Wrapf(err, "save torn bytes to %s", tornPath)
	}
	if err := kv.file.Truncate(end); err != nil {
		return errors.Wrap(err, "truncate torn frame")
	}
	kv.logger.Warn("truncated torn frame at end of data file",
		"offset", end, "bytes", size-end, "torn_file", tornPath)
	return nil
}

// findFrameAfter returns the first offset after from where a whole frame
// that passes its checksum fits before end.
func findFrameAfter(src io.ReaderAt, from, end int64) (int64, bool) {
	recordCodec := codec.NewRecordCodec()
	var header [codec.HeaderSize]byte
	for off := from + 1; off+codec.HeaderSize <= end; off++ {
		if _, err := src.ReadAt(header[:], off); err != nil {
			return 0, false
		}
		size := codec.HeaderSize +
			int64(binary.LittleEndian.Uint32(header[4:])) +
			int64(binary.LittleEndian.Uint32(header[8:]))
		if off+size > end {
			continue
		}
		if _, err := recordCodec.Decode(io.NewSectionReader(src, off, size)); err == nil {
			return off, true
		}
	}
	return 0, false
}

// saveTornBytes appends r to the torn file and fsyncs it. Earlier recoveries
// are kept.
func saveTornBytes(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
