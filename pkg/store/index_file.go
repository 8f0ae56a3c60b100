package store

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/actionkv/pkg/codec"
)

// IndexFileSuffix is appended to the data file path to name the side-file
const IndexFileSuffix = ".idx"

// Side-file layout, all integers little-endian:
//
//	[magic "AKVI"][version(1)][snapshot id(20)][data size(8)][frames(8)]
//	[tombstones(8)][last frame offset(8)][last frame CRC(4)]
//	[body len(4)][body CRC-32/CKSUM(4)][snappy body]
//
// The last frame offset is -1 for an empty data file.
//
// The decompressed body is a sequence of
// [uvarint key len][key][uvarint offset][uvarint size].
const (
	snapshotMagic      = "AKVI"
	snapshotVersion    = 2
	snapshotIDSize     = 20 // binary ksuid
	snapshotHeaderSize = 4 + 1 + snapshotIDSize + 8 + 8 + 8 + 8 + 4 + 4 + 4
)

// indexSnapshot is a persisted copy of the index plus the replay counters
// that produced it.
type indexSnapshot struct {
	ID         ksuid.KSUID
	DataSize   int64 // Data file size the snapshot is valid for
	Frames     int64
	Tombstones int64
	LastFrame  int64  // Offset of the newest frame, -1 when DataSize is 0
	LastCRC    uint32 // Header checksum of the frame at LastFrame
	Entries    map[string]IndexEntry
}

func (s *indexSnapshot) marshal() []byte {
	keys := make([]string, 0, len(s.Entries))
	for k := range s.Entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var body []byte
	for _, k := range keys {
		e := s.Entries[k]
		body = binary.AppendUvarint(body, uint64(len(k)))
		body = append(body, k...)
		body = binary.AppendUvarint(body, uint64(e.Offset))
		body = binary.AppendUvarint(body, uint64(e.Size))
	}
	compressed := snappy.Encode(nil, body)

	buf := make([]byte, 0, snapshotHeaderSize+len(compressed))
	buf = append(buf, snapshotMagic...)
	buf = append(buf, snapshotVersion)
	buf = append(buf, s.ID.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.DataSize))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Frames))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Tombstones))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.LastFrame))
	buf = binary.LittleEndian.AppendUint32(buf, s.LastCRC)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(compressed)))
	buf = binary.LittleEndian.AppendUint32(buf, codec.Checksum(compressed))
	return append(buf, compressed...)
}

func unmarshalIndexSnapshot(data []byte) (*indexSnapshot, error) {
	if len(data) < snapshotHeaderSize {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "short header: %d bytes", len(data))
	}
	if string(data[:4]) != snapshotMagic {
		return nil, errors.Wrap(ErrInvalidSnapshot, "bad magic")
	}
	if data[4] != snapshotVersion {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "unsupported version %d", data[4])
	}

	p := 5
	id, err := ksuid.FromBytes(data[p : p+snapshotIDSize])
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "snapshot id"), ErrInvalidSnapshot)
	}
	p += snapshotIDSize

	s := &indexSnapshot{ID: id}
	s.DataSize = int64(binary.LittleEndian.Uint64(data[p:]))
	s.Frames = int64(binary.LittleEndian.Uint64(data[p+8:]))
	s.Tombstones = int64(binary.LittleEndian.Uint64(data[p+16:]))
	s.LastFrame = int64(binary.LittleEndian.Uint64(data[p+24:]))
	s.LastCRC = binary.LittleEndian.Uint32(data[p+32:])
	bodyLen := binary.LittleEndian.Uint32(data[p+36:])
	bodySum := binary.LittleEndian.Uint32(data[p+40:])
	p += 44

	if s.DataSize == 0 && s.LastFrame != -1 ||
		s.DataSize > 0 && (s.LastFrame < 0 || s.LastFrame+codec.HeaderSize > s.DataSize) {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "last frame offset %d outside data file", s.LastFrame)
	}

	compressed := data[p:]
	if uint64(len(compressed)) != uint64(bodyLen) {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "body is %d bytes, header says %d", len(compressed), bodyLen)
	}
	if codec.Checksum(compressed) != bodySum {
		return nil, errors.Wrap(ErrInvalidSnapshot, "body checksum mismatch")
	}

	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decompress body"), ErrInvalidSnapshot)
	}

	s.Entries = make(map[string]IndexEntry)
	r := bytes.NewReader(body)
	for r.Len() > 0 {
		keyLen, err := binary.ReadUvarint(r)
		if err != nil || keyLen > uint64(r.Len()) {
			return nil, errors.Wrap(ErrInvalidSnapshot, "bad key length")
		}
		key := make([]byte, keyLen)
		_, _ = r.Read(key)

		offset, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidSnapshot, "bad offset")
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidSnapshot, "bad size")
		}

		entry := IndexEntry{Offset: int64(offset), Size: int64(size)}
		if entry.Offset < 0 || entry.Size < codec.HeaderSize || entry.Offset+entry.Size > s.DataSize {
			return nil, errors.Wrapf(ErrInvalidSnapshot, "entry for %q outside data file", key)
		}
		s.Entries[string(key)] = entry
	}

	return s, nil
}

// readIndexSnapshot loads the side-file at path.
func readIndexSnapshot(path string) (*indexSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return unmarshalIndexSnapshot(data)
}

// writeIndexSnapshot replaces the side-file at path atomically: the data goes
// to a temp file in the same directory, is fsynced, then renamed over path.
func writeIndexSnapshot(path string, s *indexSnapshot) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp index file")
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(s.marshal()); err != nil {
		return errors.Wrap(err, "write index file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "fsync index file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close index file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "rename index file")
	}
	renamed = true

	// Best effort: persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
