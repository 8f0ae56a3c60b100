package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"
)

// HeaderSize is the fixed size of a frame header:
// CRC32(4) + KeySize(4) + ValueSize(4), all little-endian.
const HeaderSize = 12

// maxEagerPayload bounds how much payload Decode allocates up front. Larger
// declared payloads are read incrementally so a corrupt length cannot force
// a huge allocation.
const maxEagerPayload = 1 << 20

var (
	// ErrTruncatedRecord means the source ended inside a frame (a torn write).
	ErrTruncatedRecord = errors.New("codec: truncated record")
	// ErrChecksumMismatch means the payload does not match its header checksum.
	ErrChecksumMismatch = errors.New("codec: checksum mismatch")
	// ErrRecordTooLarge means a key or value does not fit a 32-bit length field.
	ErrRecordTooLarge = errors.New("codec: record too large")
)

// Record represents a key-value record as stored in a frame
type Record struct {
	CRC32     uint32 // CRC-32/CKSUM of Key ++ Value
	KeySize   uint32 // Size of the key in bytes
	ValueSize uint32 // Size of the value in bytes
	Key       []byte // Key data
	Value     []byte // Value data
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a key-value pair into a frame.
// Format: [CRC32(4)][KeySize(4)][ValueSize(4)][Key][Value]
func (c *RecordCodec) Encode(key, value []byte) ([]byte, error) {
	if uint64(len(key)) > math.MaxUint32 || uint64(len(value)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrRecordTooLarge, "key %d bytes, value %d bytes", len(key), len(value))
	}

	r := NewRecord(key, value)
	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[0:], r.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], r.KeySize)
	binary.LittleEndian.PutUint32(buf[8:], r.ValueSize)
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	return buf, nil
}

// Decode reads exactly one frame from r.
//
// It returns io.EOF, unwrapped, when r is exhausted before any header byte is
// read. A partial header or a short payload yields ErrTruncatedRecord, and a
// payload that fails the checksum yields ErrChecksumMismatch.
func (c *RecordCodec) Decode(r io.Reader) (*Record, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case err == io.EOF:
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, errors.Wrap(ErrTruncatedRecord, "short header")
		default:
			return nil, err
		}
	}

	rec := &Record{
		CRC32:     binary.LittleEndian.Uint32(header[0:4]),
		KeySize:   binary.LittleEndian.Uint32(header[4:8]),
		ValueSize: binary.LittleEndian.Uint32(header[8:12]),
	}

	payloadSize := uint64(rec.KeySize) + uint64(rec.ValueSize)
	payload, err := readPayload(r, payloadSize)
	if err != nil {
		return nil, err
	}

	if sum := Checksum(payload); sum != rec.CRC32 {
		return nil, errors.Wrapf(ErrChecksumMismatch, "stored %08x, computed %08x", rec.CRC32, sum)
	}

	rec.Key = payload[:rec.KeySize:rec.KeySize]
	rec.Value = payload[rec.KeySize:]
	return rec, nil
}

func readPayload(r io.Reader, n uint64) ([]byte, error) {
	if n <= maxEagerPayload {
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.Wrapf(ErrTruncatedRecord, "payload wants %d bytes", n)
			}
			return nil, err
		}
		return payload, nil
	}

	var buf bytes.Buffer
	got, err := io.Copy(&buf, io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if uint64(got) < n {
		return nil, errors.Wrapf(ErrTruncatedRecord, "payload wants %d bytes, got %d", n, got)
	}
	return buf.Bytes(), nil
}

// NewRecord builds a record for key and value with its checksum filled in.
// Lengths beyond 32 bits are truncated in the size fields; use Encode to get
// an error instead.
func NewRecord(key, value []byte) *Record {
	r := &Record{
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Key:       key,
		Value:     value,
	}
	r.CRC32 = r.calculateCRC32()
	return r
}

// Validate checks the integrity of a record using its checksum
func (r *Record) Validate() error {
	if sum := r.calculateCRC32(); r.CRC32 != sum {
		return errors.Wrapf(ErrChecksumMismatch, "stored %08x, computed %08x", r.CRC32, sum)
	}
	return nil
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	return HeaderSize + len(r.Key) + len(r.Value)
}

// IsTombstone reports whether the record marks its key as deleted.
func (r *Record) IsTombstone() bool {
	return len(r.Value) == 0
}

// calculateCRC32 computes the checksum over Key ++ Value only; the lengths
// are not covered.
func (r *Record) calculateCRC32() uint32 {
	h := NewCksum()
	_, _ = h.Write(r.Key)
	_, _ = h.Write(r.Value)
	return h.Sum32()
}
