package codec

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRecordCodecProperties checks codec invariants over generated inputs.
func TestRecordCodecProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	codec := NewRecordCodec()

	properties.Property("decode(encode(k, v)) == {k, v}", prop.ForAll(
		func(key, value []byte) bool {
			encoded, err := codec.Encode(key, value)
			if err != nil {
				return false
			}
			rec, err := codec.Decode(bytes.NewReader(encoded))
			if err != nil {
				return false
			}
			return bytes.Equal(rec.Key, key) &&
				bytes.Equal(rec.Value, value) &&
				rec.Validate() == nil
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("encoded size is header plus payload", prop.ForAll(
		func(key, value []byte) bool {
			encoded, err := codec.Encode(key, value)
			return err == nil && len(encoded) == HeaderSize+len(key)+len(value)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("payload bit flip is a checksum mismatch", prop.ForAll(
		func(key, value []byte, pos int, bit uint8) bool {
			payloadLen := len(key) + len(value)
			if payloadLen == 0 {
				return true
			}
			encoded, err := codec.Encode(key, value)
			if err != nil {
				return false
			}
			encoded[HeaderSize+pos%payloadLen] ^= 1 << (bit % 8)
			_, err = codec.Decode(bytes.NewReader(encoded))
			return errors.Is(err, ErrChecksumMismatch)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(0, 1<<16),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
