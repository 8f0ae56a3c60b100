package codec_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/ssargent/actionkv/pkg/codec"
)

// ExampleRecordCodec demonstrates basic frame encoding and decoding
func ExampleRecordCodec() {
	c := codec.NewRecordCodec()

	encoded, err := c.Encode([]byte("user:123"), []byte("john@example.com"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Encoded %d bytes\n", len(encoded))

	record, err := c.Decode(bytes.NewReader(encoded))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Key: %s\n", record.Key)
	fmt.Printf("Value: %s\n", record.Value)

	// Output:
	// Encoded 36 bytes
	// Key: user:123
	// Value: john@example.com
}

// ExampleChecksum shows the CRC-32/CKSUM check value
func ExampleChecksum() {
	fmt.Printf("%08x\n", codec.Checksum([]byte("123456789")))

	// Output:
	// 765e7680
}
