package codec

import "hash"

// cksumPoly is the CRC-32 generator polynomial in MSB-first form.
const cksumPoly = 0x04C11DB7

// CksumSize is the size of a CRC-32/CKSUM checksum in bytes.
const CksumSize = 4

var cksumTable = makeCksumTable()

func makeCksumTable() *[256]uint32 {
	t := new([256]uint32)
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ cksumPoly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

func cksumUpdate(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ cksumTable[byte(crc>>24)^b]
	}
	return crc
}

// Checksum returns the CRC-32/CKSUM checksum of p.
// Parameters: poly 0x04C11DB7, init 0, no reflection, xorout 0xFFFFFFFF.
func Checksum(p []byte) uint32 {
	return cksumUpdate(0, p) ^ 0xFFFFFFFF
}

// cksumDigest is a streaming CRC-32/CKSUM hash.
type cksumDigest struct {
	crc uint32 // running register, before the final xor
}

// NewCksum returns a hash.Hash32 computing the CRC-32/CKSUM checksum.
func NewCksum() hash.Hash32 {
	return &cksumDigest{}
}

func (d *cksumDigest) Write(p []byte) (int, error) {
	d.crc = cksumUpdate(d.crc, p)
	return len(p), nil
}

func (d *cksumDigest) Sum32() uint32 { return d.crc ^ 0xFFFFFFFF }

func (d *cksumDigest) Sum(in []byte) []byte {
	s := d.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (d *cksumDigest) Reset() { d.crc = 0 }

func (d *cksumDigest) Size() int { return CksumSize }

func (d *cksumDigest) BlockSize() int { return 1 }
