package authenticode

import (
	"crypto/sha256"
	"encoding/binary"
)

// digest computes the Authenticode SHA-256 of body, an image without its
// certificate table. The checksum field and the certificate table directory
// entry are skipped.
func (img *image) digest(body []byte) []byte {
	h := sha256.New()
	h.Write(body[:img.checksumOff])
	h.Write(body[img.checksumOff+4 : img.certDirOff])
	h.Write(body[img.certDirOff+dataDirSize:])
	return h.Sum(nil)
}

// checksum computes the PE image checksum of data. The checksum field must be
// zero when this is called.
func checksum(data []byte) uint32 {
	var sum uint64
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint64(binary.LittleEndian.Uint16(data[i:]))
		sum = (sum & 0xffff) + (sum >> 16)
	}
	if n%2 == 1 {
		sum += uint64(data[n-1])
		sum = (sum & 0xffff) + (sum >> 16)
	}
	sum = (sum & 0xffff) + (sum >> 16)
	return uint32(sum) + uint32(n)
}
