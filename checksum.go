package rpng

// Reflected CRC-32, polynomial 0xEDB88320. Chunk CRCs cover the type
// field plus the payload, not the length prefix.

var crcTable = func() (tbl [256]uint32) {
	for i := range tbl {
		c := uint32(i)
		for k := 0; k < 8; k++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		tbl[i] = c
	}
	return
}()

// CRC32 returns the CRC-32 checksum of data.
func CRC32(data []byte) uint32 {
	crc := ^uint32(0)
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return ^crc
}

const (
	adlerInit = 1
	adlerMod  = 65521

	// Largest n such that 255*n*(n+1)/2 + (n+1)*(adlerMod-1) still
	// fits in 32 bits, so the modulo can be deferred per block.
	adlerBlock = 5552
)

// Adler32 updates the running Adler-32 checksum with data. Pass
// adler = 1 to start a new checksum.
func Adler32(adler uint32, data []byte) uint32 {
	lo := adler & 0xffff
	hi := adler >> 16
	for len(data) > 0 {
		n := adlerBlock
		if len(data) < n {
			n = len(data)
		}
		for _, b := range data[:n] {
			lo += uint32(b)
			hi += lo
		}
		lo %= adlerMod
		hi %= adlerMod
		data = data[n:]
	}
	return hi<<16 | lo
}
