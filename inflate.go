package rpng

import (
	"errors"
	"math/bits"
)

// DEFLATE (RFC 1951) decompressor. Huffman alphabets are decoded
// through two-level lookup tables: a root table indexed by the next
// root-bits of input, with longer codes spilling into sub-tables.

// DefaultInflateLimit caps decompressed output when the caller passes
// a non-positive limit.
const DefaultInflateLimit = 64 << 20

var (
	ErrCorruptData = errors.New("rpng: corrupt deflate stream")
	ErrOutputLimit = errors.New("rpng: decompressed output exceeds limit")
	ErrChecksum    = errors.New("rpng: checksum mismatch")
)

const (
	preTableBits = 7
	litTableBits = 10
	offTableBits = 8

	preTableSize = 128
	litTableSize = 1334
	offTableSize = 402
)

var (
	infLenBase = [31]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27,
		31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258, 0, 0}
	infLenBits = [31]int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0, 0, 0}
	infDistBase = [32]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97,
		129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
		8193, 12289, 16385, 24577, 0, 0}
	infDistBits = [32]int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 0, 0}
)

// bitReader keeps up to 56 buffered bits in a 64-bit accumulator,
// least significant bit first. Reads past the end of input yield zero
// bits; every such path still terminates through a decode error or
// the output limit.
type bitReader struct {
	in  []byte
	pos int
	buf uint64
	cnt int
}

func (r *bitReader) refill() {
	for r.cnt <= 56 && r.pos < len(r.in) {
		r.buf |= uint64(r.in[r.pos]) << uint(r.cnt)
		r.pos++
		r.cnt += 8
	}
}

func (r *bitReader) peek(n int) int {
	return int(r.buf & (1<<uint(n) - 1))
}

func (r *bitReader) eat(n int) {
	r.buf >>= uint(n)
	r.cnt -= n
	if r.cnt < 0 {
		r.cnt = 0
	}
}

func (r *bitReader) get(n int) int {
	v := r.peek(n)
	r.eat(n)
	return v
}

func (r *bitReader) getRefill(n int) int {
	r.refill()
	return r.get(n)
}

// realign drops to the next byte boundary and returns unconsumed
// buffered bytes to the input.
func (r *bitReader) realign() {
	r.eat(r.cnt & 7)
	r.pos -= r.cnt / 8
	r.buf, r.cnt = 0, 0
}

// decode reads one symbol through a two-level table. Root entries are
// sym<<16|len; entries with bit 4 set point at a sub-table instead,
// carrying its start in the high half and its index width in the low
// nibble.
func (r *bitReader) decode(tbl []uint32, rootBits int) int {
	idx := r.peek(rootBits)
	key := tbl[idx]
	if key&0x10 != 0 {
		n := int(key & 0x0f)
		r.eat(rootBits)
		idx = r.peek(n)
		key = tbl[int(key>>16&0xffff)+idx]
	}
	r.eat(int(key & 0x0f))
	return int(key >> 16 & 0x0fff)
}

type tableGen struct {
	len    int
	cnt    int
	word   int
	sorted []int16
}

// fillRoot fills root table entries for all codes no longer than
// rootBits, doubling the filled prefix for each unused length. Returns
// true when the whole code fits in the root table.
func (g *tableGen) fillRoot(tbl []uint32, rootBits int, cnt []int) bool {
	for {
		g.cnt = cnt[g.len]
		if g.cnt != 0 {
			break
		}
		g.len++
	}
	tblEnd := 1 << g.len
	for g.len <= rootBits {
		for {
			tbl[g.word] = uint32(g.sorted[0])<<16 | uint32(g.len)
			g.sorted = g.sorted[1:]
			if g.word == tblEnd-1 {
				for ; g.len < rootBits; g.len++ {
					copy(tbl[tblEnd:2*tblEnd], tbl[:tblEnd])
					tblEnd <<= 1
				}
				return true
			}
			bit := 1 << uint(bits.Len32(uint32(g.word^(tblEnd-1)))-1)
			g.word = g.word&(bit-1) | bit
			g.cnt--
			if g.cnt == 0 {
				break
			}
		}
		for {
			g.len++
			if g.len <= rootBits {
				copy(tbl[tblEnd:2*tblEnd], tbl[:tblEnd])
				tblEnd <<= 1
			}
			g.cnt = cnt[g.len]
			if g.cnt != 0 {
				break
			}
		}
	}
	return false
}

// fillSub places the remaining codes, longer than rootBits, into
// sub-tables appended after the root table.
func (g *tableGen) fillSub(tbl []uint32, rootBits int, cnt []int) {
	subBits, subStart, subPrefix := 0, 0, -1
	tblEnd := 1 << rootBits
	for {
		if g.word&(1<<rootBits-1) != subPrefix {
			subPrefix = g.word & (1<<rootBits - 1)
			subStart = tblEnd
			subBits = g.len - rootBits
			used := g.cnt
			for used < 1<<subBits {
				subBits++
				used = used<<1 + cnt[rootBits+subBits]
			}
			tblEnd = subStart + 1<<subBits
			tbl[subPrefix] = uint32(subStart)<<16 | 0x10 | uint32(subBits&0xf)
		}
		entry := uint32(g.sorted[0])<<16 | uint32((g.len-rootBits)&0xf)
		g.sorted = g.sorted[1:]
		i := subStart + g.word>>rootBits
		stride := 1 << uint(g.len-rootBits)
		for {
			tbl[i] = entry
			i += stride
			if i >= tblEnd {
				break
			}
		}
		if g.word == 1<<g.len-1 {
			return
		}
		bit := 1 << uint(bits.Len32(uint32(g.word^(1<<g.len-1)))-1)
		g.word = g.word&(bit-1) | bit
		g.cnt--
		for g.cnt == 0 {
			g.len++
			g.cnt = cnt[g.len]
		}
	}
}

// buildDecodeTable builds the two-level decode table for the given
// code lengths. Two incomplete codes are accepted: no codes at all
// (a table that is never consulted) and a lone one-bit code, which
// zlib-family encoders transmit for blocks using a single distinct
// distance. Every other incomplete code, and any oversubscribed one,
// is rejected.
func buildDecodeTable(tbl []uint32, lens []byte, rootBits, maxLen int) error {
	var cnt, off [16]int
	var sorted [flateSymMax]int16
	for _, l := range lens {
		cnt[l]++
	}
	off[1] = cnt[0]
	used := 0
	for i := 1; i < maxLen; i++ {
		off[i+1] = off[i] + cnt[i]
		used = used<<1 + cnt[i]
	}
	used = used<<1 + cnt[maxLen]
	for i, l := range lens {
		sorted[off[l]] = int16(i)
		off[l]++
	}

	if used < 1<<maxLen {
		nonzero := len(lens) - cnt[0]
		if nonzero == 0 || (nonzero == 1 && cnt[1] == 1) {
			sym := uint32(0)
			if nonzero == 1 {
				sym = uint32(sorted[cnt[0]])
			}
			for i := 0; i < 1<<rootBits; i++ {
				tbl[i] = sym<<16 | 1
			}
			return nil
		}
		return ErrCorruptData
	}
	if used > 1<<maxLen {
		return ErrCorruptData
	}
	g := tableGen{len: 1, sorted: sorted[cnt[0]:]}
	if !g.fillRoot(tbl, rootBits, cnt[:]) {
		g.fillSub(tbl, rootBits, cnt[:])
	}
	return nil
}

type inflator struct {
	r     bitReader
	out   []byte
	limit int
	lits  [litTableSize]uint32
	dsts  [offTableSize]uint32
}

func (f *inflator) literal(b byte) error {
	if len(f.out) >= f.limit {
		return ErrOutputLimit
	}
	f.out = append(f.out, b)
	return nil
}

func (f *inflator) copyMatch(offs, length int) error {
	if offs <= 0 || offs > len(f.out) {
		return ErrCorruptData
	}
	if len(f.out)+length > f.limit {
		return ErrOutputLimit
	}
	src := len(f.out) - offs
	switch {
	case offs >= length:
		f.out = append(f.out, f.out[src:src+length]...)
	case offs == 1:
		b := f.out[src]
		for j := 0; j < length; j++ {
			f.out = append(f.out, b)
		}
	default:
		for j := 0; j < length; j++ {
			f.out = append(f.out, f.out[src+j])
		}
	}
	return nil
}

func (f *inflator) stored(last bool) (done bool, err error) {
	r := &f.r
	r.realign()
	if r.pos+4 > len(r.in) {
		return false, ErrCorruptData
	}
	length := int(r.in[r.pos]) | int(r.in[r.pos+1])<<8
	nlen := int(r.in[r.pos+2]) | int(r.in[r.pos+3])<<8
	r.pos += 4
	if uint16(length) != ^uint16(nlen) {
		return false, ErrCorruptData
	}
	if length > len(r.in)-r.pos {
		return false, ErrCorruptData
	}
	if len(f.out)+length > f.limit {
		return false, ErrOutputLimit
	}
	f.out = append(f.out, r.in[r.pos:r.pos+length]...)
	r.pos += length
	return last, nil
}

func (f *inflator) dynamicTables() error {
	r := &f.r
	var nlens [19]byte
	var hlens [preTableSize]uint32
	var lens [flateSymMax + flateOffMax]byte

	r.refill()
	nlit := 257 + r.get(5)
	ndist := 1 + r.get(5)
	nlen := 4 + r.get(4)
	for n := 0; n < nlen; n++ {
		nlens[codeOrder[n]] = byte(r.getRefill(3))
	}
	if err := buildDecodeTable(hlens[:], nlens[:], preTableBits, preTableBits); err != nil {
		return err
	}

	for n := 0; n < nlit+ndist; {
		r.refill()
		sym := r.decode(hlens[:], preTableBits)
		switch sym {
		case 16:
			if n == 0 {
				return ErrCorruptData
			}
			rep := 3 + r.getRefill(2)
			if n+rep > nlit+ndist {
				return ErrCorruptData
			}
			for ; rep > 0; rep-- {
				lens[n] = lens[n-1]
				n++
			}
		case 17:
			rep := 3 + r.getRefill(3)
			if n+rep > nlit+ndist {
				return ErrCorruptData
			}
			for ; rep > 0; rep-- {
				lens[n] = 0
				n++
			}
		case 18:
			rep := 11 + r.getRefill(7)
			if n+rep > nlit+ndist {
				return ErrCorruptData
			}
			for ; rep > 0; rep-- {
				lens[n] = 0
				n++
			}
		default:
			lens[n] = byte(sym)
			n++
		}
	}
	if err := buildDecodeTable(f.lits[:], lens[:nlit], litTableBits, flateMaxCodeLen); err != nil {
		return err
	}
	return buildDecodeTable(f.dsts[:], lens[nlit:nlit+ndist], offTableBits, flateMaxCodeLen)
}

func (f *inflator) fixedTables() error {
	var lens [flateSymMax + flateOffMax]byte
	for n := 0; n <= 143; n++ {
		lens[n] = 8
	}
	for n := 144; n <= 255; n++ {
		lens[n] = 9
	}
	for n := 256; n <= 279; n++ {
		lens[n] = 7
	}
	for n := 280; n <= 287; n++ {
		lens[n] = 8
	}
	for n := 0; n < flateOffMax; n++ {
		lens[flateSymMax+n] = 5
	}
	if err := buildDecodeTable(f.lits[:], lens[:flateSymMax], litTableBits, flateMaxCodeLen); err != nil {
		return err
	}
	return buildDecodeTable(f.dsts[:], lens[flateSymMax:], offTableBits, flateMaxCodeLen)
}

// block decodes one compressed block body. Literals are decoded in
// pairs since a refill holds enough bits for two codes.
func (f *inflator) block(last bool) (done bool, err error) {
	r := &f.r
	for {
		r.refill()
		sym := r.decode(f.lits[:], litTableBits)
		if sym < 256 {
			if err := f.literal(byte(sym)); err != nil {
				return false, err
			}
			sym = r.decode(f.lits[:], litTableBits)
			if sym < 256 {
				if err := f.literal(byte(sym)); err != nil {
					return false, err
				}
				continue
			}
		}
		if sym == flateEOB {
			return last, nil
		}
		if sym >= 286 {
			// length codes 286 and 287 must not appear
			return false, ErrCorruptData
		}
		sym -= 257
		length := r.get(infLenBits[sym]) + infLenBase[sym]
		// two literal codes plus a length code can drain most of the
		// accumulator; top it up before the distance code and its
		// extra bits
		r.refill()
		dsym := r.decode(f.dsts[:], offTableBits)
		offs := r.get(infDistBits[dsym]) + infDistBase[dsym]
		if err := f.copyMatch(offs, length); err != nil {
			return false, err
		}
	}
}

func (f *inflator) run() ([]byte, error) {
	for {
		f.r.refill()
		last := f.r.get(1) == 1
		var done bool
		var err error
		switch f.r.get(2) {
		case 0x00:
			done, err = f.stored(last)
		case 0x01:
			if err = f.fixedTables(); err == nil {
				done, err = f.block(last)
			}
		case 0x02:
			if err = f.dynamicTables(); err == nil {
				done, err = f.block(last)
			}
		default:
			err = ErrCorruptData
		}
		if err != nil {
			return nil, err
		}
		if done {
			return f.out, nil
		}
	}
}

// Inflate decompresses a raw DEFLATE stream. A non-positive limit
// means DefaultInflateLimit.
func Inflate(data []byte, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultInflateLimit
	}
	f := &inflator{r: bitReader{in: data}, limit: limit}
	return f.run()
}

// InflateZlib decompresses a zlib stream, verifying the trailing
// Adler-32 against the decompressed output.
func InflateZlib(data []byte, limit int) ([]byte, error) {
	if len(data) < 6 {
		return nil, ErrCorruptData
	}
	out, err := Inflate(data[2:len(data)-4], limit)
	if err != nil {
		return nil, err
	}
	trailer := data[len(data)-4:]
	want := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 |
		uint32(trailer[2])<<8 | uint32(trailer[3])
	if Adler32(adlerInit, out) != want {
		return nil, ErrChecksum
	}
	return out, nil
}
