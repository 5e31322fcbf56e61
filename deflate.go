package rpng

import (
	"encoding/binary"
	"math/bits"
	"slices"
)

// DEFLATE (RFC 1951) compressor. Matches are found through a hash
// chain over a 32 KiB sliding window, buffered as (offset, length)
// sequences per 256 KiB block, then entropy coded with per-block
// dynamic Huffman tables unless a stored block is cheaper.

const (
	// CompressionLevelMin trades ratio for speed, CompressionLevelMax
	// the other way around. Levels outside the range are clamped.
	CompressionLevelMin     = 0
	CompressionLevelMax     = 8
	CompressionLevelDefault = 8
)

const (
	flateMaxOff    = 1 << 15
	flateWinMask   = flateMaxOff - 1
	flateMinMatch  = 4
	flateMaxMatch  = 258
	flateBlockMax  = 256 * 1024
	flateRawBlock  = 65535
	flateSymMax    = 288
	flateOffMax    = 32
	flatePreMax    = 19
	flateEOB       = 256
	flateSymBits   = 10
	flateSymMask   = 1<<flateSymBits - 1
	flateMaxCodeLen = 15

	// Code length ceilings per alphabet. Lit/len codes are kept a bit
	// shorter than the format's 15-bit maximum to speed up decoding.
	litLenCodeLimit = 14
	offCodeLimit    = 15
	preCodeLimit    = 7
)

var (
	lenMin = [29]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
	lenExtra = [29]uint32{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}
	distMin = [30]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129,
		193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193,
		12289, 16385, 24577}

	// Largest distance per extra-bit count that still lands in the even
	// slot of the pair sharing that count.
	distSlotMax = [14]int{0, 6, 12, 24, 48, 96, 192, 384, 768, 1536, 3072,
		6144, 12288, 24576}

	// Code-length transmission order for the precode alphabet.
	codeOrder = [flatePreMax]byte{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4,
		12, 3, 13, 2, 14, 1, 15}
)

// lenSlot maps a match length to its length-code slot.
var lenSlot = func() (tbl [flateMaxMatch + 1]byte) {
	for l := 3; l <= flateMaxMatch; l++ {
		s := len(lenMin) - 1
		for lenMin[s] > l {
			s--
		}
		tbl[l] = byte(s)
	}
	return
}()

func ilog2(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len32(uint32(n)) - 1
}

func npow2(n int) int {
	return 1 << (ilog2(n-1) + 1)
}

// DeflateBound returns a compressed-size upper bound for n input
// bytes, suitable for pre-sizing output buffers.
func DeflateBound(n int) int {
	a := 128 + n + n/10
	b := 128 + n + 5*(n/31744+1)
	if a > b {
		return a
	}
	return b
}

type flateSequence struct {
	off int // negative offsets mark a back-reference of -off
	len int
}

type deflator struct {
	out  []byte
	bits uint32
	cnt  uint32

	hashBits uint
	tbl      []int32
	prv      []int32

	seq     []flateSequence
	freqLit [flateSymMax]uint32
	freqOff [flateOffMax]uint32
	codeLit [flateSymMax]uint32
	codeOff [flateOffMax]uint32
	lenLit  [flateSymMax]byte
	lenOff  [flateOffMax]byte
}

func newDeflator(level, sizeHint int) *deflator {
	hashBits := uint(15)
	if level >= 6 {
		hashBits = 19
	}
	return &deflator{
		out:      make([]byte, 0, DeflateBound(sizeHint)),
		hashBits: hashBits,
		tbl:      make([]int32, 1<<hashBits),
		prv:      make([]int32, flateMaxOff),
	}
}

func (d *deflator) hash(p []byte) uint32 {
	return (binary.LittleEndian.Uint32(p) * 0x9E377989) >> (32 - d.hashBits)
}

func (d *deflator) put(code, n uint32) {
	d.bits |= code << d.cnt
	d.cnt += n
	for d.cnt >= 8 {
		d.out = append(d.out, byte(d.bits))
		d.bits >>= 8
		d.cnt -= 8
	}
}

func (d *deflator) put16(x uint16) {
	d.out = append(d.out, byte(x), byte(x>>8))
}

// huffSortSyms counting-sorts the used symbols by frequency into syms
// as freq<<flateSymBits|sym keys, zeroing the code length of unused
// symbols, and returns how many symbols are used. The top frequency
// bucket is catch-all, so it gets an explicit sort.
func huffSortSyms(freqs []uint32, lens []byte, syms []uint32) int {
	cntNum := uint32(len(freqs)+3) &^ 3
	cnts := make([]uint32, cntNum)
	for _, f := range freqs {
		if f < cntNum-1 {
			cnts[f]++
		} else {
			cnts[cntNum-1]++
		}
	}
	used := uint32(0)
	for i := uint32(1); i < cntNum; i++ {
		c := cnts[i]
		cnts[i] = used
		used += c
	}
	for sym, f := range freqs {
		if f == 0 {
			lens[sym] = 0
			continue
		}
		idx := f
		if idx > cntNum-1 {
			idx = cntNum - 1
		}
		syms[cnts[idx]] = uint32(sym) | f<<flateSymBits
		cnts[idx]++
	}
	slices.Sort(syms[cnts[cntNum-2]:cnts[cntNum-1]])
	return int(used)
}

// huffBuildTree folds the sorted leaves into an in-place Huffman tree:
// entry n keeps its symbol in the low bits and gains its parent index
// in the high bits.
func huffBuildTree(a []uint32, n int) {
	i, b, e := 0, 0, 0
	for {
		var m1, m2 int
		if i != n && (b == e || a[i]>>flateSymBits <= a[b]>>flateSymBits) {
			m1, i = i, i+1
		} else {
			m1, b = b, b+1
		}
		if i != n && (b == e || a[i]>>flateSymBits <= a[b]>>flateSymBits) {
			m2, i = i, i+1
		} else {
			m2, b = b, b+1
		}
		freq := (a[m1] &^ flateSymMask) + (a[m2] &^ flateSymMask)
		a[m1] = a[m1]&flateSymMask | uint32(e)<<flateSymBits
		a[m2] = a[m2]&flateSymMask | uint32(e)<<flateSymBits
		a[e] = a[e]&flateSymMask | freq
		e++
		if n-e <= 1 {
			break
		}
	}
}

// huffLenCounts walks the tree from the root computing how many codes
// of each length exist, redistributing any branch deeper than maxLen.
func huffLenCounts(a []uint32, root int, lenCnt []uint32, maxLen int) {
	for i := range lenCnt {
		lenCnt[i] = 0
	}
	lenCnt[1] = 2
	a[root] &= flateSymMask
	for n := root - 1; n >= 0; n-- {
		p := a[n] >> flateSymBits
		depth := a[p]>>flateSymBits + 1
		a[n] = a[n]&flateSymMask | depth<<flateSymBits
		l := int(depth)
		if l >= maxLen {
			l = maxLen
			for {
				l--
				if lenCnt[l] != 0 {
					break
				}
			}
		}
		lenCnt[l]--
		lenCnt[l+1] += 2
	}
}

func huffGenCodes(a []uint32, lens []byte, lenCnt []uint32, maxLen int) {
	i := 0
	for l := maxLen; l >= 1; l-- {
		for c := lenCnt[l]; c > 0; c-- {
			lens[a[i]&flateSymMask] = byte(l)
			i++
		}
	}
	var nxt [flateMaxCodeLen + 1]uint32
	for l := 2; l <= maxLen; l++ {
		nxt[l] = (nxt[l-1] + lenCnt[l-1]) << 1
	}
	for sym := range a {
		a[sym] = nxt[lens[sym]]
		nxt[lens[sym]]++
	}
}

// buildHuffman assigns canonical, bit-reversed codes to every used
// symbol, keeping all code lengths at or below maxLen. codes doubles
// as tree scratch space.
func buildHuffman(lens []byte, codes, freqs []uint32, maxLen int) {
	used := huffSortSyms(freqs, lens, codes)
	if used == 0 {
		return
	}
	if used == 1 {
		s := codes[0] & flateSymMask
		i := s
		if i == 0 {
			i = 1
		}
		codes[0], lens[0] = 0, 1
		codes[i], lens[i] = 1, 1
		return
	}
	huffBuildTree(codes, used)
	var lenCnt [flateMaxCodeLen + 1]uint32
	huffLenCounts(codes, used-2, lenCnt[:], maxLen)
	huffGenCodes(codes, lens, lenCnt[:], maxLen)
	for sym := range codes {
		codes[sym] = uint32(bits.Reverse16(uint16(codes[sym]))) >> (16 - lens[sym])
	}
}

// buildPrecode run-length encodes the lit/len and distance code length
// arrays into precode items (symbol in the low 5 bits, extra bits
// above), counting precode symbol frequencies as it goes. Returns the
// items plus the transmitted lit and off alphabet sizes.
func buildPrecode(freqs []uint32, litLen, offLen []byte) (items []uint32, nlit, noff int) {
	nlit = len(litLen)
	for nlit > 257 && litLen[nlit-1] == 0 {
		nlit--
	}
	noff = len(offLen)
	for noff > 1 && offLen[noff-1] == 0 {
		noff--
	}
	lens := make([]byte, 0, nlit+noff)
	lens = append(lens, litLen[:nlit]...)
	lens = append(lens, offLen[:noff]...)

	items = make([]uint32, 0, len(lens))
	runStart := 0
	for runStart != len(lens) {
		l := lens[runStart]
		runEnd := runStart + 1
		for runEnd != len(lens) && l == lens[runEnd] {
			runEnd++
		}
		if l == 0 {
			for runEnd-runStart >= 11 {
				n := uint32(runEnd-runStart) - 11
				if n > 0x7f {
					n = 0x7f
				}
				freqs[18]++
				items = append(items, 18|n<<5)
				runStart += 11 + int(n)
			}
			if runEnd-runStart >= 3 {
				n := uint32(runEnd-runStart) - 3
				if n > 0x7 {
					n = 0x7
				}
				freqs[17]++
				items = append(items, 17|n<<5)
				runStart += 3 + int(n)
			}
		} else if runEnd-runStart >= 4 {
			freqs[l]++
			items = append(items, uint32(l))
			runStart++
			for {
				n := uint32(runEnd-runStart) - 3
				if n > 0x3 {
					n = 0x3
				}
				freqs[16]++
				items = append(items, 16|n<<5)
				runStart += 3 + int(n)
				if runEnd-runStart < 3 {
					break
				}
			}
		}
		for runStart != runEnd {
			freqs[l]++
			items = append(items, uint32(l))
			runStart++
		}
	}
	return items, nlit, noff
}

// matchSlots maps a (distance, length) pair onto its length slot,
// lit/len code, distance code and distance extra-bit count.
func matchSlots(dist, length int) (ls, lc, dc, dx int) {
	ls = int(lenSlot[length])
	lc = 257 + ls
	dx = ilog2(npow2(dist) >> 2)
	if dx != 0 {
		dc = (dx + 1) << 1
		if dist > distSlotMax[dx] {
			dc++
		}
	} else {
		dc = dist - 1
	}
	return
}

var (
	xPreBits = [flatePreMax]uint32{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 2, 3, 7}
	xLenBits = [29]uint32{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}
	xOffBits = [30]uint32{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}
)

// dynCheaper estimates the bit cost of the pending block as a dynamic
// Huffman block versus stored blocks.
func (d *deflator) dynCheaper(blkLen, itemCnt int, preFreq []uint32, preLen []byte) bool {
	dynCost := 5 + 5 + 4 + 3*itemCnt
	for sym := 0; sym < flatePreMax; sym++ {
		dynCost += int(preFreq[sym]) * int(xPreBits[sym]+uint32(preLen[sym]))
	}
	for sym := 0; sym < 256; sym++ {
		dynCost += int(d.freqLit[sym]) * int(d.lenLit[sym])
	}
	dynCost += int(d.lenLit[flateEOB])
	for sym := 257; sym < 286; sym++ {
		dynCost += int(d.freqLit[sym]) * int(xLenBits[sym-257]+uint32(d.lenLit[sym]))
	}
	for sym := 0; sym < 30; sym++ {
		dynCost += int(d.freqOff[sym]) * int(xOffBits[sym]+uint32(d.lenOff[sym]))
	}
	storedCost := 8 * (5*((blkLen+flateRawBlock-1)/flateRawBlock) + blkLen + 1 + 2)
	return dynCost < storedCost
}

func (d *deflator) emitMatch(dist, length int) {
	ls, lc, dc, dx := matchSlots(dist, length)
	d.put(d.codeLit[lc], uint32(d.lenLit[lc]))
	d.put(uint32(length-lenMin[ls]), lenExtra[ls])
	d.put(d.codeOff[dc], uint32(d.lenOff[dc]))
	d.put(uint32(dist-distMin[dc]), uint32(dx))
}

func (d *deflator) countMatch(dist, length int) {
	_, lc, dc, _ := matchSlots(dist, length)
	d.freqLit[lc]++
	d.freqOff[dc]++
}

func (d *deflator) flush(last bool, in []byte, blkBegin, blkEnd int) {
	blkLen := blkEnd - blkBegin

	d.freqLit[flateEOB]++
	buildHuffman(d.lenLit[:], d.codeLit[:], d.freqLit[:], litLenCodeLimit)
	buildHuffman(d.lenOff[:], d.codeOff[:], d.freqOff[:], offCodeLimit)

	var preFreq [flatePreMax]uint32
	var preLen [flatePreMax]byte
	var preCode [flatePreMax]uint32
	items, nlit, noff := buildPrecode(preFreq[:], d.lenLit[:], d.lenOff[:])
	buildHuffman(preLen[:], preCode[:], preFreq[:], preCodeLimit)
	itemCnt := flatePreMax
	for itemCnt > 4 && preLen[codeOrder[itemCnt-1]] == 0 {
		itemCnt--
	}

	if !d.dynCheaper(blkLen, itemCnt, preFreq[:], preLen[:]) {
		// Stored blocks. An empty stream still needs one final block.
		n := (blkLen + flateRawBlock - 1) / flateRawBlock
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			fin := last && i+1 == n
			amount := blkLen
			if amount > flateRawBlock {
				amount = flateRawBlock
			}
			if fin {
				d.put(1, 1)
			} else {
				d.put(0, 1)
			}
			d.put(0x00, 2)
			if d.cnt > 0 {
				d.put(0x00, 8-d.cnt)
			}
			d.put16(uint16(amount))
			d.put16(^uint16(amount))
			d.out = append(d.out, in[blkBegin+i*flateRawBlock:][:amount]...)
			blkLen -= amount
		}
	} else {
		if last {
			d.put(1, 1)
		} else {
			d.put(0, 1)
		}
		d.put(0x02, 2)
		d.put(uint32(nlit-257), 5)
		d.put(uint32(noff-1), 5)
		d.put(uint32(itemCnt-4), 4)
		for i := 0; i < itemCnt; i++ {
			d.put(uint32(preLen[codeOrder[i]]), 3)
		}
		for _, it := range items {
			sym := it & 0x1f
			d.put(preCode[sym], uint32(preLen[sym]))
			switch {
			case sym < 16:
			case sym == 16:
				d.put(it>>5, 2)
			case sym == 17:
				d.put(it>>5, 3)
			default:
				d.put(it>>5, 7)
			}
		}
		for _, sq := range d.seq {
			if sq.off >= 0 {
				for j := 0; j < sq.len; j++ {
					c := in[sq.off+j]
					d.put(d.codeLit[c], uint32(d.lenLit[c]))
				}
			} else {
				d.emitMatch(-sq.off, sq.len)
			}
		}
		d.put(d.codeLit[flateEOB], uint32(d.lenLit[flateEOB]))
	}

	clear(d.freqLit[:])
	clear(d.freqOff[:])
	d.seq = d.seq[:0]
}

type flateMatch struct {
	off int
	len int
}

// findMatch walks the hash chain at position p looking for the longest
// match within the window, giving up after chainLen candidates.
func (d *deflator) findMatch(m *flateMatch, chainLen, maxMatch int, in []byte, p int) {
	i := int(d.tbl[d.hash(in[p:])])
	limit := p - flateMaxOff
	if limit < -1 {
		limit = -1
	}
	for i > limit {
		if in[i+m.len] == in[p+m.len] &&
			binary.LittleEndian.Uint32(in[i:]) == binary.LittleEndian.Uint32(in[p:]) {
			n := flateMinMatch
			for n < maxMatch && in[i+n] == in[p+n] {
				n++
			}
			if n > m.len {
				m.len, m.off = n, p-i
				if n == maxMatch {
					break
				}
			}
		}
		chainLen--
		if chainLen == 0 {
			break
		}
		i = int(d.prv[i&flateWinMask])
	}
}

// greedy/lazy preference thresholds per compression level
var nicePref = [9]int{8, 10, 14, 24, 30, 48, 65, 96, 130}

func (d *deflator) compress(in []byte, level int) []byte {
	maxChain := 1 << 13
	if level < 8 {
		maxChain = 1 << (level + 1)
	}
	for n := range d.tbl {
		d.tbl[n] = -1
	}

	i, litlen := 0, 0
	for {
		blkBegin := i
		blkEnd := i + flateBlockMax
		if blkEnd > len(in) {
			blkEnd = len(in)
		}
		for i < blkEnd {
			var m flateMatch
			left := blkEnd - i
			maxMatch := left
			if maxMatch > flateMaxMatch {
				maxMatch = flateMaxMatch
			}
			niceMatch := nicePref[level]
			if niceMatch > maxMatch {
				niceMatch = maxMatch
			}
			run, inc := 1, 1

			if maxMatch > flateMinMatch {
				d.findMatch(&m, maxChain, maxMatch, in, i)
			}
			if level >= 5 && m.len >= flateMinMatch && m.len+1 < niceMatch {
				// Lazy matching: prefer a longer match one byte ahead.
				var m2 flateMatch
				d.findMatch(&m2, maxChain, m.len+1, in, i+1)
				if m2.len > m.len {
					m.len = 0
				}
			}
			if m.len >= flateMinMatch {
				if litlen > 0 {
					d.seq = append(d.seq, flateSequence{i - litlen, litlen})
					litlen = 0
				}
				d.seq = append(d.seq, flateSequence{-m.off, m.len})
				d.countMatch(m.off, m.len)
				if level < 2 && m.len >= niceMatch {
					inc = m.len
				} else {
					run = m.len
				}
			} else {
				d.freqLit[in[i]]++
				litlen++
			}
			runInc := run * inc
			if len(in)-(i+runInc) > flateMinMatch {
				for ; run > 0; run-- {
					h := d.hash(in[i:])
					d.prv[i&flateWinMask] = d.tbl[h]
					d.tbl[h] = int32(i)
					i += inc
				}
			} else {
				i += runInc
			}
		}
		if litlen > 0 {
			d.seq = append(d.seq, flateSequence{i - litlen, litlen})
			litlen = 0
		}
		d.flush(blkEnd == len(in), in, blkBegin, blkEnd)
		if i >= len(in) {
			break
		}
	}
	if d.cnt > 0 {
		d.put(0x00, 8-d.cnt)
	}
	return d.out
}

func clampLevel(level int) int {
	if level < CompressionLevelMin {
		return CompressionLevelMin
	}
	if level > CompressionLevelMax {
		return CompressionLevelMax
	}
	return level
}

// Deflate compresses data into a raw DEFLATE stream.
func Deflate(data []byte, level int) []byte {
	level = clampLevel(level)
	d := newDeflator(level, len(data))
	return d.compress(data, level)
}

// DeflateZlib compresses data into a zlib stream: a two-byte header,
// the DEFLATE stream, and a big-endian Adler-32 of the input.
func DeflateZlib(data []byte, level int) []byte {
	level = clampLevel(level)
	d := newDeflator(level, len(data))
	d.put(0x78, 8) // deflate, 32k window
	d.put(0x01, 8)
	out := d.compress(data, level)
	a := Adler32(adlerInit, data)
	return append(out, byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}
