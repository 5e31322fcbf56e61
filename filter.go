package rpng

import (
	"errors"
	"fmt"
)

// Filter identifies a scanline predictor. Each raster row is stored as
// one tag byte followed by the predictor residuals for that row.
type Filter int

const (
	// FilterBest picks the predictor with the smallest sum of absolute
	// residuals per row, ties going to the lowest-numbered filter.
	FilterBest Filter = iota - 1

	FilterNone
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
)

var ErrUnknownFilter = errors.New("rpng: unknown filter type")

func (f Filter) String() string {
	switch f {
	case FilterBest:
		return "best"
	case FilterNone:
		return "none"
	case FilterSub:
		return "sub"
	case FilterUp:
		return "up"
	case FilterAverage:
		return "average"
	case FilterPaeth:
		return "paeth"
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

func paethPredictor(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := p-a, p-b, p-c
	if pa < 0 {
		pa = -pa
	}
	if pb < 0 {
		pb = -pb
	}
	if pc < 0 {
		pc = -pc
	}
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func filterResidual(f Filter, x, a, b, c int) byte {
	switch f {
	case FilterSub:
		return byte(x - a)
	case FilterUp:
		return byte(x - b)
	case FilterAverage:
		return byte(x - (a+b)>>1)
	case FilterPaeth:
		return byte(x - paethPredictor(a, b, c))
	}
	return byte(x)
}

// filterScanlines turns a raw raster into filtered scanline form, one
// tag byte plus residuals per row. pixelSize is the pixel width in
// bytes; neighbors outside the raster read as zero. A forced filter
// skips selection and tags every row with it.
func filterScanlines(raw []byte, height, stride, pixelSize int, forced Filter) []byte {
	out := make([]byte, 0, height*(stride+1))
	for y := 0; y < height; y++ {
		row := raw[y*stride:][:stride]
		var prior []byte
		if y > 0 {
			prior = raw[(y-1)*stride:][:stride]
		}

		best := forced
		if best == FilterBest {
			var sums [5]int
			for i := 0; i < stride; i++ {
				x, a, b, c := neighbors(row, prior, i, pixelSize)
				for f := FilterNone; f <= FilterPaeth; f++ {
					v := int(int8(filterResidual(f, x, a, b, c)))
					if v < 0 {
						v = -v
					}
					sums[f] += v
				}
			}
			best = FilterNone
			for f := FilterSub; f <= FilterPaeth; f++ {
				if sums[f] < sums[best] {
					best = f
				}
			}
		}

		out = append(out, byte(best))
		for i := 0; i < stride; i++ {
			x, a, b, c := neighbors(row, prior, i, pixelSize)
			out = append(out, filterResidual(best, x, a, b, c))
		}
	}
	return out
}

func neighbors(row, prior []byte, i, pixelSize int) (x, a, b, c int) {
	x = int(row[i])
	if i >= pixelSize {
		a = int(row[i-pixelSize])
	}
	if prior != nil {
		b = int(prior[i])
		if i >= pixelSize {
			c = int(prior[i-pixelSize])
		}
	}
	return
}

// unfilterScanlines reverses filterScanlines. Reconstruction reads the
// previously decoded rows, so rows must be processed top to bottom.
func unfilterScanlines(filtered []byte, height, stride, pixelSize int) ([]byte, error) {
	if len(filtered) != height*(stride+1) {
		return nil, fmt.Errorf("unfilterScanlines: have %d bytes, want %d", len(filtered), height*(stride+1))
	}
	out := make([]byte, height*stride)
	for y := 0; y < height; y++ {
		tag := Filter(filtered[y*(stride+1)])
		if tag < FilterNone || tag > FilterPaeth {
			return nil, fmt.Errorf("unfilterScanlines: row %d: %w %d", y, ErrUnknownFilter, tag)
		}
		row := filtered[y*(stride+1)+1:][:stride]
		cur := out[y*stride:][:stride]
		var prior []byte
		if y > 0 {
			prior = out[(y-1)*stride:][:stride]
		}
		for i := 0; i < stride; i++ {
			var a, b, c int
			if i >= pixelSize {
				a = int(cur[i-pixelSize])
			}
			if prior != nil {
				b = int(prior[i])
				if i >= pixelSize {
					c = int(prior[i-pixelSize])
				}
			}
			switch tag {
			case FilterNone:
				cur[i] = row[i]
			case FilterSub:
				cur[i] = row[i] + byte(a)
			case FilterUp:
				cur[i] = row[i] + byte(b)
			case FilterAverage:
				cur[i] = row[i] + byte((a+b)>>1)
			case FilterPaeth:
				cur[i] = row[i] + byte(paethPredictor(a, b, c))
			}
		}
	}
	return out, nil
}
