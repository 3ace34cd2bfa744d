package mseed

import (
	"encoding/binary"
	"fmt"
	"math"
)

func decodeSamples(data []byte, encoding, n int, order binary.ByteOrder) ([]float64, error) {
	out := make([]float64, 0, n)
	switch encoding {
	case EncodingInt16:
		if len(data) < 2*n {
			return nil, ErrShortRecord
		}
		for i := range n {
			out = append(out, float64(int16(order.Uint16(data[2*i:]))))
		}
	case EncodingInt32:
		if len(data) < 4*n {
			return nil, ErrShortRecord
		}
		for i := range n {
			out = append(out, float64(int32(order.Uint32(data[4*i:]))))
		}
	case EncodingFloat32:
		if len(data) < 4*n {
			return nil, ErrShortRecord
		}
		for i := range n {
			out = append(out, float64(math.Float32frombits(order.Uint32(data[4*i:]))))
		}
	case EncodingFloat64:
		if len(data) < 8*n {
			return nil, ErrShortRecord
		}
		for i := range n {
			out = append(out, math.Float64frombits(order.Uint64(data[8*i:])))
		}
	case EncodingSteim1:
		return decodeSteim(data, n, steim1Diffs)
	case EncodingSteim2:
		return decodeSteim(data, n, steim2Diffs)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEncoding, encoding)
	}
	return out, nil
}

const (
	steimFrameLen   = 64
	steimFrameWords = 16
)

// decodeSteim integrates Steim first differences. Steim payloads are always
// big-endian. Word 1 and 2 of the first frame hold the forward and reverse
// integration constants; the first difference is relative to the previous
// record and is discarded.
func decodeSteim(data []byte, n int, diffs func(nibble uint32, word uint32) ([]int32, error)) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	if len(data) < steimFrameLen {
		return nil, ErrShortRecord
	}

	var (
		d       = make([]int32, 0, n)
		x0, xn  int32
		nFrames = len(data) / steimFrameLen
	)
	for f := 0; f < nFrames && len(d) < n; f++ {
		frame := data[f*steimFrameLen : (f+1)*steimFrameLen]
		ctrl := binary.BigEndian.Uint32(frame[0:4])
		for w := 1; w < steimFrameWords; w++ {
			word := binary.BigEndian.Uint32(frame[4*w:])
			if f == 0 && w == 1 {
				x0 = int32(word)
				continue
			}
			if f == 0 && w == 2 {
				xn = int32(word)
				continue
			}
			nibble := (ctrl >> (30 - 2*uint(w))) & 0x3
			if nibble == 0 {
				continue
			}
			vals, err := diffs(nibble, word)
			if err != nil {
				return nil, err
			}
			d = append(d, vals...)
		}
	}
	if len(d) < n {
		return nil, fmt.Errorf("%w: steim frames hold %d of %d samples", ErrShortRecord, len(d), n)
	}

	out := make([]float64, n)
	x := x0
	out[0] = float64(x)
	for i := 1; i < n; i++ {
		x += d[i]
		out[i] = float64(x)
	}
	if x != xn {
		return nil, fmt.Errorf("mseed: steim integrity check failed: last sample %d, reverse constant %d", x, xn)
	}
	return out, nil
}

func steim1Diffs(nibble, word uint32) ([]int32, error) {
	switch nibble {
	case 1:
		return unpack(word, 8, 4), nil
	case 2:
		return unpack(word, 16, 2), nil
	case 3:
		return []int32{int32(word)}, nil
	}
	return nil, nil
}

func steim2Diffs(nibble, word uint32) ([]int32, error) {
	dnib := word >> 30
	switch nibble {
	case 1:
		return unpack(word, 8, 4), nil
	case 2:
		switch dnib {
		case 1:
			return unpack(word, 30, 1), nil
		case 2:
			return unpack(word, 15, 2), nil
		case 3:
			return unpack(word, 10, 3), nil
		}
	case 3:
		switch dnib {
		case 0:
			return unpack(word, 6, 5), nil
		case 1:
			return unpack(word, 5, 6), nil
		case 2:
			return unpack(word, 4, 7), nil
		}
	}
	return nil, fmt.Errorf("mseed: invalid steim2 nibble %d/%d", nibble, dnib)
}

// unpack splits the low count*bits bits of word into signed values, most
// significant first.
func unpack(word uint32, bits, count int) []int32 {
	out := make([]int32, count)
	mask := uint32(1)<<uint(bits) - 1
	for i := range count {
		shift := uint(bits * (count - 1 - i))
		v := (word >> shift) & mask
		// sign-extend
		out[i] = int32(v<<(32-uint(bits))) >> (32 - uint(bits))
	}
	return out
}
