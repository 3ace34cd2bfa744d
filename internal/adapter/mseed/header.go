// Package mseed reads and writes SEED 2.4 data-only (miniSEED) records.
//
// Reading supports INT16, INT32, FLOAT32, FLOAT64, Steim-1 and Steim-2
// payloads in either byte order. Writing always produces big-endian
// FLOAT64 records with blockettes 1000 and 1001, which keeps filtered
// samples lossless.
package mseed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	fixedHeaderLen = 48

	blocketteDataOnly = 1000
	blocketteDataExt  = 1001

	// activity flag bit 1: time correction already applied.
	flagTimeCorrected = 0x02
)

// Encoding formats from blockette 1000.
const (
	EncodingInt16   = 1
	EncodingInt32   = 3
	EncodingFloat32 = 4
	EncodingFloat64 = 5
	EncodingSteim1  = 10
	EncodingSteim2  = 11
)

var (
	ErrNoBlockette1000  = errors.New("mseed: record has no blockette 1000")
	ErrUnknownEncoding  = errors.New("mseed: unsupported data encoding")
	ErrShortRecord      = errors.New("mseed: record truncated")
	ErrInvalidHeader    = errors.New("mseed: invalid fixed header")
	ErrInvalidRecordLen = errors.New("mseed: invalid record length")
)

// header is the decoded fixed section plus the blockettes we care about.
type header struct {
	sequence    string
	quality     byte
	station     string
	location    string
	channel     string
	network     string
	start       time.Time
	numSamples  int
	sampleRate  float64
	activity    byte
	correction  int32 // 0.0001 s
	dataOffset  int
	encoding    int
	recordLen   int
	order       binary.ByteOrder
	microOffset int // blockette 1001, µs
}

func parseHeader(rec []byte) (header, error) {
	if len(rec) < fixedHeaderLen {
		return header{}, ErrShortRecord
	}

	order := detectOrder(rec)
	h := header{
		sequence: string(rec[0:6]),
		quality:  rec[6],
		station:  trimField(rec[8:13]),
		location: trimField(rec[13:15]),
		channel:  trimField(rec[15:18]),
		network:  trimField(rec[18:20]),
		order:    order,
	}
	switch h.quality {
	case 'D', 'R', 'Q', 'M':
	default:
		return header{}, fmt.Errorf("%w: quality indicator %q", ErrInvalidHeader, h.quality)
	}

	start, err := decodeBTime(rec[20:30], order)
	if err != nil {
		return header{}, err
	}
	h.numSamples = int(order.Uint16(rec[30:32]))
	h.sampleRate = decodeRate(int16(order.Uint16(rec[32:34])), int16(order.Uint16(rec[34:36])))
	h.activity = rec[36]
	numBlockettes := int(rec[39])
	h.correction = int32(order.Uint32(rec[40:44]))
	h.dataOffset = int(order.Uint16(rec[44:46]))
	next := int(order.Uint16(rec[46:48]))

	found1000 := false
	for i := 0; i < numBlockettes && next != 0; i++ {
		if next+4 > len(rec) {
			return header{}, ErrShortRecord
		}
		kind := order.Uint16(rec[next : next+2])
		following := int(order.Uint16(rec[next+2 : next+4]))
		switch kind {
		case blocketteDataOnly:
			if next+8 > len(rec) {
				return header{}, ErrShortRecord
			}
			h.encoding = int(rec[next+4])
			if rec[next+5] == 0 {
				h.order = binary.LittleEndian
			} else {
				h.order = binary.BigEndian
			}
			exp := int(rec[next+6])
			if exp < 7 || exp > 20 {
				return header{}, fmt.Errorf("%w: 2^%d", ErrInvalidRecordLen, exp)
			}
			h.recordLen = 1 << exp
			found1000 = true
		case blocketteDataExt:
			if next+8 > len(rec) {
				return header{}, ErrShortRecord
			}
			h.microOffset = int(int8(rec[next+5]))
		}
		next = following
	}
	if !found1000 {
		return header{}, ErrNoBlockette1000
	}

	h.start = start.Add(time.Duration(h.microOffset) * time.Microsecond)
	if h.activity&flagTimeCorrected == 0 && h.correction != 0 {
		h.start = h.start.Add(time.Duration(h.correction) * 100 * time.Microsecond)
	}
	return h, nil
}

// detectOrder guesses header byte order from the BTIME year, which must be
// plausible in exactly one order.
func detectOrder(rec []byte) binary.ByteOrder {
	year := binary.BigEndian.Uint16(rec[20:22])
	day := binary.BigEndian.Uint16(rec[22:24])
	if year >= 1900 && year <= 2500 && day >= 1 && day <= 366 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeBTime(b []byte, order binary.ByteOrder) (time.Time, error) {
	year := int(order.Uint16(b[0:2]))
	yday := int(order.Uint16(b[2:4]))
	hour, minute, sec := int(b[4]), int(b[5]), int(b[6])
	fract := int(order.Uint16(b[8:10]))
	if year < 1900 || year > 2500 || yday < 1 || yday > 366 || hour > 23 || minute > 59 || sec > 60 || fract > 9999 {
		return time.Time{}, fmt.Errorf("%w: start time %d,%d %02d:%02d:%02d.%04d", ErrInvalidHeader, year, yday, hour, minute, sec, fract)
	}
	return time.Date(year, time.January, 1, hour, minute, sec, fract*100000, time.UTC).AddDate(0, 0, yday-1), nil
}

func encodeBTime(b []byte, t time.Time) (microOffset int) {
	t = t.UTC()
	binary.BigEndian.PutUint16(b[0:2], uint16(t.Year()))
	binary.BigEndian.PutUint16(b[2:4], uint16(t.YearDay()))
	b[4] = byte(t.Hour())
	b[5] = byte(t.Minute())
	b[6] = byte(t.Second())
	b[7] = 0
	us := t.Nanosecond() / 1000
	binary.BigEndian.PutUint16(b[8:10], uint16(us/100))
	return us % 100
}

// decodeRate applies the SEED sample-rate factor/multiplier rules.
func decodeRate(factor, mult int16) float64 {
	f, m := float64(factor), float64(mult)
	switch {
	case factor == 0 || mult == 0:
		return 0
	case factor > 0 && mult > 0:
		return f * m
	case factor > 0 && mult < 0:
		return -f / m
	case factor < 0 && mult > 0:
		return -m / f
	default:
		return 1 / (f * m)
	}
}

// encodeRate picks a factor/multiplier pair that represents rate exactly
// when it is an integer or the reciprocal of one.
func encodeRate(rate float64) (factor, mult int16) {
	switch {
	case rate <= 0:
		return 0, 0
	case rate == math.Trunc(rate) && rate <= math.MaxInt16:
		return int16(rate), 1
	case 1/rate == math.Trunc(1/rate) && 1/rate <= math.MaxInt16:
		return -int16(1 / rate), 1
	}
	for _, div := range []float64{10, 100, 1000, 10000} {
		scaled := math.Round(rate * div)
		if scaled <= math.MaxInt16 && math.Abs(scaled/div-rate) < 1e-9 {
			return int16(scaled), -int16(div)
		}
	}
	return int16(math.Min(math.Round(rate), math.MaxInt16)), 1
}

func trimField(b []byte) string {
	return strings.TrimSpace(string(b))
}

func putField(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}
	copy(dst, s)
}
