package mseed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// DefaultRecordLength is the record size used when writing.
const DefaultRecordLength = 4096

// dataOffset is fixed header + blockette 1000 + blockette 1001.
const dataOffset = fixedHeaderLen + 8 + 8

// ReadFile decodes every record in a miniSEED file. Each record becomes
// one trace fragment; joining fragments is left to the caller.
func ReadFile(path string) ([]domain.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mseed: read %s: %w", path, err)
	}
	traces, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("mseed: decode %s: %w", path, err)
	}
	return traces, nil
}

// Read decodes all records from r.
func Read(r io.Reader) ([]domain.Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses consecutive records. Records without samples (e.g. pure
// log or timing records) are dropped.
func Decode(data []byte) ([]domain.Trace, error) {
	var traces []domain.Trace
	for off := 0; off < len(data); {
		// Trailing zero padding after the last record is tolerated.
		if allZero(data[off:]) {
			break
		}
		h, err := parseHeader(data[off:])
		if err != nil {
			return nil, fmt.Errorf("record at offset %d: %w", off, err)
		}
		if off+h.recordLen > len(data) {
			return nil, fmt.Errorf("record at offset %d: %w", off, ErrShortRecord)
		}
		rec := data[off : off+h.recordLen]
		off += h.recordLen

		if h.numSamples == 0 || h.sampleRate == 0 {
			continue
		}
		if h.dataOffset < fixedHeaderLen || h.dataOffset >= len(rec) {
			return nil, fmt.Errorf("record %s: %w: data offset %d", h.sequence, ErrInvalidHeader, h.dataOffset)
		}
		samples, err := decodeSamples(rec[h.dataOffset:], h.encoding, h.numSamples, h.order)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", h.sequence, err)
		}
		traces = append(traces, domain.Trace{
			Network:    h.network,
			Station:    h.station,
			Location:   h.location,
			Channel:    h.channel,
			Start:      h.start,
			SampleRate: h.sampleRate,
			Samples:    samples,
		})
	}
	return traces, nil
}

// Encode writes a trace as big-endian FLOAT64 records of recordLen bytes
// (a power of two between 256 and 65536). Output is a pure function of
// the trace, so identical traces always encode to identical bytes.
func Encode(tr domain.Trace, recordLen int) ([]byte, error) {
	exp := 0
	for l := recordLen; l > 1; l >>= 1 {
		exp++
	}
	if recordLen < 256 || recordLen > 1<<16 || 1<<exp != recordLen {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRecordLen, recordLen)
	}
	if !tr.HasSamples() {
		return nil, fmt.Errorf("mseed: trace %s has no samples", tr.ID())
	}
	if tr.SampleRate <= 0 {
		return nil, fmt.Errorf("mseed: trace %s has sample rate %v", tr.ID(), tr.SampleRate)
	}
	if len(tr.Station) > 5 || len(tr.Network) > 2 || len(tr.Location) > 2 || len(tr.Channel) > 3 {
		return nil, fmt.Errorf("mseed: trace id %s does not fit SEED field widths", tr.ID())
	}

	perRecord := (recordLen - dataOffset) / 8
	factor, mult := encodeRate(tr.SampleRate)

	var buf bytes.Buffer
	seq := 1
	for first := 0; first < len(tr.Samples); first += perRecord {
		last := min(first+perRecord, len(tr.Samples))
		rec := make([]byte, recordLen)

		copy(rec[0:6], fmt.Sprintf("%06d", seq%1000000))
		rec[6] = 'D'
		rec[7] = ' '
		putField(rec[8:13], tr.Station)
		putField(rec[13:15], tr.Location)
		putField(rec[15:18], tr.Channel)
		putField(rec[18:20], tr.Network)
		micro := encodeBTime(rec[20:30], tr.SampleTime(first))
		binary.BigEndian.PutUint16(rec[30:32], uint16(last-first))
		binary.BigEndian.PutUint16(rec[32:34], uint16(factor))
		binary.BigEndian.PutUint16(rec[34:36], uint16(mult))
		rec[39] = 2 // blockettes
		binary.BigEndian.PutUint16(rec[44:46], dataOffset)
		binary.BigEndian.PutUint16(rec[46:48], fixedHeaderLen)

		b1000 := rec[fixedHeaderLen:]
		binary.BigEndian.PutUint16(b1000[0:2], blocketteDataOnly)
		binary.BigEndian.PutUint16(b1000[2:4], fixedHeaderLen+8)
		b1000[4] = EncodingFloat64
		b1000[5] = 1 // big-endian
		b1000[6] = byte(exp)

		b1001 := rec[fixedHeaderLen+8:]
		binary.BigEndian.PutUint16(b1001[0:2], blocketteDataExt)
		binary.BigEndian.PutUint16(b1001[2:4], 0)
		b1001[4] = 100 // timing quality
		b1001[5] = byte(int8(micro))

		for i, v := range tr.Samples[first:last] {
			binary.BigEndian.PutUint64(rec[dataOffset+8*i:], math.Float64bits(v))
		}
		buf.Write(rec)
		seq++
	}
	return buf.Bytes(), nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
