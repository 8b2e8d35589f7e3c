package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/scalarboard/scalarboard/internal/series"
)

// codec compresses sealed sample blocks. Steps are delta-of-delta
// encoded (they usually advance by a constant stride, so the deltas of
// deltas are near zero and varint-encode to single bytes); wall times
// and values are stored as raw float bits. The packed buffer is then
// zstd-compressed.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("store: create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("store: create decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) encode(samples []series.Sample) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("store: encode empty block")
	}

	buf := new(bytes.Buffer)
	var scratch [binary.MaxVarintLen64]byte
	putVarint := func(v int64) {
		n := binary.PutVarint(scratch[:], v)
		buf.Write(scratch[:n])
	}
	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buf.Write(scratch[:n])
	}

	putUvarint(uint64(len(samples)))

	// Steps: first absolute, then delta-of-delta.
	putVarint(samples[0].Step)
	var prevDelta int64
	for i := 1; i < len(samples); i++ {
		delta := samples[i].Step - samples[i-1].Step
		putVarint(delta - prevDelta)
		prevDelta = delta
	}

	// Wall times and values: raw IEEE bits, little endian. Exact
	// round-trip; zstd still squeezes the shared exponent bytes well.
	var b [8]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(s.WallTime))
		buf.Write(b[:])
	}
	for _, s := range samples {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(s.Value))
		buf.Write(b[:])
	}

	return c.enc.EncodeAll(buf.Bytes(), nil), nil
}

func (c *codec) decode(block []byte) ([]series.Sample, error) {
	raw, err := c.dec.DecodeAll(block, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompress block: %w", err)
	}
	r := bytes.NewReader(raw)

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("store: block header: %w", err)
	}
	// Every sample costs at least one step varint byte plus 16 float
	// bytes, so a header claiming more than the payload can hold is
	// corrupt. Guarding here keeps a bad block from panicking below or
	// allocating an absurd slice.
	if count == 0 || count > uint64(len(raw))/17 {
		return nil, fmt.Errorf("store: block header: implausible sample count %d for %d bytes", count, len(raw))
	}
	samples := make([]series.Sample, count)

	first, err := binary.ReadVarint(r)
	if err != nil {
		return nil, fmt.Errorf("store: first step: %w", err)
	}
	samples[0].Step = first
	var prevDelta int64
	for i := 1; i < int(count); i++ {
		dd, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("store: step %d: %w", i, err)
		}
		prevDelta += dd
		samples[i].Step = samples[i-1].Step + prevDelta
	}

	var b [8]byte
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("store: wall time %d: %w", i, err)
		}
		samples[i].WallTime = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
	}
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("store: value %d: %w", i, err)
		}
		samples[i].Value = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
	}

	return samples, nil
}
