package store

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/scalarboard/scalarboard/internal/series"
)

func sample(step int64, value float64) series.Sample {
	return series.Sample{Step: step, WallTime: 1700000000 + float64(step)*0.5, Value: value}
}

func mustNew(t *testing.T, blockSize, maxPoints int) *Store {
	t.Helper()
	st, err := New(blockSize, maxPoints)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st
}

func TestAppendAndSeries(t *testing.T) {
	st := mustNew(t, 0, 0)

	for i := int64(0); i < 10; i++ {
		if err := st.Append("run-a", "loss", sample(i, float64(i)*1.5)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, ok := st.Series("run-a", "loss")
	if !ok {
		t.Fatal("Series: not found")
	}
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	for i, s := range got {
		if s.Step != int64(i) || s.Value != float64(i)*1.5 {
			t.Errorf("sample %d = %+v", i, s)
		}
	}
}

func TestSeries_Missing(t *testing.T) {
	st := mustNew(t, 0, 0)
	if _, ok := st.Series("nope", "loss"); ok {
		t.Error("Series on empty store returned ok")
	}
}

func TestAppend_DropsOutOfOrderSteps(t *testing.T) {
	st := mustNew(t, 0, 0)

	st.Append("r", "loss", sample(5, 1))
	st.Append("r", "loss", sample(3, 2)) // replayed step — dropped
	st.Append("r", "loss", sample(5, 3)) // duplicate — dropped
	st.Append("r", "loss", sample(6, 4))

	got, _ := st.Series("r", "loss")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Step != 5 || got[1].Step != 6 {
		t.Errorf("steps = %d, %d, want 5, 6", got[0].Step, got[1].Step)
	}
	if got[0].Value != 1 {
		t.Errorf("first write should win: value = %v", got[0].Value)
	}
}

func TestSealedBlocksRoundTrip(t *testing.T) {
	// Block size 4 forces multiple seals; the reassembled series must be
	// bit-identical to what went in, across block boundaries.
	st := mustNew(t, 4, 0)

	values := []float64{3.14159, -2.5, 0, 1e-9, math.MaxFloat64, 42, 7, 8, 9, 10}
	for i, v := range values {
		if err := st.Append("r", "loss", sample(int64(i*7), v)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, ok := st.Series("r", "loss")
	if !ok || len(got) != len(values) {
		t.Fatalf("len = %d, want %d", len(got), len(values))
	}
	for i, v := range values {
		if got[i].Value != v {
			t.Errorf("value %d = %v, want %v", i, got[i].Value, v)
		}
		if got[i].Step != int64(i*7) {
			t.Errorf("step %d = %d, want %d", i, got[i].Step, i*7)
		}
		if got[i].WallTime != 1700000000+float64(i*7)*0.5 {
			t.Errorf("wall time %d = %v", i, got[i].WallTime)
		}
	}
}

func TestRetention_EvictsOldestBlock(t *testing.T) {
	// blockSize 5, cap 12: appending 20 samples must evict whole blocks
	// from the front until the total fits.
	st := mustNew(t, 5, 12)

	for i := int64(0); i < 20; i++ {
		st.Append("r", "loss", sample(i, float64(i)))
	}

	got, _ := st.Series("r", "loss")
	if len(got) > 12 {
		t.Fatalf("retained %d samples, cap is 12", len(got))
	}
	// Whatever survived must be the newest contiguous suffix.
	last := got[len(got)-1]
	if last.Step != 19 {
		t.Errorf("newest step = %d, want 19", last.Step)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Step != got[i-1].Step+1 {
			t.Errorf("gap between %d and %d", got[i-1].Step, got[i].Step)
		}
	}
}

func TestSeriesReturnsCopy(t *testing.T) {
	st := mustNew(t, 0, 0)
	st.Append("r", "loss", sample(0, 1))

	got, _ := st.Series("r", "loss")
	got[0].Value = 999

	again, _ := st.Series("r", "loss")
	if again[0].Value != 1 {
		t.Error("Series returned store-owned memory")
	}
}

func TestRunsTagsAndDataset(t *testing.T) {
	st := mustNew(t, 0, 0)
	st.Append("b-run", "loss", sample(0, 1))
	st.Append("a-run", "loss", sample(0, 2))
	st.Append("a-run", "accuracy", sample(0, 3))

	runs := st.Runs()
	if len(runs) != 2 || runs[0] != "a-run" || runs[1] != "b-run" {
		t.Errorf("runs = %v", runs)
	}
	tags := st.Tags()
	if len(tags) != 2 || tags[0] != "accuracy" || tags[1] != "loss" {
		t.Errorf("tags = %v", tags)
	}

	names, datasets := st.Dataset("loss")
	if len(names) != 2 || names[0] != "a-run" {
		t.Errorf("dataset runs = %v", names)
	}
	if len(datasets) != 2 || datasets[0][0].Value != 2 {
		t.Errorf("dataset series = %+v", datasets)
	}

	// accuracy exists only for a-run.
	names, datasets = st.Dataset("accuracy")
	if len(names) != 1 || names[0] != "a-run" || len(datasets) != 1 {
		t.Errorf("accuracy dataset = %v / %+v", names, datasets)
	}
}

func TestCodecRoundTrip_IrregularSteps(t *testing.T) {
	c, err := newCodec()
	if err != nil {
		t.Fatalf("newCodec: %v", err)
	}

	in := []series.Sample{
		{Step: 0, WallTime: 1.5, Value: math.Pi},
		{Step: 1, WallTime: 2.0, Value: -math.Pi},
		{Step: 100, WallTime: 2.25, Value: math.Inf(1)},
		{Step: 101, WallTime: 3.75, Value: 0},
		{Step: 5000, WallTime: 9.5, Value: math.SmallestNonzeroFloat64},
	}

	block, err := c.encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := c.decode(block)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: %+v != %+v", i, out[i], in[i])
		}
	}
}

func TestCodec_RejectsCorruptHeader(t *testing.T) {
	c, err := newCodec()
	if err != nil {
		t.Fatalf("newCodec: %v", err)
	}

	// Valid compression around a corrupt payload: the header's sample
	// count must be rejected, not trusted into an allocation or an
	// out-of-bounds index.
	var scratch [16]byte
	payload := func(count uint64) []byte {
		n := binary.PutUvarint(scratch[:], count)
		return c.enc.EncodeAll(scratch[:n], nil)
	}

	cases := map[string][]byte{
		"zero count":      payload(0),
		"count too large": payload(1 << 40),
		"count, no data":  payload(3),
		"garbage bytes":   []byte{0x01, 0x02, 0x03},
	}
	for name, block := range cases {
		if _, err := c.decode(block); err == nil {
			t.Errorf("%s: decode accepted a corrupt block", name)
		}
	}
}

func TestCodec_RejectsEmptyBlock(t *testing.T) {
	c, err := newCodec()
	if err != nil {
		t.Fatalf("newCodec: %v", err)
	}
	if _, err := c.encode(nil); err == nil {
		t.Error("encode(nil) should fail")
	}
}
