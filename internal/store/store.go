package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/scalarboard/scalarboard/internal/series"
)

// Defaults applied when New is given non-positive limits.
const (
	// DefaultBlockSize is the tail length at which a series seals its
	// samples into a compressed block.
	DefaultBlockSize = 512

	// DefaultMaxPoints caps retained samples per series; the oldest
	// sealed block is evicted first when the cap is exceeded.
	DefaultMaxPoints = 100_000
)

// sealedBlock is an immutable compressed run of samples.
type sealedBlock struct {
	data  []byte
	count int
}

// runSeries holds one (run, tag) series: sealed history plus the
// mutable tail.
type runSeries struct {
	blocks   []sealedBlock
	tail     []series.Sample
	lastStep int64
	total    int
}

// Store is a thread-safe series store keyed by (run, tag).
type Store struct {
	blockSize int
	maxPoints int
	codec     *codec

	mu   sync.RWMutex
	data map[string]map[string]*runSeries // run -> tag -> series
}

// New creates a Store. Non-positive limits select the defaults.
func New(blockSize, maxPoints int) (*Store, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &Store{
		blockSize: blockSize,
		maxPoints: maxPoints,
		codec:     c,
		data:      make(map[string]map[string]*runSeries),
	}, nil
}

// Append adds one sample to the (run, tag) series. Samples must arrive
// in strictly increasing step order; a stale or duplicate step is
// dropped (a restarted training job replays old steps — the first write
// wins, matching the append-only reading contract).
func (s *Store) Append(run, tag string, sample series.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, ok := s.data[run]
	if !ok {
		tags = make(map[string]*runSeries)
		s.data[run] = tags
	}
	rs, ok := tags[tag]
	if !ok {
		rs = &runSeries{lastStep: -1}
		tags[tag] = rs
	}

	if rs.total > 0 && sample.Step <= rs.lastStep {
		slog.Debug("store: dropping out-of-order sample",
			"run", run, "tag", tag, "step", sample.Step, "last", rs.lastStep)
		return nil
	}

	rs.tail = append(rs.tail, sample)
	rs.lastStep = sample.Step
	rs.total++

	if len(rs.tail) >= s.blockSize {
		if err := s.seal(rs); err != nil {
			return fmt.Errorf("store: seal %s/%s: %w", run, tag, err)
		}
	}
	for rs.total > s.maxPoints && len(rs.blocks) > 0 {
		rs.total -= rs.blocks[0].count
		rs.blocks = rs.blocks[1:]
	}
	return nil
}

// seal compresses the tail into a block. Callers hold s.mu.
func (s *Store) seal(rs *runSeries) error {
	data, err := s.codec.encode(rs.tail)
	if err != nil {
		return err
	}
	rs.blocks = append(rs.blocks, sealedBlock{data: data, count: len(rs.tail)})
	rs.tail = nil
	return nil
}

// Series reassembles the full (run, tag) series as a fresh copy. The
// second return is false when the series does not exist.
func (s *Store) Series(run, tag string) (series.RawSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.lookup(run, tag)
	if !ok {
		return nil, false
	}

	out := make(series.RawSeries, 0, rs.total)
	for _, b := range rs.blocks {
		samples, err := s.codec.decode(b.data)
		if err != nil {
			// A corrupt block loses its span but not the series.
			slog.Error("store: skipping undecodable block", "run", run, "tag", tag, "err", err)
			continue
		}
		out = append(out, samples...)
	}
	out = append(out, rs.tail...)
	return out, true
}

// Dataset returns, for every run that has the tag, its label and series,
// ordered by run name. Runs lacking the tag are omitted.
func (s *Store) Dataset(tag string) (runs []string, datasets []series.RawSeries) {
	for _, run := range s.Runs() {
		if ds, ok := s.Series(run, tag); ok {
			runs = append(runs, run)
			datasets = append(datasets, ds)
		}
	}
	return runs, datasets
}

// Runs returns all run names, sorted.
func (s *Store) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for run := range s.data {
		out = append(out, run)
	}
	sort.Strings(out)
	return out
}

// Tags returns the union of tag names across all runs, sorted.
func (s *Store) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, tags := range s.data {
		for tag := range tags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Len returns the retained sample count for one series (0 if absent).
func (s *Store) Len(run, tag string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rs, ok := s.lookup(run, tag); ok {
		return rs.total
	}
	return 0
}

// lookup finds a runSeries. Callers hold s.mu (read or write).
func (s *Store) lookup(run, tag string) (*runSeries, bool) {
	tags, ok := s.data[run]
	if !ok {
		return nil, false
	}
	rs, ok := tags[tag]
	return rs, ok
}
