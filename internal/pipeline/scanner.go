// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package pipeline

import (
	"errors"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scafiti/argos/internal/block"
)

// errTimeout marks a ReadChunk call that did not return within readTimeout;
// the worker abandons the read, records the range as a bad sector, and
// moves on instead of blocking the pipeline.
var errTimeout = errors.New("pipeline: read timed out")

const (
	// DefaultChunkSize is the size of the window handed to each worker.
	DefaultChunkSize = 4 << 20 // 4 MiB

	// DefaultOverlap ensures a signature straddling a chunk boundary is
	// still seen whole by at least one chunk.
	DefaultOverlap = 4 << 10 // 4 KiB

	sendTimeout        = 50 * time.Millisecond
	aggregatorPollTime = 100 * time.Millisecond
	readTimeout        = 30 * time.Second

	maxConsecutiveFailures = 1000

	// prefetchChunks is how far ahead of a completed read the source is
	// hinted; only the mmap source acts on it.
	prefetchChunks = 2
)

// Config controls the chunking, concurrency, and bad-sector handling
// behavior of a Scan.
type Config struct {
	ChunkSize int
	Overlap   int
	Workers   int
}

// DefaultConfig returns sensible defaults sized to the detected CPU count,
// using runtime.NumCPU() to size the worker pool.
func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
		Workers:   runtime.NumCPU(),
	}
}

// Progress is invoked as chunk results arrive, at most once per 100ms, and
// once more when the scan ends. No call is made while no chunk result
// arrives.
type Progress func(scanned, total uint64)

// Scan walks src from 0 to src.Size(), delivering ordered, overlapping
// chunks to onChunk in ascending offset order. cancel, when non-nil, is
// polled cooperatively; setting it mid-scan stops the scan at the next
// convenient point without leaving goroutines behind.
func Scan(src block.Source, cfg Config, cancel *atomic.Bool, progress Progress, onChunk func(*DataChunk)) (BadSectorReport, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	total := src.Size()
	jobs := make(chan job, cfg.Workers*2)
	results := make(chan result, cfg.Workers*2)
	recycle := make(chan *DataChunk, cfg.Workers*4)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go worker(src, jobs, results, recycle, cfg, &wg)
	}

	go produce(jobs, total, cfg, cancel)

	go func() {
		wg.Wait()
		close(results)
	}()

	agg := &aggregator{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		onChunk:   onChunk,
		recycle:   recycle,
	}
	scanned := uint64(0)
	lastReport := time.Now()

	for res := range results {
		if res.badSector {
			agg.badSectors = append(agg.badSectors, res.offset)
			continue
		}
		scanned += uint64(res.chunk.N)
		agg.deliver(res.chunk)

		if progress != nil && time.Since(lastReport) >= aggregatorPollTime {
			progress(scanned, total)
			lastReport = time.Now()
		}
	}
	agg.flush()
	if progress != nil {
		progress(scanned, total)
	}

	sort.Slice(agg.badSectors, func(i, j int) bool { return agg.badSectors[i] < agg.badSectors[j] })
	return BadSectorReport{Offsets: agg.badSectors}, nil
}

// BadSectorReport lists the 4KiB-aligned offsets that could not be read
// (a read error, or no answer within readTimeout), sorted ascending.
type BadSectorReport struct {
	Offsets []uint64
}

type job struct {
	offset uint64
	size   int
}

type result struct {
	chunk     *DataChunk
	badSector bool
	offset    uint64
}

func produce(jobs chan<- job, total uint64, cfg Config, cancel *atomic.Bool) {
	defer close(jobs)

	stride := uint64(cfg.ChunkSize)
	offset := uint64(0)
	for offset < total {
		if cancel != nil && cancel.Load() {
			return
		}
		size := stride + uint64(cfg.Overlap)
		if offset+size > total {
			size = total - offset
		}
		jobs <- job{offset: offset, size: int(size)}
		offset += stride
	}
}

func worker(src block.Source, jobs <-chan job, results chan<- result, recycle chan *DataChunk, cfg Config, wg *sync.WaitGroup) {
	defer wg.Done()

	consecutiveFailures := 0
	badSectorTotal := 0
	maxBadSectors := int(src.Size() / (16 << 20))
	if maxBadSectors < 1 {
		maxBadSectors = 1
	}

	for j := range jobs {
		chunk := acquireChunk(recycle, j.size)
		chunk.Offset = j.offset

		n, err := readWithTimeout(src, j.offset, chunk.Data[:j.size])
		if err != nil {
			consecutiveFailures++
			badSectorTotal++

			for off := j.offset &^ 4095; off < j.offset+uint64(j.size); off += 4096 {
				select {
				case results <- result{badSector: true, offset: off}:
				case <-time.After(sendTimeout):
				}
			}

			if consecutiveFailures > maxConsecutiveFailures || badSectorTotal > maxBadSectors {
				return
			}

			chunk.ZeroFilled = true
			for i := range chunk.Data[:j.size] {
				chunk.Data[i] = 0
			}
			chunk.N = j.size
			sendResult(results, result{chunk: chunk})
			continue
		}

		consecutiveFailures = 0
		chunk.N = n
		src.Prefetch(j.offset+prefetchChunks*uint64(cfg.ChunkSize), uint64(cfg.ChunkSize))
		sendResult(results, result{chunk: chunk})
	}
}

func sendResult(results chan<- result, r result) {
	for {
		select {
		case results <- r:
			return
		case <-time.After(sendTimeout):
		}
	}
}

// readWithTimeout isolates src.ReadChunk on its own goroutine with a
// response channel: a device that stalls on a bad sector never blocks the
// worker pool, since the worker abandons the read and keeps going.
func readWithTimeout(src block.Source, offset uint64, buf []byte) (int, error) {
	type readResult struct {
		n   int
		err error
	}
	done := make(chan readResult, 1)

	go func() {
		n, err := src.ReadChunk(offset, buf)
		done <- readResult{n: n, err: err}
	}()

	select {
	case r := <-done:
		return r.n, r.err
	case <-time.After(readTimeout):
		return 0, errTimeout
	}
}

func acquireChunk(recycle chan *DataChunk, size int) *DataChunk {
	select {
	case c := <-recycle:
		if cap(c.Data) >= size {
			c.reset()
			return c
		}
	default:
	}
	return newChunk(size)
}

type aggregator struct {
	chunkSize int
	overlap   int
	onChunk   func(*DataChunk)
	recycle   chan *DataChunk

	pending    map[uint64]*DataChunk
	nextOffset uint64
	badSectors []uint64
}

func (a *aggregator) deliver(c *DataChunk) {
	if a.pending == nil {
		a.pending = make(map[uint64]*DataChunk)
	}
	a.pending[c.Offset] = c

	for {
		next, ok := a.pending[a.nextOffset]
		if !ok {
			break
		}
		delete(a.pending, a.nextOffset)
		a.onChunk(next)
		a.nextOffset += uint64(a.chunkSize)
		a.recycleChunk(next)
	}
}

func (a *aggregator) flush() {
	offsets := make([]uint64, 0, len(a.pending))
	for off := range a.pending {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for _, off := range offsets {
		c := a.pending[off]
		a.onChunk(c)
		a.recycleChunk(c)
	}
	a.pending = nil
}

func (a *aggregator) recycleChunk(c *DataChunk) {
	select {
	case a.recycle <- c:
	default:
	}
}
