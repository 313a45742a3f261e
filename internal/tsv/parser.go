// Package tsv reads tab-separated tables in ordered, worker-parallel chunks
// and opens plain or gzip-compressed table files.
package tsv

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Doomsbay/ContigKit/internal/errors"
)

const (
	defaultBufferSize = 1 << 20 // 1 MiB
	defaultChunkSize  = 4 << 20 // 4 MiB
	defaultBatchLines = 1024
)

// Ticker receives one call per delivered row.
type Ticker interface {
	Increment()
}

// Options controls TSV parsing performance characteristics.
type Options struct {
	BufferSize     int    // Size of the bufio.Reader buffer
	ChunkSize      int    // Bytes to read per chunk before splitting into lines
	BatchLines     int    // How many lines to hand to a worker at once
	Workers        int    // Number of splitting workers
	AllowCRLF      bool   // Trim trailing \r when present
	Path           string // Reported in errors
	Progress       Ticker
	SkipHeaderTick bool // Do not tick Progress for the first row
}

// Row is a view over a TSV line. Fields point into a pooled chunk and are
// only valid for the duration of the callback in Parse.
type Row struct {
	Line   int64
	Fields [][]byte
}

// Blank reports whether the line is empty or whitespace only.
func (r Row) Blank() bool {
	return len(r.Fields) == 1 && len(bytes.TrimSpace(r.Fields[0])) == 0
}

// Strings copies the fields out of the pooled chunk.
func (r Row) Strings() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = string(f)
	}
	return out
}

// DefaultOptions returns a baseline tuned for contig-sized tables.
func DefaultOptions() Options {
	return Options{
		BufferSize: defaultBufferSize,
		ChunkSize:  defaultChunkSize,
		BatchLines: defaultBatchLines,
		Workers:    runtime.GOMAXPROCS(0),
		AllowCRLF:  true,
	}
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.BatchLines <= 0 {
		o.BatchLines = defaultBatchLines
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

type chunk struct {
	data []byte
	pool *sync.Pool
	slot *pooledBuf
	refs int32
}

type pooledBuf struct {
	buf []byte
}

func (c *chunk) release() {
	if c == nil {
		return
	}
	if atomic.AddInt32(&c.refs, -1) == 0 && c.slot != nil {
		c.slot.buf = c.data[:cap(c.data)]
		c.pool.Put(c.slot)
	}
}

type batch struct {
	seq      int64
	chunk    *chunk
	lines    [][]byte
	lineNums []int64
}

type splitBatch struct {
	seq   int64
	rows  []Row
	chunk *chunk
}

// Parse streams a TSV from r, invoking onRow for each line in file order.
// Lines are split on worker goroutines but delivered to onRow from the
// calling goroutine only, so onRow needs no locking. Parsing stops at the
// first error returned by onRow.
func Parse(ctx context.Context, r io.Reader, opts Options, onRow func(Row) error) error {
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := &sync.Pool{
		New: func() any {
			return &pooledBuf{buf: make([]byte, opts.ChunkSize)}
		},
	}

	batches := make(chan *batch, opts.Workers*2)
	results := make(chan splitBatch, opts.Workers*2)
	readErrCh := make(chan error, 1)

	go func() {
		reader := bufio.NewReaderSize(r, opts.BufferSize)
		readErrCh <- readChunks(ctx, reader, opts, pool, batches)
		close(batches)
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range batches {
				results <- splitLines(b)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	err := deliver(ctx, cancel, opts, results, onRow)

	readErr := <-readErrCh
	if err != nil {
		return err
	}
	if readErr != nil && readErr != context.Canceled {
		return errors.NewIOError("read", opts.Path, readErr)
	}
	return ctx.Err()
}

// readChunks fills pooled buffers, cuts them on newlines and carries the
// partial last line into the next chunk.
func readChunks(ctx context.Context, r *bufio.Reader, opts Options, pool *sync.Pool, out chan<- *batch) error {
	tail := make([]byte, 0, 1024)
	var seq, lineNum int64

	send := func(c *chunk, lines [][]byte, nums []int64) error {
		size := opts.BatchLines
		if size > len(lines) {
			size = len(lines)
		}
		count := (len(lines) + size - 1) / size
		c.refs = int32(count)
		for i := 0; i < count; i++ {
			lo, hi := i*size, (i+1)*size
			if hi > len(lines) {
				hi = len(lines)
			}
			select {
			case out <- &batch{seq: seq, chunk: c, lines: lines[lo:hi], lineNums: nums[lo:hi]}:
				seq++
			case <-ctx.Done():
				for j := i; j < count; j++ {
					c.release()
				}
				return context.Canceled
			}
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			return context.Canceled
		}

		slot := pool.Get().(*pooledBuf)
		buf := slot.buf
		needed := opts.ChunkSize + len(tail)
		if cap(buf) < needed {
			buf = make([]byte, needed)
		}
		buf = buf[:needed]
		copy(buf, tail)

		n, readErr := r.Read(buf[len(tail):])
		if n == 0 && readErr != nil {
			slot.buf = buf[:cap(buf)]
			pool.Put(slot)
			if readErr == io.EOF {
				break
			}
			return readErr
		}

		data := buf[:len(tail)+n]
		var lines [][]byte
		var nums []int64
		start := 0
		for i, b := range data {
			if b != '\n' {
				continue
			}
			line := data[start:i]
			if opts.AllowCRLF && len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lineNum++
			lines = append(lines, line)
			nums = append(nums, lineNum)
			start = i + 1
		}

		tail = append(tail[:0], data[start:]...)

		if len(lines) == 0 {
			slot.buf = buf[:cap(buf)]
			pool.Put(slot)
		} else if err := send(&chunk{data: data, pool: pool, slot: slot}, lines, nums); err != nil {
			return err
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if len(tail) == 0 {
		return nil
	}
	line := append([]byte(nil), tail...)
	if opts.AllowCRLF && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	lineNum++
	return send(&chunk{data: line}, [][]byte{line}, []int64{lineNum})
}

func splitLines(b *batch) splitBatch {
	rows := make([]Row, 0, len(b.lines))
	for i, line := range b.lines {
		rows = append(rows, Row{Line: b.lineNums[i], Fields: splitFields(line)})
	}
	return splitBatch{seq: b.seq, rows: rows, chunk: b.chunk}
}

// deliver reorders worker output by sequence number and hands rows to onRow.
func deliver(ctx context.Context, cancel context.CancelFunc, opts Options, results <-chan splitBatch, onRow func(Row) error) error {
	pending := make(map[int64]splitBatch)
	var next int64
	var seen int64
	var err error

	emit := func(res splitBatch) {
		defer res.chunk.release()
		for _, row := range res.rows {
			if ctx.Err() != nil {
				err = ctx.Err()
				return
			}
			if opts.Progress != nil && (!opts.SkipHeaderTick || seen != 0) {
				opts.Progress.Increment()
			}
			seen++
			if cbErr := onRow(row); cbErr != nil {
				err = cbErr
				return
			}
		}
	}

	for res := range results {
		if err != nil {
			res.chunk.release()
			continue
		}
		pending[res.seq] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			emit(ready)
			if err != nil {
				cancel()
				break
			}
		}
	}

	for _, res := range pending {
		res.chunk.release()
	}
	return err
}

func splitFields(line []byte) [][]byte {
	fields := make([][]byte, 0, 8)
	start := 0
	for i, b := range line {
		if b == '\t' {
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	return append(fields, line[start:])
}
