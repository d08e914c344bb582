// Package lineio reads terminator-delimited lines from a positioned file
// through a single fixed-capacity buffer, one line per request.
package lineio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultBufferSize bounds the longest representable line (content plus
// terminator) when the caller doesn't pick a size.
const DefaultBufferSize = 64 * 1024

var (
	// ErrBusy means Next was called while a previous request was still
	// unresolved. The reader closes itself when this happens.
	ErrBusy = errors.New("lineio: next called while a fetch is in flight")

	// ErrTooLong means a single line filled the whole buffer without a
	// terminator, so the reader cannot make progress.
	ErrTooLong = errors.New("lineio: line exceeds buffer capacity")

	// ErrClosed means the reader was closed before the request resolved.
	ErrClosed = errors.New("lineio: reader closed")
)

// File is the slice of *os.File the reader needs: random-access reads
// plus a handle to release.
type File interface {
	io.ReaderAt
	io.Closer
}

// Result is the single outcome of one Next call. Exactly one of a line
// or an error is set. Text carries the line with its terminator stripped
// ("\r\n" and "\n" both strip). Size is the number of file bytes the
// line consumed, terminator included, so callers can track their own
// read offset. End of file is reported as Err == io.EOF.
type Result struct {
	Text string
	Size int
	Err  error
}

// Reader pulls lines from f one at a time. It is not a streaming
// scanner: each Next returns a channel that resolves with exactly one
// Result, and only one request may be in flight at a time.
type Reader struct {
	f   File
	buf []byte

	mu      sync.Mutex
	busy    bool // a fetch goroutine is running
	closed  bool
	eofSent bool

	// Window and offsets below are only touched by the single in-flight
	// fetch, never concurrently.
	start int   // first unconsumed byte in buf
	end   int   // one past the last valid byte in buf
	pos   int64 // file offset of the next fill
	eof   bool  // the file has no bytes past pos
}

// New returns a Reader over f with the given buffer capacity. A size
// of zero or less selects DefaultBufferSize. The longest deliverable
// line is one byte shorter than the capacity.
func New(f File, size int) *Reader {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Reader{f: f, buf: make([]byte, size)}
}

// Next requests the next line. The returned channel resolves with
// exactly one Result: a line, io.EOF, or an error. Calling Next again
// before the previous channel resolved is a protocol violation that
// resolves with ErrBusy and closes the reader. After EOF every further
// call resolves with io.EOF again; after Close, with ErrClosed.
func (r *Reader) Next() <-chan Result {
	ch := make(chan Result, 1)

	r.mu.Lock()
	switch {
	case r.eofSent:
		r.mu.Unlock()
		ch <- Result{Err: io.EOF}
	case r.closed:
		r.mu.Unlock()
		ch <- Result{Err: ErrClosed}
	case r.busy:
		r.mu.Unlock()
		r.Close()
		ch <- Result{Err: ErrBusy}
	default:
		r.busy = true
		r.mu.Unlock()
		go r.fetch(ch)
	}
	return ch
}

// Close releases the file handle. It is safe to call more than once;
// only the first call closes the handle and returns its error. A fetch
// still in flight resolves with ErrClosed instead of its stale line.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Reader) closeLocked() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// fetch runs one request to completion and resolves ch.
func (r *Reader) fetch(ch chan<- Result) {
	res := r.nextLine()

	r.mu.Lock()
	if r.closed {
		// Closed while this request was in flight. The window may be
		// stale, so the line is dropped rather than delivered.
		r.mu.Unlock()
		ch <- Result{Err: ErrClosed}
		return
	}
	r.busy = false
	if res.Err != nil {
		if errors.Is(res.Err, io.EOF) {
			r.eofSent = true
		}
		r.closeLocked()
	}
	r.mu.Unlock()
	ch <- res
}

// nextLine scans the window for a terminator, refilling from the file
// as needed. Each byte of the file enters the buffer exactly once and
// is scanned exactly once; consumed bytes are dropped on compaction.
func (r *Reader) nextLine() Result {
	for {
		if i := bytes.IndexByte(r.buf[r.start:r.end], '\n'); i >= 0 {
			eol := r.start + i
			line := r.buf[r.start:eol]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			size := eol + 1 - r.start
			r.start = eol + 1
			return Result{Text: string(line), Size: size}
		}

		if r.end-r.start == len(r.buf) {
			return Result{Err: ErrTooLong}
		}

		if r.eof {
			if r.start == r.end {
				return Result{Err: io.EOF}
			}
			// Unterminated final line. A trailing CR is content here;
			// it only strips in front of an LF.
			line := r.buf[r.start:r.end]
			size := len(line)
			r.start = r.end
			return Result{Text: string(line), Size: size}
		}

		// Slide the unconsumed tail to the front so the fill below has
		// the most room it can get.
		if r.start > 0 {
			copy(r.buf, r.buf[r.start:r.end])
			r.end -= r.start
			r.start = 0
		}

		off := r.pos
		n, err := r.f.ReadAt(r.buf[r.end:], off)
		r.end += n
		r.pos += int64(n)
		switch {
		case errors.Is(err, io.EOF):
			r.eof = true
		case err != nil:
			return Result{Err: fmt.Errorf("read at offset %d: %w", off, err)}
		case n == 0:
			// A successful zero-byte read also means no more data.
			r.eof = true
		}
	}
}
