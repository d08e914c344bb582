// Package rewrite applies line transforms to files in place, writing
// each rewritten line back over the region it was read from.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bhanoday10307/inplace/lineio"
)

var (
	// ErrLineGrew means a transform produced more bytes than the line it
	// was given. Writing it back would clobber unread input, so the file
	// is abandoned where it stands.
	ErrLineGrew = errors.New("rewrite: transformed line longer than original")

	// ErrBinary means the file looks binary and RewriteBinary is off.
	ErrBinary = errors.New("rewrite: file looks binary")
)

// Config holds the rewrite settings.
type Config struct {
	// BufferSize is the line buffer capacity per file. Lines at or over
	// this size fail the file.
	BufferSize int

	// Workers is the maximum number of files rewritten at once.
	Workers int

	// RewriteBinary rewrites files that look binary instead of
	// skipping them.
	RewriteBinary bool
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: lineio.DefaultBufferSize,
		Workers:    4,
	}
}

// mergeConfig fills any zero values with defaults.
func mergeConfig(c *Config) *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.BufferSize <= 0 {
		out.BufferSize = d.BufferSize
	}
	if out.Workers <= 0 {
		out.Workers = d.Workers
	}
	return &out
}

// Kind buckets an error for the per-file failure report.
func Kind(err error) string {
	switch {
	case errors.Is(err, lineio.ErrBusy):
		return "busy"
	case errors.Is(err, lineio.ErrTooLong):
		return "line-too-long"
	case errors.Is(err, lineio.ErrClosed):
		return "closed"
	case errors.Is(err, ErrLineGrew):
		return "line-grew"
	case errors.Is(err, ErrBinary):
		return "binary"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Op
	}
	return "io"
}

// File rewrites path in place, feeding every line through t and writing
// the result back at a running write offset, terminated with "\n". The
// write offset can only trail the read offset, so a failure partway
// leaves a prefix of rewritten lines followed by untouched input.
func File(ctx context.Context, path string, t Transform, config *Config) error {
	config = mergeConfig(config)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	if !config.RewriteBinary {
		text, err := looksText(f)
		if err != nil {
			f.Close()
			return err
		}
		if !text {
			f.Close()
			return ErrBinary
		}
	}

	r := lineio.New(f, config.BufferSize)
	defer r.Close()

	var readOff, writeOff int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := <-r.Next()
		if errors.Is(res.Err, io.EOF) {
			break
		}
		if res.Err != nil {
			return res.Err
		}
		readOff += int64(res.Size)

		out := t(res.Text)
		if len(out) > len(res.Text) {
			return fmt.Errorf("%w: %d bytes over %d", ErrLineGrew, len(out), len(res.Text))
		}
		n, err := f.WriteAt([]byte(out+"\n"), writeOff)
		writeOff += int64(n)
		if err != nil {
			return err
		}
	}

	// Terminator normalization can shrink the file. Drop whatever the
	// writes left behind past the last one. The reader released the
	// handle when it delivered end of file, so truncate by path.
	if writeOff < readOff {
		if err := os.Truncate(path, writeOff); err != nil {
			return err
		}
	}
	return nil
}

// Run rewrites every path, at most Workers files at a time. Each file
// fails on its own: errors are logged with their kind and never stop
// the other files. It returns how many files failed. Binary files
// skipped by sniffing are not failures.
func Run(ctx context.Context, paths []string, t Transform, config *Config) int {
	config = mergeConfig(config)

	var failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			log.Printf("inplace at=rewrite.start file=%q\n", path)
			switch err := File(ctx, path, t, config); {
			case errors.Is(err, ErrBinary):
				log.Printf("inplace at=rewrite.skip file=%q kind=%s\n", path, Kind(err))
			case err != nil:
				log.Printf("inplace at=rewrite.err file=%q kind=%s err=%q\n", path, Kind(err), err)
				failed.Add(1)
			default:
				log.Printf("inplace at=rewrite.finish file=%q\n", path)
			}
			return nil
		})
	}
	g.Wait()
	return int(failed.Load())
}

// looksText reports whether the head of the file looks like text. A NUL
// byte anywhere in the first 8 KiB marks the file binary.
func looksText(f *os.File) (bool, error) {
	head := make([]byte, 8192)
	n, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	for _, b := range head[:n] {
		if b == 0 {
			return false, nil
		}
	}
	return true, nil
}
