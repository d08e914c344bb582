package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhanoday10307/inplace/lineio"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestFileQuoted(t *testing.T) {
	path := writeTemp(t, "a.txt", "hello \"abc\" x\nsay \"wxyz\"")

	require.NoError(t, File(context.Background(), path, ReverseQuoted, nil))

	// The unterminated final line gains a terminator.
	assert.Equal(t, "hello \"cba\" x\nsay \"zyxw\"\n", readBack(t, path))
}

func TestFileNormalizesCRLF(t *testing.T) {
	path := writeTemp(t, "a.txt", "a\r\nbb\r\n")

	require.NoError(t, File(context.Background(), path, ReverseQuoted, nil))

	// Two bytes saved per line, stale tail truncated away.
	assert.Equal(t, "a\nbb\n", readBack(t, path))
}

func TestFileShrinkingReplace(t *testing.T) {
	path := writeTemp(t, "a.txt", "abcd\nabc\n")

	tr, err := Replace(`abc`, "x")
	require.NoError(t, err)

	require.NoError(t, File(context.Background(), path, tr, nil))

	// Each replacement saves two bytes; nothing of the old tail survives.
	assert.Equal(t, "xd\nx\n", readBack(t, path))
}

func TestFileEmpty(t *testing.T) {
	path := writeTemp(t, "a.txt", "")

	require.NoError(t, File(context.Background(), path, ReverseQuoted, nil))

	assert.Equal(t, "", readBack(t, path))
}

func TestFileNoPhantomFinalLine(t *testing.T) {
	path := writeTemp(t, "a.txt", "abc\n")

	require.NoError(t, File(context.Background(), path, Reverse, nil))

	assert.Equal(t, "cba\n", readBack(t, path))
}

func TestFileLineTooLong(t *testing.T) {
	path := writeTemp(t, "a.txt", "0123456789\nshort\n")

	err := File(context.Background(), path, ReverseQuoted, &Config{BufferSize: 8})
	require.ErrorIs(t, err, lineio.ErrTooLong)
	assert.Equal(t, "line-too-long", Kind(err))

	assert.Equal(t, "0123456789\nshort\n", readBack(t, path), "nothing written before the failure")
}

func TestFileLineGrew(t *testing.T) {
	path := writeTemp(t, "a.txt", "wx\nab\n")

	grow := func(s string) string {
		if s == "ab" {
			return "abcd"
		}
		return Reverse(s)
	}
	err := File(context.Background(), path, grow, nil)
	require.ErrorIs(t, err, ErrLineGrew)

	// Prefix rewritten, offending line and everything after untouched.
	assert.Equal(t, "xw\nab\n", readBack(t, path))
}

func TestFileBinary(t *testing.T) {
	content := "bin\x00ary\n"
	path := writeTemp(t, "a.dat", content)

	err := File(context.Background(), path, ReverseQuoted, nil)
	require.ErrorIs(t, err, ErrBinary)
	assert.Equal(t, content, readBack(t, path))

	require.NoError(t, File(context.Background(), path, ReverseQuoted, &Config{RewriteBinary: true}))
	assert.Equal(t, content, readBack(t, path))
}

func TestFileMissing(t *testing.T) {
	err := File(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), ReverseQuoted, nil)
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "open", Kind(err))
}

func TestFileCanceled(t *testing.T) {
	path := writeTemp(t, "a.txt", "say \"ab\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := File(ctx, path, ReverseQuoted, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", Kind(err))
	assert.Equal(t, "say \"ab\"\n", readBack(t, path))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	a := write("a.txt", "one \"ab\" two\n")
	b := filepath.Join(dir, "missing.txt")
	c := write("c.dat", "\x00\x01binary")
	d := write("d.txt", "\"cd\"")
	e := write("e.txt", "say \"ab\"\r\nplain\r\n")

	failed := Run(context.Background(), []string{a, b, c, d, e}, ReverseQuoted, &Config{Workers: 2})

	assert.Equal(t, 1, failed, "only the missing file fails")
	assert.Equal(t, "one \"ba\" two\n", readBack(t, a))
	assert.Equal(t, "\x00\x01binary", readBack(t, c), "binary file skipped")
	assert.Equal(t, "\"dc\"\n", readBack(t, d))
	assert.Equal(t, "say \"ba\"\nplain\n", readBack(t, e), "crlf file rewritten and truncated")
}

func TestRunIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d.txt", i))
		require.NoError(t, os.WriteFile(path, []byte("line \"one\"\n0123456789AB\n"), 0644))
		paths = append(paths, path)
	}

	failed := Run(context.Background(), paths, ReverseQuoted, &Config{BufferSize: 12, Workers: 3})

	assert.Equal(t, len(paths), failed, "second line overflows the buffer in every file")
	for _, path := range paths {
		assert.Equal(t, "line \"eno\"\n0123456789AB\n", readBack(t, path), "first line rewritten before the failure")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{lineio.ErrBusy, "busy"},
		{fmt.Errorf("file: %w", lineio.ErrTooLong), "line-too-long"},
		{lineio.ErrClosed, "closed"},
		{fmt.Errorf("%w: 5 bytes over 4", ErrLineGrew), "line-grew"},
		{ErrBinary, "binary"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "canceled"},
		{&fs.PathError{Op: "write", Path: "a", Err: errors.New("x")}, "write"},
		{errors.New("misc"), "io"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}

func TestDefaultConfig(t *testing.T) {
	c := mergeConfig(nil)
	assert.Equal(t, lineio.DefaultBufferSize, c.BufferSize)
	assert.Equal(t, 4, c.Workers)

	c = mergeConfig(&Config{BufferSize: 128})
	assert.Equal(t, 128, c.BufferSize)
	assert.Equal(t, 4, c.Workers, "zero values fall back to defaults")
}
