package tsv

import (
	"bufio"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/Doomsbay/ContigKit/internal/errors"
)

const writerBufferSize = 1 << 20

type readCloser struct {
	reader io.Reader
	close  func() error
}

func (r readCloser) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r readCloser) Close() error {
	return r.close()
}

// Open opens path for reading, decompressing it when it ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open", path, unwrapPath(err))
	}
	if !IsGzip(path) {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.NewIOError("open gzip", path, err)
	}
	return readCloser{
		reader: gz,
		close: func() error {
			_ = gz.Close()
			return f.Close()
		},
	}, nil
}

// OutputFile is a buffered, optionally gzip-compressed output file. Close
// flushes every layer before closing the file; later calls return nil.
type OutputFile struct {
	path   string
	file   *os.File
	gz     *pgzip.Writer
	buf    *bufio.Writer
	closed bool
}

// Create creates path (and its parent directory), compressing with pgzip
// when the name ends in .gz.
func Create(path string) (*OutputFile, error) {
	if err := mkdirParent(path); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewIOError("create", path, unwrapPath(err))
	}
	out := &OutputFile{path: path, file: f}
	if !IsGzip(path) {
		out.buf = bufio.NewWriterSize(f, writerBufferSize)
		return out, nil
	}
	gz, err := pgzip.NewWriterLevel(f, pgzip.DefaultCompression)
	if err != nil {
		_ = f.Close()
		return nil, errors.NewIOError("create gzip writer", path, err)
	}
	if err := gz.SetConcurrency(1<<20, runtime.GOMAXPROCS(0)); err != nil {
		_ = gz.Close()
		_ = f.Close()
		return nil, errors.NewIOError("set gzip concurrency", path, err)
	}
	out.gz = gz
	out.buf = bufio.NewWriterSize(gz, writerBufferSize)
	return out, nil
}

func (o *OutputFile) Write(p []byte) (int, error) {
	if o.closed {
		return 0, errors.NewIOError("write", o.path, os.ErrClosed)
	}
	return o.buf.Write(p)
}

func (o *OutputFile) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.buf.Flush(); err != nil {
		_ = o.file.Close()
		return errors.NewIOError("write", o.path, unwrapPath(err))
	}
	if o.gz != nil {
		if err := o.gz.Close(); err != nil {
			_ = o.file.Close()
			return errors.NewIOError("close gzip", o.path, unwrapPath(err))
		}
	}
	if err := o.file.Close(); err != nil {
		return errors.NewIOError("close", o.path, unwrapPath(err))
	}
	return nil
}

// unwrapPath drops the op and path of an *fs.PathError; IOError carries both.
func unwrapPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

func mkdirParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError("create dir", dir, unwrapPath(err))
	}
	return nil
}

// Staging hands out temporary paths next to each destination and moves them
// into place on Commit, so a failed run leaves no outputs behind. A
// temporary path keeps its destination's extensions, so .gz still selects
// compression in Create. The zero value is ready to use.
type Staging struct {
	moves []move
}

type move struct {
	tmp, dst string
}

// Path reserves a temporary file for dst and returns its path.
func (s *Staging) Path(dst string) (string, error) {
	if err := mkdirParent(dst); err != nil {
		return "", err
	}
	base := filepath.Base(dst)
	ext := ""
	if i := strings.IndexByte(base, '.'); i > 0 {
		base, ext = base[:i], base[i:]
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "."+base+".*.partial"+ext)
	if err != nil {
		return "", errors.NewIOError("create temp", dst, unwrapPath(err))
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", errors.NewIOError("create temp", dst, unwrapPath(err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", errors.NewIOError("create temp", dst, unwrapPath(err))
	}
	s.moves = append(s.moves, move{tmp: tmp, dst: dst})
	return tmp, nil
}

// Create is Path followed by Create on the temporary path.
func (s *Staging) Create(dst string) (*OutputFile, error) {
	tmp, err := s.Path(dst)
	if err != nil {
		return nil, err
	}
	return Create(tmp)
}

// Commit renames every staged file onto its destination, in staging order.
func (s *Staging) Commit() error {
	for i, m := range s.moves {
		if err := os.Rename(m.tmp, m.dst); err != nil {
			s.moves = s.moves[i:]
			return errors.NewIOError("rename", m.dst, unwrapPath(err))
		}
	}
	s.moves = nil
	return nil
}

// Discard removes every staged file that was not committed.
func (s *Staging) Discard() {
	for _, m := range s.moves {
		_ = os.Remove(m.tmp)
	}
	s.moves = nil
}

// IsGzip reports whether path names a gzip-compressed file.
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// BaseName strips a trailing .gz and the last extension from path.
func BaseName(path string) string {
	base := filepath.Base(path)
	if IsGzip(base) {
		base = base[:len(base)-len(".gz")]
	}
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// IndexOf returns the position of name in header, or -1.
func IndexOf(header []string, name string) int {
	for i, v := range header {
		if v == name {
			return i
		}
	}
	return -1
}

// CountLines counts lines in path (plain or .gz), including a final line
// without a trailing newline. Used to size progress bars.
func CountLines(path string) (int, error) {
	in, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = in.Close()
	}()

	buf := make([]byte, 1<<20)
	var count int
	var last byte
	var sawData bool
	for {
		n, err := in.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
			sawData = true
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.NewIOError("read", path, err)
		}
	}
	if sawData && last != '\n' {
		count++
	}
	return count, nil
}
