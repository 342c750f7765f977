package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	arMagic      = "!<arch>\n"
	arHeaderSize = 60
	arMaxName    = 16
)

// ArHeader describes one member of a Unix ar archive.
type ArHeader struct {
	Name    string
	ModTime time.Time
	Mode    int64
	Size    int64
}

// ArWriter writes the common ar format used by .deb packages: the global
// magic, then per member a 60-byte text header and the data padded to an
// even length. Owner ids are always zero.
type ArWriter struct {
	w         io.Writer
	remaining int64
	pad       bool
	started   bool
}

func NewArWriter(w io.Writer) *ArWriter {
	return &ArWriter{w: w}
}

func (aw *ArWriter) WriteHeader(hdr *ArHeader) error {
	if err := aw.finishMember(); err != nil {
		return err
	}
	if !aw.started {
		if _, err := io.WriteString(aw.w, arMagic); err != nil {
			return err
		}
		aw.started = true
	}
	if len(hdr.Name) > arMaxName || strings.ContainsAny(hdr.Name, " /\n") || hdr.Name == "" {
		return fmt.Errorf("%w: invalid ar member name %q", ErrArchiveIO, hdr.Name)
	}

	var b bytes.Buffer
	field := func(s string, width int) {
		b.WriteString(s)
		b.WriteString(strings.Repeat(" ", width-len(s)))
	}
	field(hdr.Name, 16)
	field(strconv.FormatInt(hdr.ModTime.Unix(), 10), 12)
	field("0", 6)
	field("0", 6)
	field(strconv.FormatInt(hdr.Mode, 8), 8)
	field(strconv.FormatInt(hdr.Size, 10), 10)
	b.WriteString("`\n")
	if b.Len() != arHeaderSize {
		return fmt.Errorf("%w: ar header field overflow for %q", ErrArchiveIO, hdr.Name)
	}

	if _, err := aw.w.Write(b.Bytes()); err != nil {
		return err
	}
	aw.remaining = hdr.Size
	aw.pad = hdr.Size%2 == 1
	return nil
}

func (aw *ArWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > aw.remaining {
		return 0, fmt.Errorf("%w: ar member data exceeds declared size", ErrArchiveIO)
	}
	n, err := aw.w.Write(p)
	aw.remaining -= int64(n)
	return n, err
}

func (aw *ArWriter) finishMember() error {
	if aw.remaining != 0 {
		return fmt.Errorf("%w: ar member short by %d bytes", ErrArchiveIO, aw.remaining)
	}
	if aw.pad {
		aw.pad = false
		if _, err := io.WriteString(aw.w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Close pads the last member. It does not close the underlying writer.
func (aw *ArWriter) Close() error {
	if !aw.started {
		if _, err := io.WriteString(aw.w, arMagic); err != nil {
			return err
		}
		aw.started = true
	}
	return aw.finishMember()
}

// ArReader iterates the members of an ar archive.
type ArReader struct {
	r         *bufio.Reader
	remaining int64
	pad       bool
	started   bool
}

func NewArReader(r io.Reader) *ArReader {
	return &ArReader{r: bufio.NewReader(r)}
}

// Next advances to the next member, returning io.EOF at the end.
func (ar *ArReader) Next() (*ArHeader, error) {
	if !ar.started {
		magic := make([]byte, len(arMagic))
		if _, err := io.ReadFull(ar.r, magic); err != nil {
			return nil, fmt.Errorf("%w: reading ar magic: %w", ErrArchiveIO, err)
		}
		if string(magic) != arMagic {
			return nil, fmt.Errorf("%w: not an ar archive", ErrArchiveIO)
		}
		ar.started = true
	}

	skip := ar.remaining
	if ar.pad {
		skip++
	}
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, ar.r, skip); err != nil {
			return nil, fmt.Errorf("%w: skipping ar member: %w", ErrArchiveIO, err)
		}
	}

	raw := make([]byte, arHeaderSize)
	if _, err := io.ReadFull(ar.r, raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading ar header: %w", ErrArchiveIO, err)
	}
	if string(raw[58:60]) != "`\n" {
		return nil, fmt.Errorf("%w: corrupt ar header", ErrArchiveIO)
	}

	num := func(s string, base int) (int64, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, base, 64)
	}
	mtime, err := num(string(raw[16:28]), 10)
	if err != nil {
		return nil, fmt.Errorf("%w: ar mtime: %w", ErrArchiveIO, err)
	}
	mode, err := num(string(raw[40:48]), 8)
	if err != nil {
		return nil, fmt.Errorf("%w: ar mode: %w", ErrArchiveIO, err)
	}
	size, err := num(string(raw[48:58]), 10)
	if err != nil {
		return nil, fmt.Errorf("%w: ar size: %w", ErrArchiveIO, err)
	}

	ar.remaining = size
	ar.pad = size%2 == 1
	return &ArHeader{
		Name:    strings.TrimSuffix(strings.TrimSpace(string(raw[0:16])), "/"),
		ModTime: time.Unix(mtime, 0).UTC(),
		Mode:    mode,
		Size:    size,
	}, nil
}

func (ar *ArReader) Read(p []byte) (int, error) {
	if ar.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > ar.remaining {
		p = p[:ar.remaining]
	}
	n, err := ar.r.Read(p)
	ar.remaining -= int64(n)
	if errors.Is(err, io.EOF) && ar.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// WriteArFile writes an ar archive at dst holding the given files, in
// order, under their base names.
func WriteArFile(dst string, members []string, opts Options) error {
	out, err := os.Create(dst)
	if err != nil {
		return ioError("creating", dst, err)
	}
	aw := NewArWriter(out)
	for _, m := range members {
		if err := addArMember(aw, m, opts); err != nil {
			out.Close()
			os.Remove(dst)
			return err
		}
	}
	if err := aw.Close(); err != nil {
		out.Close()
		return ioError("finishing", dst, err)
	}
	if err := out.Close(); err != nil {
		return ioError("closing", dst, err)
	}
	return nil
}

func addArMember(aw *ArWriter, path string, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return ioError("opening", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ioError("reading", path, err)
	}
	hdr := &ArHeader{
		Name:    filepath.Base(path),
		ModTime: opts.modTime(info.ModTime()),
		Mode:    0o100644,
		Size:    info.Size(),
	}
	if err := aw.WriteHeader(hdr); err != nil {
		return ioError("writing header for", path, err)
	}
	if _, err := io.Copy(aw, f); err != nil {
		return ioError("writing", path, err)
	}
	return nil
}

// ReadArFile returns the member headers of the ar archive at path.
func ReadArFile(path string) ([]ArHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("opening", path, err)
	}
	defer f.Close()

	var headers []ArHeader
	ar := NewArReader(f)
	for {
		hdr, err := ar.Next()
		if errors.Is(err, io.EOF) {
			return headers, nil
		}
		if err != nil {
			return nil, err
		}
		headers = append(headers, *hdr)
	}
}

// ExtractArMember copies the named member of the archive at path to dst.
func ExtractArMember(path, name, dst string) error {
	f, err := os.Open(path)
	if err != nil {
		return ioError("opening", path, err)
	}
	defer f.Close()

	ar := NewArReader(f)
	for {
		hdr, err := ar.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: member %s not found in %s", ErrArchiveIO, name, path)
		}
		if err != nil {
			return err
		}
		if hdr.Name != name {
			continue
		}
		return writeEntryFile(dst, 0o644, ar)
	}
}
