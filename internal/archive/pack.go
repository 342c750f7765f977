package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/open-edge-platform/release-packager/internal/utils/compression"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

const (
	maxTarName = 100
	// Largest size the 12-byte octal header field can hold.
	maxTarSize = 1<<33 - 1
)

type entry struct {
	name string
	path string
	info fs.FileInfo
	link string
}

func rootPrefix(srcDir string, opts Options) string {
	root := opts.RootEntryName
	if root == "" {
		root = filepath.Base(srcDir)
	}
	root = strings.Trim(path.Clean("/"+filepath.ToSlash(root)), "/")
	if root == "" || root == FlatRoot {
		return ""
	}
	return root
}

// collectEntries lists srcDir in lexical order, naming entries below the
// root prefix. Directories are only listed when intermediate directories
// are requested.
func collectEntries(srcDir string, opts Options) ([]entry, error) {
	prefix := rootPrefix(srcDir, opts)
	rootInfo, err := os.Stat(srcDir)
	if err != nil {
		return nil, err
	}
	if !rootInfo.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", srcDir)
	}

	var entries []entry
	if opts.CreateIntermediateDirs && prefix != "" {
		segments := strings.Split(prefix, "/")
		for i := range segments {
			entries = append(entries, entry{
				name: strings.Join(segments[:i+1], "/") + "/",
				info: rootInfo,
			})
		}
	}

	err = filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if opts.CreateIntermediateDirs {
				entries = append(entries, entry{name: name + "/", path: p, info: info})
			}
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			entries = append(entries, entry{name: name, path: p, info: info, link: link})
		case d.Type().IsRegular():
			entries = append(entries, entry{name: name, path: p, info: info})
		}
		return nil
	})
	return entries, err
}

// Pack archives srcDir into dst using format.
func Pack(srcDir, dst string, format Format, opts Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	if !format.Writable() {
		return fmt.Errorf("%w: format %s cannot be written", ErrArchiveIO, format)
	}
	if inside, _ := file.IsSubPath(srcDir, dst); inside {
		return fmt.Errorf("%w: archive %s would be written inside its source %s", ErrArchiveIO, dst, srcDir)
	}

	entries, err := collectEntries(srcDir, opts)
	if err != nil {
		return ioError("reading", srcDir, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ioError("creating directory for", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return ioError("creating", dst, err)
	}

	if format == Zip {
		err = writeZip(out, entries, opts)
	} else {
		err = writeCompressedTar(out, entries, format, opts)
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = ioError("closing", dst, closeErr)
	}
	if err != nil {
		os.Remove(dst)
		return err
	}

	logger.Logger().Debugf("Packed %d entries from %s into %s", len(entries), srcDir, dst)
	return nil
}

func writeCompressedTar(w io.Writer, entries []entry, format Format, opts Options) error {
	enc, err := compression.NewWriter(w, formatCodecs[format])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	if err := writeTar(enc, entries, opts); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return ioError("compressing", string(format), err)
	}
	return nil
}

func writeTar(w io.Writer, entries []entry, opts Options) error {
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    int64(e.info.Mode().Perm()),
			ModTime: opts.modTime(e.info.ModTime()),
		}
		switch {
		case strings.HasSuffix(e.name, "/"):
			hdr.Typeflag = tar.TypeDir
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = e.info.Size()
		}
		if err := selectTarFormat(hdr, opts); err != nil {
			return err
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return ioError("writing header for", e.name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if err := copyInto(tw, e.path); err != nil {
				return ioError("writing", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		return ioError("finishing", "tar", err)
	}
	return nil
}

// selectTarFormat picks the header format needed for long names and large
// sizes according to the configured modes.
func selectTarFormat(hdr *tar.Header, opts Options) error {
	var needPAX, needGNU bool
	apply := func(mode Mode, what string) error {
		switch mode.orDefault() {
		case ModeError:
			return fmt.Errorf("%w: %s of entry %q does not fit a tar header", ErrArchiveIO, what, hdr.Name)
		case ModePOSIX:
			needPAX = true
		case ModeGNU:
			needGNU = true
		}
		return nil
	}

	if len(hdr.Name) > maxTarName || len(hdr.Linkname) > maxTarName {
		if err := apply(opts.LongFileMode, "name"); err != nil {
			return err
		}
	}
	if hdr.Size > maxTarSize {
		if err := apply(opts.BigNumberMode, "size"); err != nil {
			return err
		}
	}

	// Otherwise the writer picks the narrowest format that fits.
	switch {
	case needPAX:
		hdr.Format = tar.FormatPAX
	case needGNU:
		hdr.Format = tar.FormatGNU
	}
	return nil
}

func writeZip(w io.Writer, entries []entry, opts Options) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		fh := &zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: opts.modTime(e.info.ModTime()),
		}
		switch {
		case strings.HasSuffix(e.name, "/"):
			fh.Method = zip.Store
			fh.SetMode(fs.ModeDir | e.info.Mode().Perm())
		case e.link != "":
			fh.Method = zip.Store
			fh.SetMode(fs.ModeSymlink | 0o777)
		default:
			fh.SetMode(e.info.Mode().Perm())
		}

		zf, err := zw.CreateHeader(fh)
		if err != nil {
			return ioError("writing header for", e.name, err)
		}
		switch {
		case strings.HasSuffix(e.name, "/"):
		case e.link != "":
			if _, err := io.WriteString(zf, e.link); err != nil {
				return ioError("writing", e.name, err)
			}
		default:
			if err := copyInto(zf, e.path); err != nil {
				return ioError("writing", e.name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return ioError("finishing", "zip", err)
	}
	return nil
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
