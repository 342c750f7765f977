package archive

import (
	"archive/tar"
	"errors"
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
)

// Unpack extracts src into dstDir, creating it when missing. With
// stripRoot the first path segment of every nested entry is dropped and
// top-level files are kept as they are. Entries resolving outside dstDir
// are rejected.
func Unpack(src, dstDir string, stripRoot bool) error {
	format, err := DetectFormat(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return ioError("creating", dstDir, err)
	}
	if format == Zip {
		return unpackZip(src, dstDir, stripRoot)
	}
	return unpackTar(src, dstDir, format, stripRoot)
}

// entryTarget maps an archive entry name to a path below dstDir. An empty
// result means the entry is skipped.
func entryTarget(dstDir, name string, isDir, stripRoot bool) (string, error) {
	name = path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "./"))
	name = strings.TrimPrefix(name, "/")
	if stripRoot {
		_, rest, found := strings.Cut(name, "/")
		switch {
		case found:
			name = rest
		case isDir:
			return "", nil
		}
	}
	if name == "" || name == "." {
		return "", nil
	}

	target := filepath.Join(dstDir, filepath.FromSlash(name))
	inside, err := file.IsSubPath(dstDir, target)
	if err != nil {
		return "", err
	}
	if !inside {
		return "", fmt.Errorf("entry %q escapes destination %s", name, dstDir)
	}
	return target, nil
}

func checkLink(dstDir, target, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("symlink %s points to absolute path %q", target, link)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(link))
	inside, err := file.IsSubPath(dstDir, resolved)
	if err != nil {
		return err
	}
	if !inside {
		return fmt.Errorf("symlink %s escapes destination %s", target, dstDir)
	}
	return nil
}

func writeEntryFile(target string, mode fs.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, mode.Perm())
}

func writeEntryLink(dstDir, target, link string) error {
	if err := checkLink(dstDir, target, link); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	_ = os.Remove(target)
	return os.Symlink(link, target)
}

func unpackTar(src, dstDir string, format Format, stripRoot bool) error {
	f, err := os.Open(src)
	if err != nil {
		return ioError("opening", src, err)
	}
	defer f.Close()

	dec, err := compression.NewReader(f, formatCodecs[format])
	if err != nil {
		return ioError("decompressing", src, err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return ioError("reading", src, err)
		}

		target, err := entryTarget(dstDir, hdr.Name, hdr.Typeflag == tar.TypeDir, stripRoot)
		if err != nil {
			return ioError("extracting", src, err)
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, fs.FileMode(hdr.Mode).Perm()|0o700)
		case tar.TypeReg:
			err = writeEntryFile(target, fs.FileMode(hdr.Mode), tr)
		case tar.TypeSymlink:
			err = writeEntryLink(dstDir, target, hdr.Linkname)
		default:
			continue
		}
		if err != nil {
			return ioError("extracting", hdr.Name, err)
		}
	}
}

func unpackZip(src, dstDir string, stripRoot bool) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return ioError("opening", src, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		isDir := zf.Mode().IsDir() || strings.HasSuffix(zf.Name, "/")
		target, err := entryTarget(dstDir, zf.Name, isDir, stripRoot)
		if err != nil {
			return ioError("extracting", src, err)
		}
		if target == "" {
			continue
		}
		if err := extractZipEntry(dstDir, target, zf); err != nil {
			return ioError("extracting", zf.Name, err)
		}
	}
	return nil
}

func extractZipEntry(dstDir, target string, zf *zip.File) error {
	mode := zf.Mode()
	if mode.IsDir() || strings.HasSuffix(zf.Name, "/") {
		return os.MkdirAll(target, mode.Perm()|0o700)
	}

	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if mode&fs.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		return writeEntryLink(dstDir, target, string(link))
	}
	if mode.Perm() == 0 {
		mode = 0o644
	}
	return writeEntryFile(target, mode, rc)
}
