// Package archive writes and reads the tar, zip and ar containers produced
// by the packagers.
package archive

import (
	"errors"
	"fmt"
	"time"
)

// ErrArchiveIO is matched by every read or write failure of this package.
var ErrArchiveIO = errors.New("archive I/O failed")

// Mode selects how tar entries that do not fit the classic header are
// written.
type Mode string

const (
	ModeError Mode = "error"
	ModePOSIX Mode = "posix"
	ModeGNU   Mode = "gnu"
)

func (m Mode) Validate() error {
	switch m {
	case "", ModeError, ModePOSIX, ModeGNU:
		return nil
	default:
		return fmt.Errorf("unknown archive mode %q", m)
	}
}

func (m Mode) orDefault() Mode {
	if m == "" {
		return ModeGNU
	}
	return m
}

// FlatRoot as RootEntryName stores entries without a top-level directory.
const FlatRoot = "."

// Options control how a directory is packed.
type Options struct {
	// Timestamp, when set, replaces every entry's modification time so the
	// output only depends on content and permissions.
	Timestamp     *time.Time
	LongFileMode  Mode
	BigNumberMode Mode
	// RootEntryName renames the top-level directory; empty keeps the
	// source directory's name.
	RootEntryName string
	// CreateIntermediateDirs emits a directory entry for every path
	// segment, root included.
	CreateIntermediateDirs bool
}

func (o Options) Validate() error {
	if err := o.LongFileMode.Validate(); err != nil {
		return err
	}
	return o.BigNumberMode.Validate()
}

func (o Options) modTime(actual time.Time) time.Time {
	if o.Timestamp != nil {
		return o.Timestamp.UTC().Truncate(time.Second)
	}
	return actual.UTC().Truncate(time.Second)
}

func ioError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrArchiveIO, op, path, err)
}
