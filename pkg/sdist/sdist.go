// SPDX-License-Identifier: MPL-2.0

// Package sdist assembles source distribution archives.
//
// An sdist is a gzip-compressed tar whose members all live under a single
// `<name>-<version>/` root directory. Output is reproducible: every member
// carries the fixed source epoch, uid/gid 0 with empty owner names, and a
// mode normalized to 0644 or 0755; the gzip stream embeds the same epoch and
// no filename. Members are written in name-sorted order and no directory
// entries are emitted; extractors create parents on demand.
package sdist

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/exp/slices"
)

// SourceEpochTar is the modification time stamped on every tar member and on
// the gzip stream itself.
const SourceEpochTar = 499162800

var tarEpoch = time.Unix(SourceEpochTar, 0).UTC()

// Prefix returns the archive's root directory name, which doubles as the
// filename stem. The raw project name is used, not the escaped form wheels
// carry.
func Prefix(name, version string) string {
	return name + "-" + version
}

// Filename returns the archive filename for a root prefix.
func Filename(prefix string) string {
	return prefix + ".tar.gz"
}

// Member is one archive entry. Rel is the slash-separated path under the
// root prefix. Content comes from the Src file when set, from Data
// otherwise.
type Member struct {
	Rel  string
	Src  string
	Data []byte
}

// Build writes the archive at path with every member under prefix, in
// name-sorted order regardless of the order given.
func Build(path, prefix string, members []Member) error {
	ordered := slices.Clone(members)
	slices.SortFunc(ordered, func(a, b Member) int {
		return strings.Compare(a.Rel, b.Rel)
	})

	a, err := Create(path, prefix)
	if err != nil {
		return err
	}
	for _, m := range ordered {
		if m.Src != "" {
			err = a.AddFile(m.Rel, m.Src)
		} else {
			err = a.AddBytes(m.Rel, m.Data)
		}
		if err != nil {
			a.discard()
			return err
		}
	}
	return a.Close()
}

// Assembler writes one sdist incrementally. Content is staged at a
// temporary path and moved to the final path only when Close succeeds.
type Assembler struct {
	path    string
	tmpPath string
	prefix  string
	file    *os.File
	gz      *gzip.Writer
	tw      *tar.Writer
}

// Create opens a new archive at path. Parent directories are created as
// needed.
func Create(path, prefix string) (*Assembler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	gz, err := gzip.NewWriterLevel(file, gzip.BestCompression)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to open compressed stream: %w", err)
	}
	gz.Header.ModTime = tarEpoch
	return &Assembler{
		path:    path,
		tmpPath: tmpPath,
		prefix:  prefix,
		file:    file,
		gz:      gz,
		tw:      tar.NewWriter(gz),
	}, nil
}

// AddBytes writes one regular member with mode 0644.
func (a *Assembler) AddBytes(rel string, data []byte) error {
	if err := a.writeHeader(rel, 0o644, int64(len(data))); err != nil {
		return err
	}
	if _, err := io.Copy(a.tw, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write member %s: %w", rel, err)
	}
	return nil
}

// AddFile copies the file at src into the archive as rel. The stored mode
// is 0755 when src is executable, 0644 otherwise.
func (a *Assembler) AddFile(rel, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open member source: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat member source: %w", err)
	}
	if err := a.writeHeader(rel, normalizeMode(info.Mode()), info.Size()); err != nil {
		return err
	}
	if _, err := io.Copy(a.tw, f); err != nil {
		return fmt.Errorf("failed to write member %s: %w", rel, err)
	}
	return nil
}

// Close finishes the archive and moves it to its final path.
func (a *Assembler) Close() error {
	if err := a.tw.Close(); err != nil {
		a.discard()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := a.gz.Close(); err != nil {
		a.discard()
		return fmt.Errorf("failed to finish compressed stream: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		a.discard()
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := a.file.Close(); err != nil {
		_ = os.Remove(a.tmpPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		_ = os.Remove(a.tmpPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (a *Assembler) writeHeader(rel string, mode fs.FileMode, size int64) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     a.prefix + "/" + filepath.ToSlash(rel),
		Mode:     int64(mode),
		Size:     size,
		ModTime:  tarEpoch,
		Uid:      0,
		Gid:      0,
	}
	if err := a.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write member header %s: %w", rel, err)
	}
	return nil
}

// discard abandons the in-progress archive, removing the temporary file.
func (a *Assembler) discard() {
	_ = a.tw.Close()
	_ = a.gz.Close()
	_ = a.file.Close()
	_ = os.Remove(a.tmpPath)
}

func normalizeMode(mode fs.FileMode) fs.FileMode {
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}
