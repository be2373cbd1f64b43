// SPDX-License-Identifier: MPL-2.0

// Package wheel assembles wheel archives: a zip of installed members plus
// the dist-info control files, finished by a RECORD manifest listing every
// member's content hash and size.
//
// Output is byte-reproducible: every member carries the same fixed
// modification timestamp (zip cannot represent dates before 1980, so the
// epoch is pinned well after), modes are normalized to 0644/0755, and
// members are added in deterministic order. The manifest is injected as a
// post-processing step over a finished archive, and the archive only
// reaches its final path by rename, so a crashed build never leaves a
// plausible-looking wheel behind.
package wheel

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/opencontainers/go-digest"

	"wheelwright-cli/pkg/editable"
	"wheelwright-cli/pkg/wheeltag"
)

// SourceEpochZip is the fixed unix timestamp stamped on every archive
// member. Zip's date fields cannot represent times before 1980.
const SourceEpochZip = 499162860

// DefaultGenerator identifies this builder in WHEEL control files when the
// descriptor does not override it.
const DefaultGenerator = "wheelwright (0.1.0)"

var zipEpoch = time.Unix(SourceEpochZip, 0).UTC()

// recordEncoding is the RECORD digest encoding: urlsafe base64, unpadded.
var recordEncoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// Filename returns the final wheel filename for a name-version stem and a
// resolved tag.
func Filename(stem string, tag wheeltag.Tag) string {
	return stem + "-" + tag.String() + ".whl"
}

// EditableFilename returns the editable-variant filename. The "ed." infix
// keeps it from colliding with the real wheel built from the same stem.
func EditableFilename(stem string, tag wheeltag.Tag) string {
	return stem + "-ed." + tag.String() + ".whl"
}

// MemberPath places one installed member inside the archive. Members of
// the build's root category (purelib or platlib) live at the archive root;
// everything else nests under <stem>.data/<category>/.
func MemberPath(stem, category, rel string, pure bool) string {
	rel = filepath.ToSlash(rel)
	root := "platlib"
	if pure {
		root = "purelib"
	}
	if category == root {
		return rel
	}
	return stem + ".data/" + category + "/" + rel
}

// ControlFile renders the WHEEL control file. Root-Is-Purelib is derived
// from the tag, keeping the two facts impossible to desynchronize.
func ControlFile(generator string, tag wheeltag.Tag) string {
	return fmt.Sprintf(
		"Wheel-Version: 1.0\nGenerator: %s\nRoot-Is-Purelib: %s\nTag: %s\n",
		generator, strconv.FormatBool(tag.IsPure()), tag,
	)
}

// Assembler writes one wheel archive. Content goes to <path>.tmp and only
// lands on the final path when Close succeeds.
type Assembler struct {
	path    string
	tmpPath string
	file    *os.File
	zw      *zip.Writer
}

// Create opens a new archive that will become path on Close.
func Create(path string) (*Assembler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	return &Assembler{
		path:    path,
		tmpPath: tmpPath,
		file:    file,
		zw:      newZipWriter(file),
	}, nil
}

// AddBytes adds a generated text member with mode 0644.
func (a *Assembler) AddBytes(name string, data []byte) error {
	w, err := a.zw.CreateHeader(memberHeader(name, 0o644))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// AddFile adds a file from disk. The on-disk mode collapses to 0755 when
// any execute bit is set, 0644 otherwise, so archives do not vary with the
// builder's umask.
func (a *Assembler) AddFile(name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open member %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat member %s: %w", src, err)
	}
	w, err := a.zw.CreateHeader(memberHeader(name, normalizeMode(info.Mode())))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// AddTree adds every file under root, named relative to it. Directory
// entries are not written; installers derive directories from member
// paths, and directory entries would put non-files in the manifest.
// filepath.WalkDir visits lexically, so member order is deterministic.
func (a *Assembler) AddTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		return a.AddFile(filepath.ToSlash(rel), path)
	})
}

// Abort abandons the archive and removes the temporary file. Use after a
// failed Add; the final path is left untouched. Close must not be called
// afterwards.
func (a *Assembler) Abort() {
	a.discard()
}

// Close finishes the archive and moves it onto its final path. On error
// the temporary file is removed and the final path is left untouched.
func (a *Assembler) Close() error {
	if err := a.zw.Close(); err != nil {
		a.discard()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		a.discard()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := a.file.Close(); err != nil {
		os.Remove(a.tmpPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		os.Remove(a.tmpPath)
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func (a *Assembler) discard() {
	a.file.Close()
	os.Remove(a.tmpPath)
}

// AddShims appends editable shim modules to a finished archive.
func AddShims(path string, files []editable.File) error {
	return rewriteAppending(path, func(zw *zip.Writer) error {
		for _, file := range files {
			w, err := zw.CreateHeader(memberHeader(file.Name, 0o644))
			if err != nil {
				return fmt.Errorf("failed to add shim %s: %w", file.Name, err)
			}
			if _, err := w.Write([]byte(file.Content)); err != nil {
				return fmt.Errorf("failed to write shim %s: %w", file.Name, err)
			}
		}
		return nil
	})
}

// AddManifest appends the RECORD manifest to a finished archive: one line
// per member in archive order, `path,sha256=<digest>,size` with commas in
// paths doubled, closed by the manifest's own self-entry with empty hash
// and size. RECORD is always the final member.
func AddManifest(path, distInfoName string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	var lines []string
	for _, member := range zr.File {
		sum, err := memberDigest(member)
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf(
			"%s,%s,%d",
			strings.ReplaceAll(member.Name, ",", ",,"),
			sum,
			member.UncompressedSize64,
		))
	}
	recordPath := distInfoName + "/RECORD"
	lines = append(lines, recordPath+",,")
	record := strings.Join(lines, "\n")

	return rewriteAppending(path, func(zw *zip.Writer) error {
		w, err := zw.CreateHeader(memberHeader(recordPath, 0o644))
		if err != nil {
			return fmt.Errorf("failed to add manifest: %w", err)
		}
		if _, err := w.Write([]byte(record)); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		return nil
	})
}

// RenameToTag moves a finished archive onto its tag-qualified filename and
// returns the new path. The target directory is assumed clean; an existing
// file at the target is overwritten, never merged.
func RenameToTag(path, stem string, tag wheeltag.Tag) (string, error) {
	to := filepath.Join(filepath.Dir(path), Filename(stem, tag))
	if err := os.Rename(path, to); err != nil {
		return "", fmt.Errorf("failed to rename wheel: %w", err)
	}
	return to, nil
}

// rewriteAppending rebuilds the archive at path: existing members are
// copied over in raw (still-compressed) form, add writes new ones, and the
// result replaces the original by rename. Go's archive/zip cannot extend
// an archive in place, so appending is a copy.
func rewriteAppending(path string, add func(*zip.Writer) error) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	zw := newZipWriter(out)

	fail := func(err error) error {
		zw.Close()
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	for _, member := range zr.File {
		if err := zw.Copy(member); err != nil {
			return fail(fmt.Errorf("failed to carry over %s: %w", member.Name, err))
		}
	}
	if err := add(zw); err != nil {
		return fail(err)
	}

	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("failed to finish archive: %w", err))
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync archive: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func memberDigest(member *zip.File) (string, error) {
	rc, err := member.Open()
	if err != nil {
		return "", fmt.Errorf("failed to read member %s: %w", member.Name, err)
	}
	defer rc.Close()

	h := digest.SHA256.Hash()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("failed to hash member %s: %w", member.Name, err)
	}
	return "sha256=" + recordEncoding.EncodeToString(h.Sum(nil)), nil
}

func memberHeader(name string, mode fs.FileMode) *zip.FileHeader {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: zipEpoch,
	}
	hdr.SetMode(mode)
	return hdr
}

func normalizeMode(mode fs.FileMode) fs.FileMode {
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return zw
}
