// Package archive opens SCORM package bytes and reads entries by path.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
)

// DefaultMaxEntrySize bounds a single uncompressed entry
const DefaultMaxEntrySize int64 = 100 << 20

// Archive is a read-only view over a zip package held in memory.
// It is safe for concurrent reads.
type Archive struct {
	files        map[string]*zip.File
	names        []string
	maxEntrySize int64
}

// Option configures Open
type Option func(*Archive)

// WithMaxEntrySize caps the uncompressed size of any entry read
func WithMaxEntrySize(n int64) Option {
	return func(a *Archive) {
		if n > 0 {
			a.maxEntrySize = n
		}
	}
}

// Open parses data as a zip archive. data is borrowed, not copied, and must
// not be modified while the archive is in use.
func Open(data []byte, opts ...Option) (*Archive, error) {
	if len(data) == 0 {
		return nil, scormerrors.New(scormerrors.KindCorruptArchive, "open_archive", fmt.Errorf("empty package"))
	}

	// An insecure entry name still yields a usable reader; such names are
	// filtered below instead of failing the whole package.
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if zr == nil {
		return nil, scormerrors.New(scormerrors.KindCorruptArchive, "open_archive", err)
	}

	a := &Archive{
		files:        make(map[string]*zip.File, len(zr.File)),
		maxEntrySize: DefaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") || strings.HasSuffix(f.Name, `\`) {
			continue
		}
		name := CleanPath(f.Name)
		if name == "" || strings.HasPrefix(name, "../") {
			// Not addressable from inside the package
			continue
		}
		if _, dup := a.files[name]; dup {
			continue
		}
		a.files[name] = f
		a.names = append(a.names, name)
	}
	sort.Strings(a.names)

	return a, nil
}

// CleanPath normalizes an archive path: forward slashes, no leading "./" or
// "/", and no "." or ".." segments that can be resolved lexically.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// Entries lists the normalized names of all file entries, sorted
func (a *Archive) Entries() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Has reports whether an entry exists at p
func (a *Archive) Has(p string) bool {
	_, ok := a.files[CleanPath(p)]
	return ok
}

// Size returns the declared uncompressed size of the entry at p
func (a *Archive) Size(p string) (int64, error) {
	f, err := a.lookup(p, "stat_entry")
	if err != nil {
		return 0, err
	}
	return int64(f.UncompressedSize64), nil
}

// ReadText reads the entry at p as text
func (a *Archive) ReadText(p string) (string, error) {
	b, err := a.read(p, "read_text")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBinary reads the entry at p
func (a *Archive) ReadBinary(p string) ([]byte, error) {
	return a.read(p, "read_binary")
}

func (a *Archive) lookup(p, op string) (*zip.File, error) {
	name := CleanPath(p)
	f, ok := a.files[name]
	if !ok {
		return nil, scormerrors.New(scormerrors.KindEntryNotFound, op, nil).WithPath(name)
	}
	return f, nil
}

func (a *Archive) read(p, op string) ([]byte, error) {
	f, err := a.lookup(p, op)
	if err != nil {
		return nil, err
	}

	if f.UncompressedSize64 > uint64(a.maxEntrySize) {
		return nil, scormerrors.New(scormerrors.KindCorruptArchive, op,
			fmt.Errorf("entry declares %d bytes, limit is %d", f.UncompressedSize64, a.maxEntrySize)).WithPath(f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, scormerrors.New(scormerrors.KindCorruptArchive, op, err).WithPath(f.Name)
	}
	defer rc.Close()

	// The header size can lie; never read past the cap
	b, err := io.ReadAll(io.LimitReader(rc, a.maxEntrySize+1))
	if err != nil {
		return nil, scormerrors.New(scormerrors.KindCorruptArchive, op, err).WithPath(f.Name)
	}
	if int64(len(b)) > a.maxEntrySize {
		return nil, scormerrors.New(scormerrors.KindCorruptArchive, op,
			fmt.Errorf("entry exceeds %d bytes", a.maxEntrySize)).WithPath(f.Name)
	}
	return b, nil
}
