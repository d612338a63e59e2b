// Package vxsnap tracks admitted on-disk snapshot directories for
// replicated vector indexes: Meta describes one directory, Registry
// keeps the per-index ordered set of admitted snapshots, and
// ReaderRegistry hands out transient reader handles for peer transfer.
package vxsnap

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync/atomic"

	logs "github.com/danmuck/smplog"
)

// snapshotDirPattern matches "snapshot_<20 decimal digits>".
var snapshotDirPattern = regexp.MustCompile(`^snapshot_(\d{20})$`)

// IsSnapshotDir reports whether name is a well-formed snapshot directory
// name, as opposed to a transient "tmp_*" directory or garbage.
func IsSnapshotDir(name string) bool {
	return snapshotDirPattern.MatchString(name)
}

// ParseLogID extracts the LogId encoded in a snapshot directory name.
// Returns an error (never a silently-defaulted 0) if name does not match
// the expected pattern.
func ParseLogID(name string) (uint64, error) {
	m := snapshotDirPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("not a snapshot directory name: %q", name)
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed log id in %q: %w", name, err)
	}
	return id, nil
}

// DirName renders the canonical directory name for a given LogId.
func DirName(logID uint64) string {
	return fmt.Sprintf("snapshot_%020d", logID)
}

// DataFileName renders the canonical opaque index data file name inside
// a snapshot directory.
func DataFileName(indexID, logID uint64) string {
	return fmt.Sprintf("index_%d_%d.idx", indexID, logID)
}

const metaFileName = "meta"

// Meta is an immutable, refcounted descriptor of one admitted snapshot
// directory. The directory and its contents are removed from disk the
// moment the last holder releases it — this is the only code path that
// deletes a snapshot directory.
type Meta struct {
	indexID uint64
	logID   uint64
	path    string
	files   []string

	refs *atomic.Int32
}

// NewMeta parses path's trailing directory component as a snapshot
// directory name, enumerates the files directly inside it, and returns
// a Meta with one outstanding reference.
func NewMeta(indexID uint64, path string) (*Meta, error) {
	base := filepath.Base(path)
	logID, err := ParseLogID(base)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir %s: %w", path, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}

	refs := &atomic.Int32{}
	refs.Store(1)
	return &Meta{
		indexID: indexID,
		logID:   logID,
		path:    path,
		files:   files,
		refs:    refs,
	}, nil
}

func (m *Meta) IndexID() uint64   { return m.indexID }
func (m *Meta) LogID() uint64     { return m.logID }
func (m *Meta) Path() string      { return m.path }
func (m *Meta) Files() []string   { return append([]string(nil), m.files...) }
func (m *Meta) MetaPath() string  { return filepath.Join(m.path, metaFileName) }
func (m *Meta) DataPath() string {
	return filepath.Join(m.path, DataFileName(m.indexID, m.logID))
}

// Acquire adds a reference and returns m for chaining.
func (m *Meta) Acquire() *Meta {
	m.refs.Add(1)
	return m
}

// Release drops a reference. When the last reference is dropped the
// backing directory is recursively removed.
func (m *Meta) Release() {
	if m.refs.Add(-1) == 0 {
		if err := os.RemoveAll(m.path); err != nil {
			logs.Warnf("vxsnap: failed to remove snapshot dir %s: %v", m.path, err)
		} else {
			logs.Debugf("vxsnap: removed snapshot dir %s (index %d, log %d)", m.path, m.indexID, m.logID)
		}
	}
}

// WriteMetaFile writes the single-line decimal log id meta file that
// marks a snapshot directory as admitted.
func WriteMetaFile(dir string, logID uint64) error {
	path := filepath.Join(dir, metaFileName)
	return os.WriteFile(path, []byte(strconv.FormatUint(logID, 10)+"\n"), 0644)
}
