// Package vxwriter orchestrates point-in-time snapshot capture.
// Process-wide fork-based isolation is not available here, so the
// write lock is held only across a bounded copy-on-write handoff
// inside the Index collaborator's Save, followed by background
// serialization reported through a channel.
package vxwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxindex"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/wal"
	logs "github.com/danmuck/smplog"
)

// Writer runs the capture protocol against one IndexId's registry.
type Writer struct {
	registry *vxsnap.Registry
	log      wal.Log
}

func New(registry *vxsnap.Registry, log wal.Log) *Writer {
	return &Writer{registry: registry, log: log}
}

type saveResult struct {
	err error
}

// Run captures, admits, and rotates a snapshot for idx at its current
// ApplyLogIndex. On success it returns the admitted LogId.
func (w *Writer) Run(indexID uint64, idx vxindex.Index) (uint64, error) {
	if idx.SnapshotDoing() {
		return 0, vxerr.New(vxerr.Busy, "snapshot already in progress")
	}
	idx.SetSnapshotDoing(true)
	defer idx.SetSnapshotDoing(false)

	indexDir := w.registry.IndexDir(indexID)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return 0, vxerr.Wrap(vxerr.Internal, "mkdir index dir", err)
	}

	idx.LockWrite()
	applyLogID := idx.ApplyLogIndex()
	if w.registry.IsExist(indexID, applyLogID) {
		idx.UnlockWrite()
		return applyLogID, nil
	}

	tmpDir := filepath.Join(indexDir, fmt.Sprintf("tmp_%d", time.Now().UnixNano()))
	if err := os.RemoveAll(tmpDir); err != nil {
		idx.UnlockWrite()
		return 0, vxerr.Wrap(vxerr.Internal, "clear stale tmp dir", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		idx.UnlockWrite()
		return 0, vxerr.Wrap(vxerr.Internal, "create tmp dir", err)
	}

	dataPath := filepath.Join(tmpDir, vxsnap.DataFileName(indexID, applyLogID))
	result := make(chan saveResult, 1)
	copied := make(chan struct{})

	// This is the fork barrier: the write lock stays held until Save
	// signals copied, which it does the instant its bounded internal
	// copy is taken — that is the actual point-in-time boundary, so it
	// is what applyLogID above must stay atomic with. Everything after
	// copied fires (encode, disk write) runs unlocked in the background
	// goroutine below.
	go func() {
		result <- saveResult{err: idx.Save(dataPath, copied)}
	}()
	<-copied
	idx.UnlockWrite()

	res := <-result
	if res.err != nil && !vxerr.Is(res.err, vxerr.NotSupported) {
		os.RemoveAll(tmpDir)
		return 0, vxerr.Wrap(vxerr.Internal, "save index", res.err)
	}
	// An index kind with nothing to persist reports NotSupported; admit
	// the snapshot directory anyway (without a data file) so callers see
	// forward progress at applyLogID, matching the original's
	// EVECTOR_NOT_SUPPORT -> OK mapping.
	if res.err != nil {
		logs.Debugf("vxwriter: index %d does not support save, admitting log-only snapshot at log=%d", indexID, applyLogID)
	}

	if err := vxsnap.WriteMetaFile(tmpDir, applyLogID); err != nil {
		os.RemoveAll(tmpDir)
		return 0, vxerr.Wrap(vxerr.Internal, "write meta file", err)
	}

	finalDir := filepath.Join(indexDir, vxsnap.DirName(applyLogID))
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return 0, vxerr.Wrap(vxerr.Internal, "rename snapshot dir", err)
	}

	stale := w.registry.GetAll(indexID)

	newMeta, err := vxsnap.NewMeta(indexID, finalDir)
	if err != nil {
		for _, s := range stale {
			s.Release()
		}
		return 0, vxerr.Wrap(vxerr.Internal, "init snapshot meta", err)
	}

	if !w.registry.Add(newMeta) {
		newMeta.Release()
		for _, s := range stale {
			s.Release()
		}
		return 0, vxerr.New(vxerr.SnapshotExist, "concurrent snapshot admitted")
	}

	for _, s := range stale {
		w.registry.Delete(s)
		s.Release()
	}

	idx.SetSnapshotLogIndex(applyLogID)
	if w.log != nil {
		w.log.SetVectorIndexTruncateLogIndex(indexID, applyLogID)
	}

	logs.Infof("vxwriter: admitted snapshot index=%d log=%d, rotated %d stale", indexID, applyLogID, len(stale))
	return applyLogID, nil
}
