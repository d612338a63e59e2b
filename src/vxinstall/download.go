package vxinstall

import (
	"fmt"
	"os"
	"time"

	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/vxtransport"
	logs "github.com/danmuck/smplog"
)

// Downloader runs the download procedure shared by install-receive and
// pull: stream every file named in a TransferMeta into a fresh tmp
// directory, then admit it into the local registry under the same
// tmp-dir-then-rename discipline the writer uses.
type Downloader struct {
	registry  *vxsnap.Registry
	transport *vxtransport.Client
}

func NewDownloader(registry *vxsnap.Registry, transport *vxtransport.Client) *Downloader {
	return &Downloader{registry: registry, transport: transport}
}

// Download fetches the snapshot described by meta from uri and admits
// it into the registry. A snapshot already present at or beyond
// meta.LogID is reported as SnapshotExist and is a no-op.
func (d *Downloader) Download(indexID uint64, uri string, meta TransferMeta) error {
	endpoint, readerID := ParseURI(uri)
	if endpoint == "" || readerID == 0 {
		return vxerr.New(vxerr.IllegalParameters, "malformed snapshot uri")
	}

	if d.registry.IsExist(indexID, meta.LogID) {
		return vxerr.New(vxerr.SnapshotExist, "already have this snapshot or newer")
	}

	indexDir := d.registry.IndexDir(indexID)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return vxerr.Wrap(vxerr.Internal, "mkdir index dir", err)
	}
	tmpDir := fmt.Sprintf("%s/tmp_%d", indexDir, time.Now().UnixNano())
	if err := os.RemoveAll(tmpDir); err != nil {
		return vxerr.Wrap(vxerr.Internal, "clear stale tmp dir", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return vxerr.Wrap(vxerr.Internal, "create tmp dir", err)
	}

	for _, filename := range meta.Filenames {
		if err := d.transport.FetchFile(endpoint, readerID, filename, tmpDir); err != nil {
			os.RemoveAll(tmpDir)
			return vxerr.Wrap(vxerr.Internal, "fetch "+filename, err)
		}
	}

	// This re-check narrows but does not close the race: a writer that
	// admits the same log id between here and the rename below makes the
	// rename or the registry.Add below fail. There is no cross-writer
	// lock.
	if d.registry.IsExist(indexID, meta.LogID) {
		return vxerr.New(vxerr.SnapshotExist, "admitted concurrently")
	}

	finalDir := fmt.Sprintf("%s/%s", indexDir, vxsnap.DirName(meta.LogID))
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return vxerr.Wrap(vxerr.Internal, "rename snapshot dir", err)
	}

	stale := d.registry.GetAll(indexID)
	newMeta, err := vxsnap.NewMeta(indexID, finalDir)
	if err != nil {
		for _, s := range stale {
			s.Release()
		}
		return vxerr.Wrap(vxerr.Internal, "init snapshot meta", err)
	}
	if !d.registry.Add(newMeta) {
		newMeta.Release()
		for _, s := range stale {
			s.Release()
		}
		return vxerr.New(vxerr.SnapshotExist, "admitted concurrently")
	}
	for _, s := range stale {
		d.registry.Delete(s)
		s.Release()
	}

	logs.Infof("vxinstall: downloaded snapshot index=%d log=%d from %s", indexID, meta.LogID, endpoint)
	return nil
}
