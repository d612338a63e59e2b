package vxinstall

import (
	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	logs "github.com/danmuck/smplog"
)

// Installer is the leader-driven push side: advertise the local
// newest snapshot for an index and have each follower pull it.
type Installer struct {
	registry *vxsnap.Registry
	readers  *vxsnap.ReaderRegistry
	host     string
	port     int
}

func NewInstaller(registry *vxsnap.Registry, readers *vxsnap.ReaderRegistry, host string, port int) *Installer {
	return &Installer{registry: registry, readers: readers, host: host, port: port}
}

// InstallToPeer pushes the newest local snapshot for indexID to peer.
func (in *Installer) InstallToPeer(peer Peer, indexID uint64) error {
	meta, ok := in.registry.GetLast(indexID)
	if !ok {
		return vxerr.New(vxerr.SnapshotNotFound, "no local snapshot")
	}
	defer meta.Release()

	readerID := in.readers.Add(meta)
	defer in.readers.Delete(readerID)

	uri, err := BuildURI(in.host, in.port, readerID)
	if err != nil {
		return err
	}

	transferMeta := TransferMeta{IndexID: indexID, LogID: meta.LogID(), Filenames: meta.Files()}
	if err := peer.InstallVectorIndexSnapshot(uri, transferMeta); err != nil {
		return err
	}
	return nil
}

// InstallToAllFollowers pushes to every peer in peers; it does not
// filter out the local node. Per-peer errors are logged and do not
// abort the loop.
func (in *Installer) InstallToAllFollowers(indexID uint64, peers []Peer) {
	for _, peer := range peers {
		if err := in.InstallToPeer(peer, indexID); err != nil {
			if vxerr.Is(err, vxerr.NotNeedSnapshot) || vxerr.Is(err, vxerr.SnapshotExist) {
				logs.Debugf("vxinstall: peer %s: %v", peer.Endpoint(), err)
				continue
			}
			logs.Warnf("vxinstall: install to %s failed: %v", peer.Endpoint(), err)
		}
	}
}

// HasLocalIndex reports whether the receiver already has an in-memory
// index for indexID — the receiver side uses this to short-circuit an
// unneeded install.
type HasLocalIndex func(indexID uint64) bool

// HandleInstallSnapshot is the receiver side of InstallVectorIndexSnapshot.
func HandleInstallSnapshot(d *Downloader, hasLocal HasLocalIndex, indexID uint64, uri string, meta TransferMeta) error {
	if hasLocal(indexID) {
		return vxerr.New(vxerr.NotNeedSnapshot, "already have a local index")
	}
	return d.Download(indexID, uri, meta)
}
