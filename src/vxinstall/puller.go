package vxinstall

import (
	"github.com/danmuck/vectorkeep/src/vxerr"
	logs "github.com/danmuck/smplog"
)

// Puller is the follower-driven pull side: probe peers, download from
// whichever has the highest snapshot log id.
type Puller struct {
	downloader *Downloader
}

func NewPuller(d *Downloader) *Puller {
	return &Puller{downloader: d}
}

type candidate struct {
	peer  Peer
	logID uint64
	uri   string
	meta  TransferMeta
}

// PullLastFromPeers probes every peer for its newest snapshot of
// indexID and downloads from whichever has the greatest log id.
func (p *Puller) PullLastFromPeers(indexID uint64, peers []Peer) error {
	var best *candidate
	for _, peer := range peers {
		uri, meta, err := peer.GetVectorIndexSnapshot(indexID)
		if err != nil {
			logs.Warnf("vxinstall: probe %s failed: %v", peer.Endpoint(), err)
			continue
		}
		if best == nil || meta.LogID > best.logID {
			best = &candidate{peer: peer, logID: meta.LogID, uri: uri, meta: meta}
		}
	}
	if best == nil || best.logID == 0 {
		return nil
	}

	if err := p.downloader.Download(indexID, best.uri, best.meta); err != nil {
		return err
	}

	if _, readerID := ParseURI(best.uri); readerID != 0 {
		if err := best.peer.CleanFileReader(readerID); err != nil {
			logs.Warnf("vxinstall: clean reader on %s: %v", best.peer.Endpoint(), err)
		}
	}
	return nil
}

// HandlePull is the peer side of GetVectorIndexSnapshot: build and
// register a reader handle for the local newest snapshot.
func HandlePull(in *Installer, indexID uint64) (uri string, meta TransferMeta, err error) {
	snapMeta, ok := in.registry.GetLast(indexID)
	if !ok {
		return "", TransferMeta{}, vxerr.New(vxerr.SnapshotNotFound, "no local snapshot")
	}
	defer snapMeta.Release()

	readerID := in.readers.Add(snapMeta)
	uri, err = BuildURI(in.host, in.port, readerID)
	if err != nil {
		in.readers.Delete(readerID)
		return "", TransferMeta{}, err
	}
	meta = TransferMeta{IndexID: indexID, LogID: snapMeta.LogID(), Filenames: snapMeta.Files()}
	return uri, meta, nil
}
