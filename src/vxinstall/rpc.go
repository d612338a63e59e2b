// Package vxinstall implements the leader-push (Installer) and
// follower-pull (Puller) sides of peer-to-peer snapshot replication,
// built on vxtransport for the actual byte transfer, with the
// TransferMeta descriptor and a Peer interface covering the three
// snapshot RPCs this subsystem sends.
package vxinstall

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/danmuck/vectorkeep/src/vxerr"
)

// TransferMeta is the wire descriptor exchanged alongside a snapshot
// URI: which index, which log id, and which files make up the
// snapshot.
type TransferMeta struct {
	IndexID   uint64   `json:"index_id"`
	LogID     uint64   `json:"snapshot_log_index"`
	Filenames []string `json:"filenames"`
}

// BuildURI renders the remote://host:port/reader_id snapshot URI.
func BuildURI(host string, port int, readerID uint64) (string, error) {
	if host == "" || port == 0 {
		return "", vxerr.New(vxerr.IllegalParameters, "missing host or port")
	}
	return fmt.Sprintf("remote://%s:%d/%d", host, port, readerID), nil
}

// ParseURI splits a remote://host:port/reader_id URI. A malformed URI
// yields a zero endpoint and reader id 0 — callers must reject those,
// never silently proceed. The host segment must be a valid host:port
// pair; a bare host with no port (e.g. "remote://x/9") is malformed,
// not a valid endpoint with an implied port. A URI without the
// remote:// scheme is malformed as well.
func ParseURI(uri string) (endpoint string, readerID uint64) {
	trimmed, ok := strings.CutPrefix(uri, "remote://")
	if !ok {
		return "", 0
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return "", 0
	}
	if _, _, err := net.SplitHostPort(parts[0]); err != nil {
		return "", 0
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0
	}
	return parts[0], id
}

// Peer is the RPC client surface this subsystem needs from whatever
// sits between it and the wire — a thin seam so vxinstall does not
// depend on a concrete RPC framework.
type Peer interface {
	Endpoint() string

	InstallVectorIndexSnapshot(uri string, meta TransferMeta) error
	GetVectorIndexSnapshot(indexID uint64) (uri string, meta TransferMeta, err error)
	CleanFileReader(readerID uint64) error
}
