// Package vxraft declares the minimal view this subsystem needs of a
// Raft-replicated group. Raft consensus itself is an external
// collaborator, entirely out of scope here — this is an
// interface-only seam, not an implementation.
package vxraft

// Peer identifies one member of a Raft group.
type Peer struct {
	ID   uint64
	Host string
	Port int
}

// Node is the view of the local Raft group this subsystem consumes:
// who the peers are, which one is self, and whether self currently
// holds leadership.
type Node interface {
	Peers() []Peer
	SelfPeer() Peer
	IsLeader() bool
}
