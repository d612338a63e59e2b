// Package vxscrub runs the periodic per-index policy loop deciding
// whether an index needs a fresh snapshot, a full rebuild, or neither.
// Rebuild takes priority over save when both are indicated, and the
// loop only acts on indexes currently in the Normal status.
package vxscrub

import (
	"context"
	"time"

	"github.com/danmuck/vectorkeep/src/vxindex"
	"github.com/danmuck/vectorkeep/src/vxmaterializer"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/vxwriter"
	logs "github.com/danmuck/smplog"
	"github.com/sourcegraph/conc/pool"
)

// Config bounds the scrub sweep's period and fan-out. Concurrency is
// kept smaller than the materializer's boot-time load concurrency —
// a sweep runs far more often than a boot-time load and should not
// compete with it for a burst of disk I/O.
type Config struct {
	Interval    time.Duration
	Concurrency int
}

func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Concurrency: 2}
}

// Scrubber owns the periodic sweep across a fixed set of regions.
type Scrubber struct {
	cfg      Config
	registry *vxsnap.Registry
	manager  *vxmaterializer.Manager
	writer   *vxwriter.Writer
	mat      *vxmaterializer.Materializer
	regions  []vxmaterializer.Region
}

func New(cfg Config, registry *vxsnap.Registry, manager *vxmaterializer.Manager, writer *vxwriter.Writer, mat *vxmaterializer.Materializer, regions []vxmaterializer.Region) *Scrubber {
	return &Scrubber{cfg: cfg, registry: registry, manager: manager, writer: writer, mat: mat, regions: regions}
}

// Run sweeps on cfg.Interval until ctx is cancelled.
func (s *Scrubber) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass over every configured region. Per-region errors
// are logged and do not abort the sweep.
func (s *Scrubber) Sweep() {
	p := pool.New().WithMaxGoroutines(s.cfg.Concurrency)
	for _, r := range s.regions {
		r := r
		p.Go(func() {
			if err := s.scrubOne(r); err != nil {
				logs.Warnf("vxscrub: index %d: %v", r.IndexID, err)
			}
		})
	}
	p.Wait()
}

func (s *Scrubber) scrubOne(r vxmaterializer.Region) error {
	idx, ok := s.manager.Get(r.IndexID)
	if !ok || idx.Status() != vxindex.Normal {
		return nil
	}

	lastSnapshotLogID := uint64(0)
	if meta, ok := s.registry.GetLast(r.IndexID); ok {
		lastSnapshotLogID = meta.LogID()
		meta.Release()
	}

	applyLogIndex := idx.ApplyLogIndex()
	lag := uint64(0)
	if applyLogIndex > lastSnapshotLogID {
		lag = applyLogIndex - lastSnapshotLogID
	}

	needRebuild := idx.NeedRebuild(lag)
	needSave := idx.NeedSave(lag)

	switch {
	case needRebuild:
		logs.Infof("vxscrub: index %d: rebuilding (lag=%d)", r.IndexID, lag)
		_, err := s.mat.Rebuild(r, needSave)
		return err
	case needSave:
		logs.Infof("vxscrub: index %d: saving (lag=%d)", r.IndexID, lag)
		_, err := s.writer.Run(r.IndexID, idx)
		return err
	default:
		return nil
	}
}
