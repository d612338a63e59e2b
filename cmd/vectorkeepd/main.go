package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danmuck/vectorkeep/cmd/internal/logcfg"
	"github.com/danmuck/vectorkeep/src/vxconfig"
	"github.com/danmuck/vectorkeep/src/vxindex/memindex"
	"github.com/danmuck/vectorkeep/src/vxkv"
	"github.com/danmuck/vectorkeep/src/vxmaterializer"
	"github.com/danmuck/vectorkeep/src/vxscrub"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/vxtransport"
	"github.com/danmuck/vectorkeep/src/vxwriter"
	"github.com/danmuck/vectorkeep/src/wal"
	logs "github.com/danmuck/smplog"
)

func main() {
	logs.Configure(logcfg.Load())

	configPath := flag.String("config", "local/vectorkeepd.config.toml", "config file path")
	flag.Parse()

	cfg, err := vxconfig.Load(*configPath)
	if err != nil {
		logs.Warnf("vectorkeepd: %v, falling back to defaults", err)
		cfg = vxconfig.Default()
	}

	kv, err := vxkv.Open(cfg.IndexPath + "/vectorkeep.db")
	if err != nil {
		logs.Fatalf(err, "failed to open kv store")
	}
	defer kv.Close()

	registry := vxsnap.NewRegistry(cfg.IndexPath)
	readers := vxsnap.NewReaderRegistry()
	manager := vxmaterializer.NewManager()

	matCfg := vxmaterializer.DefaultConfig()
	matCfg.LoadOrBuildConcurrency = cfg.LoadOrBuildVectorIndexConcurrency
	matCfg.BuildBatchSize = cfg.BuildVectorIndexBatchSize
	matCfg.EnableFollowerHoldIndex = cfg.EnableFollowerHoldIndex

	log := wal.NewMemLog()
	factory := memindex.New(memindex.DefaultConfig())
	mat := vxmaterializer.New(matCfg, registry, kv, kv, log, factory, manager, func() bool { return true })

	// Regions are registered by whatever delivers cluster membership
	// (raft config change, control-plane RPC); none are known at boot.
	regions := []vxmaterializer.Region{}
	if err := mat.ParallelLoadOrBuild(regions); err != nil {
		logs.Warnf("vectorkeepd: %v", err)
	}

	server, err := vxtransport.NewServer(addr(cfg), readers)
	if err != nil {
		logs.Fatalf(err, "failed to start transport server")
	}
	go func() {
		if err := server.Serve(); err != nil {
			logs.Warnf("vectorkeepd: transport server stopped: %v", err)
		}
	}()
	logs.Infof("vectorkeepd: transport listening on %s", server.Addr())

	writer := vxwriter.New(registry, log)
	scrubCfg := vxscrub.DefaultConfig()
	scrubCfg.Interval = time.Duration(cfg.ScrubVectorIndexIntervalSeconds) * time.Second
	scrubber := vxscrub.New(scrubCfg, registry, manager, writer, mat, regions)

	ctx, cancel := context.WithCancel(context.Background())
	go scrubber.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	<-sig
	logs.Infof("vectorkeepd: shutting down")
	cancel()
	if err := server.Close(); err != nil {
		logs.Errorf(err, "transport server close error")
	}
}

func addr(cfg vxconfig.Config) string {
	if cfg.Server.Host == "" {
		return ":0"
	}
	return cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
}
