// Package vxconfig decodes the recognized configuration options for
// the snapshot subsystem from a TOML file, following a flat
// struct-plus-Default-constructor shape.
package vxconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config controls every recognized daemon-level option.
type Config struct {
	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`

	IndexPath string `toml:"index_path"`

	EnableFollowerHoldIndex bool `toml:"enable_follower_hold_index"`

	LoadOrBuildVectorIndexConcurrency int `toml:"load_or_build_vector_index_concurrency"`
	BuildVectorIndexBatchSize         int `toml:"build_vector_index_batch_size"`
	FileTransportChunkSize            int `toml:"file_transport_chunk_size"`
	ScrubVectorIndexIntervalSeconds   int `toml:"scrub_vector_index_interval_s"`
}

// Default returns a Config with the same defaults the materializer,
// scrubber, and transport packages fall back to when unconfigured.
func Default() Config {
	var c Config
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 9500
	c.IndexPath = "local/vector_index"
	c.EnableFollowerHoldIndex = true
	c.LoadOrBuildVectorIndexConcurrency = 4
	c.BuildVectorIndexBatchSize = 10000
	c.FileTransportChunkSize = 4 << 20
	c.ScrubVectorIndexIntervalSeconds = 30
	return c
}

// Load decodes path over Default(), so an incomplete file still yields
// sane values for anything it omits.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("vxconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}
