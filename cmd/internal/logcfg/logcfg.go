package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

const envConfigPath = "VECTORKEEPD_LOG_CONFIG"

// candidatePaths, in the order Load tries them once the env override
// misses: a deployment-supplied override checked into the working
// directory, then an untracked developer-local one.
var candidatePaths = []string{
	"./vectorkeepd.log.toml",
	"./local/vectorkeepd.log.toml",
}

// Load resolves vectorkeepd's logging configuration: an explicit path
// from VECTORKEEPD_LOG_CONFIG, then the first readable candidate path,
// falling back to smplog's built-in defaults if nothing is found.
func Load() logs.Config {
	if path := os.Getenv(envConfigPath); path != "" {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	for _, path := range candidatePaths {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	return logs.DefaultConfig()
}
