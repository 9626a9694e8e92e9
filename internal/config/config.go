// Package config loads runtime knobs using flag for CLI-overridable
// fields plus os.Getenv fallbacks. No YAML/viper layer is introduced;
// the knob set is small enough that flags and environment variables
// cover it.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds every runtime knob the engine's ambient stack needs.
type Config struct {
	// KeysPerSegment bounds entries per snapshot segment file.
	KeysPerSegment int
	// SnapshotWorkers bounds concurrent segment writers.
	SnapshotWorkers int
	// SnapshotDir is parsed from flags and the environment but is not read
	// by cmd/engined, whose snapshot endpoints take the directory from each
	// request body.
	SnapshotDir string
	// ListenAddr is the debug HTTP surface's bind address.
	ListenAddr string
	// Env gates pretty-console vs JSON logging ("dev" or "prod").
	Env string
}

// Default returns the engine's out-of-the-box configuration.
func Default() Config {
	return Config{
		KeysPerSegment:  1000,
		SnapshotWorkers: 1,
		SnapshotDir:     "./snapshots",
		ListenAddr:      ":8090",
		Env:             "prod",
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// FromFlags parses args (typically os.Args[1:]) against a fresh FlagSet
// seeded with ENGINE_* (and, for Env, ENV) environment-variable
// fallbacks, then defaults.
// name is used as the flag set's name for usage output.
func FromFlags(name string, args []string) (Config, error) {
	def := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	keysPerSegment := fs.Int("keys-per-segment", envInt("ENGINE_KEYS_PER_SEGMENT", def.KeysPerSegment), "max entries per snapshot segment file")
	snapshotWorkers := fs.Int("snapshot-workers", envInt("ENGINE_SNAPSHOT_WORKERS", def.SnapshotWorkers), "max concurrent segment writers during snapshot save")
	snapshotDir := fs.String("snapshot-dir", envString("ENGINE_SNAPSHOT_DIR", def.SnapshotDir), "directory snapshot save/load operate in")
	listenAddr := fs.String("listen-addr", envString("ENGINE_LISTEN_ADDR", def.ListenAddr), "debug HTTP surface bind address")
	env := fs.String("env", envString("ENV", def.Env), "dev or prod; gates logging format")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return Config{
		KeysPerSegment:  *keysPerSegment,
		SnapshotWorkers: *snapshotWorkers,
		SnapshotDir:     *snapshotDir,
		ListenAddr:      *listenAddr,
		Env:             *env,
	}, nil
}
