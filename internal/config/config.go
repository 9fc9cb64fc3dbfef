// Package config loads the server's optional operational tunables. The two
// required connection parameters (port and password) are positional
// command line arguments, not configuration; this package only covers
// knobs that have sane defaults and never need to be set at all.
package config

import (
	"os"
	"time"

	hconfig "github.com/horgh/config"
	"github.com/pkg/errors"
)

// EnvVar is the (optional) environment variable naming a tunables file.
// Its absence is not an error -- Load returns Defaults() in that case.
const EnvVar = "FTIRCD_CONFIG"

// fileConfig mirrors Tunables but with durations expressed in seconds, the
// only numeric shape github.com/horgh/config's reflection-based populator
// understands.
type fileConfig struct {
	IdleTimeoutSeconds  int64
	PingIntervalSeconds int64
	MaxClients          int64
	MaxBufferBytes      int64
	MetricsAddr         string
}

// Tunables holds operational knobs that are not part of the protocol
// surface: how long a client may be idle, how often to sweep for idle
// clients, and where to expose metrics. MaxClients and MaxBufferBytes are
// loaded but not applied by the server: the number of connections is not
// capped, and the inbound buffer cap is the fixed 2048 bytes in package
// ircd.
type Tunables struct {
	IdleTimeout    time.Duration
	PingInterval   time.Duration
	MaxClients     int
	MaxBufferBytes int
	MetricsAddr    string
}

// Defaults returns the tunables used when no config file is supplied.
func Defaults() Tunables {
	return Tunables{
		IdleTimeout:    90 * time.Second,
		PingInterval:   45 * time.Second,
		MaxClients:     4096,
		MaxBufferBytes: 2048,
		MetricsAddr:    ":9090",
	}
}

// Load returns the operational tunables. If the FTIRCD_CONFIG environment
// variable is unset, it returns Defaults() -- no config file is required
// to run the server, matching the CLI surface's "no required env vars"
// rule. If it is set, every field in fileConfig must be present in the
// file, matching github.com/horgh/config's all-fields-required contract.
func Load() (Tunables, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Defaults(), nil
	}

	var fc fileConfig
	if err := hconfig.GetConfig(path, &fc); err != nil {
		return Tunables{}, errors.Wrapf(err, "failed to load config from %s", path)
	}

	return Tunables{
		IdleTimeout:    time.Duration(fc.IdleTimeoutSeconds) * time.Second,
		PingInterval:   time.Duration(fc.PingIntervalSeconds) * time.Second,
		MaxClients:     int(fc.MaxClients),
		MaxBufferBytes: int(fc.MaxBufferBytes),
		MetricsAddr:    fc.MetricsAddr,
	}, nil
}
