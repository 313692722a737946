// Package config resolves watch-instance configuration. Values come from a
// sectioned key-value store (TOML or YAML file) and from CLI overrides, in
// the priority order CLI -> instance section -> default section -> built-in
// default. The result of resolution is an immutable Instance.
package config

import (
	"errors"
	"regexp"
	"time"
)

// ErrConfiguration marks every error caused by bad or missing configuration:
// a missing required key, an unparsable value or an invalid filter pattern.
var ErrConfiguration = errors.New("configuration error")

// Recognized configuration keys. The same names are used in config files and
// as long CLI flags.
const (
	KeySource        = "source"
	KeyJBossHome     = "jbossHome"
	KeyPackagePrefix = "destPackagePrefix"
	KeyDestSub       = "destSub"
	KeyRecursive     = "recursive"
	KeyFilter        = "filter"
	KeyLogLevel      = "logLevel"
	KeyName          = "name"
	KeyFixedTarget   = "fixedTarget"
	KeyWatchFrom     = "watchFrom"
	KeyMaxRetries    = "maxRetries"
	KeyRetryDelay    = "retryDelay"
	KeyDeployMode    = "deployMode"
	KeyReconcile     = "reconcile"
)

// DefaultSectionNames lists the section names that hold shared fallback
// values instead of defining an instance.
var DefaultSectionNames = []string{"config", "default", "root"}

// Deploy modes accepted by the deployMode key.
const (
	DeployModeAuto     = "auto"
	DeployModeFixed    = "fixed"
	DeployModeDiscover = "discover"
)

// TargetMode selects how the deployment root of an instance is found.
type TargetMode int

const (
	// TargetDiscover locates the exploded package under the server home.
	TargetDiscover TargetMode = iota
	// TargetFixed uses a configured directory as-is.
	TargetFixed
)

func (m TargetMode) String() string {
	if m == TargetFixed {
		return "fixed"
	}

	return "discover"
}

// TargetSpec holds the parameters needed to (re)compute a deployment root.
type TargetSpec struct {
	Mode          TargetMode
	FixedDir      string // TargetFixed only
	ServerHome    string // TargetDiscover only
	PackagePrefix string // TargetDiscover only
}

// Instance is the fully resolved configuration of one watch instance.
// It is built once by Resolver.Resolve and never modified afterwards.
type Instance struct {
	Name       string
	Source     string // absolute watch root; reflection is relative to it
	WatchFrom  string // absolute directory where watching starts, inside Source
	Recursive  bool
	Filter     *regexp.Regexp // nil when no filter is configured
	Target     TargetSpec
	DestSub    string // appended under the resolved target root
	MaxRetries int
	RetryDelay time.Duration
	Reconcile  string // cron expression, empty when disabled
}
