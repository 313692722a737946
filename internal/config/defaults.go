package config

import "time"

// Built-in defaults, the last layer of the resolution chain.
const (
	defaultRecursive  = true
	defaultDestSub    = ""
	defaultMaxRetries = 3
	defaultRetryDelay = 100 * time.Millisecond
	defaultDeployMode = DeployModeAuto
	autoNamePrefix    = "I"
)
