package utils

import (
	"time"
)

// Scheduling constants
const (
	// DefaultPollInterval is the default ticker interval for all pollers
	DefaultPollInterval = 30 * time.Second

	// DefaultBatchSize is the default cursor batch size for pollers
	DefaultBatchSize = 50

	// MaxBatchSize caps poller batch sizes to bound memory per cycle
	MaxBatchSize = 100

	// DefaultConcurrencyLimit is the default shared dispatch parallelism
	DefaultConcurrencyLimit = 16

	// DefaultProcessingTimeout is how long a queue entry may sit in
	// processing before the reclaim sweep returns it to pending
	DefaultProcessingTimeout = 15 * time.Minute

	// ContactLockTTL bounds how long a chain-advance lock may be held
	ContactLockTTL = 30 * time.Second
)
