package utils

import (
	"time"
)

// UTCNow returns the current instant in UTC. All persisted timestamps and
// window calculations go through this so the engine never compares wall
// clocks across zones.
func UTCNow() time.Time {
	return time.Now().UTC()
}
