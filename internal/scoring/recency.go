package scoring

import (
	"math"
	"time"
)

// RecencyWindowDays is the age at which an article's recency reaches zero.
const RecencyWindowDays = 30

// Recency returns 1 - days/30 with days = whole days elapsed (floored).
// Not clamped: stale articles go negative and future-dated ones exceed 1.
func Recency(published, now time.Time) float64 {
	days := math.Floor(now.Sub(published).Hours() / 24)
	return 1 - days/RecencyWindowDays
}
