package autodelete

import (
	"context"
	"math"
	"time"
)

// Schedule defaults.
const (
	DefaultWakeHour   = 1
	DefaultJitter     = 30 * time.Minute
	DefaultRetryDelay = 5 * time.Minute

	waitFraction   = 0.75
	exactWaitBelow = 30 * time.Minute
	wakeMargin     = time.Minute
)

// Cutoff returns local midnight of now's day minus days. Whole days are
// subtracted on the calendar so the result stays at midnight across DST
// changes; any fractional part is subtracted as a plain duration.
func Cutoff(now time.Time, days float64) time.Time {
	days = math.Abs(days)
	whole := math.Floor(days)
	frac := time.Duration((days - whole) * float64(24*time.Hour))

	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -int(whole)).Add(-frac)
}

// NextWake is hour:00 on the day after now, plus offset.
func NextWake(now time.Time, hour int, offset time.Duration) time.Time {
	y, m, d := now.AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, now.Location()).Add(offset)
}

// nextWait is how long to sleep when remaining is left before the wake
// time. Long sleeps are split so clock drift and suspend get corrected.
func nextWait(remaining time.Duration) time.Duration {
	wait := time.Duration(float64(remaining) * waitFraction)
	if wait < exactWaitBelow {
		wait = remaining + wakeMargin
	}
	return wait
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
