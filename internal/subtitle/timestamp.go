package subtitle

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTimestamp is returned for negative, NaN or infinite seconds.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

const (
	millisPerSecond = 1000
	millisPerMinute = 60 * millisPerSecond
	millisPerHour   = 60 * millisPerMinute
)

// largest millisecond count that still fits an int64 nanosecond duration
var maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// floorSlack absorbs binary representation error when scaling to
// milliseconds. It is far below one microsecond.
const floorSlack = 1e-6

// FormatTimestamp renders seconds as an SRT clock, HH:MM:SS,mmm.
// Hours widen past two digits instead of wrapping.
func FormatTimestamp(seconds float64) (string, error) {
	d, err := toDuration(seconds)
	if err != nil {
		return "", err
	}
	return formatClock(d, ','), nil
}

// FormatVTTTimestamp renders seconds as a WebVTT clock, HH:MM:SS.mmm.
func FormatVTTTimestamp(seconds float64) (string, error) {
	d, err := toDuration(seconds)
	if err != nil {
		return "", err
	}
	return formatClock(d, '.'), nil
}

// toDuration converts seconds to a whole-millisecond duration by flooring.
// A tolerance of a few ulps keeps 5.007 (stored as 5.00699999...) at 5007ms
// while 59.9999999 still floors to 59999ms.
func toDuration(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("%w %v", ErrInvalidTimestamp, seconds)
	}

	millis := math.Floor(seconds*millisPerSecond + floorSlack)
	if millis >= maxMillis {
		return 0, fmt.Errorf("%w %v: out of range", ErrInvalidTimestamp, seconds)
	}
	return time.Duration(millis) * time.Millisecond, nil
}

func formatClock(d time.Duration, sep byte) string {
	ms := d.Milliseconds()

	hours := ms / millisPerHour
	minutes := ms % millisPerHour / millisPerMinute
	secs := ms % millisPerMinute / millisPerSecond
	millis := ms % millisPerSecond

	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, millis)
}
