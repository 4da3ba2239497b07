package adapter

import "time"

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

func unixToTime(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0)
}

// ttlSeconds converts go-redis's TTL sentinel durations (-1 = no expiry,
// -2 = key absent) to the adapter contract's -1/-2 second values.
func ttlSeconds(d time.Duration) int64 {
	switch {
	case d == -1:
		return -1
	case d < 0:
		return -2
	default:
		return int64(d / time.Second)
	}
}

func pttlMillis(d time.Duration) int64 {
	switch {
	case d == -1:
		return -1
	case d < 0:
		return -2
	default:
		return d.Milliseconds()
	}
}
