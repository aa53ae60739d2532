package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// UnixOrNow returns t as unix seconds, or the current time when t is nil or zero.
func UnixOrNow(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return NowUnix()
	}
	return t.Unix()
}
