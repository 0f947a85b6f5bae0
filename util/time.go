package util

import (
	"time"
)

// UpSince is the process start time.
var UpSince = time.Now()

// UptimeInString returns the uptime rounded to whole seconds, e.g. "3h2m1s".
func UptimeInString() string {
	return Uptime().Truncate(time.Second).String()
}

func Uptime() time.Duration {
	return time.Since(UpSince)
}

// NowInSec returns the wall clock as fractional Unix seconds.
func NowInSec() float64 {
	return float64(time.Now().UnixMicro()) / 1e6
}
