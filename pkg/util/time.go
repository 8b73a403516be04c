package util

import "fmt"

// ParseTime splits a duration in milliseconds into days, hours, minutes and
// seconds. Sub-second remainders are dropped.
//
// Example:
//
//	ParseTime(90061000) // 1, 1, 1, 1
func ParseTime(ms int64) (days, hours, minutes, seconds int64) {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	days, s = s/86400, s%86400
	hours, s = s/3600, s%3600
	minutes, seconds = s/60, s%60
	return
}

// FormatTime renders a duration in milliseconds as HH:MM:SS. Hours are not
// wrapped at 24, so a 25 hour stream shows as 25:00:00.
func FormatTime(ms int64) string {
	d, h, m, s := ParseTime(ms)
	return fmt.Sprintf("%02d:%02d:%02d", d*24+h, m, s)
}

