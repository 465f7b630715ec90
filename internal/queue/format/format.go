// Package format renders task fields for display.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration formats a length in seconds as m:ss. Minutes are not wrapped into
// hours, so an hour-long track reads 60:00.
func Duration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// DurationString is Duration for the string-encoded lengths carried by tasks.
// Anything that is not a non-negative integer renders as 0:00.
func DurationString(seconds string) string {
	n, err := strconv.Atoi(strings.TrimSpace(seconds))
	if err != nil {
		return Duration(0)
	}
	return Duration(n)
}

// LastSeen describes how long ago t was, relative to now, in the largest
// whole unit: seconds, minutes, hours or days.
func LastSeen(t, now time.Time) string {
	diff := int64(now.Sub(t) / time.Second)
	switch {
	case diff < 60:
		return fmt.Sprintf("%ds ago", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh ago", diff/3600)
	default:
		return fmt.Sprintf("%dd ago", diff/86400)
	}
}
