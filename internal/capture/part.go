// Package capture records live broadcasts by polling the variant playlist,
// grouping advertised parts into numbered segments, and downloading each
// completed segment into the output directory. Segment numbering mirrors
// the platform's own archive reconstruction so captured files merge
// seamlessly with permanently archived ones.
package capture

import (
	"time"
)

const (
	// partNominalDuration is the advertised length of every mid-broadcast
	// part. Only the closing part of a broadcast is expected to be shorter.
	partNominalDuration = 2 * time.Second

	// labelLive tags content parts. Anything else is inserted material such
	// as advertisements and is dropped.
	labelLive = "live"

	// partsPerSegment is the number of parts making up one full segment,
	// matching the platform's 10 second archive segments.
	partsPerSegment = 5
)

// Part is one advertised piece of the broadcast. Parts are identified
// solely by URL: the playlist re-advertises recent parts on every poll, and
// the URL is what makes duplicate suppression work.
type Part struct {
	URL       string
	Timestamp time.Time
	Duration  time.Duration
	Label     string
}

// wallClockUTC reinterprets t's wall-clock reading as UTC, dropping the
// zone offset instead of converting through it. Playlist timestamps and the
// gateway's creation times must shift identically or the segment id
// arithmetic drifts by the zone offset.
func wallClockUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
