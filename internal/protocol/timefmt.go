package protocol

import "time"

// indexTimeLayout is the backend's required timestamp format for score
// submissions: zero-padded day.month.year, 24-hour clock, UTC. The server
// includes this string verbatim in its hash verification, so it must match
// byte-for-byte.
const indexTimeLayout = "02.01.2006 15:04:05"

// FormatIndexTime renders t in the backend's DD.MM.YYYY HH:MM:SS UTC format.
func FormatIndexTime(t time.Time) string {
	return t.UTC().Format(indexTimeLayout)
}
