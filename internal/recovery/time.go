package recovery

import "time"

// isoLayout parses the second-precision ISO-8601 timestamp with explicit
// time-zone designator the protocol uses for issuedTime, e.g.
// "2017-01-31T15:04:05+00:00". Go's "Z07:00" directive accepts either "Z"
// or a numeric offset on the way in.
const isoLayout = "2006-01-02T15:04:05Z07:00"

// nowISO formats the current UTC time with the "-07:00" directive, which
// always renders a numeric offset ("+00:00") rather than the "Z" that
// isoLayout (like time.RFC3339) would emit for UTC.
func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05-07:00")
}

func parseISO(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}
