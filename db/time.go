package db

import "time"

// timeLayout is a fixed-width UTC format so lexicographic ordering of
// stored timestamps matches chronological ordering, which lets the
// session/timestamp index serve ORDER BY directly.
const timeLayout = "2006-01-02 15:04:05.000000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
