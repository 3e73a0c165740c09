package common

import "time"

// DtTxtLayout is the provider's human-readable timestamp layout, also used for
// alert dates.
const DtTxtLayout = "2006-01-02 15:04:05"

// IsLocalMidnight reports whether t falls exactly on 00:00:00 in loc.
func IsLocalMidnight(t time.Time, loc *time.Location) bool {
	lt := t.In(orUTC(loc))
	return lt.Hour() == 0 && lt.Minute() == 0 && lt.Second() == 0
}

// FormatUnix renders epoch seconds in loc using layout.
func FormatUnix(sec int64, loc *time.Location, layout string) string {
	return time.Unix(sec, 0).In(orUTC(loc)).Format(layout)
}

// LocalHour returns the hour of day of epoch seconds in loc.
func LocalHour(sec int64, loc *time.Location) int {
	return time.Unix(sec, 0).In(orUTC(loc)).Hour()
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
