package types

import "time"

// 100ns intervals between 1601-01-01 and 1970-01-01.
const filetimeUnixDiff = 116444736000000000

// TimeToFiletime converts t to a Windows FILETIME. The zero time maps to 0.
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + filetimeUnixDiff
}

// FiletimeToTime is the inverse of TimeToFiletime; values before the Unix
// epoch map to the zero time.
func FiletimeToTime(ft uint64) time.Time {
	if ft < filetimeUnixDiff {
		return time.Time{}
	}
	return time.Unix(0, int64(ft-filetimeUnixDiff)*100).UTC()
}

// TimeZoneMinutes returns the SMB1 ServerTimeZone value for t: minutes west
// of UTC, so UTC+2 is -120.
func TimeZoneMinutes(t time.Time) int16 {
	_, offset := t.Zone()
	return int16(-offset / 60)
}
