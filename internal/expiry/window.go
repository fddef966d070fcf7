package expiry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownWindow is returned for a window in neither supported format.
var ErrUnknownWindow = errors.New("unrecognized operation window")

var (
	// 01/01/2025 de 08:00 à 10:00
	sameDayWindow = regexp.MustCompile(
		`(?i)^(\d{2})/(\d{2})/(\d{4})\s+de\s+(\d{1,2})[:h](\d{2})\s+[àa]\s+(\d{1,2})[:h](\d{2})$`)

	// du 01/01/2025 22:00 au 02/01/2025 06:00
	rangeWindow = regexp.MustCompile(
		`(?i)^du\s+(\d{2})/(\d{2})/(\d{4})\s+(\d{1,2})[:h](\d{2})\s+au\s+(\d{2})/(\d{2})/(\d{4})\s+(\d{1,2})[:h](\d{2})$`)
)

// WindowEnd returns the end of an announced operation window, read in loc.
// A same-day window whose end time is earlier than its start ends on the
// following day.
func WindowEnd(window string, loc *time.Location) (time.Time, error) {
	window = strings.TrimSpace(window)

	if m := sameDayWindow.FindStringSubmatch(window); m != nil {
		start, err := clock(loc, m[1], m[2], m[3], m[4], m[5])
		if err != nil {
			return time.Time{}, err
		}
		end, err := clock(loc, m[1], m[2], m[3], m[6], m[7])
		if err != nil {
			return time.Time{}, err
		}
		if end.Before(start) {
			end = end.AddDate(0, 0, 1)
		}
		return end, nil
	}

	if m := rangeWindow.FindStringSubmatch(window); m != nil {
		return clock(loc, m[6], m[7], m[8], m[9], m[10])
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownWindow, window)
}

// clock builds a wall-clock time and rejects out-of-range components
// instead of letting time.Date normalize them.
func clock(loc *time.Location, dd, mm, yyyy, hh, mi string) (time.Time, error) {
	var v [5]int
	for i, s := range []string{dd, mm, yyyy, hh, mi} {
		n, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
		}
		v[i] = n
	}
	day, month, year, hour, minute := v[0], v[1], v[2], v[3], v[4]

	if month < 1 || month > 12 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid date %s/%s/%s %s:%s", dd, mm, yyyy, hh, mi)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %s/%s/%s", dd, mm, yyyy)
	}
	return t, nil
}
