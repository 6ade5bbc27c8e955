package kamel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the layout of INTERNALDATE values, described in RFC 3501
// section 9 (date-time).
const DateTimeLayout = "2-Jan-2006 15:04:05 -0700"

var weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

var months = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// Obsolete zone names from RFC 5322 section 4.3, in seconds east of UTC.
var namedZones = map[string]int{
	"UT":  0,
	"UTC": 0,
	"GMT": 0,
	"Z":   0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
}

// ParseMessageDateTime parses the date of a message envelope.
//
// The accepted grammar is the one of RFC 5322 section 3.3 plus the obsolete
// forms of section 4.3: an optional day name, the day, a month name or
// number, a two or four digit year, hh:mm with optional seconds, and a
// numeric or named zone. Comments in parentheses are ignored, and the day,
// month and year may be separated with '-'. A missing zone means UTC. An
// upper case zone abbreviation after a numeric offset is ignored.
func ParseMessageDateTime(s string) (time.Time, error) {
	orig := s
	fail := func(what string) (time.Time, error) {
		return time.Time{}, fmt.Errorf("date %q could not be parsed: invalid %v", orig, what)
	}

	fields := strings.Fields(strings.ReplaceAll(stripComments(s), ",", " "))
	if len(fields) > 0 && isWeekday(fields[0]) {
		fields = fields[1:]
	}
	if len(fields) > 0 && strings.Count(fields[0], "-") == 2 && !strings.HasPrefix(fields[0], "-") {
		fields = append(strings.Split(fields[0], "-"), fields[1:]...)
	}
	// "+0100 CET": the offset wins over the zone name
	if len(fields) == 6 && isNumericZone(fields[4]) && isZoneName(fields[5]) {
		fields = fields[:5]
	}
	if len(fields) < 4 || len(fields) > 5 {
		return fail("layout")
	}

	day, ok := parseDigits(fields[0], 1, 2)
	if !ok || day < 1 || day > 31 {
		return fail("day")
	}
	month, ok := parseMonth(fields[1])
	if !ok {
		return fail("month")
	}
	year, ok := parseYear(fields[2])
	if !ok {
		return fail("year")
	}
	hour, min, sec, ok := parseClock(fields[3])
	if !ok {
		return fail("time")
	}
	loc := time.UTC
	if len(fields) == 5 {
		if loc, ok = parseZone(fields[4]); !ok {
			return fail("zone")
		}
	}

	t := time.Date(year, month, day, hour, min, sec, 0, loc)
	if t.Day() != day {
		return fail("day")
	}
	return t, nil
}

// ParseDateTime parses an INTERNALDATE value.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q could not be parsed", s)
	}
	return t, nil
}

func stripComments(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWeekday(s string) bool {
	if len(s) < 3 {
		return false
	}
	prefix := strings.ToLower(s[:3])
	for _, d := range weekdays {
		if prefix == d {
			return isAlpha(s)
		}
	}
	return false
}

func isNumericZone(s string) bool {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return false
	}
	_, ok := parseDigits(s[1:], 4, 4)
	return ok
}

func isZoneName(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func parseDigits(s string, min, max int) (int, bool) {
	if len(s) < min || len(s) > max {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func parseMonth(s string) (time.Month, bool) {
	if n, ok := parseDigits(s, 1, 2); ok {
		if n < 1 || n > 12 {
			return 0, false
		}
		return time.Month(n), true
	}
	if len(s) < 3 || !isAlpha(s) {
		return 0, false
	}
	prefix := strings.ToLower(s[:3])
	for i, m := range months {
		if prefix == m {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// parseYear maps two and three digit years per RFC 5322 section 4.3.
func parseYear(s string) (int, bool) {
	n, ok := parseDigits(s, 2, 4)
	if !ok {
		return 0, false
	}
	switch len(s) {
	case 2:
		if n < 50 {
			return 2000 + n, true
		}
		return 1900 + n, true
	case 3:
		return 1900 + n, true
	}
	return n, true
}

func parseClock(s string) (hour, min, sec int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, false
	}
	if hour, ok = parseDigits(parts[0], 1, 2); !ok || hour > 23 {
		return 0, 0, 0, false
	}
	if min, ok = parseDigits(parts[1], 2, 2); !ok || min > 59 {
		return 0, 0, 0, false
	}
	if len(parts) == 3 {
		// 60 is a leap second
		if sec, ok = parseDigits(parts[2], 2, 2); !ok || sec > 60 {
			return 0, 0, 0, false
		}
	}
	return hour, min, sec, true
}

func parseZone(s string) (*time.Location, bool) {
	if len(s) == 5 && (s[0] == '+' || s[0] == '-') {
		hh, ok1 := parseDigits(s[1:3], 2, 2)
		mm, ok2 := parseDigits(s[3:5], 2, 2)
		if !ok1 || !ok2 || hh > 23 || mm > 59 {
			return nil, false
		}
		offset := hh*3600 + mm*60
		if s[0] == '-' {
			offset = -offset
		}
		return time.FixedZone("", offset), true
	}
	name := strings.ToUpper(s)
	if offset, ok := namedZones[name]; ok {
		return time.FixedZone(name, offset), true
	}
	// Military zones are ambiguous in practice and read as -0000.
	if len(name) == 1 && name[0] >= 'A' && name[0] <= 'Z' && name[0] != 'J' {
		return time.UTC, true
	}
	return nil, false
}
