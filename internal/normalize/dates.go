package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericDatePattern = regexp.MustCompile(`^(\d{1,4})[/.-](\d{1,2})[/.-](\d{1,4})$`)
	spelledMonths      = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
	// 15 Jan 2024 / Jan 15, 2024 / 15-Jan-24
	spelledDayFirst  = regexp.MustCompile(`(?i)^(\d{1,2})[\s-]+([a-z]{3,9})\.?[\s,-]+(\d{2,4})$`)
	spelledMonthLead = regexp.MustCompile(`(?i)^([a-z]{3,9})\.?[\s-]+(\d{1,2})[\s,-]+(\d{2,4})$`)
)

// ParseDate parses the date formats seen across bank exports: ISO Y-M-D,
// numeric D/M/Y or M/D/Y, and spelled-month variants. When the day/month
// order of a numeric date is ambiguous it defaults to month-first, unless one
// component exceeds 12, in which case the other is treated as the month.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if m := numericDatePattern.FindStringSubmatch(s); m != nil {
		return parseNumericDate(m[1], m[2], m[3])
	}
	if m := spelledDayFirst.FindStringSubmatch(s); m != nil {
		return assembleDate(m[3], m[2], m[1])
	}
	if m := spelledMonthLead.FindStringSubmatch(s); m != nil {
		return assembleDate(m[3], m[1], m[2])
	}

	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

func parseNumericDate(a, b, c string) (time.Time, error) {
	av, _ := strconv.Atoi(a)
	bv, _ := strconv.Atoi(b)
	cv, _ := strconv.Atoi(c)

	// Four-digit leading component is a year: Y-M-D.
	if len(a) == 4 {
		return civilDate(av, bv, cv)
	}

	year := expandYear(cv)

	// Month-first by default; a component above 12 forces the other to be the
	// month. Deliberately not locale-aware (kept as observed behavior).
	month, day := av, bv
	if av > 12 && bv <= 12 {
		month, day = bv, av
	}
	return civilDate(year, month, day)
}

func assembleDate(yearStr, monthStr, dayStr string) (time.Time, error) {
	month, ok := spelledMonths[strings.ToLower(monthStr)[:3]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", monthStr)
	}
	year, _ := strconv.Atoi(yearStr)
	day, _ := strconv.Atoi(dayStr)
	return civilDate(expandYear(year), int(month), day)
}

func expandYear(y int) int {
	if y < 100 {
		return 2000 + y
	}
	return y
}

func civilDate(year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date out of range: %04d-%02d-%02d", year, month, day)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject that.
	if d.Day() != day || d.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("invalid calendar date: %04d-%02d-%02d", year, month, day)
	}
	return d, nil
}
