package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is an absolute format tried by AbsoluteMatcher.
type Layout struct {
	Value   string
	HasYear bool // Yearless layouts get the current year
}

// DefaultLayouts are tried in order. Non-padded numeric fields accept one or two digits.
var DefaultLayouts = []Layout{
	{Value: "2006-1-2 15:04:05", HasYear: true},
	{Value: "2006-1-2 15:04", HasYear: true},
	{Value: "2/1/2006 15:04", HasYear: true},
	{Value: "2-1-2006 15:04", HasYear: true},
	{Value: "January 2 15:04"},
	{Value: "January 2 at 3:04 pm"},
}

type clockPattern struct {
	re        *regexp.Regexp
	hasMinute bool
	hasPeriod bool
}

// Priority order: "3:30 pm", "3 pm", "15:30".
var clockPatterns = []clockPattern{
	{re: regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm)`), hasMinute: true, hasPeriod: true},
	{re: regexp.MustCompile(`(\d{1,2})\s*(am|pm)`), hasPeriod: true},
	{re: regexp.MustCompile(`(\d{1,2}):(\d{2})`), hasMinute: true},
}

// ExtractClock finds the first embedded clock time in a lower-cased input.
// found=false means no clock time is present. An out-of-range clock is an error.
func ExtractClock(input string) (hour, minute int, found bool, err error) {
	for _, p := range clockPatterns {
		m := p.re.FindStringSubmatch(input)
		if m == nil {
			continue
		}

		hour, _ = strconv.Atoi(m[1])
		next := 2
		if p.hasMinute {
			minute, _ = strconv.Atoi(m[next])
			next++
		}
		if p.hasPeriod {
			switch m[next] {
			case "pm":
				if hour != 12 {
					hour += 12
				}
			case "am":
				if hour == 12 {
					hour = 0
				}
			}
		}

		if hour > 23 || minute > 59 {
			return 0, 0, true, fmt.Errorf("%w: invalid clock time %q", ErrUnparseableDatetime, m[0])
		}
		return hour, minute, true, nil
	}
	return 0, 0, false, nil
}

// KeywordMatcher handles relative day keywords ("tomorrow", "today", "next week")
// found anywhere in the input, optionally with an embedded clock time.
// With rollIfPassed, a result that is not after now moves forward one day.
func KeywordMatcher(keyword string, dayOffset int, rollIfPassed bool) Matcher {
	return func(input string, now time.Time) (time.Time, bool, error) {
		if !strings.Contains(input, keyword) {
			return time.Time{}, false, nil
		}

		hour, minute, found, err := ExtractClock(input)
		if err != nil {
			return time.Time{}, true, err
		}
		if !found {
			hour, minute = DefaultHour, 0
		}

		t := atClock(now.AddDate(0, 0, dayOffset), hour, minute)
		if rollIfPassed && !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true, nil
	}
}

// AbsoluteMatcher parses the whole input against each layout in now's location.
func AbsoluteMatcher(layouts ...Layout) Matcher {
	return func(input string, now time.Time) (time.Time, bool, error) {
		for _, l := range layouts {
			t, err := time.ParseInLocation(l.Value, input, now.Location())
			if err != nil {
				continue
			}
			if !l.HasYear {
				// Parsed in year 0, a leap year; February 29 must still exist in now's year.
				withYear := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
				if withYear.Day() != t.Day() {
					continue
				}
				t = withYear
			}
			return t, true, nil
		}
		return time.Time{}, false, nil
	}
}

// BareClockMatcher schedules for tomorrow when only a clock time is recognizable.
func BareClockMatcher() Matcher {
	return func(input string, now time.Time) (time.Time, bool, error) {
		hour, minute, found, err := ExtractClock(input)
		if !found {
			return time.Time{}, false, nil
		}
		if err != nil {
			return time.Time{}, true, err
		}
		return atClock(now.AddDate(0, 0, 1), hour, minute), true, nil
	}
}

// FallbackMatcher accepts anything as tomorrow at DefaultHour.
// Past-time rejection still happens downstream.
func FallbackMatcher() Matcher {
	return func(_ string, now time.Time) (time.Time, bool, error) {
		return atClock(now.AddDate(0, 0, 1), DefaultHour, 0), true, nil
	}
}
