// Package datetime turns loosely formatted appointment time expressions
// ("tomorrow 3pm", "June 25 at 3:30 PM", "2024-06-25 14:30") into absolute times.
package datetime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"appointment_reminder/internal/domain/appointment"
)

// ErrUnparseableDatetime is returned when no timestamp can be derived from the input.
var ErrUnparseableDatetime = errors.New("unparseable appointment datetime")

// DefaultHour is used when the input carries no clock time.
const DefaultHour = 9

// Resolution is the outcome of resolving an appointment expression.
type Resolution struct {
	AppointmentTime time.Time
	ReminderTime    time.Time
}

// NewResolution derives the reminder time from an appointment time.
func NewResolution(appointmentTime time.Time) Resolution {
	return Resolution{
		AppointmentTime: appointmentTime,
		ReminderTime:    appointmentTime.Add(-appointment.ReminderLead),
	}
}

// Matcher tries to interpret a normalized (lower-cased, trimmed) input.
// ok=false means "not mine, try the next matcher"; a non-nil error with ok=true stops resolution.
type Matcher func(input string, now time.Time) (t time.Time, ok bool, err error)

// Resolver runs an ordered list of matchers; the first one that claims the input wins.
type Resolver struct {
	matchers []Matcher
}

// NewResolver builds a resolver with the given matchers, or the default chain when none are passed.
func NewResolver(matchers ...Matcher) *Resolver {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Resolver{matchers: matchers}
}

// DefaultMatchers returns the standard chain: relative keywords, then absolute
// layouts, then a bare clock time (tomorrow), then tomorrow at DefaultHour.
func DefaultMatchers() []Matcher {
	return []Matcher{
		KeywordMatcher("tomorrow", 1, false),
		KeywordMatcher("today", 0, true),
		KeywordMatcher("next week", 7, false),
		AbsoluteMatcher(DefaultLayouts...),
		BareClockMatcher(),
		FallbackMatcher(),
	}
}

// Resolve interprets raw relative to now. The result is expressed in now's location.
func (r *Resolver) Resolve(raw string, now time.Time) (Resolution, error) {
	input := strings.ToLower(strings.TrimSpace(raw))
	if input == "" {
		return Resolution{}, fmt.Errorf("%w: empty input", ErrUnparseableDatetime)
	}

	for _, match := range r.matchers {
		t, ok, err := match(input, now)
		if !ok {
			continue
		}
		if err != nil {
			return Resolution{}, err
		}
		return NewResolution(t), nil
	}
	return Resolution{}, fmt.Errorf("%w: %q", ErrUnparseableDatetime, raw)
}

// atClock returns day's calendar date at hour:minute, zero seconds.
func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
