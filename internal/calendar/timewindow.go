package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
}

var errEmptyClock = errors.New("empty time")

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// String formats the clock on a 12-hour dial, e.g. "07:30 PM".
func (c Clock) String() string {
	h := c.Hour % 12
	if h == 0 {
		h = 12
	}
	suffix := "AM"
	if c.Hour >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%02d:%02d %s", h, c.Minute, suffix)
}

// ParseClock parses a time of day. Out-of-range values such as "25:00" are
// rejected like any other malformed input.
func ParseClock(s string) (Clock, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Clock{}, errEmptyClock
	}

	var lastErr error
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
		lastErr = err
	}
	return Clock{}, lastErr
}

// TimeWindow narrows events by the hour of day they start. A nil side is
// open.
type TimeWindow struct {
	Start *Clock
	End   *Clock
}

// ParseTimeWindow builds a window from raw request values. A side that does
// not parse is left open.
func ParseTimeWindow(start, end string) TimeWindow {
	var w TimeWindow
	if c, err := ParseClock(start); err == nil {
		w.Start = &c
	}
	if c, err := ParseClock(end); err == nil {
		w.End = &c
	}
	return w
}

func (w TimeWindow) IsZero() bool {
	return w.Start == nil && w.End == nil
}

// StartLabel and EndLabel echo the parsed sides for display; an open side
// is blank.
func (w TimeWindow) StartLabel() string {
	if w.Start == nil {
		return ""
	}
	return w.Start.String()
}

func (w TimeWindow) EndLabel() string {
	if w.End == nil {
		return ""
	}
	return w.End.String()
}

// Contains reports whether an event starting at hour falls inside the window.
// A closed window whose start hour is after its end hour wraps past midnight.
func (w TimeWindow) Contains(hour int) bool {
	switch {
	case w.Start != nil && w.End != nil:
		if w.Start.Hour <= w.End.Hour {
			return w.Start.Hour <= hour && hour <= w.End.Hour
		}
		return hour >= w.Start.Hour || hour <= w.End.Hour
	case w.Start != nil:
		return hour >= w.Start.Hour
	case w.End != nil:
		return hour <= w.End.Hour
	default:
		return true
	}
}

// Filter keeps the events whose start hour, read in loc, is inside the
// window. An open window returns events unchanged.
func (w TimeWindow) Filter(events []model.Event, loc *time.Location) []model.Event {
	if w.IsZero() {
		return events
	}

	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if w.Contains(e.StartTime.In(loc).Hour()) {
			out = append(out, e)
		}
	}
	return out
}
