package calendar

import (
	"errors"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

const defaultSpanMonths = 3

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
}

var errEmptyDate = errors.New("empty date")

// DateRequest carries the raw date[start] / date[end] parameters. A bound is
// present when its key appeared in the request, even with an empty value.
type DateRequest struct {
	Start    string
	End      string
	HasStart bool
	HasEnd   bool
}

// Present reports whether the request asked for any date filtering at all.
func (r DateRequest) Present() bool {
	return r.HasStart || r.HasEnd
}

// DefaultDateRange is today through three months from today.
func DefaultDateRange(today time.Time) model.DateRange {
	day := truncateDay(today)
	return model.DateRange{Start: day, End: day.AddDate(0, defaultSpanMonths, 0)}
}

// ResolveDateRange turns the requested bounds into an inclusive range. Each
// bound that is missing or malformed falls back to its default and yields a
// warning naming the bound; the bounds never affect each other's parsing.
func ResolveDateRange(req DateRequest, today time.Time) (model.DateRange, []string) {
	def := DefaultDateRange(today)
	if !req.Present() {
		return def, nil
	}

	var warnings []string
	start, err := ParseDate(req.Start, today.Location())
	if err != nil {
		start = def.Start
		warnings = append(warnings, "Can't filter by an invalid start date.")
	}

	end, err := ParseDate(req.End, today.Location())
	if err != nil {
		end = def.End
		warnings = append(warnings, "Can't filter by an invalid end date.")
	}

	if end.Before(start) {
		end = start.AddDate(0, defaultSpanMonths, 0)
		warnings = append(warnings, "Can't filter by an end date before the start date.")
	}

	return model.DateRange{Start: start, End: end}, warnings
}

// ParseDate parses a calendar date in one of the accepted layouts and returns
// midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyDate
	}

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return truncateDay(t.In(loc)), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
