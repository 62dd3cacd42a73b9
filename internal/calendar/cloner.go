package calendar

import (
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

// Clone returns an unsaved copy of src for use as a new-event draft. Display
// fields, venue and tags are copied; identity, lock state and duplicate
// linkage are not. The copy is moved to today, keeping the source's time of
// day and duration.
func Clone(src model.Event, today time.Time) model.Event {
	clone := model.Event{
		Title:       src.Title,
		Description: src.Description,
		URL:         src.URL,
	}

	if src.VenueID != nil {
		id := *src.VenueID
		clone.VenueID = &id
	}
	if src.Venue != nil {
		v := *src.Venue
		clone.Venue = &v
	}
	if len(src.Tags) > 0 {
		clone.Tags = append([]string(nil), src.Tags...)
	}

	if !src.StartTime.IsZero() {
		today = today.In(src.StartTime.Location())
		s := src.StartTime
		clone.StartTime = time.Date(today.Year(), today.Month(), today.Day(), s.Hour(), s.Minute(), s.Second(), 0, s.Location())
		if !src.EndTime.IsZero() {
			clone.EndTime = clone.StartTime.Add(src.EndTime.Sub(src.StartTime))
		}
	}

	return clone
}
