package model

import "time"

type Event struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	VenueID       *int64    `json:"venue_id"`
	Venue         *Venue    `json:"venue,omitempty"`
	Tags          []string  `json:"tags"`
	Locked        bool      `json:"locked"`
	DuplicateOfID *int64    `json:"duplicate_of_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsDuplicate reports whether the event has been marked as a duplicate of a
// progenitor.
func (e Event) IsDuplicate() bool {
	return e.DuplicateOfID != nil
}

// IsNew reports whether the event has not been persisted yet.
func (e Event) IsNew() bool {
	return e.ID == 0
}

func (e Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EventOrder names a supported listing order.
type EventOrder string

const (
	OrderDate  EventOrder = "date"
	OrderName  EventOrder = "name"
	OrderVenue EventOrder = "venue"
)

// EventQuery describes a listing request handed to the store. Zero values
// mean "no constraint".
type EventQuery struct {
	Range             DateRange
	Tag               string
	VenueID           *int64
	Order             EventOrder
	IncludeDuplicates bool
	Limit             int
}

// EventSearch describes a keyword search handed to the store. Every keyword
// must match; Since drops events that ended before it.
type EventSearch struct {
	Keywords []string
	Tag      string
	Since    time.Time
	Limit    int
}
