package model

import "time"

// DateRange is an inclusive pair of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Bounds returns the half-open instant interval [start of Start, start of the
// day after End) in the dates' location.
func (r DateRange) Bounds() (time.Time, time.Time) {
	from := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, r.Start.Location())
	to := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, r.End.Location()).AddDate(0, 0, 1)
	return from, to
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}
