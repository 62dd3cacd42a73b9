package model

import "time"

type Venue struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Address   string    `json:"address"`
	URL       string    `json:"url"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocation reports whether the venue can be placed on a map.
func (v Venue) HasLocation() bool {
	return v.Latitude != nil && v.Longitude != nil
}
