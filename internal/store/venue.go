package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/eventboard/internal/model"
)

type VenueStore struct {
	db *sql.DB
}

func NewVenueStore(db *sql.DB) *VenueStore {
	return &VenueStore{db: db}
}

const venueCols = `id, title, address, url, latitude, longitude, created_at, updated_at`

func scanVenue(scanner interface{ Scan(...any) error }) (*model.Venue, error) {
	var v model.Venue
	var lat, lng sql.NullFloat64

	if err := scanner.Scan(&v.ID, &v.Title, &v.Address, &v.URL, &lat, &lng, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		v.Latitude = &lat.Float64
		v.Longitude = &lng.Float64
	}
	return &v, nil
}

func (s *VenueStore) Create(title, address, url string) (*model.Venue, error) {
	result, err := s.db.Exec(
		"INSERT INTO venues (title, address, url) VALUES (?, ?, ?)",
		title, address, url,
	)
	if err != nil {
		return nil, fmt.Errorf("insert venue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *VenueStore) GetByID(id int64) (*model.Venue, error) {
	v, err := scanVenue(s.db.QueryRow("SELECT "+venueCols+" FROM venues WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query venue: %w", err)
	}
	return v, nil
}

// FindByTitle looks a venue up by case-insensitive title.
func (s *VenueStore) FindByTitle(title string) (*model.Venue, error) {
	v, err := scanVenue(s.db.QueryRow("SELECT "+venueCols+" FROM venues WHERE title = ? COLLATE NOCASE", strings.TrimSpace(title)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query venue by title: %w", err)
	}
	return v, nil
}

// FindOrCreate returns the venue with the given title, creating it when it
// does not exist yet. The boolean reports whether a new venue was created.
func (s *VenueStore) FindOrCreate(title string) (*model.Venue, bool, error) {
	title = strings.TrimSpace(title)
	v, err := s.FindByTitle(title)
	if err != nil {
		return nil, false, err
	}
	if v != nil {
		return v, false, nil
	}

	v, err = s.Create(title, "", "")
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *VenueStore) Update(id int64, title, address, url string, latitude, longitude *float64) (*model.Venue, error) {
	var lat, lng sql.NullFloat64
	if latitude != nil && longitude != nil {
		lat = sql.NullFloat64{Float64: *latitude, Valid: true}
		lng = sql.NullFloat64{Float64: *longitude, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE venues SET title = ?, address = ?, url = ?, latitude = ?, longitude = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, address, url, lat, lng, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update venue: %w", err)
	}

	return s.GetByID(id)
}

func (s *VenueStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM venues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete venue: %w", err)
	}
	return nil
}
