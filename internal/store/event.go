package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

const maxChainDepth = 64

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `e.id, e.title, e.description, e.url, e.start_time, e.end_time, e.venue_id, e.locked, e.duplicate_of_id, e.created_at, e.updated_at,
	v.id, v.title, v.address, v.url, v.latitude, v.longitude`

const eventFrom = `FROM events e LEFT JOIN venues v ON v.id = e.venue_id`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var venueID, duplicateOf sql.NullInt64
	var locked int
	var vID sql.NullInt64
	var vTitle, vAddress, vURL sql.NullString
	var vLat, vLng sql.NullFloat64

	err := scanner.Scan(
		&e.ID, &e.Title, &e.Description, &e.URL, &e.StartTime, &e.EndTime, &venueID, &locked, &duplicateOf, &e.CreatedAt, &e.UpdatedAt,
		&vID, &vTitle, &vAddress, &vURL, &vLat, &vLng,
	)
	if err != nil {
		return nil, err
	}

	e.Locked = locked != 0
	if venueID.Valid {
		e.VenueID = &venueID.Int64
	}
	if duplicateOf.Valid {
		e.DuplicateOfID = &duplicateOf.Int64
	}
	if vID.Valid {
		v := &model.Venue{ID: vID.Int64, Title: vTitle.String, Address: vAddress.String, URL: vURL.String}
		if vLat.Valid && vLng.Valid {
			v.Latitude = &vLat.Float64
			v.Longitude = &vLng.Float64
		}
		e.Venue = v
	}
	return &e, nil
}

func (s *EventStore) Create(e model.Event) (*model.Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO events (title, description, url, start_time, end_time, venue_id, locked)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.URL, e.StartTime.UTC(), e.EndTime.UTC(), nullID(e.VenueID), boolInt(e.Locked),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := replaceTags(tx, id, e.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventCols+` `+eventFrom+` WHERE e.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	tags, err := s.tagsFor([]int64{id})
	if err != nil {
		return nil, err
	}
	e.Tags = tags[id]
	return e, nil
}

// Query lists events overlapping the query's date range, honoring the tag,
// venue and order constraints. Duplicates are excluded unless asked for.
func (s *EventStore) Query(q model.EventQuery) ([]model.Event, error) {
	var where []string
	var args []any

	if !q.Range.IsZero() {
		from, to := q.Range.Bounds()
		where = append(where, "e.start_time < ? AND e.end_time >= ?")
		args = append(args, to.UTC(), from.UTC())
	}
	if !q.IncludeDuplicates {
		where = append(where, "e.duplicate_of_id IS NULL")
	}
	if q.VenueID != nil {
		where = append(where, "e.venue_id = ?")
		args = append(args, *q.VenueID)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = e.id AND t.tag = LOWER(?))")
		args = append(args, q.Tag)
	}

	query := `SELECT ` + eventCols + ` ` + eventFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderClause(q.Order)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	return s.list(query, args...)
}

// Search lists non-duplicate events where every keyword appears in the
// title, description, venue title or a tag.
func (s *EventStore) Search(q model.EventSearch) ([]model.Event, error) {
	where := []string{"e.duplicate_of_id IS NULL"}
	var args []any

	for _, kw := range q.Keywords {
		pattern := "%" + escapeLike(strings.ToLower(kw)) + "%"
		where = append(where, `(LOWER(e.title) LIKE ? ESCAPE '\'
			OR LOWER(e.description) LIKE ? ESCAPE '\'
			OR LOWER(COALESCE(v.title, '')) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = e.id AND LOWER(t.tag) LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = e.id AND t.tag = LOWER(?))")
		args = append(args, q.Tag)
	}
	if !q.Since.IsZero() {
		where = append(where, "e.end_time >= ?")
		args = append(args, q.Since.UTC())
	}

	query := `SELECT ` + eventCols + ` ` + eventFrom + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY e.start_time ASC, e.id ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	return s.list(query, args...)
}

// ListFuture lists non-duplicate events that have not ended before now.
func (s *EventStore) ListFuture(now time.Time) ([]model.Event, error) {
	return s.list(
		`SELECT `+eventCols+` `+eventFrom+` WHERE e.duplicate_of_id IS NULL AND e.end_time >= ? ORDER BY e.start_time ASC, e.id ASC`,
		now.UTC(),
	)
}

// ListProgenitors lists every event that is not itself a duplicate.
func (s *EventStore) ListProgenitors() ([]model.Event, error) {
	return s.list(`SELECT ` + eventCols + ` ` + eventFrom + ` WHERE e.duplicate_of_id IS NULL ORDER BY e.start_time ASC, e.id ASC`)
}

// ListDuplicatesOf lists the events pointing directly at id.
func (s *EventStore) ListDuplicatesOf(id int64) ([]model.Event, error) {
	return s.list(`SELECT `+eventCols+` `+eventFrom+` WHERE e.duplicate_of_id = ? ORDER BY e.id ASC`, id)
}

func (s *EventStore) Update(e model.Event) (*model.Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE events
		 SET title = ?, description = ?, url = ?, start_time = ?, end_time = ?, venue_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		e.Title, e.Description, e.URL, e.StartTime.UTC(), e.EndTime.UTC(), nullID(e.VenueID), e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	if err := replaceTags(tx, e.ID, e.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}

	return s.GetByID(e.ID)
}

func (s *EventStore) SetLocked(id int64, locked bool) error {
	_, err := s.db.Exec("UPDATE events SET locked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", boolInt(locked), id)
	if err != nil {
		return fmt.Errorf("set event lock: %w", err)
	}
	return nil
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Squash points every duplicate at the progenitor in a single transaction.
// Events already pointing at one of the duplicates are re-parented to the
// progenitor and the duplicates' tags are copied onto it. Nothing is written
// when any id is unknown or the progenitor's own chain runs through one of
// the duplicates.
func (s *EventStore) Squash(progenitorID int64, duplicateIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	dupSet := make(map[int64]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		dupSet[id] = true
	}
	if dupSet[progenitorID] {
		return ErrCycle
	}

	// Walk the progenitor's own chain; it must not pass through a duplicate.
	current := progenitorID
	for depth := 0; ; depth++ {
		if depth > maxChainDepth {
			return ErrCycle
		}
		var next sql.NullInt64
		err := tx.QueryRow("SELECT duplicate_of_id FROM events WHERE id = ?", current).Scan(&next)
		if err == sql.ErrNoRows {
			return fmt.Errorf("event %d: %w", current, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query duplicate chain: %w", err)
		}
		if !next.Valid {
			break
		}
		if dupSet[next.Int64] || next.Int64 == progenitorID {
			return ErrCycle
		}
		current = next.Int64
	}

	for _, id := range duplicateIDs {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM events WHERE id = ?", id).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("event %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query duplicate: %w", err)
		}

		if _, err := tx.Exec(
			"UPDATE events SET duplicate_of_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			progenitorID, id,
		); err != nil {
			return fmt.Errorf("mark duplicate %d: %w", id, err)
		}
		if _, err := tx.Exec(
			"UPDATE events SET duplicate_of_id = ?, updated_at = CURRENT_TIMESTAMP WHERE duplicate_of_id = ? AND id <> ?",
			progenitorID, id, progenitorID,
		); err != nil {
			return fmt.Errorf("reparent duplicates of %d: %w", id, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO event_tags (event_id, tag) SELECT ?, tag FROM event_tags WHERE event_id = ?",
			progenitorID, id,
		); err != nil {
			return fmt.Errorf("merge tags of %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit squash: %w", err)
	}
	return nil
}

func (s *EventStore) list(query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	var events []model.Event
	var ids []int64
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	rows.Close()

	tags, err := s.tagsFor(ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Tags = tags[events[i].ID]
	}
	return events, nil
}

func (s *EventStore) tagsFor(ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query("SELECT event_id, tag FROM event_tags WHERE event_id IN ("+placeholders+") ORDER BY tag", args...)
	if err != nil {
		return nil, fmt.Errorf("query event tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("scan event tag: %w", err)
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

func replaceTags(tx *sql.Tx, eventID int64, tags []string) error {
	if _, err := tx.Exec("DELETE FROM event_tags WHERE event_id = ?", eventID); err != nil {
		return fmt.Errorf("clear event tags: %w", err)
	}

	seen := make(map[string]bool, len(tags))
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		clean = append(clean, t)
	}
	sort.Strings(clean)

	for _, t := range clean {
		if _, err := tx.Exec("INSERT INTO event_tags (event_id, tag) VALUES (?, ?)", eventID, t); err != nil {
			return fmt.Errorf("insert event tag: %w", err)
		}
	}
	return nil
}

func orderClause(order model.EventOrder) string {
	switch order {
	case model.OrderName:
		return "LOWER(e.title) ASC, e.start_time ASC, e.id ASC"
	case model.OrderVenue:
		return "LOWER(COALESCE(v.title, '')) ASC, e.start_time ASC, e.id ASC"
	default:
		return "e.start_time ASC, e.id ASC"
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
