package store

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/eventboard/internal/database"
	"github.com/dukerupert/eventboard/internal/model"
)

func setupTestDB(t *testing.T) (*EventStore, *VenueStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEventStore(db), NewVenueStore(db)
}

func at(day, hour int) time.Time {
	return time.Date(2026, 2, day, hour, 0, 0, 0, time.UTC)
}

func mustCreate(t *testing.T, s *EventStore, title string, start time.Time, tags ...string) *model.Event {
	t.Helper()
	e, err := s.Create(model.Event{Title: title, StartTime: start, EndTime: start.Add(time.Hour), Tags: tags})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return e
}

func TestCreateAndGetByID(t *testing.T) {
	s, vs := setupTestDB(t)

	venue, err := vs.Create("Library", "1 Main St", "")
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}

	event, err := s.Create(model.Event{
		Title:       "Meetup",
		Description: "Monthly meetup",
		URL:         "https://example.com/meetup",
		StartTime:   at(5, 18),
		EndTime:     at(5, 20),
		VenueID:     &venue.ID,
		Tags:        []string{"go", "social", "go"},
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	got, err := s.GetByID(event.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Title != "Meetup" {
		t.Errorf("title = %q, want %q", got.Title, "Meetup")
	}
	if got.Venue == nil || got.Venue.Title != "Library" {
		t.Errorf("venue = %+v, want Library", got.Venue)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" || got.Tags[1] != "social" {
		t.Errorf("tags = %v, want [go social]", got.Tags)
	}
	if got.Locked {
		t.Error("locked should be false")
	}
	if got.DuplicateOfID != nil {
		t.Errorf("duplicate_of_id should be nil, got %v", *got.DuplicateOfID)
	}
	if !got.StartTime.Equal(at(5, 18)) {
		t.Errorf("start = %v, want %v", got.StartTime, at(5, 18))
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s, _ := setupTestDB(t)

	got, err := s.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent event")
	}
}

func TestQueryByDateRange(t *testing.T) {
	s, _ := setupTestDB(t)

	mustCreate(t, s, "Day 1 Event", at(5, 9))
	mustCreate(t, s, "Day 2 Event", at(6, 9))
	mustCreate(t, s, "Day 3 Event", at(7, 9))

	events, err := s.Query(model.EventQuery{Range: model.DateRange{Start: at(5, 0), End: at(6, 0)}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Title != "Day 1 Event" || events[1].Title != "Day 2 Event" {
		t.Errorf("got %q, %q", events[0].Title, events[1].Title)
	}
}

func TestQueryFiltersTagAndDuplicates(t *testing.T) {
	s, _ := setupTestDB(t)

	p := mustCreate(t, s, "Go Night", at(5, 18), "go")
	d := mustCreate(t, s, "Go Night (copy)", at(5, 18), "go")
	mustCreate(t, s, "Ruby Night", at(5, 19), "ruby")

	if err := s.Squash(p.ID, []int64{d.ID}); err != nil {
		t.Fatalf("squash: %v", err)
	}

	events, err := s.Query(model.EventQuery{Tag: "go"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].ID != p.ID {
		t.Fatalf("got %+v, want only progenitor", events)
	}

	mixed, err := s.Query(model.EventQuery{Tag: "Go"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(mixed) != 1 || mixed[0].ID != p.ID {
		t.Errorf("tag Go: got %+v, want progenitor", mixed)
	}

	all, err := s.Query(model.EventQuery{Tag: "go", IncludeDuplicates: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d events with duplicates, want 2", len(all))
	}
}

func TestQueryOrderByName(t *testing.T) {
	s, _ := setupTestDB(t)

	mustCreate(t, s, "banana", at(5, 9))
	mustCreate(t, s, "Apple", at(6, 9))

	events, err := s.Query(model.EventQuery{Order: model.OrderName})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 || events[0].Title != "Apple" {
		t.Errorf("first = %q, want %q", events[0].Title, "Apple")
	}
}

func TestSearch(t *testing.T) {
	s, vs := setupTestDB(t)

	venue, _ := vs.Create("Powell's Books", "", "")
	e1 := mustCreate(t, s, "Python Meetup", at(5, 18), "python")
	e2, _ := s.Create(model.Event{Title: "Reading", StartTime: at(6, 18), EndTime: at(6, 19), VenueID: &venue.ID})
	mustCreate(t, s, "Knitting 100%", at(7, 18))

	tests := []struct {
		name   string
		search model.EventSearch
		want   []int64
	}{
		{"title", model.EventSearch{Keywords: []string{"python"}}, []int64{e1.ID}},
		{"venue title", model.EventSearch{Keywords: []string{"powell"}}, []int64{e2.ID}},
		{"all keywords must match", model.EventSearch{Keywords: []string{"python", "reading"}}, nil},
		{"tag only", model.EventSearch{Tag: "python"}, []int64{e1.ID}},
		{"like wildcard is literal", model.EventSearch{Keywords: []string{"1_0"}}, nil},
		{"since", model.EventSearch{Keywords: []string{"python"}, Since: at(6, 0)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(tt.search)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("event %d = %d, want %d", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	s, _ := setupTestDB(t)

	event := mustCreate(t, s, "Original Title", at(5, 10), "old")
	event.Title = "Updated Title"
	event.Tags = []string{"new"}
	event.EndTime = at(5, 15)

	updated, err := s.Update(*event)
	if err != nil {
		t.Fatalf("update event: %v", err)
	}
	if updated.Title != "Updated Title" {
		t.Errorf("title = %q, want %q", updated.Title, "Updated Title")
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "new" {
		t.Errorf("tags = %v, want [new]", updated.Tags)
	}
	if !updated.EndTime.Equal(at(5, 15)) {
		t.Errorf("end = %v, want %v", updated.EndTime, at(5, 15))
	}
}

func TestSetLocked(t *testing.T) {
	s, _ := setupTestDB(t)

	event := mustCreate(t, s, "Frozen", at(5, 10))
	if err := s.SetLocked(event.ID, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	got, _ := s.GetByID(event.ID)
	if !got.Locked {
		t.Error("locked should be true")
	}
}

func TestDelete(t *testing.T) {
	s, _ := setupTestDB(t)

	event := mustCreate(t, s, "To Delete", at(5, 10), "x")
	if err := s.Delete(event.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}

	got, err := s.GetByID(event.ID)
	if err != nil {
		t.Fatalf("get by id after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSquash(t *testing.T) {
	s, _ := setupTestDB(t)

	p := mustCreate(t, s, "Progenitor", at(5, 10), "a")
	d1 := mustCreate(t, s, "Dup 1", at(5, 10), "b")
	d2 := mustCreate(t, s, "Dup 2", at(5, 10))

	for i := 0; i < 2; i++ {
		if err := s.Squash(p.ID, []int64{d1.ID, d2.ID}); err != nil {
			t.Fatalf("squash run %d: %v", i, err)
		}
	}

	for _, id := range []int64{d1.ID, d2.ID} {
		got, _ := s.GetByID(id)
		if got.DuplicateOfID == nil || *got.DuplicateOfID != p.ID {
			t.Errorf("event %d duplicate_of = %v, want %d", id, got.DuplicateOfID, p.ID)
		}
	}

	got, _ := s.GetByID(p.ID)
	if got.DuplicateOfID != nil {
		t.Error("progenitor must not be a duplicate")
	}
	if len(got.Tags) != 2 {
		t.Errorf("progenitor tags = %v, want merged [a b]", got.Tags)
	}
}

func TestSquashReparentsExistingDuplicates(t *testing.T) {
	s, _ := setupTestDB(t)

	a := mustCreate(t, s, "A", at(5, 10))
	b := mustCreate(t, s, "B", at(5, 10))
	c := mustCreate(t, s, "C", at(5, 10))

	if err := s.Squash(b.ID, []int64{c.ID}); err != nil {
		t.Fatalf("squash c into b: %v", err)
	}
	if err := s.Squash(a.ID, []int64{b.ID}); err != nil {
		t.Fatalf("squash b into a: %v", err)
	}

	got, _ := s.GetByID(c.ID)
	if got.DuplicateOfID == nil || *got.DuplicateOfID != a.ID {
		t.Errorf("c duplicate_of = %v, want %d", got.DuplicateOfID, a.ID)
	}
}

func TestSquashRejectsCycle(t *testing.T) {
	s, _ := setupTestDB(t)

	a := mustCreate(t, s, "A", at(5, 10))
	b := mustCreate(t, s, "B", at(5, 10))

	if err := s.Squash(b.ID, []int64{a.ID}); err != nil {
		t.Fatalf("squash a into b: %v", err)
	}

	err := s.Squash(a.ID, []int64{b.ID})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}

	gotB, _ := s.GetByID(b.ID)
	if gotB.DuplicateOfID != nil {
		t.Error("b must be unchanged after rejected squash")
	}

	if err := s.Squash(a.ID, []int64{a.ID}); !errors.Is(err, ErrCycle) {
		t.Errorf("self squash err = %v, want ErrCycle", err)
	}
}

func TestSquashUnknownIDIsAtomic(t *testing.T) {
	s, _ := setupTestDB(t)

	p := mustCreate(t, s, "P", at(5, 10))
	d := mustCreate(t, s, "D", at(5, 10))

	err := s.Squash(p.ID, []int64{d.ID, 999})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	got, _ := s.GetByID(d.ID)
	if got.DuplicateOfID != nil {
		t.Error("no duplicate should be marked when the batch fails")
	}
}

func TestDeleteProgenitorReleasesDuplicates(t *testing.T) {
	s, _ := setupTestDB(t)

	p := mustCreate(t, s, "P", at(5, 10))
	d := mustCreate(t, s, "D", at(5, 10))
	if err := s.Squash(p.ID, []int64{d.ID}); err != nil {
		t.Fatalf("squash: %v", err)
	}

	if err := s.Delete(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := s.GetByID(d.ID)
	if got == nil || got.DuplicateOfID != nil {
		t.Errorf("duplicate should survive with no progenitor, got %+v", got)
	}
}
