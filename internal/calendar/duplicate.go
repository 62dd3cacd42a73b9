package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
	"github.com/dukerupert/eventboard/internal/store"
)

const maxChainDepth = 64

// DuplicateStore is the storage the duplicate resolver needs.
type DuplicateStore interface {
	GetByID(id int64) (*model.Event, error)
	ListProgenitors() ([]model.Event, error)
	Squash(progenitorID int64, duplicateIDs []int64) error
}

type DuplicateResolver struct {
	events DuplicateStore
}

func NewDuplicateResolver(events DuplicateStore) *DuplicateResolver {
	return &DuplicateResolver{events: events}
}

// ResolveForDisplay loads the event to show for id. When id is a duplicate
// the progenitor at the end of its chain is returned and redirect is true.
func (d *DuplicateResolver) ResolveForDisplay(id int64) (event *model.Event, redirect bool, err error) {
	event, err = d.find(id)
	if err != nil {
		return nil, false, err
	}

	seen := map[int64]bool{event.ID: true}
	for event.DuplicateOfID != nil {
		if len(seen) > maxChainDepth || seen[*event.DuplicateOfID] {
			return nil, false, ErrCycle
		}
		next, err := d.find(*event.DuplicateOfID)
		if err != nil {
			return nil, false, fmt.Errorf("resolve progenitor of %d: %w", id, err)
		}
		seen[next.ID] = true
		event = next
		redirect = true
	}
	return event, redirect, nil
}

func (d *DuplicateResolver) find(id int64) (*model.Event, error) {
	e, err := d.events.GetByID(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotFoundError{ID: id}
	}
	return e, nil
}

// SquashResult is the outcome of a successful squash.
type SquashResult struct {
	Progenitor *model.Event
	Duplicates []model.Event
}

// Message summarizes the squash for the visitor.
func (r *SquashResult) Message() string {
	titles := make([]string, len(r.Duplicates))
	for i, e := range r.Duplicates {
		titles[i] = strconv.Quote(e.Title)
	}
	return fmt.Sprintf("Squashed duplicate events [%s] into master %d.", strings.Join(titles, ", "), r.Progenitor.ID)
}

// Squash marks every event in duplicateIDs as a duplicate of progenitorID.
// Either all of them are marked or none are. Squashing an event that is
// already a duplicate moves it to the new progenitor. A master that is
// itself a duplicate is replaced by the progenitor at the end of its chain.
func (d *DuplicateResolver) Squash(progenitorID int64, duplicateIDs []int64) (*SquashResult, error) {
	if progenitorID <= 0 {
		return nil, ErrNoProgenitor
	}

	ids := make([]int64, 0, len(duplicateIDs))
	seen := make(map[int64]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		if id <= 0 || seen[id] {
			continue
		}
		if id == progenitorID {
			return nil, ErrSelfReference
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoDuplicates
	}

	master, _, err := d.ResolveForDisplay(progenitorID)
	if err != nil {
		return nil, err
	}
	if seen[master.ID] {
		return nil, ErrCycle
	}
	progenitorID = master.ID

	duplicates := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		e, err := d.find(id)
		if err != nil {
			return nil, err
		}
		duplicates = append(duplicates, *e)
	}

	if err := d.events.Squash(progenitorID, ids); err != nil {
		switch {
		case errors.Is(err, store.ErrCycle):
			return nil, ErrCycle
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("squash into %d: %w", progenitorID, ErrNotFound)
		default:
			return nil, fmt.Errorf("squash into %d: %w", progenitorID, err)
		}
	}

	progenitor, err := d.find(progenitorID)
	if err != nil {
		return nil, err
	}
	return &SquashResult{Progenitor: progenitor, Duplicates: duplicates}, nil
}

// DuplicateField names an attribute events can be grouped by.
type DuplicateField string

const (
	FieldTitle       DuplicateField = "title"
	FieldDescription DuplicateField = "description"
	FieldURL         DuplicateField = "url"
	FieldVenue       DuplicateField = "venue_id"
	FieldStartTime   DuplicateField = "start_time"
	FieldEndTime     DuplicateField = "end_time"
)

var allDuplicateFields = []DuplicateField{FieldTitle, FieldDescription, FieldURL, FieldVenue, FieldStartTime, FieldEndTime}

// ParseDuplicateFields reads a comma separated field list. "all" selects
// every field; "na" or blank selects none. Unknown names are an error.
func ParseDuplicateFields(s string) ([]DuplicateField, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "na":
		return nil, nil
	case "all":
		return allDuplicateFields, nil
	}

	var fields []DuplicateField
	for _, part := range strings.Split(s, ",") {
		f := DuplicateField(strings.TrimSpace(part))
		if f == "" {
			continue
		}
		known := false
		for _, k := range allDuplicateFields {
			if f == k {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown duplicate field %q", f)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// DuplicateGroup is a set of events that look alike on the chosen fields.
type DuplicateGroup struct {
	Key    string
	Events []model.Event
}

// FindDuplicates groups the events that are not already duplicates by the
// chosen fields. Only groups with more than one event are returned. With no
// fields every event is its own group, for manual review.
func (d *DuplicateResolver) FindDuplicates(fields []DuplicateField) ([]DuplicateGroup, error) {
	events, err := d.events.ListProgenitors()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	if len(fields) == 0 {
		groups := make([]DuplicateGroup, len(events))
		for i, e := range events {
			groups[i] = DuplicateGroup{Key: strconv.FormatInt(e.ID, 10), Events: []model.Event{e}}
		}
		return groups, nil
	}

	byKey := make(map[string][]model.Event)
	var keys []string
	for _, e := range events {
		k := duplicateKey(e, fields)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], e)
	}
	sort.Strings(keys)

	var groups []DuplicateGroup
	for _, k := range keys {
		if len(byKey[k]) > 1 {
			groups = append(groups, DuplicateGroup{Key: k, Events: byKey[k]})
		}
	}
	return groups, nil
}

func duplicateKey(e model.Event, fields []DuplicateField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		var v string
		switch f {
		case FieldTitle:
			v = strings.ToLower(strings.TrimSpace(e.Title))
		case FieldDescription:
			v = strings.TrimSpace(e.Description)
		case FieldURL:
			v = strings.TrimSpace(e.URL)
		case FieldVenue:
			if e.VenueID != nil {
				v = strconv.FormatInt(*e.VenueID, 10)
			}
		case FieldStartTime:
			v = e.StartTime.UTC().Format(time.RFC3339)
		case FieldEndTime:
			v = e.EndTime.UTC().Format(time.RFC3339)
		}
		parts[i] = string(f) + "=" + v
	}
	return strings.Join(parts, "|")
}
