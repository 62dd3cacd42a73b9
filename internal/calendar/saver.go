package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

const (
	msgSaved      = "Event was successfully saved."
	msgTellUsMore = " Please tell us more about where it's being held."
	msgCloned     = "This is a new event cloned from an existing one. Please update the fields, like the time and description."
)

// SavedMessage is the success text for a save. A newly created venue asks the
// visitor for more detail.
func SavedMessage(newVenue bool) string {
	if newVenue {
		return msgSaved + msgTellUsMore
	}
	return msgSaved
}

// ClonedMessage is shown above a cloned draft.
func ClonedMessage() string {
	return msgCloned
}

// DeletedMessage is shown after an event has been destroyed.
func DeletedMessage(title string) string {
	return fmt.Sprintf("%q has been deleted", title)
}

// EventWriter persists events.
type EventWriter interface {
	Create(e model.Event) (*model.Event, error)
	Update(e model.Event) (*model.Event, error)
}

// VenueResolver finds venues for a submitted event. Delete removes a venue
// the save created when the event itself could not be written.
type VenueResolver interface {
	GetByID(id int64) (*model.Venue, error)
	FindOrCreate(title string) (*model.Venue, bool, error)
	Delete(id int64) error
}

// EventForm is a submitted event as raw form values.
type EventForm struct {
	Title       string
	Description string
	URL         string
	TagList     string
	StartDate   string
	StartTime   string
	EndDate     string
	EndTime     string
	VenueID     string
	VenueName   string
	// Trap is a field hidden from people. Anything in it came from a bot.
	Trap string
}

// FormFromEvent fills a form with an existing event for editing.
func FormFromEvent(e model.Event, loc *time.Location) EventForm {
	f := EventForm{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		TagList:     strings.Join(e.Tags, ", "),
	}
	if !e.StartTime.IsZero() {
		s := e.StartTime.In(loc)
		f.StartDate = s.Format("2006-01-02")
		f.StartTime = s.Format("03:04 PM")
	}
	if !e.EndTime.IsZero() {
		end := e.EndTime.In(loc)
		f.EndDate = end.Format("2006-01-02")
		f.EndTime = end.Format("03:04 PM")
	}
	if e.VenueID != nil {
		f.VenueID = strconv.FormatInt(*e.VenueID, 10)
	}
	if e.Venue != nil {
		f.VenueName = e.Venue.Title
	}
	return f
}

// SaveResult is a persisted event.
type SaveResult struct {
	Event *model.Event
	// NewVenue is set when the save created the event's venue.
	NewVenue bool
}

type Saver struct {
	events    EventWriter
	venues    VenueResolver
	blacklist []string
	loc       *time.Location
}

func NewSaver(events EventWriter, venues VenueResolver, blacklist []string, loc *time.Location) *Saver {
	return &Saver{events: events, venues: venues, blacklist: blacklist, loc: loc}
}

// Save creates a new event when existing is nil and updates existing
// otherwise. Lock checks are the caller's job.
func (s *Saver) Save(existing *model.Event, form EventForm) (*SaveResult, error) {
	if s.isSpam(form) {
		return nil, ErrSpam
	}

	e, err := s.build(form)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{}
	venue, created, err := s.resolveVenue(form)
	if err != nil {
		return nil, err
	}
	if venue != nil {
		e.VenueID = &venue.ID
		result.NewVenue = created
	}

	if existing == nil {
		result.Event, err = s.events.Create(e)
	} else {
		e.ID = existing.ID
		result.Event, err = s.events.Update(e)
	}
	if err != nil {
		if result.NewVenue {
			if derr := s.venues.Delete(*e.VenueID); derr != nil {
				return nil, fmt.Errorf("save event: %w (remove new venue: %v)", err, derr)
			}
		}
		return nil, fmt.Errorf("save event: %w", err)
	}
	return result, nil
}

func (s *Saver) isSpam(form EventForm) bool {
	if strings.TrimSpace(form.Trap) != "" {
		return true
	}
	if len(s.blacklist) == 0 {
		return false
	}

	text := strings.ToLower(strings.Join([]string{form.Title, form.Description, form.URL, form.TagList, form.VenueName}, " "))
	for _, word := range s.blacklist {
		if word != "" && strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func (s *Saver) build(form EventForm) (model.Event, error) {
	var problems []string
	e := model.Event{
		Title:       strings.TrimSpace(form.Title),
		Description: strings.TrimSpace(form.Description),
		URL:         strings.TrimSpace(form.URL),
		Tags:        ParseTags(form.TagList),
	}
	if e.Title == "" {
		problems = append(problems, "Title can't be blank.")
	}

	start, err := s.combine(form.StartDate, form.StartTime)
	switch {
	case err == nil:
	case strings.TrimSpace(form.StartDate) == "":
		problems = append(problems, "Start time can't be blank.")
	default:
		problems = append(problems, "Start time is invalid.")
	}
	e.StartTime = start

	endDate, endClock := form.EndDate, form.EndTime
	if strings.TrimSpace(endDate) == "" {
		endDate = form.StartDate
	}
	switch {
	case strings.TrimSpace(endClock) == "" && strings.TrimSpace(form.EndDate) == "":
		e.EndTime = start
	default:
		end, err := s.combine(endDate, endClock)
		if err != nil {
			problems = append(problems, "End time is invalid.")
		}
		e.EndTime = end
	}

	if len(problems) == 0 && e.EndTime.Before(e.StartTime) {
		problems = append(problems, "End time can't be before start time.")
	}
	if len(problems) > 0 {
		return model.Event{}, &ValidationError{Problems: problems}
	}
	return e, nil
}

// combine joins a date and an optional clock in the saver's location.
func (s *Saver) combine(date, clock string) (time.Time, error) {
	day, err := ParseDate(date, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(clock) == "" {
		return day, nil
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, s.loc), nil
}

func (s *Saver) resolveVenue(form EventForm) (*model.Venue, bool, error) {
	if id, err := strconv.ParseInt(strings.TrimSpace(form.VenueID), 10, 64); err == nil && id > 0 {
		v, err := s.venues.GetByID(id)
		if err != nil {
			return nil, false, fmt.Errorf("load venue: %w", err)
		}
		if v != nil {
			return v, false, nil
		}
	}

	name := strings.TrimSpace(form.VenueName)
	if name == "" {
		return nil, false, nil
	}
	v, created, err := s.venues.FindOrCreate(name)
	if err != nil {
		return nil, false, fmt.Errorf("find or create venue: %w", err)
	}
	return v, created, nil
}

// ParseTags splits a comma separated tag list into lower-cased, unique,
// sorted tags.
func ParseTags(list string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range strings.Split(list, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
