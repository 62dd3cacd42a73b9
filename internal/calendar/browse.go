package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

// EventQuerier runs listing queries.
type EventQuerier interface {
	Query(q model.EventQuery) ([]model.Event, error)
}

// BrowseRequest is the listing request as it arrives from the visitor.
type BrowseRequest struct {
	Date      DateRequest
	TimeStart string
	TimeEnd   string
	Tag       string
	VenueID   *int64
	Order     string
}

// Browse is a composed listing: the store query plus everything the view
// needs to echo back.
type Browse struct {
	Query  model.EventQuery
	Window TimeWindow
	// CachingEligible marks the default view: no explicit order and no
	// explicit dates were requested.
	CachingEligible bool
	Warnings        []string
}

// NewBrowse composes a listing query from the request. It does not touch the
// store.
func NewBrowse(req BrowseRequest, today time.Time) Browse {
	dates, warnings := ResolveDateRange(req.Date, today)

	order, ok := ParseOrder(req.Order)
	if !ok {
		warnings = append(warnings, unknownOrderMessage(req.Order))
	}

	return Browse{
		Query: model.EventQuery{
			Range:   dates,
			Tag:     strings.ToLower(strings.TrimSpace(req.Tag)),
			VenueID: req.VenueID,
			Order:   order,
		},
		Window:          ParseTimeWindow(req.TimeStart, req.TimeEnd),
		CachingEligible: strings.TrimSpace(req.Order) == "" && !req.Date.Present(),
		Warnings:        warnings,
	}
}

// ParseOrder maps a requested ordering onto a supported one. Blank means
// date; unknown values fall back to date and report false.
func ParseOrder(s string) (model.EventOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date":
		return model.OrderDate, true
	case "name", "title":
		return model.OrderName, true
	case "venue":
		return model.OrderVenue, true
	default:
		return model.OrderDate, false
	}
}

func unknownOrderMessage(order string) string {
	return fmt.Sprintf("Unknown ordering option %q, sorting by date instead.", order)
}

// Browser executes listings against the store.
type Browser struct {
	events EventQuerier
	loc    *time.Location
	now    func() time.Time
}

func NewBrowser(events EventQuerier, loc *time.Location, now func() time.Time) *Browser {
	if now == nil {
		now = time.Now
	}
	return &Browser{events: events, loc: loc, now: now}
}

// BrowseResult is a listing ready for rendering.
type BrowseResult struct {
	Browse
	Events []model.Event
}

// Plan composes the listing for req against the current day without
// querying. Handlers use it to decide on caching before doing any work.
func (b *Browser) Plan(req BrowseRequest) Browse {
	return NewBrowse(req, b.now().In(b.loc))
}

// Browse resolves the request, queries the store and applies the time of
// day window. Warnings are recorded on fb.
func (b *Browser) Browse(req BrowseRequest, fb *Feedback) (*BrowseResult, error) {
	return b.Run(b.Plan(req), fb)
}

// Run executes a planned listing.
func (b *Browser) Run(browse Browse, fb *Feedback) (*BrowseResult, error) {
	fb.FailAll(browse.Warnings)

	events, err := b.events.Query(browse.Query)
	if err != nil {
		return nil, fmt.Errorf("browse events: %w", err)
	}

	return &BrowseResult{
		Browse: browse,
		Events: browse.Window.Filter(events, b.loc),
	}, nil
}
