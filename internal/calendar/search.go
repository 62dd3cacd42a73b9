package calendar

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dukerupert/eventboard/internal/model"
)

// EventSearcher runs keyword searches.
type EventSearcher interface {
	Search(q model.EventSearch) ([]model.Event, error)
}

// SearchStatus classifies a search outcome.
type SearchStatus int

const (
	// SearchOK found events and has nothing to report.
	SearchOK SearchStatus = iota
	// SearchSoftFailure ran but is degraded; render the results with the message.
	SearchSoftFailure
	// SearchHardFailure produced nothing trustworthy; show only the message
	// and send the visitor somewhere safe.
	SearchHardFailure
)

func (s SearchStatus) String() string {
	switch s {
	case SearchOK:
		return "ok"
	case SearchSoftFailure:
		return "soft_failure"
	case SearchHardFailure:
		return "hard_failure"
	default:
		return fmt.Sprintf("SearchStatus(%d)", int(s))
	}
}

const (
	msgBlankQuery  = "You must enter a search query"
	msgSearchError = "There was a problem with your search, please try again."
	msgNoResults   = "No events matched your search."
)

type SearchQuery struct {
	Query string
	Tag   string
	Order string
	// Current drops events that have already ended.
	Current bool
}

type SearchResult struct {
	Status  SearchStatus
	Message string
	Current []model.Event
	Past    []model.Event
}

// Events returns the current events followed by the past ones.
func (r SearchResult) Events() []model.Event {
	out := make([]model.Event, 0, len(r.Current)+len(r.Past))
	out = append(out, r.Current...)
	return append(out, r.Past...)
}

func (r SearchResult) HardFailure() bool {
	return r.Status == SearchHardFailure
}

type searchOrder string

const (
	searchByDate  searchOrder = "date"
	searchByName  searchOrder = "name"
	searchByVenue searchOrder = "venue"
	searchByScore searchOrder = "score"
)

func parseSearchOrder(s string) (searchOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date":
		return searchByDate, true
	case "name", "title":
		return searchByName, true
	case "venue":
		return searchByVenue, true
	case "score":
		return searchByScore, true
	default:
		return searchByDate, false
	}
}

type SearchEngine struct {
	events EventSearcher
	now    func() time.Time
	limit  int
	logger *slog.Logger
}

func NewSearchEngine(events EventSearcher, limit int, now func() time.Time, logger *slog.Logger) *SearchEngine {
	if now == nil {
		now = time.Now
	}
	return &SearchEngine{events: events, now: now, limit: limit, logger: logger}
}

// Search never returns an error: every failure is folded into the result's
// status and message.
func (s *SearchEngine) Search(q SearchQuery) SearchResult {
	keywords := Keywords(q.Query)
	tag := strings.ToLower(strings.TrimSpace(q.Tag))
	if len(keywords) == 0 && tag == "" {
		return SearchResult{Status: SearchHardFailure, Message: msgBlankQuery}
	}

	now := s.now()
	search := model.EventSearch{Keywords: keywords, Tag: tag}
	if q.Current {
		search.Since = now
	}

	events, err := s.events.Search(search)
	if err != nil {
		s.logger.Error("search events", "query", q.Query, "tag", tag, "error", err)
		return SearchResult{Status: SearchHardFailure, Message: msgSearchError}
	}

	order, orderOK := parseSearchOrder(q.Order)

	var result SearchResult
	for _, e := range events {
		if e.EndTime.Before(now) {
			result.Past = append(result.Past, e)
		} else {
			result.Current = append(result.Current, e)
		}
	}
	sortSearchResults(result.Current, order, keywords, false)
	sortSearchResults(result.Past, order, keywords, true)
	result.Current = truncate(result.Current, s.limit)
	result.Past = truncate(result.Past, s.limit)

	switch {
	case !orderOK:
		result.Status = SearchSoftFailure
		result.Message = unknownOrderMessage(q.Order)
	case len(result.Current)+len(result.Past) == 0:
		result.Status = SearchSoftFailure
		result.Message = msgNoResults
	default:
		result.Status = SearchOK
	}
	return result
}

// Keywords splits a query into lower-cased terms. Double-quoted phrases stay
// together.
func Keywords(query string) []string {
	var out []string
	var cur strings.Builder
	quoted := false

	flush := func() {
		if w := strings.TrimSpace(cur.String()); w != "" {
			out = append(out, strings.ToLower(w))
		}
		cur.Reset()
	}

	for _, r := range query {
		switch {
		case r == '"':
			flush()
			quoted = !quoted
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// score counts keyword occurrences across the searchable text of an event.
func score(e model.Event, keywords []string) int {
	text := strings.ToLower(e.Title + " " + e.Description + " " + strings.Join(e.Tags, " "))
	if e.Venue != nil {
		text += " " + strings.ToLower(e.Venue.Title)
	}

	n := 0
	for _, kw := range keywords {
		n += strings.Count(text, kw)
	}
	return n
}

func sortSearchResults(events []model.Event, order searchOrder, keywords []string, past bool) {
	byDate := func(a, b model.Event) bool {
		if past {
			return a.StartTime.After(b.StartTime)
		}
		return a.StartTime.Before(b.StartTime)
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		switch order {
		case searchByName:
			ta, tb := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if ta != tb {
				return ta < tb
			}
		case searchByVenue:
			va, vb := venueTitle(a), venueTitle(b)
			if va != vb {
				return va < vb
			}
		case searchByScore:
			sa, sb := score(a, keywords), score(b, keywords)
			if sa != sb {
				return sa > sb
			}
		}
		return byDate(a, b)
	})
}

func venueTitle(e model.Event) string {
	if e.Venue == nil {
		return ""
	}
	return strings.ToLower(e.Venue.Title)
}

func truncate(events []model.Event, limit int) []model.Event {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}
