package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/feeds"
)

func (r *Registry) encodeAtom(w io.Writer, v *View) error {
	title := r.site.Title
	if v.Title != "" {
		title = v.Title + " | " + r.site.Title
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: strings.TrimRight(r.site.BaseURL, "/") + "/events"},
		Description: "Upcoming events",
		Id:          strings.TrimRight(r.site.BaseURL, "/") + "/events",
	}

	for _, e := range v.all() {
		if e.UpdatedAt.After(feed.Updated) {
			feed.Updated = e.UpdatedAt
		}

		start := e.StartTime.In(r.site.Location)
		summary := start.Format("Monday, January 2, 2006 at 3:04 PM")
		if e.Venue != nil {
			summary += " at " + e.Venue.Title
		}
		item := &feeds.Item{
			Id:          r.site.EventURL(e.ID),
			Title:       e.Title,
			Link:        &feeds.Link{Href: r.site.EventURL(e.ID)},
			Description: summary,
			Content:     e.Description,
			Created:     e.CreatedAt,
			Updated:     e.UpdatedAt,
		}
		feed.Items = append(feed.Items, item)
	}
	if feed.Updated.IsZero() {
		feed.Updated = time.Unix(0, 0).UTC()
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return fmt.Errorf("build atom feed: %w", err)
	}
	_, err = io.WriteString(w, atom)
	return err
}
