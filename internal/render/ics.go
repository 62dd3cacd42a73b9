package render

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	ical "github.com/arran4/golang-ical"
)

func (r *Registry) encodeICS(w io.Writer, v *View) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//" + r.site.Title + "//EN")

	host := "eventboard"
	if u, err := url.Parse(r.site.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	for _, e := range v.all() {
		ev := cal.AddEvent(fmt.Sprintf("event-%d@%s", e.ID, host))
		ev.SetDtStampTime(e.UpdatedAt.UTC())
		ev.SetCreatedTime(e.CreatedAt.UTC())
		ev.SetModifiedAt(e.UpdatedAt.UTC())
		ev.SetStartAt(e.StartTime.UTC())
		ev.SetEndAt(e.EndTime.UTC())
		ev.SetSummary(e.Title)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Venue != nil {
			loc := e.Venue.Title
			if e.Venue.Address != "" {
				loc += ", " + e.Venue.Address
			}
			ev.SetLocation(loc)
		}
		if len(e.Tags) > 0 {
			ev.SetProperty(ical.ComponentPropertyCategories, strings.Join(e.Tags, ","))
		}
		ev.SetURL(r.site.EventURL(e.ID))
	}

	return cal.SerializeTo(w)
}
