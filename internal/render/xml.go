package render

import (
	"encoding/xml"
	"io"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

type xmlVenue struct {
	ID        int64    `xml:"id"`
	Title     string   `xml:"title"`
	Address   string   `xml:"address,omitempty"`
	URL       string   `xml:"url,omitempty"`
	Latitude  *float64 `xml:"latitude,omitempty"`
	Longitude *float64 `xml:"longitude,omitempty"`
}

type xmlEvent struct {
	XMLName     xml.Name  `xml:"event"`
	ID          int64     `xml:"id"`
	Title       string    `xml:"title"`
	Description string    `xml:"description,omitempty"`
	URL         string    `xml:"url,omitempty"`
	StartTime   time.Time `xml:"start-time"`
	EndTime     time.Time `xml:"end-time"`
	Tags        []string  `xml:"tags>tag"`
	Venue       *xmlVenue `xml:"venue,omitempty"`
	Link        string    `xml:"link"`
}

type xmlEvents struct {
	XMLName xml.Name   `xml:"events"`
	Events  []xmlEvent `xml:"event"`
}

func (r *Registry) toXML(e model.Event) xmlEvent {
	out := xmlEvent{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		StartTime:   e.StartTime.In(r.site.Location),
		EndTime:     e.EndTime.In(r.site.Location),
		Tags:        e.Tags,
		Link:        r.site.EventURL(e.ID),
	}
	if v := e.Venue; v != nil {
		out.Venue = &xmlVenue{ID: v.ID, Title: v.Title, Address: v.Address, URL: v.URL, Latitude: v.Latitude, Longitude: v.Longitude}
	}
	return out
}

func (r *Registry) encodeXML(w io.Writer, v *View) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if v.Single() {
		return enc.Encode(r.toXML(*v.Event))
	}

	doc := xmlEvents{Events: make([]xmlEvent, 0, len(v.Events))}
	for _, e := range v.Events {
		doc.Events = append(doc.Events, r.toXML(e))
	}
	return enc.Encode(doc)
}
