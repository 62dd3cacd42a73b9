package render

import (
	"encoding/xml"
	"fmt"
	"io"
)

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPlacemark struct {
	Name        string   `xml:"name"`
	Description string   `xml:"description,omitempty"`
	Point       kmlPoint `xml:"Point"`
}

type kmlDocument struct {
	XMLName    xml.Name       `xml:"http://www.opengis.net/kml/2.2 kml"`
	Name       string         `xml:"Document>name"`
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
}

// encodeKML places every event whose venue has coordinates. Events without a
// location are left out of the map.
func (r *Registry) encodeKML(w io.Writer, v *View) error {
	doc := kmlDocument{Name: r.site.Title}
	for _, e := range v.all() {
		if e.Venue == nil || !e.Venue.HasLocation() {
			continue
		}
		doc.Placemarks = append(doc.Placemarks, kmlPlacemark{
			Name:        e.Title,
			Description: fmt.Sprintf("%s at %s", e.StartTime.In(r.site.Location).Format("Jan 2, 2006 3:04 PM"), e.Venue.Title),
			Point:       kmlPoint{Coordinates: fmt.Sprintf("%f,%f", *e.Venue.Longitude, *e.Venue.Latitude)},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(doc)
}
