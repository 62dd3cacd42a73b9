// Package render turns event views into response bodies. Each supported
// format is registered once; handlers negotiate a format per request and
// hand the view to the registry.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/model"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatICS  Format = "ics"
	FormatAtom Format = "atom"
	FormatKML  Format = "kml"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// Site is the installation-wide information every format needs.
type Site struct {
	Title    string
	BaseURL  string
	Location *time.Location
}

// EventURL is the absolute address of an event page.
func (s Site) EventURL(id int64) string {
	return fmt.Sprintf("%s/events/%d", strings.TrimRight(s.BaseURL, "/"), id)
}

// View is everything a response may show. Page selects the HTML template;
// the other formats only look at Event and Events.
type View struct {
	Page      string
	Title     string
	Event     *model.Event
	Events    []model.Event
	Successes []string
	Failures  []string
	// Callback wraps JSON output for JSONP clients.
	Callback string
	Data     map[string]any
}

// Single reports whether the view is about one event rather than a listing.
func (v *View) Single() bool {
	return v.Event != nil
}

func (v *View) all() []model.Event {
	if v.Event != nil {
		return []model.Event{*v.Event}
	}
	return v.Events
}

type encoder struct {
	contentType string
	encode      func(w io.Writer, v *View) error
}

// Registry maps formats to encoders.
type Registry struct {
	site     Site
	encoders map[Format]encoder
}

func New(site Site) (*Registry, error) {
	if site.Location == nil {
		site.Location = time.UTC
	}

	pages, err := parsePages(site)
	if err != nil {
		return nil, err
	}

	r := &Registry{site: site}
	r.encoders = map[Format]encoder{
		FormatHTML: {contentType: "text/html; charset=utf-8", encode: pages.encode},
		FormatJSON: {contentType: "application/json", encode: encodeJSON},
		FormatXML:  {contentType: "application/xml; charset=utf-8", encode: r.encodeXML},
		FormatICS:  {contentType: "text/calendar; charset=utf-8", encode: r.encodeICS},
		FormatAtom: {contentType: "application/atom+xml; charset=utf-8", encode: r.encodeAtom},
		FormatKML:  {contentType: "application/vnd.google-earth.kml+xml", encode: r.encodeKML},
	}
	return r, nil
}

func (r *Registry) Site() Site {
	return r.site
}

// Supports reports whether f has an encoder.
func (r *Registry) Supports(f Format) bool {
	_, ok := r.encoders[f]
	return ok
}

var acceptTypes = map[string]Format{
	"text/html":                            FormatHTML,
	"application/xhtml+xml":                FormatHTML,
	"application/json":                     FormatJSON,
	"application/javascript":               FormatJSON,
	"application/xml":                      FormatXML,
	"text/xml":                             FormatXML,
	"text/calendar":                        FormatICS,
	"application/atom+xml":                 FormatAtom,
	"application/vnd.google-earth.kml+xml": FormatKML,
}

// Negotiate picks the response format. An explicit extension wins, then the
// format query parameter, then the Accept header. Anything that names an
// unknown format is ErrUnsupportedFormat; nothing at all means HTML.
func (r *Registry) Negotiate(req *http.Request, ext string) (Format, error) {
	if ext = strings.TrimPrefix(strings.ToLower(ext), "."); ext != "" {
		return r.lookup(ext)
	}
	if f := strings.ToLower(strings.TrimSpace(req.URL.Query().Get("format"))); f != "" {
		return r.lookup(f)
	}

	accept := req.Header.Get("Accept")
	if accept == "" {
		return FormatHTML, nil
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == "*/*" || mt == "text/*" {
			return FormatHTML, nil
		}
		if f, ok := acceptTypes[mt]; ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("accept %q: %w", accept, ErrUnsupportedFormat)
}

func (r *Registry) lookup(name string) (Format, error) {
	f := Format(name)
	if !r.Supports(f) {
		return "", fmt.Errorf("format %q: %w", name, ErrUnsupportedFormat)
	}
	return f, nil
}

// Encode renders v in format f and returns the body with its content type.
func (r *Registry) Encode(f Format, v *View) ([]byte, string, error) {
	enc, ok := r.encoders[f]
	if !ok {
		return nil, "", fmt.Errorf("format %q: %w", f, ErrUnsupportedFormat)
	}

	contentType := enc.contentType
	if f == FormatJSON && v.Callback != "" {
		contentType = "application/javascript"
	}

	var buf bytes.Buffer
	if err := enc.encode(&buf, v); err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", f, err)
	}
	return buf.Bytes(), contentType, nil
}

// Render encodes v and writes it with status. Nothing is written when
// encoding fails.
func (r *Registry) Render(w http.ResponseWriter, f Format, status int, v *View) error {
	body, contentType, err := r.Encode(f, v)
	if err != nil {
		return err
	}
	Write(w, status, contentType, body)
	return nil
}

// Write sends a pre-encoded body.
func Write(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}

// SplitExt separates a trailing format extension from a path segment, so
// "events.ics" becomes ("events", "ics") and "12.json" becomes ("12", "json").
func SplitExt(segment string) (string, string) {
	ext := path.Ext(segment)
	if ext == "" {
		return segment, ""
	}
	return strings.TrimSuffix(segment, ext), strings.TrimPrefix(ext, ".")
}
