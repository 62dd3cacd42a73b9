package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/cache"
	"github.com/dukerupert/eventboard/internal/calendar"
	"github.com/dukerupert/eventboard/internal/model"
	"github.com/dukerupert/eventboard/internal/render"
	"github.com/dukerupert/eventboard/internal/store"
)

type VenueHandler struct {
	venues *store.VenueStore
	events *store.EventStore
	render *render.Registry
	cache  cache.PageCache
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewVenueHandler(vs *store.VenueStore, es *store.EventStore, reg *render.Registry, pages cache.PageCache, loc *time.Location, logger *slog.Logger) *VenueHandler {
	if loc == nil {
		loc = time.UTC
	}
	if pages == nil {
		pages = cache.Noop{}
	}
	return &VenueHandler{venues: vs, events: es, render: reg, cache: pages, loc: loc, now: time.Now, logger: logger}
}

const venueSaved = "Venue was successfully saved."

func venueNotFound(id int64) string {
	return fmt.Sprintf("Couldn't find venue with id %d.", id)
}

// Show lists the venue with its events for the coming months.
func (h *VenueHandler) Show(w http.ResponseWriter, r *http.Request) {
	raw, ext := render.SplitExt(r.PathValue("id"))
	id, ok := parseID(raw)
	if !ok {
		http.NotFound(w, r)
		return
	}
	format, ok := negotiate(w, r, h.render, ext)
	if !ok {
		return
	}
	v, ok := h.load(w, r, id)
	if !ok {
		return
	}

	events, err := h.events.Query(model.EventQuery{
		Range:   calendar.DefaultDateRange(h.now().In(h.loc)),
		VenueID: &v.ID,
		Order:   model.OrderDate,
	})
	if err != nil {
		h.logger.Error("failed to list venue events", "venue_id", v.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	fb := pendingFeedback(w, r)
	renderView(w, h.render, format, http.StatusOK, &render.View{
		Page:      "venue_show",
		Title:     v.Title,
		Events:    events,
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Callback:  r.URL.Query().Get("callback"),
		Data:      map[string]any{"Venue": v},
	}, h.logger)
}

func (h *VenueHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	v, ok := h.load(w, r, id)
	if !ok {
		return
	}
	fb := pendingFeedback(w, r)
	h.renderForm(w, http.StatusOK, v, r.URL.Query().Get("from_event"), fb)
}

func (h *VenueHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	v, ok := h.load(w, r, id)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	submitted := *v
	submitted.Title = strings.TrimSpace(r.PostFormValue("venue[title]"))
	submitted.Address = strings.TrimSpace(r.PostFormValue("venue[address]"))
	submitted.URL = strings.TrimSpace(r.PostFormValue("venue[url]"))
	fromEvent := r.PostFormValue("from_event")

	var fb calendar.Feedback
	if submitted.Title == "" {
		fb.Fail("Title can't be blank.")
	}
	lat, err := parseCoordinate(r.PostFormValue("venue[latitude]"), 90)
	if err != nil {
		fb.Fail("Latitude is invalid.")
	}
	lng, err := parseCoordinate(r.PostFormValue("venue[longitude]"), 180)
	if err != nil {
		fb.Fail("Longitude is invalid.")
	}
	submitted.Latitude, submitted.Longitude = lat, lng
	if !fb.Empty() {
		h.renderForm(w, http.StatusUnprocessableEntity, &submitted, fromEvent, fb)
		return
	}

	updated, err := h.venues.Update(v.ID, submitted.Title, submitted.Address, submitted.URL, lat, lng)
	if err != nil {
		h.logger.Error("failed to update venue", "id", v.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Warn("failed to invalidate page cache", "error", err)
	}

	target := fmt.Sprintf("/venues/%d", updated.ID)
	if eventID, ok := parseID(fromEvent); ok {
		target = fmt.Sprintf("/events/%d", eventID)
	}
	redirectSuccess(w, r, target, venueSaved)
}

func (h *VenueHandler) load(w http.ResponseWriter, r *http.Request, id int64) (*model.Venue, bool) {
	v, err := h.venues.GetByID(id)
	if err != nil {
		h.logger.Error("failed to get venue", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if v == nil {
		redirectFailure(w, r, "/events", venueNotFound(id))
		return nil, false
	}
	return v, true
}

func (h *VenueHandler) renderForm(w http.ResponseWriter, status int, v *model.Venue, fromEvent string, fb calendar.Feedback) {
	data := map[string]any{"Venue": v}
	if id, ok := parseID(fromEvent); ok {
		data["FromEvent"] = id
	}
	renderView(w, h.render, render.FormatHTML, status, &render.View{
		Page:      "venue_form",
		Title:     "Edit " + v.Title,
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Data:      data,
	}, h.logger)
}

// parseCoordinate reads an optional degree value bounded by ±limit.
func parseCoordinate(s string, limit float64) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if f < -limit || f > limit {
		return nil, fmt.Errorf("coordinate %v out of range", f)
	}
	return &f, nil
}
