package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/eventboard/internal/auth"
	"github.com/dukerupert/eventboard/internal/cache"
	"github.com/dukerupert/eventboard/internal/calendar"
	"github.com/dukerupert/eventboard/internal/model"
	"github.com/dukerupert/eventboard/internal/render"
	"github.com/dukerupert/eventboard/internal/store"
	ws "github.com/dukerupert/eventboard/internal/websocket"
)

// EventOptions are the installation settings the event pages depend on.
type EventOptions struct {
	Location    *time.Location
	Blacklist   []string
	SearchLimit int
	// Now defaults to time.Now.
	Now func() time.Time
}

type EventHandler struct {
	events     *store.EventStore
	browser    *calendar.Browser
	engine     *calendar.SearchEngine
	duplicates *calendar.DuplicateResolver
	saver      *calendar.Saver
	render     *render.Registry
	cache      cache.PageCache
	hub        *ws.Hub
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

func NewEventHandler(es *store.EventStore, vs *store.VenueStore, reg *render.Registry, pages cache.PageCache, hub *ws.Hub, opts EventOptions, logger *slog.Logger) *EventHandler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pages == nil {
		pages = cache.Noop{}
	}
	return &EventHandler{
		events:     es,
		browser:    calendar.NewBrowser(es, opts.Location, opts.Now),
		engine:     calendar.NewSearchEngine(es, opts.SearchLimit, opts.Now, logger),
		duplicates: calendar.NewDuplicateResolver(es),
		saver:      calendar.NewSaver(es, vs, opts.Blacklist, opts.Location),
		render:     reg,
		cache:      pages,
		hub:        hub,
		loc:        opts.Location,
		now:        opts.Now,
		logger:     logger,
	}
}

func (h *EventHandler) today() time.Time {
	return h.now().In(h.loc)
}

// Root serves GET /{page}, which carries the listing feeds such as
// /events.ics and /events.atom.
func (h *EventHandler) Root(w http.ResponseWriter, r *http.Request) {
	base, ext := render.SplitExt(r.PathValue("page"))
	if base != "events" || ext == "" {
		http.NotFound(w, r)
		return
	}
	h.index(w, r, ext)
}

func (h *EventHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.index(w, r, "")
}

func (h *EventHandler) index(w http.ResponseWriter, r *http.Request, ext string) {
	format, ok := negotiate(w, r, h.render, ext)
	if !ok {
		return
	}
	ctx := r.Context()
	fb := pendingFeedback(w, r)
	req := browseRequest(r)
	plan := h.browser.Plan(req)

	var key string
	if plan.CachingEligible && fb.Empty() {
		key = h.pageKey(ctx, "index", string(format), r.URL.RawQuery)
		if body, contentType, hit := h.cache.Get(ctx, key); hit {
			render.Write(w, http.StatusOK, contentType, body)
			return
		}
	}

	res, err := h.browser.Run(plan, &fb)
	if err != nil {
		h.logger.Error("failed to browse events", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	events := res.Events
	if format == render.FormatICS && len(events) == 0 {
		// Calendar subscribers get every upcoming event rather than an empty feed.
		events, err = h.events.ListFuture(h.now())
		if err != nil {
			h.logger.Error("failed to list future events", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	v := &render.View{
		Page:      "events_index",
		Title:     "Events",
		Events:    events,
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Callback:  r.URL.Query().Get("callback"),
		Data: map[string]any{
			"DateStart": res.Query.Range.Start.Format("2006-01-02"),
			"DateEnd":   res.Query.Range.End.Format("2006-01-02"),
			"TimeStart": res.Window.StartLabel(),
			"TimeEnd":   res.Window.EndLabel(),
			"Tag":       req.Tag,
			"Order":     string(res.Query.Order),
		},
	}

	body, contentType, err := h.render.Encode(format, v)
	if err != nil {
		renderView(w, h.render, format, http.StatusOK, v, h.logger)
		return
	}
	if key != "" {
		h.cache.Set(ctx, key, contentType, body)
	}
	render.Write(w, http.StatusOK, contentType, body)
}

func (h *EventHandler) pageKey(ctx context.Context, parts ...string) string {
	key, err := h.cache.Key(ctx, parts...)
	if err != nil {
		h.logger.Warn("page cache unavailable", "error", err)
		return ""
	}
	return key
}

func browseRequest(r *http.Request) calendar.BrowseRequest {
	q := r.URL.Query()
	_, hasStart := q["date[start]"]
	_, hasEnd := q["date[end]"]

	req := calendar.BrowseRequest{
		Date: calendar.DateRequest{
			Start:    q.Get("date[start]"),
			End:      q.Get("date[end]"),
			HasStart: hasStart,
			HasEnd:   hasEnd,
		},
		TimeStart: q.Get("time[start]"),
		TimeEnd:   q.Get("time[end]"),
		Tag:       q.Get("tag"),
		Order:     q.Get("order"),
	}
	if id, ok := parseID(q.Get("venue_id")); ok {
		req.VenueID = &id
	}
	return req
}

func (h *EventHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, "")
}

func (h *EventHandler) search(w http.ResponseWriter, r *http.Request, ext string) {
	format, ok := negotiate(w, r, h.render, ext)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := calendar.SearchQuery{
		Query:   q.Get("query"),
		Tag:     q.Get("tag"),
		Order:   q.Get("order"),
		Current: isTrue(q.Get("current")),
	}

	res := h.engine.Search(query)
	if res.HardFailure() {
		redirectFailure(w, r, "/", res.Message)
		return
	}

	fb := pendingFeedback(w, r)
	if res.Status == calendar.SearchSoftFailure {
		fb.Fail(res.Message)
	}

	title := "Search"
	if s := strings.TrimSpace(query.Query); s != "" {
		title = "Search: " + s
	}
	renderView(w, h.render, format, http.StatusOK, &render.View{
		Page:      "events_search",
		Title:     title,
		Events:    res.Events(),
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Callback:  q.Get("callback"),
		Data: map[string]any{
			"Query":    query.Query,
			"Tag":      query.Tag,
			"Order":    query.Order,
			"Current":  query.Current,
			"Upcoming": res.Current,
			"Past":     res.Past,
		},
	}, h.logger)
}

// Show serves GET /events/{id}. The segment may carry a format extension,
// and /events/search.<format> lands here as well.
func (h *EventHandler) Show(w http.ResponseWriter, r *http.Request) {
	raw, ext := render.SplitExt(r.PathValue("id"))
	if raw == "search" {
		h.search(w, r, ext)
		return
	}
	id, ok := parseID(raw)
	if !ok {
		redirectFailure(w, r, "/events", calendar.Message(calendar.ErrNotFound))
		return
	}
	format, ok := negotiate(w, r, h.render, ext)
	if !ok {
		return
	}

	e, redirect, err := h.duplicates.ResolveForDisplay(id)
	if err != nil {
		if !errors.Is(err, calendar.ErrNotFound) {
			h.logger.Error("failed to resolve event", "id", id, "error", err)
		}
		redirectFailure(w, r, "/events", calendar.Message(err))
		return
	}
	if redirect {
		target := fmt.Sprintf("/events/%d", e.ID)
		if ext != "" {
			target += "." + ext
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	fb := pendingFeedback(w, r)
	renderView(w, h.render, format, http.StatusOK, &render.View{
		Page:      "event_show",
		Title:     e.Title,
		Event:     e,
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Callback:  r.URL.Query().Get("callback"),
		Data:      map[string]any{"Admin": auth.IsAdmin(r.Context())},
	}, h.logger)
}

type formPage struct {
	title      string
	action     string
	form       calendar.EventForm
	clonedFrom int64
}

func (h *EventHandler) renderForm(w http.ResponseWriter, status int, p formPage, fb calendar.Feedback) {
	renderView(w, h.render, render.FormatHTML, status, &render.View{
		Page:      "event_form",
		Title:     p.title,
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Data: map[string]any{
			"Form":       p.form,
			"Action":     p.action,
			"ClonedFrom": p.clonedFrom,
		},
	}, h.logger)
}

func (h *EventHandler) New(w http.ResponseWriter, r *http.Request) {
	fb := pendingFeedback(w, r)
	h.renderForm(w, http.StatusOK, formPage{
		title:  "Add an event",
		action: "/events",
		form:   calendar.EventForm{StartDate: h.today().Format("2006-01-02")},
	}, fb)
}

func eventForm(r *http.Request) calendar.EventForm {
	return calendar.EventForm{
		Title:       r.PostFormValue("event[title]"),
		Description: r.PostFormValue("event[description]"),
		URL:         r.PostFormValue("event[url]"),
		TagList:     r.PostFormValue("event[tag_list]"),
		StartDate:   r.PostFormValue("start_date"),
		StartTime:   r.PostFormValue("start_time"),
		EndDate:     r.PostFormValue("end_date"),
		EndTime:     r.PostFormValue("end_time"),
		VenueID:     r.PostFormValue("event[venue_id]"),
		VenueName:   r.PostFormValue("venue_name"),
		Trap:        r.PostFormValue("trap_field"),
	}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := eventForm(r)

	res, err := h.saver.Save(nil, form)
	if err != nil {
		h.saveFailed(w, err, formPage{title: "Add an event", action: "/events", form: form})
		return
	}
	h.changed(r.Context(), ws.ActionSaved, res.Event.ID)
	h.saved(w, r, res)
}

func (h *EventHandler) Edit(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadUnlocked(w, r)
	if !ok {
		return
	}
	fb := pendingFeedback(w, r)
	h.renderForm(w, http.StatusOK, formPage{
		title:  "Edit " + e.Title,
		action: fmt.Sprintf("/events/%d", e.ID),
		form:   calendar.FormFromEvent(*e, h.loc),
	}, fb)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadUnlocked(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := eventForm(r)

	res, err := h.saver.Save(e, form)
	if err != nil {
		h.saveFailed(w, err, formPage{title: "Edit " + e.Title, action: fmt.Sprintf("/events/%d", e.ID), form: form})
		return
	}
	h.changed(r.Context(), ws.ActionSaved, res.Event.ID)
	h.saved(w, r, res)
}

func (h *EventHandler) saveFailed(w http.ResponseWriter, err error, p formPage) {
	var ve *calendar.ValidationError
	if !errors.As(err, &ve) && !errors.Is(err, calendar.ErrSpam) {
		h.logger.Error("failed to save event", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var fb calendar.Feedback
	fb.Fail(calendar.Message(err))
	h.renderForm(w, http.StatusUnprocessableEntity, p, fb)
}

// saved sends the visitor on after a successful save. A venue created along
// the way needs its details filled in, so that comes first.
func (h *EventHandler) saved(w http.ResponseWriter, r *http.Request, res *calendar.SaveResult) {
	target := fmt.Sprintf("/events/%d", res.Event.ID)
	if res.NewVenue && res.Event.VenueID != nil {
		target = fmt.Sprintf("/venues/%d/edit?from_event=%d", *res.Event.VenueID, res.Event.ID)
	}
	redirectSuccess(w, r, target, calendar.SavedMessage(res.NewVenue))
}

func (h *EventHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadUnlocked(w, r)
	if !ok {
		return
	}
	if err := h.events.Delete(e.ID); err != nil {
		h.logger.Error("failed to delete event", "id", e.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.changed(r.Context(), ws.ActionDeleted, e.ID)
	redirectSuccess(w, r, "/events", calendar.DeletedMessage(e.Title))
}

func (h *EventHandler) Clone(w http.ResponseWriter, r *http.Request) {
	src, ok := h.load(w, r)
	if !ok {
		return
	}
	clone := calendar.Clone(*src, h.today())

	fb := pendingFeedback(w, r)
	fb.Succeed(calendar.ClonedMessage())
	h.renderForm(w, http.StatusOK, formPage{
		title:      "Add an event",
		action:     "/events",
		form:       calendar.FormFromEvent(clone, h.loc),
		clonedFrom: src.ID,
	}, fb)
}

func (h *EventHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

func (h *EventHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *EventHandler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	e, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.events.SetLocked(e.ID, locked); err != nil {
		h.logger.Error("failed to set lock", "id", e.ID, "locked", locked, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	action, verb := ws.ActionLocked, "Locked"
	if !locked {
		action, verb = ws.ActionUnlocked, "Unlocked"
	}
	h.changed(r.Context(), action, e.ID)
	h.logger.Info("event lock changed", "id", e.ID, "locked", locked, "by", auth.Username(r.Context()))
	redirectSuccess(w, r, fmt.Sprintf("/events/%d", e.ID), fmt.Sprintf("%s event %q.", verb, e.Title))
}

// load fetches the event named by the id path value. A missing event sends
// the visitor back to the listing.
func (h *EventHandler) load(w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		redirectFailure(w, r, "/events", calendar.Message(calendar.ErrNotFound))
		return nil, false
	}
	e, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("failed to get event", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if e == nil {
		redirectFailure(w, r, "/events", calendar.Message(&calendar.NotFoundError{ID: id}))
		return nil, false
	}
	return e, true
}

// loadUnlocked is load plus the lock check every modification needs.
func (h *EventHandler) loadUnlocked(w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	e, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	if err := calendar.CheckLock(e); err != nil {
		redirectFailure(w, r, "/", calendar.Message(err))
		return nil, false
	}
	return e, true
}

// changed retires cached listings and tells connected clients.
func (h *EventHandler) changed(ctx context.Context, action string, id int64, related ...int64) {
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("failed to invalidate page cache", "error", err)
	}
	if h.hub != nil {
		h.hub.Broadcast(ws.EventChanged(action, id, related...))
	}
}
