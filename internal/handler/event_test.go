package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/eventboard/internal/auth"
	"github.com/dukerupert/eventboard/internal/database"
	"github.com/dukerupert/eventboard/internal/model"
	"github.com/dukerupert/eventboard/internal/render"
	"github.com/dukerupert/eventboard/internal/store"
	ws "github.com/dukerupert/eventboard/internal/websocket"
)

var testNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type memPage struct {
	contentType string
	body        []byte
}

// memCache is an in-process page cache that counts its traffic.
type memCache struct {
	generation    int
	pages         map[string]memPage
	hits, sets    int
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{pages: make(map[string]memPage)}
}

func (c *memCache) Key(_ context.Context, parts ...string) (string, error) {
	return fmt.Sprintf("%d:%s", c.generation, strings.Join(parts, "|")), nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, string, bool) {
	p, ok := c.pages[key]
	if ok {
		c.hits++
	}
	return p.body, p.contentType, ok
}

func (c *memCache) Set(_ context.Context, key, contentType string, body []byte) {
	c.sets++
	c.pages[key] = memPage{contentType: contentType, body: body}
}

func (c *memCache) Invalidate(context.Context) error {
	c.invalidations++
	c.generation++
	return nil
}

type testEnv struct {
	events *store.EventStore
	venues *store.VenueStore
	cache  *memCache
	mux    *http.ServeMux
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg, err := render.New(render.Site{Title: "Eventboard", BaseURL: "https://events.example.org", Location: time.UTC})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		events: store.NewEventStore(db),
		venues: store.NewVenueStore(db),
		cache:  newMemCache(),
		mux:    http.NewServeMux(),
	}

	eh := NewEventHandler(env.events, env.venues, reg, env.cache, ws.NewHub(logger), EventOptions{
		Location:    time.UTC,
		Blacklist:   []string{"casino"},
		SearchLimit: 50,
		Now:         func() time.Time { return testNow },
	}, logger)
	vh := NewVenueHandler(env.venues, env.events, reg, env.cache, time.UTC, logger)
	vh.now = func() time.Time { return testNow }

	env.mux.HandleFunc("GET /{page}", eh.Root)
	env.mux.HandleFunc("GET /events", eh.Index)
	env.mux.HandleFunc("GET /events/search", eh.Search)
	env.mux.HandleFunc("GET /events/new", eh.New)
	env.mux.HandleFunc("POST /events", eh.Create)
	env.mux.HandleFunc("GET /events/duplicates", eh.Duplicates)
	env.mux.HandleFunc("POST /events/squash", eh.Squash)
	env.mux.HandleFunc("GET /events/{id}", eh.Show)
	env.mux.HandleFunc("POST /events/{id}", eh.Update)
	env.mux.HandleFunc("GET /events/{id}/edit", eh.Edit)
	env.mux.HandleFunc("POST /events/{id}/delete", eh.Destroy)
	env.mux.HandleFunc("GET /events/{id}/clone", eh.Clone)
	env.mux.HandleFunc("POST /events/{id}/lock", eh.Lock)
	env.mux.HandleFunc("POST /events/{id}/unlock", eh.Unlock)
	env.mux.HandleFunc("GET /venues/{id}", vh.Show)
	env.mux.HandleFunc("GET /venues/{id}/edit", vh.Edit)
	env.mux.HandleFunc("POST /venues/{id}", vh.Update)
	return env
}

func (env *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	return w
}

func (env *testEnv) post(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	return w
}

func (env *testEnv) create(t *testing.T, title string, start time.Time) *model.Event {
	t.Helper()
	e, err := env.events.Create(model.Event{Title: title, StartTime: start, EndTime: start.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return e
}

func hasFlash(w *httptest.ResponseRecorder) bool {
	for _, c := range w.Result().Cookies() {
		if c.Name == "eventboard_flash" && c.Value != "" {
			return true
		}
	}
	return false
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusFound, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestIndexListsUpcomingEvents(t *testing.T) {
	env := setupTestEnv(t)
	env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))
	env.create(t, "Far future picnic", time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	w := env.get(t, "/events")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Board games") {
		t.Errorf("listing missing upcoming event")
	}
	if strings.Contains(body, "Far future picnic") {
		t.Errorf("listing includes event outside the default range")
	}
}

func TestIndexFormats(t *testing.T) {
	env := setupTestEnv(t)
	env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))

	tests := []struct {
		name        string
		target      string
		wantStatus  int
		contentType string
		contains    string
	}{
		{name: "json extension", target: "/events.json", wantStatus: 200, contentType: "application/json", contains: `"title":"Board games"`},
		{name: "jsonp", target: "/events.json?callback=show", wantStatus: 200, contentType: "application/javascript", contains: "show(["},
		{name: "bad callback", target: "/events.json?callback=alert(1)", wantStatus: 400},
		{name: "atom param", target: "/events?format=atom", wantStatus: 200, contentType: "application/atom+xml", contains: "<feed"},
		{name: "xml", target: "/events.xml", wantStatus: 200, contains: "<events>"},
		{name: "unknown extension", target: "/events.pdf", wantStatus: 406},
		{name: "unknown param", target: "/events?format=csv", wantStatus: 406},
		{name: "other root file", target: "/favicon.ico", wantStatus: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.get(t, tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.contentType != "" && !strings.HasPrefix(w.Header().Get("Content-Type"), tt.contentType) {
				t.Errorf("content type = %q, want %q", w.Header().Get("Content-Type"), tt.contentType)
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body missing %q: %s", tt.contains, w.Body.String())
			}
		})
	}
}

func TestIndexICSFallsBackToFutureEvents(t *testing.T) {
	env := setupTestEnv(t)
	env.create(t, "Far future picnic", time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	w := env.get(t, "/events.json")
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Fatalf("json listing = %s, want []", got)
	}

	w = env.get(t, "/events.ics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "SUMMARY:Far future picnic") {
		t.Errorf("ics missing future event:\n%s", w.Body.String())
	}
}

func TestIndexFilterWarnings(t *testing.T) {
	env := setupTestEnv(t)

	w := env.get(t, "/events?date%5Bstart%5D=bogus&date%5Bend%5D=2026-03-01&order=loudness")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"Can&#39;t filter by an invalid start date.", "Unknown ordering option"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestIndexPageCache(t *testing.T) {
	env := setupTestEnv(t)
	env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))

	first := env.get(t, "/events.json")
	second := env.get(t, "/events.json")
	if env.cache.sets != 1 || env.cache.hits != 1 {
		t.Fatalf("sets = %d, hits = %d, want 1 and 1", env.cache.sets, env.cache.hits)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("cached body differs from original")
	}

	env.get(t, "/events.json?order=name")
	env.get(t, "/events.json?date%5Bstart%5D=2026-02-01")
	if env.cache.sets != 1 {
		t.Errorf("sets = %d after explicit order and dates, want 1", env.cache.sets)
	}

	w := env.post(t, "/events", url.Values{
		"event[title]": {"Book club"},
		"start_date":   {"2026-02-12"},
		"start_time":   {"06:00 PM"},
	})
	assertRedirect(t, w, "/events/2")
	if env.cache.invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", env.cache.invalidations)
	}
	third := env.get(t, "/events.json")
	if !strings.Contains(third.Body.String(), "Book club") {
		t.Errorf("listing after save served a stale page: %s", third.Body.String())
	}
}

func TestShow(t *testing.T) {
	env := setupTestEnv(t)
	e := env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))

	w := env.get(t, fmt.Sprintf("/events/%d", e.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "<h2>Board games</h2>") {
		t.Errorf("show page missing title")
	}

	w = env.get(t, fmt.Sprintf("/events/%d.ics", e.ID))
	if got := strings.Count(w.Body.String(), "BEGIN:VEVENT"); got != 1 {
		t.Errorf("VEVENT count = %d, want 1", got)
	}
}

func TestShowRedirectsDuplicateToProgenitor(t *testing.T) {
	env := setupTestEnv(t)
	master := env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))
	dup := env.create(t, "Board Games!", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))
	if err := env.events.Squash(master.ID, []int64{dup.ID}); err != nil {
		t.Fatalf("squash: %v", err)
	}

	w := env.get(t, fmt.Sprintf("/events/%d.json", dup.ID))
	assertRedirect(t, w, fmt.Sprintf("/events/%d.json", master.ID))
}

func TestShowMissingEvent(t *testing.T) {
	env := setupTestEnv(t)

	for _, target := range []string{"/events/999", "/events/abc"} {
		w := env.get(t, target)
		assertRedirect(t, w, "/events")
		if !hasFlash(w) {
			t.Errorf("%s: no flash message set", target)
		}
	}
}

func TestCreateEvent(t *testing.T) {
	env := setupTestEnv(t)

	w := env.post(t, "/events", url.Values{
		"event[title]":    {"Board games"},
		"event[tag_list]": {"Games, social"},
		"start_date":      {"2026-02-10"},
		"start_time":      {"07:00 PM"},
		"end_time":        {"10:00 PM"},
		"venue_name":      {"Corner Cafe"},
	})

	e, err := env.events.GetByID(1)
	if err != nil || e == nil {
		t.Fatalf("created event not found: %v", err)
	}
	if e.VenueID == nil {
		t.Fatal("venue not attached")
	}
	assertRedirect(t, w, fmt.Sprintf("/venues/%d/edit?from_event=%d", *e.VenueID, e.ID))
	if !hasFlash(w) {
		t.Error("no flash message set")
	}
	if want := time.Date(2026, 2, 10, 22, 0, 0, 0, time.UTC); !e.EndTime.Equal(want) {
		t.Errorf("end = %v, want %v", e.EndTime, want)
	}
	if len(e.Tags) != 2 || e.Tags[0] != "games" {
		t.Errorf("tags = %v, want [games social]", e.Tags)
	}
}

func TestCreateEventRejected(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{
			name: "blank title",
			form: url.Values{"start_date": {"2026-02-10"}},
			want: "Title can&#39;t be blank.",
		},
		{
			name: "spam trap",
			form: url.Values{"event[title]": {"Party"}, "start_date": {"2026-02-10"}, "trap_field": {"gotcha"}},
			want: "Evil robot!",
		},
		{
			name: "blacklisted word",
			form: url.Values{"event[title]": {"Casino night"}, "start_date": {"2026-02-10"}},
			want: "Evil robot!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			w := env.post(t, "/events", tt.form)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
			if e, _ := env.events.GetByID(1); e != nil {
				t.Errorf("event was saved: %+v", e)
			}
		})
	}
}

func TestUpdateEvent(t *testing.T) {
	env := setupTestEnv(t)
	e := env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))

	w := env.get(t, fmt.Sprintf("/events/%d/edit", e.ID))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `value="Board games"`) {
		t.Fatalf("edit form: status %d", w.Code)
	}

	w = env.post(t, fmt.Sprintf("/events/%d", e.ID), url.Values{
		"event[title]": {"Board games night"},
		"start_date":   {"2026-02-11"},
		"start_time":   {"06:30 PM"},
	})
	assertRedirect(t, w, fmt.Sprintf("/events/%d", e.ID))

	got, _ := env.events.GetByID(e.ID)
	if got.Title != "Board games night" {
		t.Errorf("title = %q, want %q", got.Title, "Board games night")
	}
}

func TestLockedEventRefusesChanges(t *testing.T) {
	env := setupTestEnv(t)
	e := env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))

	w := env.post(t, fmt.Sprintf("/events/%d/lock", e.ID), nil)
	assertRedirect(t, w, fmt.Sprintf("/events/%d", e.ID))

	tests := []struct {
		name   string
		method string
		target string
	}{
		{"edit", "GET", fmt.Sprintf("/events/%d/edit", e.ID)},
		{"update", "POST", fmt.Sprintf("/events/%d", e.ID)},
		{"destroy", "POST", fmt.Sprintf("/events/%d/delete", e.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.method == "GET" {
				w = env.get(t, tt.target)
			} else {
				w = env.post(t, tt.target, url.Values{"event[title]": {"Changed"}, "start_date": {"2026-02-10"}})
			}
			assertRedirect(t, w, "/")
			if !hasFlash(w) {
				t.Error("no flash message set")
			}
		})
	}

	got, _ := env.events.GetByID(e.ID)
	if got == nil || got.Title != "Board games" {
		t.Errorf("locked event changed: %+v", got)
	}

	w = env.post(t, fmt.Sprintf("/events/%d/unlock", e.ID), nil)
	assertRedirect(t, w, fmt.Sprintf("/events/%d", e.ID))
	w = env.post(t, fmt.Sprintf("/events/%d/delete", e.ID), nil)
	assertRedirect(t, w, "/events")
}

func TestDestroyEvent(t *testing.T) {
	env := setupTestEnv(t)
	e := env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))

	w := env.post(t, fmt.Sprintf("/events/%d/delete", e.ID), nil)
	assertRedirect(t, w, "/events")

	if got, _ := env.events.GetByID(e.ID); got != nil {
		t.Errorf("event still present: %+v", got)
	}
	if env.cache.invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", env.cache.invalidations)
	}
}

func TestCloneEvent(t *testing.T) {
	env := setupTestEnv(t)
	e := env.create(t, "Board games", time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC))

	w := env.get(t, fmt.Sprintf("/events/%d/clone", e.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{`value="Board games"`, `value="2026-02-01"`, `value="07:00 PM"`, "Cloned from", `action="/events"`} {
		if !strings.Contains(body, want) {
			t.Errorf("clone form missing %q", want)
		}
	}
}

func TestSearch(t *testing.T) {
	env := setupTestEnv(t)
	env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))
	env.create(t, "Old board games", time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC))

	w := env.get(t, "/events/search")
	assertRedirect(t, w, "/")

	w = env.get(t, "/events/search?query=board")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Old board games") {
		t.Errorf("search page missing past event")
	}

	w = env.get(t, "/events/search.json?query=board&current=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); !strings.Contains(body, `"Board games"`) || strings.Contains(body, "Old board games") {
		t.Errorf("current search = %s", body)
	}

	for _, off := range []string{"0", "false"} {
		w = env.get(t, "/events/search.json?query=board&current="+off)
		if !strings.Contains(w.Body.String(), "Old board games") {
			t.Errorf("current=%s dropped past event: %s", off, w.Body.String())
		}
	}

	w = env.get(t, "/events/search?query=karaoke")
	if !strings.Contains(w.Body.String(), "No events matched your search.") {
		t.Errorf("empty search missing message")
	}
}

func TestShowOffersLockToAdmins(t *testing.T) {
	env := setupTestEnv(t)
	e := env.create(t, "Board games", time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC))
	target := fmt.Sprintf("/events/%d", e.ID)
	lockForm := fmt.Sprintf(`action="/events/%d/lock"`, e.ID)

	w := env.get(t, target)
	if strings.Contains(w.Body.String(), lockForm) {
		t.Error("anonymous visitor offered the lock form")
	}

	req := httptest.NewRequest("GET", target, nil)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{Username: "admin", Role: auth.RoleAdmin}))
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), lockForm) {
		t.Error("admin not offered the lock form")
	}
}

func TestTagFilterIgnoresCase(t *testing.T) {
	env := setupTestEnv(t)
	w := env.post(t, "/events", url.Values{
		"event[title]":    {"Open mic"},
		"event[tag_list]": {"Music"},
		"start_date":      {"2026-02-10"},
		"start_time":      {"19:00"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}

	for _, target := range []string{
		"/events.json?tag=music",
		"/events.json?tag=Music",
		"/events/search.json?tag=Music",
		"/events/search.json?tag=MUSIC&query=open",
	} {
		w := env.get(t, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"Open mic"`) {
			t.Errorf("%s: missing tagged event: %s", target, w.Body.String())
		}
	}
}
