package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/eventboard/internal/calendar"
	"github.com/dukerupert/eventboard/internal/flash"
	"github.com/dukerupert/eventboard/internal/render"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseID reads a positive numeric path segment.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// redirectWith flashes one message and sends the visitor to url.
func redirectWith(w http.ResponseWriter, r *http.Request, url string, fb calendar.Feedback) {
	flash.Set(w, flash.Messages{Successes: fb.Successes, Failures: fb.Failures})
	http.Redirect(w, r, url, http.StatusFound)
}

func redirectFailure(w http.ResponseWriter, r *http.Request, url, msg string) {
	var fb calendar.Feedback
	fb.Fail(msg)
	redirectWith(w, r, url, fb)
}

func redirectSuccess(w http.ResponseWriter, r *http.Request, url, msg string) {
	var fb calendar.Feedback
	fb.Succeed(msg)
	redirectWith(w, r, url, fb)
}

// pendingFeedback starts the feedback for a page with whatever the previous
// request flashed.
func pendingFeedback(w http.ResponseWriter, r *http.Request) calendar.Feedback {
	m := flash.Pop(w, r)
	return calendar.Feedback{Successes: m.Successes, Failures: m.Failures}
}

// negotiate picks the response format, answering 406 itself when none fits.
func negotiate(w http.ResponseWriter, r *http.Request, reg *render.Registry, ext string) (render.Format, bool) {
	f, err := reg.Negotiate(r, ext)
	if err != nil {
		http.Error(w, "Unsupported format", http.StatusNotAcceptable)
		return "", false
	}
	return f, true
}

func renderView(w http.ResponseWriter, reg *render.Registry, f render.Format, status int, v *render.View, logger *slog.Logger) {
	if err := reg.Render(w, f, status, v); err != nil {
		switch {
		case errors.Is(err, render.ErrUnsupportedFormat):
			http.Error(w, "Unsupported format", http.StatusNotAcceptable)
			return
		case errors.Is(err, render.ErrBadCallback):
			http.Error(w, "invalid callback", http.StatusBadRequest)
			return
		}
		logger.Error("render failed", "page", v.Page, "format", f, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// isTrue reports whether a checkbox style query value is switched on.
func isTrue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
