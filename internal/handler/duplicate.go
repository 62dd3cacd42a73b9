package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dukerupert/eventboard/internal/auth"
	"github.com/dukerupert/eventboard/internal/calendar"
	"github.com/dukerupert/eventboard/internal/render"
	ws "github.com/dukerupert/eventboard/internal/websocket"
)

// Duplicates lists groups of events that look alike on the fields named by
// the type parameter.
func (h *EventHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	fb := pendingFeedback(w, r)
	typ := r.URL.Query().Get("type")

	var groups []calendar.DuplicateGroup
	fields, err := calendar.ParseDuplicateFields(typ)
	if err != nil {
		fb.Fail(err.Error())
	} else {
		groups, err = h.duplicates.FindDuplicates(fields)
		if err != nil {
			h.logger.Error("failed to find duplicates", "type", typ, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	renderView(w, h.render, render.FormatHTML, http.StatusOK, &render.View{
		Page:      "duplicates",
		Title:     "Duplicate events",
		Successes: fb.Successes,
		Failures:  fb.Failures,
		Data: map[string]any{
			"Type":   typ,
			"Groups": groups,
		},
	}, h.logger)
}

// Squash merges the checked duplicate_id_* events into master_id.
func (h *EventHandler) Squash(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	progenitorID, _ := parseID(r.PostFormValue("master_id"))
	var duplicateIDs []int64
	for key, values := range r.PostForm {
		if !strings.HasPrefix(key, "duplicate_id_") {
			continue
		}
		for _, v := range values {
			if id, ok := parseID(v); ok {
				duplicateIDs = append(duplicateIDs, id)
			}
		}
	}
	sort.Slice(duplicateIDs, func(i, j int) bool { return duplicateIDs[i] < duplicateIDs[j] })

	res, err := h.duplicates.Squash(progenitorID, duplicateIDs)
	if err != nil {
		if !isSquashRejection(err) {
			h.logger.Error("failed to squash events", "master", progenitorID, "duplicates", duplicateIDs, "error", err)
		}
		redirectFailure(w, r, "/events/duplicates", calendar.Message(err))
		return
	}

	related := make([]int64, len(res.Duplicates))
	for i, e := range res.Duplicates {
		related[i] = e.ID
	}
	h.changed(r.Context(), ws.ActionSquashed, res.Progenitor.ID, related...)
	h.logger.Info("squashed events", "master", res.Progenitor.ID, "duplicates", related, "by", auth.Username(r.Context()))
	redirectSuccess(w, r, fmt.Sprintf("/events/%d", res.Progenitor.ID), res.Message())
}

func isSquashRejection(err error) bool {
	for _, target := range []error{
		calendar.ErrNotFound,
		calendar.ErrNoProgenitor,
		calendar.ErrNoDuplicates,
		calendar.ErrSelfReference,
		calendar.ErrCycle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
