// Package flash carries success and failure messages across a redirect in a
// short-lived cookie.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"
)

const cookieName = "eventboard_flash"

// Messages are shown once on the next page the visitor sees.
type Messages struct {
	Successes []string `json:"s,omitempty"`
	Failures  []string `json:"f,omitempty"`
}

func (m Messages) Empty() bool {
	return len(m.Successes) == 0 && len(m.Failures) == 0
}

// Set stores m for the next request. Empty messages clear any pending flash.
func Set(w http.ResponseWriter, m Messages) {
	if m.Empty() {
		expire(w)
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Success and Failure are shorthands for a single message.
func Success(w http.ResponseWriter, msg string) {
	Set(w, Messages{Successes: []string{msg}})
}

func Failure(w http.ResponseWriter, msg string) {
	Set(w, Messages{Failures: []string{msg}})
}

// Pop reads and clears the pending flash. A missing or tampered cookie reads
// as no messages.
func Pop(w http.ResponseWriter, r *http.Request) Messages {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return Messages{}
	}
	expire(w)

	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return Messages{}
	}
	var m Messages
	if err := json.Unmarshal(data, &m); err != nil {
		return Messages{}
	}
	return m
}

func expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
}
