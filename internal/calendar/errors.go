// Package calendar holds the request-independent decisions behind the event
// pages: date and time-of-day resolution, browsing, search, lock checks,
// duplicate resolution, cloning and saving.
package calendar

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("event not found")
	ErrLocked        = errors.New("event is locked")
	ErrNoProgenitor  = errors.New("no master event selected")
	ErrNoDuplicates  = errors.New("no duplicate events selected")
	ErrSelfReference = errors.New("event cannot be a duplicate of itself")
	ErrCycle         = errors.New("duplicate link would form a cycle")
	ErrSpam          = errors.New("submission looks like spam")
)

var messages = map[error]string{
	ErrNotFound:      "That event could not be found.",
	ErrLocked:        "You are not permitted to modify this event.",
	ErrNoProgenitor:  "A master event must be selected.",
	ErrNoDuplicates:  "At least one duplicate event must be selected.",
	ErrSelfReference: "The master event could not be squashed into itself.",
	ErrCycle:         "These events can not be squashed without creating a loop of duplicates.",
	ErrSpam:          "Evil robot! We didn't save this event because it looks like spam.",
}

// NotFoundError reports a missing event by id. It matches ErrNotFound.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event %d not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError lists the problems found in a submitted event.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + strings.Join(e.Problems, "; ")
}

const genericFailure = "Something went wrong. Please try again."

// Message turns an error into text fit for a visitor. Errors it does not
// recognize collapse to a generic apology.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("Couldn't find event with id %d.", nf.ID)
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Please fix the following problems: " + strings.Join(ve.Problems, " ")
	}

	for _, known := range []error{ErrNotFound, ErrLocked, ErrNoProgenitor, ErrNoDuplicates, ErrSelfReference, ErrCycle, ErrSpam} {
		if errors.Is(err, known) {
			return messages[known]
		}
	}
	return genericFailure
}
