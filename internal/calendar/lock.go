package calendar

import "github.com/dukerupert/eventboard/internal/model"

// CheckLock must be called before any edit, update or destroy of e. A locked
// event is denied with ErrLocked.
func CheckLock(e *model.Event) error {
	if e.Locked {
		return ErrLocked
	}
	return nil
}
