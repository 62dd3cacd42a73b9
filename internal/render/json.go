package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// ErrBadCallback rejects JSONP callback names that are not plain identifiers.
var ErrBadCallback = errors.New("invalid jsonp callback")

func encodeJSON(w io.Writer, v *View) error {
	var payload any = v.Events
	if v.Single() {
		payload = v.Event
	} else if v.Events == nil {
		payload = []struct{}{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if v.Callback == "" {
		_, err = w.Write(data)
		return err
	}
	if !callbackPattern.MatchString(v.Callback) {
		return fmt.Errorf("%w: %q", ErrBadCallback, v.Callback)
	}
	_, err = fmt.Fprintf(w, "%s(%s);", v.Callback, data)
	return err
}
