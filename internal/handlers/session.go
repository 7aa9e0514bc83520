package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"superstore-dashboard/internal/dashboard"
)

// SessionController returns the session's controller, setting the session
// cookie when a new session was started.
func SessionController(w http.ResponseWriter, r *http.Request, sessions *dashboard.Registry) *dashboard.Controller {
	var current string
	if c, err := r.Cookie(dashboard.SessionCookie); err == nil {
		current = c.Value
	}

	id, controller := sessions.Get(current)
	if id != current {
		http.SetCookie(w, &http.Cookie{
			Name:     dashboard.SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return controller
}

// flexNumber accepts a JSON number or a numeric string. Bound inputs report
// their value as either depending on the browser.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*n = flexNumber(v)
	return nil
}

func widthParam(r *http.Request) float64 {
	w, err := strconv.ParseFloat(r.URL.Query().Get("width"), 64)
	if err != nil {
		return 0
	}
	return w
}
