package models

import (
	"net/http"
	"time"
)

// SessionValidation represents the last known validation state of an AuthSession
type SessionValidation string

const (
	SessionValidationUnknown SessionValidation = "unknown"
	SessionValidationValid   SessionValidation = "valid"
	SessionValidationExpired SessionValidation = "expired"
)

// SessionCookie represents one serialized browser cookie captured from an
// authenticated browsing session
type SessionCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite"`
}

// ToHTTPCookie converts a serialized cookie to a standard HTTP cookie
func (c *SessionCookie) ToHTTPCookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}

	if c.Expires > 0 {
		cookie.Expires = time.Unix(c.Expires, 0)
	}

	switch c.SameSite {
	case "Strict", "strict":
		cookie.SameSite = http.SameSiteStrictMode
	case "Lax", "lax":
		cookie.SameSite = http.SameSiteLaxMode
	case "None", "none":
		cookie.SameSite = http.SameSiteNoneMode
	default:
		cookie.SameSite = http.SameSiteDefaultMode
	}

	return cookie
}

// AuthSession is a captured authenticated-browsing identity. The captured
// state (cookies, storage snapshot, user agent) never changes after capture;
// renewal always produces a new AuthSession with a new ID. Only the
// Validation marker is updated as the session is probed.
type AuthSession struct {
	ID                 string            `json:"id"`
	CapturedAt         time.Time         `json:"captured_at"`
	StalenessThreshold time.Duration     `json:"staleness_threshold"`
	Cookies            []*SessionCookie  `json:"cookies"`
	LocalStorage       map[string]string `json:"local_storage"`
	SessionStorage     map[string]string `json:"session_storage"`
	UserAgent          string            `json:"user_agent"`
	BaseURL            string            `json:"base_url"`
	Validation         SessionValidation `json:"validation"`
}

// Age returns how long ago the session was captured
func (s *AuthSession) Age(now time.Time) time.Duration {
	age := now.Sub(s.CapturedAt)
	if age < 0 {
		return 0
	}
	return age
}

// IsStale reports whether the session is past its staleness threshold
func (s *AuthSession) IsStale(now time.Time) bool {
	if s.StalenessThreshold <= 0 {
		return false
	}
	return s.Age(now) >= s.StalenessThreshold
}

// NeedsRefresh reports whether the session age has crossed the given fraction
// of its staleness threshold. Used between batches to re-capture proactively
// instead of losing a batch to mid-run expiry.
func (s *AuthSession) NeedsRefresh(now time.Time, fraction float64) bool {
	if s.StalenessThreshold <= 0 || fraction <= 0 {
		return false
	}
	trigger := time.Duration(float64(s.StalenessThreshold) * fraction)
	return s.Age(now) >= trigger
}

// HTTPCookies converts all serialized cookies to HTTP cookie format
func (s *AuthSession) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, len(s.Cookies))
	for i, c := range s.Cookies {
		cookies[i] = c.ToHTTPCookie()
	}
	return cookies
}
