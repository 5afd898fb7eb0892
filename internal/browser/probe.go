package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Login surface markers. Any of these on a rendered page means the browser
// was bounced to an unauthenticated surface.
var loginSelectors = []string{
	"form#login-form",
	"form[name='loginform']",
	"input[name='os_username']",
	"input[name='os_password']",
	"#login-form-username",
	".login-form",
	"#loginSubmit",
}

// Markers that only render for an authenticated user
var authenticatedSelectors = []string{
	"#header-details-user-fullname",
	"#user-options .user-avatar",
	"a#log_out",
	"[data-test-id='profile-menu']",
	"#dashboard",
	".aui-header .aui-avatar",
}

// PageIndicatesAuthenticated reports whether a rendered page shows an
// authenticated surface rather than a login form. This is an explicit
// result-returning probe: an expected negative outcome (login page reached)
// is a false return, never an error.
func PageIndicatesAuthenticated(html, pageURL, loginPath string) bool {
	if loginPath != "" && strings.Contains(pageURL, loginPath) {
		return false
	}
	if strings.Contains(pageURL, "login") && strings.Contains(pageURL, "os_destination") {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	for _, sel := range loginSelectors {
		if doc.Find(sel).Length() > 0 {
			return false
		}
	}

	for _, sel := range authenticatedSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	// No login markers and a non-empty body: treat as authenticated. Pages
	// without positive markers (custom dashboards, plugin views) should not
	// fail the probe.
	return doc.Find("body").Children().Length() > 0
}
