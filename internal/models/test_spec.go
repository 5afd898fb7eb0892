package models

import "net/url"

// TestCategory is the closed set of check categories
type TestCategory string

const (
	CategoryDashboard    TestCategory = "dashboard"
	CategoryProject      TestCategory = "project"
	CategorySearch       TestCategory = "search"
	CategoryPerformance  TestCategory = "performance"
	CategoryCrossBrowser TestCategory = "cross-browser"
	CategoryResponsive   TestCategory = "responsive"
	CategoryStress       TestCategory = "stress"
	CategoryEdgeCase     TestCategory = "edge-case"
)

// TestType classifies what a check exercises
type TestType string

const (
	TestTypeFunctional  TestType = "functional"
	TestTypePerformance TestType = "performance"
	TestTypeInteraction TestType = "interaction"
)

// Viewport describes an emulated browser viewport
type Viewport struct {
	Label  string `json:"label" toml:"label"`
	Width  int64  `json:"width" toml:"width"`
	Height int64  `json:"height" toml:"height"`
}

// TestSpec is a declarative description of one check. Pure data - generating
// the matrix twice from the same configuration yields identical specs.
type TestSpec struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    TestCategory `json:"category"`
	Type        TestType     `json:"type"`
	Path        string       `json:"path"`
	Query       string       `json:"query,omitempty"`
	Browser     string       `json:"browser,omitempty"`
	Viewport    *Viewport    `json:"viewport,omitempty"`
	Concurrency int          `json:"concurrency,omitempty"`
	LongRunning bool         `json:"long_running,omitempty"`
}

// TargetPath returns the URL fragment to navigate for this spec, with the
// query string appended when present
func (s *TestSpec) TargetPath() string {
	if s.Query == "" {
		return s.Path
	}
	sep := "?"
	if u, err := url.Parse(s.Path); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return s.Path + sep + s.Query
}
