package agent

import (
	"net/url"
	"strings"
)

// MaxScrollsPerPage is how many times one page may be scrolled before it
// counts as exhausted.
const MaxScrollsPerPage = 3

// PageVisit is one entry of the visit trail.
type PageVisit struct {
	URL      string       `json:"url"`
	Category PageCategory `json:"page_type"`
}

// NavigationState tracks visits, the step budget and the per-page scroll
// budget of one session. It is owned by a single Navigator and is not safe
// for concurrent use.
type NavigationState struct {
	maxSteps    int
	currentStep int
	scrollCount int
	visited     map[string]struct{}
	pages       []PageVisit
}

func NewNavigationState(maxSteps int) *NavigationState {
	if maxSteps < 0 {
		maxSteps = 0
	}
	return &NavigationState{
		maxSteps: maxSteps,
		visited:  make(map[string]struct{}),
	}
}

func (s *NavigationState) CanContinue() bool { return s.currentStep < s.maxSteps }

// ShouldVisit reports whether the normalized form of raw has not been visited.
func (s *NavigationState) ShouldVisit(raw string) bool {
	_, seen := s.visited[NormalizeURL(raw)]
	return !seen
}

func (s *NavigationState) CanScroll() bool { return s.scrollCount < MaxScrollsPerPage }

// RecordVisit marks raw as visited, advances the step and resets the scroll
// counter. Calling it twice for one navigation consumes two steps.
func (s *NavigationState) RecordVisit(raw string, category PageCategory) {
	s.visited[NormalizeURL(raw)] = struct{}{}
	s.pages = append(s.pages, PageVisit{URL: raw, Category: category})
	if s.currentStep < s.maxSteps {
		s.currentStep++
	}
	s.scrollCount = 0
}

func (s *NavigationState) RecordScroll() {
	if s.scrollCount < MaxScrollsPerPage {
		s.scrollCount++
	}
}

func (s *NavigationState) Reset() {
	s.currentStep = 0
	s.scrollCount = 0
	s.visited = make(map[string]struct{})
	s.pages = nil
}

func (s *NavigationState) Step() int        { return s.currentStep }
func (s *NavigationState) MaxSteps() int    { return s.maxSteps }
func (s *NavigationState) ScrollCount() int { return s.scrollCount }

// ScrollsLeft is the remaining scroll budget on the current page.
func (s *NavigationState) ScrollsLeft() int { return MaxScrollsPerPage - s.scrollCount }

// VisitedPages returns a copy of the visit trail in visit order.
func (s *NavigationState) VisitedPages() []PageVisit {
	out := make([]PageVisit, len(s.pages))
	copy(out, s.pages)
	return out
}

// VisitedCount is the number of distinct normalized URLs seen.
func (s *NavigationState) VisitedCount() int { return len(s.visited) }

// NormalizeURL keeps scheme, host and path, drops query and fragment and
// strips trailing slashes from the path.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	return u.String()
}
