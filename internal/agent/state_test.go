package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://site.test/menu?ref=1", "https://site.test/menu"},
		{"https://site.test/menu/", "https://site.test/menu"},
		{"https://site.test/menu#dinner", "https://site.test/menu"},
		{"https://site.test/", "https://site.test"},
		{"https://site.test", "https://site.test"},
		{"https://Site.test:8443/a/b//?x=1#y", "https://Site.test:8443/a/b"},
		{"http://site.test/menu?", "http://site.test/menu"},
		{"  https://site.test/about/  ", "https://site.test/about"},
		{"https://site.test/caf%C3%A9/", "https://site.test/caf%C3%A9"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeURL(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeURL(got), "normalization must be idempotent")
		})
	}
}

func TestNormalizeURLUnparseable(t *testing.T) {
	got := NormalizeURL("https://site.test/%zz/?q=1")
	assert.Equal(t, "https://site.test/%zz", got)
	assert.Equal(t, got, NormalizeURL(got))
}

func TestNavigationStateVisits(t *testing.T) {
	s := NewNavigationState(2)
	assert.True(t, s.CanContinue())
	assert.True(t, s.ShouldVisit("https://site.test/menu?ref=1"))

	s.RecordScroll()
	s.RecordScroll()
	assert.Equal(t, 2, s.ScrollCount())

	s.RecordVisit("https://site.test/menu?ref=1", CategoryMenu)
	assert.Equal(t, 1, s.Step())
	assert.Zero(t, s.ScrollCount(), "a visit resets the scroll counter")
	assert.False(t, s.ShouldVisit("https://site.test/menu/"))
	assert.True(t, s.ShouldVisit("https://site.test/contact"))

	s.RecordVisit("https://site.test/contact", CategoryContact)
	assert.False(t, s.CanContinue())

	// the step counter never passes the budget
	s.RecordVisit("https://site.test/about", CategoryAbout)
	assert.Equal(t, 2, s.Step())
	assert.Equal(t, []PageVisit{
		{URL: "https://site.test/menu?ref=1", Category: CategoryMenu},
		{URL: "https://site.test/contact", Category: CategoryContact},
		{URL: "https://site.test/about", Category: CategoryAbout},
	}, s.VisitedPages())
}

func TestNavigationStateScrollBudget(t *testing.T) {
	s := NewNavigationState(5)
	for i := 0; i < MaxScrollsPerPage; i++ {
		assert.True(t, s.CanScroll())
		s.RecordScroll()
	}
	assert.False(t, s.CanScroll())
	assert.Zero(t, s.ScrollsLeft())
	s.RecordScroll()
	assert.Equal(t, MaxScrollsPerPage, s.ScrollCount())
}

func TestNavigationStateReset(t *testing.T) {
	s := NewNavigationState(3)
	s.RecordVisit("https://site.test/", CategoryHomepage)
	s.RecordScroll()
	s.Reset()

	assert.Zero(t, s.Step())
	assert.Zero(t, s.ScrollCount())
	assert.Empty(t, s.VisitedPages())
	assert.True(t, s.ShouldVisit("https://site.test/"))
	assert.Equal(t, 3, s.MaxSteps())
}

func TestVisitedPagesIsACopy(t *testing.T) {
	s := NewNavigationState(3)
	s.RecordVisit("https://site.test/", CategoryHomepage)
	pages := s.VisitedPages()
	pages[0].URL = "mutated"
	assert.Equal(t, "https://site.test/", s.VisitedPages()[0].URL)
}

func TestParseCategory(t *testing.T) {
	tests := map[string]PageCategory{
		"menu":                     CategoryMenu,
		"  Gallery\n":              CategoryGallery,
		"This is the booking page": CategoryBooking,
		"Contact.":                 CategoryContact,
		"pricing":                  CategoryOther,
		"":                         CategoryOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCategory(in), in)
	}
	assert.Equal(t, "About us", CategoryAbout.Label())
	assert.Equal(t, "Page", PageCategory("weird").Label())
}
