package agent

import "strings"

// PageCategory is the semantic type of a page.
type PageCategory string

const (
	CategoryHomepage PageCategory = "homepage"
	CategoryMenu     PageCategory = "menu"
	CategoryBooking  PageCategory = "booking"
	CategoryAbout    PageCategory = "about"
	CategoryGallery  PageCategory = "gallery"
	CategoryContact  PageCategory = "contact"
	CategoryOther    PageCategory = "other"
)

// Categories lists every category in prompt order.
var Categories = []PageCategory{
	CategoryHomepage,
	CategoryMenu,
	CategoryBooking,
	CategoryAbout,
	CategoryGallery,
	CategoryContact,
	CategoryOther,
}

var categoryLabels = map[PageCategory]string{
	CategoryHomepage: "Homepage",
	CategoryMenu:     "Menu",
	CategoryBooking:  "Booking",
	CategoryAbout:    "About us",
	CategoryGallery:  "Gallery",
	CategoryContact:  "Contacts",
	CategoryOther:    "Other page",
}

// Label is the human readable name of c.
func (c PageCategory) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return "Page"
}

// ParseCategory maps free model output to a category: an exact match wins,
// then the first category contained in the text, otherwise other.
func ParseCategory(text string) PageCategory {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, c := range Categories {
		if t == string(c) {
			return c
		}
	}
	for _, c := range Categories {
		if strings.Contains(t, string(c)) {
			return c
		}
	}
	return CategoryOther
}
