package agent

import "github.com/polzovatel/persona-navigator/internal/persona"

// NavigationContext is the read-only input of one decision. Build a fresh one
// per call; it shares no memory with NavigationState.
type NavigationContext struct {
	Persona     persona.Persona
	Objective   string
	SiteContext string
	Category    PageCategory
	URL         string
	Visited     []PageVisit
	Step        int
	MaxSteps    int
	ScrollsLeft int
}

func (c NavigationContext) prompt() string {
	visits := make([]persona.Visit, 0, len(c.Visited))
	for _, v := range c.Visited {
		visits = append(visits, persona.Visit{URL: v.URL, Category: string(v.Category)})
	}
	return persona.NavigationPrompt(persona.NavigationInput{
		Persona:     c.Persona,
		Objective:   c.Objective,
		Category:    string(c.Category),
		URL:         c.URL,
		Visited:     visits,
		Step:        c.Step,
		MaxSteps:    c.MaxSteps,
		ScrollsLeft: c.ScrollsLeft,
		SiteContext: c.SiteContext,
	})
}
