package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"marco", "giulia", "roberto"}, []string{all[0].ID, all[1].ID, all[2].ID})

	p, err := r.Get("giulia")
	require.NoError(t, err)
	assert.Equal(t, "Giulia", p.FirstName())
	assert.Contains(t, p.Profile, "Active Foodie")

	_, err = r.Get("nobody")
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestObjectiveFallback(t *testing.T) {
	r := Default()
	assert.Equal(t, "compare", r.Objective("compare").ID)
	assert.Equal(t, "first_impression", r.Objective("made_up").ID)
	assert.Len(t, r.Objectives(), 6)
}

func TestSuggestions(t *testing.T) {
	r := Default()
	assert.Contains(t, r.Suggestions("menu"), "What would you order?")
	assert.Equal(t, r.Suggestions("default"), r.Suggestions("checkout"))

	s := r.Suggestions("contact")
	s[0] = "mutated"
	assert.NotEqual(t, "mutated", r.Suggestions("contact")[0])
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"no personas":  "objectives: [{id: a, label: A, prompt: p}]",
		"missing id":   "personas: [{name: X}]\nobjectives: [{id: a}]",
		"duplicate id": "personas: [{id: a}, {id: a}]\nobjectives: [{id: a}]",
		"no objective": "personas: [{id: a}]",
		"not yaml":     "personas: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	r, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, r.All(), 3)

	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := "personas:\n  - id: anna\n    name: Anna - Tester\n    profile: likes forms\nobjectives:\n  - id: x\n    label: X\n    prompt: do x\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	r, err = LoadFile(path)
	require.NoError(t, err)
	p, err := r.Get("anna")
	require.NoError(t, err)
	assert.Equal(t, "Anna", p.FirstName())
	assert.Empty(t, r.Suggestions("menu"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCustomize(t *testing.T) {
	base, err := Default().Get("marco")
	require.NoError(t, err)

	assert.Equal(t, base, Customize(base, "  "))

	c := Customize(base, "Vegetarian, travels with kids")
	assert.Equal(t, customID, c.ID)
	assert.Equal(t, base.Name, c.Name)
	assert.Contains(t, c.Profile, base.Profile)
	assert.Contains(t, c.Profile, "Vegetarian, travels with kids")
}

func TestNavigationPrompt(t *testing.T) {
	p, err := Default().Get("roberto")
	require.NoError(t, err)

	prompt := NavigationPrompt(NavigationInput{
		Persona:     p,
		Objective:   "judge the tasting menu",
		Category:    "menu",
		URL:         "https://site.test/menu",
		Visited:     []Visit{{URL: "https://site.test", Category: "homepage"}},
		Step:        2,
		MaxSteps:    5,
		ScrollsLeft: 3,
		SiteContext: "Two-star restaurant",
	})
	assert.Contains(t, prompt, "You are Roberto.")
	assert.Contains(t, prompt, "judge the tasting menu")
	assert.Contains(t, prompt, "- homepage: https://site.test")
	assert.Contains(t, prompt, "Step: 2/5")
	assert.Contains(t, prompt, "Two-star restaurant")
	assert.Contains(t, prompt, `"action": "CLICK|SCROLL_DOWN|BACK|DONE"`)

	empty := NavigationPrompt(NavigationInput{Persona: p})
	assert.Contains(t, empty, "None")
	assert.NotContains(t, empty, "SITE CONTEXT")
}

func TestSystemAndInsightsPrompts(t *testing.T) {
	p, err := Default().Get("marco")
	require.NoError(t, err)

	sys := SystemPrompt(p, "")
	assert.Contains(t, sys, "You are Marco")
	assert.NotContains(t, sys, "CONTEXT OF THE SITE")
	assert.Contains(t, SystemPrompt(p, "a bakery"), "a bakery")

	assert.Equal(t, "You are Marco. Answer only in JSON.", DecisionSystemPrompt(p))

	ins := InsightsPrompt(p, "", "[Navigation] menu - https://site.test/menu")
	assert.Contains(t, ins, "watched Marco")
	assert.Contains(t, ins, "[Navigation] menu")
	assert.Contains(t, ins, "## Recommendations for Marco - Casual Foodie")
}

func TestHighlightPrompt(t *testing.T) {
	assert.True(t, strings.HasSuffix(HighlightPrompt(" Is the price clear? "), "area of the web page the user wants you to look at. Is the price clear?"))
	assert.Contains(t, HighlightPrompt(""), DefaultHighlightQuestion+" React the way you would.")
}
