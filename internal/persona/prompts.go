package persona

import (
	"fmt"
	"strings"
)

// Visit is one entry of the visited-pages list shown to the model.
type Visit struct {
	URL      string
	Category string
}

// NavigationInput carries what the navigation prompt needs.
type NavigationInput struct {
	Persona     Persona
	Objective   string
	Category    string
	URL         string
	Visited     []Visit
	Step        int
	MaxSteps    int
	ScrollsLeft int
	SiteContext string
}

func SystemPrompt(p Persona, siteContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a real person browsing a website.\n\nPROFILE:\n%s\n", p.FirstName(), p.Profile)
	if ctx := strings.TrimSpace(siteContext); ctx != "" {
		fmt.Fprintf(&b, "\nCONTEXT OF THE SITE YOU ARE BROWSING:\n%s\n", ctx)
		b.WriteString("Use this context to understand what the site offers. Do not assume features that do not exist. React to what you SEE and what you KNOW from the context.\n")
	}
	b.WriteString(`
BEHAVIOUR:
- Comment the way you would really talk, with your own vocabulary and tone
- Express authentic reactions: doubts, enthusiasm, confusion, boredom
- You are not a UX expert or a consultant, you are a potential user
- If something is unclear, say so in your own words
- If something attracts or repels you, explain why emotionally
- Stay consistent with your profile in every answer

You can also answer questions about your behaviour: how you discover new places,
what you search online, who influences your choices, what would bring you back to a site,
which features you usually miss, how this compares with alternatives.
`)
	fmt.Fprintf(&b, "\nAlways answer in first person, the way %s really would.\n", p.FirstName())
	b.WriteString("\nFORMAT:\n- Short natural comments (2-4 sentences per reaction)\n- Longer answers for complex questions (5-6 sentences at most)\n")
	return b.String()
}

// DecisionSystemPrompt is the system instruction for navigation decisions.
func DecisionSystemPrompt(p Persona) string {
	return fmt.Sprintf("You are %s. Answer only in JSON.", p.FirstName())
}

func NavigationPrompt(in NavigationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. You are browsing this site to: %s\n\nPROFILE:\n%s\n", in.Persona.FirstName(), in.Objective, in.Persona.Profile)
	if ctx := strings.TrimSpace(in.SiteContext); ctx != "" {
		fmt.Fprintf(&b, "\nSITE CONTEXT:\n%s\n", ctx)
	}
	b.WriteString("\nNAVIGATION STATE:\n")
	fmt.Fprintf(&b, "- Current page: %s\n- URL: %s\n- Pages already visited:\n", in.Category, in.URL)
	if len(in.Visited) == 0 {
		b.WriteString("None\n")
	}
	for _, v := range in.Visited {
		fmt.Fprintf(&b, "- %s: %s\n", v.Category, v.URL)
	}
	fmt.Fprintf(&b, "- Step: %d/%d\n- Scrolls left on this page: %d\n", in.Step, in.MaxSteps, in.ScrollsLeft)
	b.WriteString(`
Look at the screenshot and:

1. COMMENT briefly on what you think of this page (2-3 sentences, in character)

2. DECIDE the next action based on what YOU would look for:
   - CLICK -> to explore something, with target describing the element
   - SCROLL_DOWN -> to see more of this page
   - BACK -> to go back
   - DONE -> when you have seen enough to make up your mind

RULES:
- Do not go back to pages you already visited
- Choose according to YOUR profile and interests, not generically
- If nothing interests you, you can say DONE

Answer ONLY with this JSON:
{
  "comment": "your in-character comment",
  "action": "CLICK|SCROLL_DOWN|BACK|DONE",
  "target": "if CLICK, description of what you want to click",
  "reasoning": "why you make this choice, one sentence"
}`)
	return b.String()
}

// CommentPrompt asks the persona for an on-demand reaction to the current page.
func CommentPrompt(categoryLabel string) string {
	return fmt.Sprintf("Look at this screenshot of the page (%s). What do you think? React naturally. (2-3 sentences)", categoryLabel)
}

// DefaultHighlightQuestion is asked when the operator highlights an area
// without a question.
const DefaultHighlightQuestion = "What do you think of this area?"

// HighlightPrompt asks about a cropped area of the page.
func HighlightPrompt(question string) string {
	prompt := "This is a crop of a specific area of the web page the user wants you to look at. "
	if q := strings.TrimSpace(question); q != "" {
		return prompt + q
	}
	return prompt + DefaultHighlightQuestion + " React the way you would."
}

const InsightsSystemPrompt = "You are an experienced UX researcher."

func InsightsPrompt(p Persona, siteContext, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a UX researcher who watched %s browse a website.\n", p.FirstName())
	if ctx := strings.TrimSpace(siteContext); ctx != "" {
		fmt.Fprintf(&b, "\nSITE CONTEXT:\n%s\n", ctx)
	}
	fmt.Fprintf(&b, "\nOBSERVED PERSONA PROFILE:\n%s\n\nSESSION SUMMARY:\n%s\n", p.Profile, summary)
	b.WriteString(`
Based on what you observed, write a structured insights report. Be concrete and actionable.

Answer with these sections:

## Key reactions
The 3-4 most significant reactions of the persona during navigation.

## What worked
Elements of the site that generated interest, engagement or positive reactions.

## What did not work
Elements that caused confusion, disinterest or frustration, or were ignored.

## Unmet needs
What this persona looked for and did not find.

`)
	fmt.Fprintf(&b, "## Recommendations for %s\n", p.Name)
	b.WriteString(`5-7 concrete improvements, each specific, tied to an observed behaviour and actionable by the site team.

## Priorities
Rank the recommendations by impact (high/medium/low) and effort (high/medium/low).`)
	return b.String()
}
