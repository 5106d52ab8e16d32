// Package export renders a finished session for the facilitator.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/polzovatel/persona-navigator/internal/agent"
)

type Mode string

const (
	ModeGuided     Mode = "guided"
	ModeAutonomous Mode = "autonomous"
	ModeHybrid     Mode = "hybrid"
)

func (m Mode) Label() string {
	switch m {
	case ModeGuided:
		return "Guided"
	case ModeAutonomous:
		return "Autonomous"
	default:
		return "Hybrid"
	}
}

// Report is everything a session export contains.
type Report struct {
	Date      time.Time
	Site      string
	Persona   string
	Mode      Mode
	Objective string
	Entries   []agent.Entry
}

// Markdown renders r. The objective line only appears for autonomous runs.
func Markdown(r Report) string {
	var b strings.Builder
	b.WriteString("# Persona Navigator session\n\n")
	fmt.Fprintf(&b, "**Date:** %s\n", r.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Site:** %s\n", r.Site)
	fmt.Fprintf(&b, "**Persona:** %s\n", r.Persona)
	fmt.Fprintf(&b, "**Mode:** %s\n", r.Mode.Label())
	if r.Mode == ModeAutonomous && r.Objective != "" {
		fmt.Fprintf(&b, "**Objective:** %s\n", r.Objective)
	}
	b.WriteString("\n---\n\n## Navigation path\n\n")

	for _, e := range r.Entries {
		switch e.Kind {
		case agent.EntryNavigation:
			fmt.Fprintf(&b, "\n### %s\n", e.Category.Label())
			fmt.Fprintf(&b, "**URL:** %s\n", e.URL)
			fmt.Fprintf(&b, "**Time:** %s\n\n", e.At.Format(time.TimeOnly))
		case agent.EntryComment:
			fmt.Fprintf(&b, "**Comment:**\n%s\n\n", quote(e.Content))
		case agent.EntryAction:
			action := string(e.Action)
			if e.Target != "" {
				action += " -> " + e.Target
			}
			fmt.Fprintf(&b, "**Action:** %s\n", action)
			if e.Reasoning != "" {
				fmt.Fprintf(&b, "**Reasoning:** %s\n\n", e.Reasoning)
			}
		case agent.EntryQuestion:
			fmt.Fprintf(&b, "**Question:** %s\n\n", e.Content)
		case agent.EntryAnswer:
			fmt.Fprintf(&b, "**Answer:**\n%s\n\n", quote(e.Content))
		}
	}

	b.WriteString("\n---\n\n## Notes and insights\n\n_[Space for facilitator notes]_\n")
	return b.String()
}

// quote renders text as a markdown blockquote, one "> " per line.
func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("> "+l, " ")
	}
	return strings.Join(lines, "\n")
}
