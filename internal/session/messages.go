package session

import (
	"encoding/json"
	"fmt"

	"github.com/polzovatel/persona-navigator/internal/agent"
)

// Inbound actions.
const (
	actionStart       = "start"
	actionInput       = "input"
	actionComment     = "comment"
	actionNavigateURL = "navigate_url"
	actionClick       = "click"
	actionScroll      = "scroll"
	actionSetViewport = "set_viewport"
	actionInsights    = "insights"
	actionExport      = "export"
	actionHighlight   = "highlight"
	actionStop        = "stop_autonomous"
	actionPause       = "pause_autonomous"
	actionResume      = "resume_autonomous"
	actionInvalid     = "invalid"
)

// Outbound events.
const (
	eventStatus     = "status"
	eventNavigation = "navigation"
	eventScreenshot = "screenshot_update"
	eventAnswer     = "answer"
	eventComment    = "persona_comment"
	eventInsights   = "insights"
	eventExport     = "export"
	eventHighlight  = "highlight_answer"
	eventStep       = "autonomous_step"
	eventDone       = "autonomous_done"
	eventError      = "error"
)

type inbound struct {
	Action        string  `json:"action"`
	URL           string  `json:"url"`
	PersonaID     string  `json:"persona_id"`
	CustomProfile string  `json:"custom_profile"`
	Mode          string  `json:"mode"`
	Objective     string  `json:"objective"`
	MaxSteps      int     `json:"max_steps"`
	SiteContext   string  `json:"site_context"`
	Viewport      string  `json:"viewport"`
	Text          string  `json:"text"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Delta         *int    `json:"delta"`
	X1            float64 `json:"x1"`
	Y1            float64 `json:"y1"`
	X2            float64 `json:"x2"`
	Y2            float64 `json:"y2"`
	Question      string  `json:"question"`
}

// signal maps messages that steer a running autonomous session.
func (m inbound) signal() (agent.Signal, bool) {
	switch m.Action {
	case actionStop:
		return agent.Signal{Kind: agent.SignalStop}, true
	case actionPause:
		return agent.Signal{Kind: agent.SignalPause}, true
	case actionResume:
		return agent.Signal{Kind: agent.SignalResume}, true
	case actionInput:
		if m.Text == "" {
			return agent.Signal{}, false
		}
		return agent.Signal{Kind: agent.SignalQuestion, Text: m.Text}, true
	}
	return agent.Signal{}, false
}

type statusMsg struct {
	Message string `json:"message"`
}

type errorMsg struct {
	Message string `json:"message"`
}

type navigationMsg struct {
	Screenshot  string        `json:"screenshot"`
	URL         string        `json:"url"`
	PageType    string        `json:"page_type"`
	PageLabel   string        `json:"page_label"`
	PersonaName string        `json:"persona_name"`
	Suggestions []string      `json:"suggestions"`
	Step        int           `json:"step"`
	MaxSteps    int           `json:"max_steps"`
	Viewport    string        `json:"viewport"`
	VPWidth     int           `json:"vp_width"`
	VPHeight    int           `json:"vp_height"`
	History     []agent.Entry `json:"history"`
}

type screenshotMsg struct {
	Screenshot string `json:"screenshot"`
	URL        string `json:"url"`
}

type answerMsg struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	PersonaName string `json:"persona_name"`
}

type highlightMsg struct {
	Question    string        `json:"question"`
	Answer      string        `json:"answer"`
	PersonaName string        `json:"persona_name"`
	History     []agent.Entry `json:"history"`
}

type commentMsg struct {
	Comment     string `json:"comment"`
	PersonaName string `json:"persona_name"`
}

type insightsMsg struct {
	Content     string `json:"content"`
	PersonaName string `json:"persona_name"`
}

type exportMsg struct {
	Markdown string `json:"markdown"`
}

type stepMsg struct {
	agent.StepEvent
	Screenshot  string   `json:"screenshot"`
	PageLabel   string   `json:"page_label"`
	PersonaName string   `json:"persona_name"`
	Suggestions []string `json:"suggestions"`
}

type doneMsg struct {
	Reason  agent.DoneReason `json:"reason"`
	History []agent.Entry    `json:"history"`
}

// encode flattens payload into {"event": name, ...fields}.
func encode(event string, payload any) ([]byte, error) {
	head, err := json.Marshal(map[string]string{"event": event})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return head, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", event)
	}
	if string(body) == "{}" {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
