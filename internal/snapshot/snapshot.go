package snapshot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Screenshot is a PNG capture of the visible viewport.
type Screenshot []byte

// Base64 returns the capture in the encoding used on the wire and by vision models.
func (s Screenshot) Base64() string {
	return base64.StdEncoding.EncodeToString(s)
}

func (s Screenshot) Empty() bool { return len(s) == 0 }

// DecodeBase64 is the inverse of Screenshot.Base64.
func DecodeBase64(data string) (Screenshot, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return Screenshot(raw), nil
}

// Element describes minimal info about an interactive node.
type Element struct {
	Role string `json:"role"`
	Text string `json:"text"`
	BBox string `json:"bbox"`
	Sel  string `json:"selector"`
}

// Summary is a compact view of current page.
type Summary struct {
	URL      string
	Title    string
	Elements []Element
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTITLE: %s\nELEMENTS:\n", s.URL, s.Title)
	for i, el := range s.Elements {
		fmt.Fprintf(&b, "%d) role=%s text=%q selector=%s\n", i+1, el.Role, el.Text, el.Sel)
	}
	return b.String()
}

// Collect gathers the visible clickable elements of the page.
func Collect(ctx context.Context, page playwright.Page, limit int) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	title, _ := page.Title()
	elems, err := collectInteractive(page, limit)
	if err != nil {
		return Summary{URL: page.URL(), Title: title}, err
	}
	return Summary{URL: page.URL(), Title: title, Elements: elems}, nil
}

func collectInteractive(page playwright.Page, limit int) ([]Element, error) {
	script := `(limit) => {
		const pick = [];
		const nodes = document.querySelectorAll("a,button,[role='button'],[role='link'],[role='menuitem'],input[type='submit']");
		for (const el of nodes) {
			if (pick.length >= limit) break;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 && rect.height === 0) continue;
			const role = el.getAttribute("role") || el.tagName.toLowerCase();
			let text = (el.innerText || el.textContent || el.value || el.getAttribute("aria-label") || "").trim();
			text = text.split("\n")[0].slice(0, 120);
			if (!text) continue;
			const bbox = [Math.round(rect.x), Math.round(rect.y), Math.round(rect.width), Math.round(rect.height)].join(",");
			let sel = "";
			if (el.id) {
				sel = "#" + CSS.escape(el.id);
			} else if (el.getAttribute("href")) {
				sel = el.tagName.toLowerCase() + "[href=\"" + el.getAttribute("href").replace(/"/g, "\\\"") + "\"]";
			} else {
				const siblings = Array.from(el.parentElement ? el.parentElement.children : []);
				const idx = siblings.filter(c => c.tagName === el.tagName).indexOf(el) + 1;
				if (idx > 0) sel = el.tagName.toLowerCase() + ":nth-of-type(" + idx + ")";
			}
			pick.push({role, text, bbox, selector: sel});
		}
		return pick;
	}`
	val, err := page.Evaluate(script, limit)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var elems []Element
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	return elems, nil
}

// Match returns the element whose text best matches the free-text label.
// Exact matches beat prefix matches, which beat substring matches; links and
// buttons win ties over other roles, then shorter texts win.
func Match(elems []Element, label string) (Element, bool) {
	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" {
		return Element{}, false
	}
	best, bestScore := Element{}, 0
	for _, el := range elems {
		score := scoreMatch(el, needle)
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && len(el.Text) < len(best.Text)) {
			best, bestScore = el, score
		}
	}
	return best, bestScore > 0
}

func scoreMatch(el Element, needle string) int {
	text := strings.ToLower(strings.TrimSpace(el.Text))
	if text == "" {
		return 0
	}
	score := 0
	switch {
	case text == needle:
		score = 30
	case strings.HasPrefix(text, needle):
		score = 20
	case strings.Contains(text, needle):
		score = 10
	case strings.Contains(needle, text) && len(text) > 2:
		// The model often describes the element with extra words ("the Menu link").
		score = 5
	default:
		return 0
	}
	switch strings.ToLower(el.Role) {
	case "a", "link", "button":
		score += 2
	}
	return score
}

// WithDeadline shortens context to avoid long waits on a single page operation.
func WithDeadline(ctx context.Context, dur time.Duration) (context.Context, context.CancelFunc) {
	if dur <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dur)
}
