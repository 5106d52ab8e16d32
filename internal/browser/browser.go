// Package browser drives Chromium through playwright on behalf of one
// navigation session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

const (
	defaultNavTimeout  = 30 * time.Second
	defaultActionTime  = 10 * time.Second
	clickLoadTimeout   = 10 * time.Second
	settleDelay        = 1000 // ms
	scrollSettleDelay  = 500  // ms
	cookieSettleDelay  = 500  // ms
	fuzzyElementsLimit = 200
	headlessEnv        = "AGENT_HEADLESS"
	defaultLocale      = "en-US"
)

// ErrClosed means the page or the browser process is gone.
var ErrClosed = errors.New("browser closed")

// Launcher owns the playwright driver. Every Open starts a separate Chromium
// process so sessions never share a browser.
type Launcher struct {
	pw       *playwright.Playwright
	headless bool
	logger   zerolog.Logger
}

func NewLauncher(ctx context.Context, headless bool, logger zerolog.Logger) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Launcher{pw: pw, headless: headless, logger: logger}, nil
}

// HeadlessFromEnv reads AGENT_HEADLESS, defaulting to def.
func HeadlessFromEnv(def bool) bool {
	return parseBoolEnv(headlessEnv, def)
}

// Open launches a browser with a single page sized for vp.
func (l *Launcher) Open(ctx context.Context, vp Viewport) (*Controller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := l.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: vp.Width, Height: vp.Height},
		UserAgent:         playwright.String(vp.UserAgent),
		Locale:            playwright.String(defaultLocale),
		IsMobile:          playwright.Bool(vp.Mobile),
		HasTouch:          playwright.Bool(vp.Mobile),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultActionTime.Milliseconds()))
	l.logger.Debug().Str("viewport", vp.Name).Msg("browser opened")
	return &Controller{browser: browser, context: bctx, page: page, viewport: vp, logger: l.logger}, nil
}

func (l *Launcher) Close() error {
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

// Controller is one page in its own browser. It is not safe for concurrent use.
type Controller struct {
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	viewport Viewport
	logger   zerolog.Logger
}

var _ agent.Browser = (*Controller)(nil)

func (c *Controller) Viewport() Viewport { return c.viewport }

func (c *Controller) Close() error {
	var errs []error
	if c.page != nil && !c.page.IsClosed() {
		errs = append(errs, c.page.Close())
	}
	if c.context != nil {
		errs = append(errs, c.context.Close())
	}
	if c.browser != nil {
		errs = append(errs, c.browser.Close())
	}
	return wrap(errors.Join(errs...))
}

func (c *Controller) alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.page == nil || c.page.IsClosed() || !c.browser.IsConnected() {
		return ErrClosed
	}
	return nil
}

func (c *Controller) URL() string {
	if c.page == nil || c.page.IsClosed() {
		return ""
	}
	return c.page.URL()
}

func (c *Controller) Screenshot(ctx context.Context) (snapshot.Screenshot, error) {
	if err := c.alive(ctx); err != nil {
		return nil, err
	}
	data, err := c.page.Screenshot(playwright.PageScreenshotOptions{
		Type:     playwright.ScreenshotTypePng,
		FullPage: playwright.Bool(false),
	})
	if err != nil {
		return nil, wrap(err)
	}
	return snapshot.Screenshot(data), nil
}

func (c *Controller) capture(ctx context.Context) (agent.Capture, error) {
	shot, err := c.Screenshot(ctx)
	if err != nil {
		return agent.Capture{}, err
	}
	return agent.Capture{Screenshot: shot, URL: c.page.URL()}, nil
}

// Navigate loads url, adding https:// when no scheme is given. Slow pages
// are tolerated: whatever rendered is captured.
func (c *Controller) Navigate(ctx context.Context, url string) (agent.Capture, error) {
	if err := c.alive(ctx); err != nil {
		return agent.Capture{}, err
	}
	url = EnsureScheme(url)
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("url", url).Msg("network idle not reached, retrying with domcontentloaded")
		_, err = c.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
		})
		if err != nil {
			if aerr := c.alive(ctx); aerr != nil {
				return agent.Capture{}, aerr
			}
			c.logger.Warn().Err(err).Str("url", url).Msg("navigation incomplete")
		}
	}
	c.page.WaitForTimeout(settleDelay)
	c.dismissCookies()
	return c.capture(ctx)
}

// ClickElement resolves descriptor as a CSS selector, then as exact text,
// then by fuzzy match over the interactive elements of the page.
func (c *Controller) ClickElement(ctx context.Context, descriptor string) (bool, agent.Capture, error) {
	if err := c.alive(ctx); err != nil {
		return false, agent.Capture{}, err
	}
	descriptor = strings.TrimSpace(descriptor)
	loc := c.resolve(ctx, descriptor)
	if loc == nil {
		capt, err := c.capture(ctx)
		return false, capt, err
	}
	if err := loc.Click(); err != nil {
		if aerr := c.alive(ctx); aerr != nil {
			return false, agent.Capture{}, aerr
		}
		c.logger.Debug().Err(err).Str("target", descriptor).Msg("click failed")
		capt, err := c.capture(ctx)
		return false, capt, err
	}
	c.afterNavigation()
	capt, err := c.capture(ctx)
	return true, capt, err
}

func (c *Controller) resolve(ctx context.Context, descriptor string) playwright.Locator {
	if descriptor == "" {
		return nil
	}
	if loc := c.page.Locator(descriptor).First(); visible(loc) {
		return loc
	}
	if loc := c.page.GetByText(descriptor, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}).First(); visible(loc) {
		return loc
	}
	summary, err := snapshot.Collect(ctx, c.page, fuzzyElementsLimit)
	if err != nil {
		c.logger.Debug().Err(err).Msg("collect elements")
		return nil
	}
	el, ok := snapshot.Match(summary.Elements, descriptor)
	if !ok || el.Sel == "" {
		return nil
	}
	c.logger.Debug().Str("target", descriptor).Str("matched", el.Text).Str("selector", el.Sel).Msg("fuzzy match")
	loc := c.page.Locator(el.Sel).First()
	if !visible(loc) {
		return nil
	}
	return loc
}

// visible is false for invalid selectors too.
func visible(loc playwright.Locator) bool {
	ok, err := loc.IsVisible()
	return err == nil && ok
}

// ClickAt clicks viewport coordinates.
func (c *Controller) ClickAt(ctx context.Context, x, y float64) (agent.Capture, error) {
	if err := c.alive(ctx); err != nil {
		return agent.Capture{}, err
	}
	if err := c.page.Mouse().Click(x, y); err != nil {
		if aerr := c.alive(ctx); aerr != nil {
			return agent.Capture{}, aerr
		}
		c.logger.Debug().Err(err).Float64("x", x).Float64("y", y).Msg("click at failed")
	}
	c.afterNavigation()
	return c.capture(ctx)
}

func (c *Controller) ScrollDown(ctx context.Context) (agent.Capture, error) {
	return c.scroll(ctx, "() => window.scrollBy(0, window.innerHeight * 0.8)")
}

func (c *Controller) ScrollUp(ctx context.Context) (agent.Capture, error) {
	return c.scroll(ctx, "() => window.scrollBy(0, -window.innerHeight * 0.8)")
}

// ScrollBy scrolls delta pixels, negative values scroll up.
func (c *Controller) ScrollBy(ctx context.Context, delta int) (agent.Capture, error) {
	return c.scroll(ctx, "(d) => window.scrollBy(0, d)", delta)
}

func (c *Controller) scroll(ctx context.Context, script string, args ...any) (agent.Capture, error) {
	if err := c.alive(ctx); err != nil {
		return agent.Capture{}, err
	}
	if _, err := c.page.Evaluate(script, args...); err != nil {
		if aerr := c.alive(ctx); aerr != nil {
			return agent.Capture{}, aerr
		}
		c.logger.Debug().Err(err).Msg("scroll failed")
	}
	c.page.WaitForTimeout(scrollSettleDelay)
	return c.capture(ctx)
}

func (c *Controller) GoBack(ctx context.Context) (agent.Capture, error) {
	if err := c.alive(ctx); err != nil {
		return agent.Capture{}, err
	}
	if _, err := c.page.GoBack(); err != nil {
		if aerr := c.alive(ctx); aerr != nil {
			return agent.Capture{}, aerr
		}
		c.logger.Debug().Err(err).Msg("go back failed")
	}
	c.page.WaitForTimeout(settleDelay)
	return c.capture(ctx)
}

// SetViewport resizes the page. The user agent chosen at Open is kept.
func (c *Controller) SetViewport(ctx context.Context, vp Viewport) (agent.Capture, error) {
	if err := c.alive(ctx); err != nil {
		return agent.Capture{}, err
	}
	if err := c.page.SetViewportSize(vp.Width, vp.Height); err != nil {
		return agent.Capture{}, wrap(err)
	}
	c.viewport = vp
	c.page.WaitForTimeout(scrollSettleDelay)
	return c.capture(ctx)
}

func (c *Controller) afterNavigation() {
	if err := c.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(clickLoadTimeout.Milliseconds())),
	}); err != nil {
		_ = c.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: playwright.Float(5000),
		})
	}
	c.page.WaitForTimeout(settleDelay)
	c.dismissCookies()
}

// dismissCookies clicks the first visible consent button. Best effort.
func (c *Controller) dismissCookies() bool {
	for _, sel := range cookieSelectors {
		loc := c.page.Locator(sel).First()
		if !visible(loc) {
			continue
		}
		if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err != nil {
			continue
		}
		c.logger.Debug().Str("selector", sel).Msg("cookie banner dismissed")
		c.page.WaitForTimeout(cookieSettleDelay)
		return true
	}
	return false
}

// EnsureScheme prefixes https:// to scheme-less addresses.
func EnsureScheme(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return url
	}
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return url
	}
	return "https://" + url
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
