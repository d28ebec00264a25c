// Package browser provides the browser automation layer using go-rod.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/jianyangg/show-and-tell/dom"
	"github.com/jianyangg/show-and-tell/runnererr"
	"github.com/jianyangg/show-and-tell/screenshot"
)

// Viewport defines browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Config holds browser configuration.
type Config struct {
	Viewport         *Viewport
	ScreenshotConfig *screenshot.Config
}

// TabInfo contains information about a browser tab.
type TabInfo struct {
	ID    string
	URL   string
	Title string
}

// Browser wraps a rod browser for controlled automation.
// Supports multi-tab management.
type Browser struct {
	rod      *rod.Browser
	config   Config
	screener *screenshot.Manager

	pages       map[string]*rod.Page // tabID -> page
	activeTabID string

	highlighter      *Highlighter
	highlightEnabled bool
	highlightDelay   time.Duration

	mu sync.RWMutex
}

// New creates a new browser wrapper.
func New(rodBrowser *rod.Browser, cfg Config) *Browser {
	b := &Browser{
		rod:              rodBrowser,
		config:           cfg,
		pages:            make(map[string]*rod.Page),
		highlightEnabled: true,
		highlightDelay:   300 * time.Millisecond,
	}

	if cfg.ScreenshotConfig != nil {
		b.screener = screenshot.NewManager(cfg.ScreenshotConfig)
	}

	return b
}

// SetHighlightEnabled enables or disables action highlighting.
func (b *Browser) SetHighlightEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlightEnabled = enabled
	if b.highlighter != nil {
		b.highlighter.SetEnabled(enabled)
	}
}

// SetHighlightDelay sets how long highlights are shown before action execution.
func (b *Browser) SetHighlightDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlightDelay = d
	if b.highlighter != nil {
		b.highlighter.SetDelay(d)
	}
}

// getHighlighter returns a highlighter for the active page.
func (b *Browser) getHighlighter() *Highlighter {
	page := b.getActivePageLocked()
	if page == nil {
		return nil
	}
	if b.highlighter == nil || b.highlighter.page != page {
		b.highlighter = NewHighlighter(page, b.highlightEnabled)
		b.highlighter.SetDelay(b.highlightDelay)
	}
	return b.highlighter
}

// waitForStableWithTimeout waits for the page to stabilize with an overall
// timeout, so continuous animation or video doesn't block indefinitely.
func waitForStableWithTimeout(page *rod.Page, stabilityDuration, maxWait time.Duration) {
	if page == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = page.WaitStable(stabilityDuration)
	}()

	select {
	case <-done:
	case <-time.After(maxWait):
	}
}

// Navigate navigates to the specified URL. If no tab exists, creates one.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		tabID, err := b.createTabLocked(url)
		if err != nil {
			return err
		}
		page = b.pages[tabID]
	} else {
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}

	waitForStableWithTimeout(page, 300*time.Millisecond, 5*time.Second)
	return nil
}

// GoBack navigates back in history. The returned bool reports whether the
// URL actually changed; the interpreter appends a "(noop)" note when it
// didn't (e.g. there was no prior entry).
func (b *Browser) GoBack(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return false, fmt.Errorf("no active page")
	}

	before := pageURL(page)
	if err := page.NavigateBack(); err != nil {
		return false, fmt.Errorf("failed to go back: %w", err)
	}
	waitForStableWithTimeout(page, 300*time.Millisecond, 3*time.Second)
	return pageURL(page) != before, nil
}

// GoForward navigates forward in history, same noop semantics as GoBack.
func (b *Browser) GoForward(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return false, fmt.Errorf("no active page")
	}

	before := pageURL(page)
	if err := page.NavigateForward(); err != nil {
		return false, fmt.Errorf("failed to go forward: %w", err)
	}
	waitForStableWithTimeout(page, 300*time.Millisecond, 3*time.Second)
	return pageURL(page) != before, nil
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// createTabLocked creates a new tab (must hold lock).
func (b *Browser) createTabLocked(url string) (string, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}

	if b.config.Viewport != nil {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.config.Viewport.Width,
			Height:            b.config.Viewport.Height,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		})
		if err != nil {
			return "", fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	tabID := uuid.New().String()[:8]
	b.pages[tabID] = page
	b.activeTabID = tabID

	return tabID, nil
}

// getActivePageLocked returns the active page (must hold lock).
func (b *Browser) getActivePageLocked() *rod.Page {
	if b.activeTabID != "" {
		if page, ok := b.pages[b.activeTabID]; ok {
			return page
		}
	}
	return nil
}

// Screenshot takes a viewport screenshot of the current page.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	page := b.getActivePageLocked()
	if page == nil {
		return nil, fmt.Errorf("no active page")
	}

	// Viewport screenshot (false), not full-page, so fixed overlays aren't
	// captured multiple times during page stitching.
	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}

	return data, nil
}

// ScreenshotWithAnnotations takes a screenshot and, if elements and a
// configured screenshot manager are present, draws bounding boxes over the
// given elements (used for debug visualization of DOM probe results).
func (b *Browser) ScreenshotWithAnnotations(ctx context.Context, elements *dom.ElementMap) ([]byte, error) {
	data, err := b.Screenshot(ctx)
	if err != nil {
		return nil, err
	}

	if elements != nil && b.screener != nil {
		annotated, err := b.screener.Annotate(data, elements)
		if err != nil {
			return nil, fmt.Errorf("failed to annotate screenshot: %w", err)
		}
		return annotated, nil
	}

	return data, nil
}

// SaveScreenshot saves a screenshot to storage and returns the path.
func (b *Browser) SaveScreenshot(ctx context.Context, data []byte, name string) (string, error) {
	if b.screener == nil {
		return "", fmt.Errorf("screenshot manager not configured")
	}

	return b.screener.Save(data, name)
}

// ScreenshotForLLM takes a compressed screenshot sized for efficient model
// context: resize to maxWidth and re-encode as JPEG.
func (b *Browser) ScreenshotForLLM(ctx context.Context, maxWidth int, quality int) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	page := b.getActivePageLocked()
	if page == nil {
		return nil, fmt.Errorf("no active page")
	}

	if maxWidth <= 0 {
		maxWidth = 800
	}
	if quality <= 0 {
		quality = 60
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	if origWidth <= maxWidth {
		return compressToJPEG(img, quality)
	}

	newWidth := maxWidth
	newHeight := (origHeight * maxWidth) / origWidth

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	return compressToJPEG(resized, quality)
}

func compressToJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// ClickAt clicks at specific viewport coordinates.
func (b *Browser) ClickAt(ctx context.Context, x, y float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	if highlighter := b.getHighlighter(); highlighter != nil {
		label := fmt.Sprintf("click (%d,%d)", int(x), int(y))
		_ = highlighter.HighlightCoordinates(x, y, label)
		defer highlighter.RemoveHighlights()
	}

	return dispatchClick(page, x, y, 1)
}

// ClickAtCount clicks at viewport coordinates with an explicit CDP click
// count (2 for a double-click, 3 for a triple-click-and-select-all), since a
// real multi-click select requires one mouse-down/up pair per click carrying
// an increasing click count (1..count), not repeated single clicks.
func (b *Browser) ClickAtCount(ctx context.Context, x, y float64, count int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	if highlighter := b.getHighlighter(); highlighter != nil {
		label := fmt.Sprintf("click (%d,%d)", int(x), int(y))
		_ = highlighter.HighlightCoordinates(x, y, label)
		defer highlighter.RemoveHighlights()
	}

	return dispatchClick(page, x, y, count)
}

func dispatchClick(page *rod.Page, x, y float64, count int) error {
	if count < 1 {
		count = 1
	}
	if err := (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved, X: x, Y: y,
		Button: proto.InputMouseButtonLeft, ClickCount: 0,
	}).Call(page); err != nil {
		return fmt.Errorf("failed to move mouse: %w", err)
	}
	for n := 1; n <= count; n++ {
		if err := (proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMousePressed, X: x, Y: y,
			Button: proto.InputMouseButtonLeft, ClickCount: n,
		}).Call(page); err != nil {
			return fmt.Errorf("failed to press mouse: %w", err)
		}
		if err := (proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMouseReleased, X: x, Y: y,
			Button: proto.InputMouseButtonLeft, ClickCount: n,
		}).Call(page); err != nil {
			return fmt.Errorf("failed to release mouse: %w", err)
		}
	}
	return nil
}

// HoverAt moves the mouse to viewport coordinates without clicking.
func (b *Browser) HoverAt(ctx context.Context, x, y float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	return (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved, X: x, Y: y,
		Button: proto.InputMouseButtonNone,
	}).Call(page)
}

// MouseMove moves the mouse to viewport coordinates, optionally with a
// button held (for drag sequences).
func (b *Browser) MouseMove(ctx context.Context, x, y float64, buttonHeld bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	button := proto.InputMouseButtonNone
	if buttonHeld {
		button = proto.InputMouseButtonLeft
	}
	return (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved, X: x, Y: y, Button: button,
	}).Call(page)
}

// MouseDown presses the left mouse button at viewport coordinates (x, y).
func (b *Browser) MouseDown(ctx context.Context, x, y float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	return (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMousePressed, X: x, Y: y,
		Button: proto.InputMouseButtonLeft, ClickCount: 1,
	}).Call(page)
}

// MouseUp releases the left mouse button at viewport coordinates (x, y).
func (b *Browser) MouseUp(ctx context.Context, x, y float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	return (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseReleased, X: x, Y: y,
		Button: proto.InputMouseButtonLeft, ClickCount: 1,
	}).Call(page)
}

// DragAndDrop performs a move-down-move-up drag sequence from (x0,y0) to
// (x1,y1), moving through intermediate steps so drop targets that listen
// for dragover/mousemove see the gesture.
func (b *Browser) DragAndDrop(ctx context.Context, x0, y0, x1, y1 float64, steps int) error {
	if steps < 1 {
		steps = 20
	}

	if err := b.MouseMove(ctx, x0, y0, false); err != nil {
		return err
	}
	if err := b.MouseDown(ctx, x0, y0); err != nil {
		return err
	}
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + (x1-x0)*t
		y := y0 + (y1-y0)*t
		if err := b.MouseMove(ctx, x, y, true); err != nil {
			return err
		}
	}
	return b.MouseUp(ctx, x1, y1)
}

// Type types text into the currently focused element.
func (b *Browser) Type(ctx context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	return page.InsertText(text)
}

// KeyboardPress sends a key combination (e.g. "ctrl+a", "Enter") verbatim to
// the page's keyboard input via rod's key parsing.
func (b *Browser) KeyboardPress(ctx context.Context, combo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}
	if combo == "" {
		return runnererr.ActionError{Action: "key_combination", Message: "empty key combination"}
	}

	keys := parseKeyCombo(combo)
	if len(keys) == 0 {
		return runnererr.ActionError{Action: "key_combination", Message: fmt.Sprintf("unrecognized key combination %q", combo)}
	}

	return page.Keyboard.Press(keys...)
}

func parseKeyCombo(combo string) []input.Key {
	parts := strings.Split(combo, "+")
	keys := make([]input.Key, 0, len(parts))
	for _, p := range parts {
		if key, ok := keyByName[strings.ToLower(strings.TrimSpace(p))]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Scroll scrolls the page by the specified amount.
func (b *Browser) Scroll(ctx context.Context, deltaX, deltaY float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	direction := "down"
	switch {
	case deltaY < 0:
		direction = "up"
	case deltaX > 0:
		direction = "right"
	case deltaX < 0:
		direction = "left"
	}

	if highlighter := b.getHighlighter(); highlighter != nil {
		viewportWidth, viewportHeight := 1280.0, 800.0
		if b.config.Viewport != nil {
			viewportWidth = float64(b.config.Viewport.Width)
			viewportHeight = float64(b.config.Viewport.Height)
		}
		_ = highlighter.HighlightScroll(viewportWidth/2, viewportHeight/2, direction)
		defer highlighter.RemoveHighlights()
	}

	return page.Mouse.Scroll(deltaX, deltaY, 1)
}

// ScrollAt scrolls within the nearest scrollable ancestor of the element at
// (x, y), falling back to scrolling the document if no scrollable ancestor
// is found. The returned bool reports whether an element (true) or the
// document (false) was the one that scrolled.
func (b *Browser) ScrollAt(ctx context.Context, x, y, deltaX, deltaY float64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return false, fmt.Errorf("no active page")
	}

	script := fmt.Sprintf(`(function() {
		let el = document.elementFromPoint(%f, %f);
		const wantsY = %f !== 0;
		const wantsX = %f !== 0;
		while (el) {
			const style = window.getComputedStyle(el);
			const scrollableY = (style.overflowY === 'auto' || style.overflowY === 'scroll') && el.scrollHeight > el.clientHeight;
			const scrollableX = (style.overflowX === 'auto' || style.overflowX === 'scroll') && el.scrollWidth > el.clientWidth;
			const hasRoomY = !wantsY || (%f < 0 ? el.scrollTop > 0 : el.scrollTop < el.scrollHeight - el.clientHeight);
			const hasRoomX = !wantsX || (%f < 0 ? el.scrollLeft > 0 : el.scrollLeft < el.scrollWidth - el.clientWidth);
			if ((scrollableY && hasRoomY) || (scrollableX && hasRoomX)) {
				el.scrollBy({top: %f, left: %f, behavior: 'smooth'});
				return true;
			}
			el = el.parentElement;
		}
		return false;
	})()`, x, y, deltaY, deltaX, deltaY, deltaX, deltaY, deltaX)

	result, err := page.Eval(script)
	if err != nil {
		return false, fmt.Errorf("failed to scroll at point: %w", err)
	}
	if result.Value.Bool() {
		return true, nil
	}

	if err := page.Mouse.Scroll(deltaX, deltaY, 1); err != nil {
		return false, err
	}
	return false, nil
}

// WaitForNavigation waits for a navigation to complete.
func (b *Browser) WaitForNavigation(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	return page.WaitLoad()
}

// WaitForStable waits for the page to become stable (no more DOM changes).
func (b *Browser) WaitForStable(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	return page.WaitStable(300 * time.Millisecond)
}

// WaitForEmbeddedPage waits until a child frame is ready to interact with:
// it polls every 250ms up to timeout, preferring a frame whose URL host
// matches expectedHost, else the first frame whose URL isn't blank or an
// internal scheme. If the main frame already matches expectedHost, it waits
// best-effort for network idle and returns without error. If no frame is
// ever observed, it returns without error (there may simply be no embed on
// this page). It only raises EmbeddedFrameTimeout when a frame was seen but
// never became ready within the budget.
func (b *Browser) WaitForEmbeddedPage(ctx context.Context, expectedHost string, timeout time.Duration) error {
	b.mu.RLock()
	page := b.getActivePageLocked()
	b.mu.RUnlock()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	if expectedHost != "" && strings.Contains(pageURL(page), expectedHost) {
		waitForStableWithTimeout(page, 300*time.Millisecond, 2*time.Second)
		return nil
	}

	deadline := time.Now().Add(timeout)
	sawAnyFrame := false

	for time.Now().Before(deadline) {
		frames, err := b.frameElements(page)
		if err == nil {
			var target *rod.Page
			for _, fp := range frames {
				url := pageURL(fp)
				if url == "" || isIgnoredFrameURL(url) {
					continue
				}
				sawAnyFrame = true
				if expectedHost == "" || strings.Contains(url, expectedHost) {
					target = fp
					break
				}
				if target == nil {
					target = fp
				}
			}
			if target != nil {
				if err := target.Timeout(time.Until(deadline)).WaitLoad(); err == nil {
					waitForStableWithTimeout(target, 300*time.Millisecond, 2*time.Second)
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}

	if !sawAnyFrame {
		return nil
	}

	return runnererr.EmbeddedFrameTimeout{ExpectedHost: expectedHost}
}

var ignoredFramePrefixes = []string{"about:", "chrome-error://", "data:"}

func isIgnoredFrameURL(url string) bool {
	for _, prefix := range ignoredFramePrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// frameElements returns the *rod.Page of every iframe on page.
func (b *Browser) frameElements(page *rod.Page) ([]*rod.Page, error) {
	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil, err
	}
	frames := make([]*rod.Page, 0, len(iframes))
	for _, el := range iframes {
		fp, err := el.Frame()
		if err != nil {
			continue
		}
		frames = append(frames, fp)
	}
	return frames, nil
}

// EvalJSON evaluates script on the active page's main frame and returns the
// raw JSON result as text. Implements dom.FrameEvaluator.
func (b *Browser) EvalJSON(script string, args ...any) (string, error) {
	b.mu.RLock()
	page := b.getActivePageLocked()
	b.mu.RUnlock()
	if page == nil {
		return "", fmt.Errorf("no active page")
	}
	return evalJSONOn(page, script)
}

// EvalJSONAllFrames evaluates script against the main frame first, then each
// iframe in turn, returning the first non-null result. Implements
// dom.MultiFrameEvaluator.
func (b *Browser) EvalJSONAllFrames(script string, args ...any) (string, error) {
	b.mu.RLock()
	page := b.getActivePageLocked()
	b.mu.RUnlock()
	if page == nil {
		return "", fmt.Errorf("no active page")
	}

	raw, err := evalJSONOn(page, script)
	if err != nil {
		return "", err
	}
	if raw != "" && raw != "null" {
		return raw, nil
	}

	frames, err := b.frameElements(page)
	if err != nil {
		return raw, nil
	}
	for _, fp := range frames {
		frameRaw, err := evalJSONOn(fp, script)
		if err != nil {
			continue
		}
		if frameRaw != "" && frameRaw != "null" {
			return frameRaw, nil
		}
	}

	return raw, nil
}

func evalJSONOn(page *rod.Page, script string) (string, error) {
	result, err := page.Eval(script)
	if err != nil {
		return "", err
	}
	return result.Value.String(), nil
}

// GetURL returns the current page URL.
func (b *Browser) GetURL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	page := b.getActivePageLocked()
	if page == nil {
		return ""
	}
	return pageURL(page)
}

// GetTitle returns the current page title.
func (b *Browser) GetTitle() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	page := b.getActivePageLocked()
	if page == nil {
		return ""
	}

	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// Page returns the underlying rod.Page for advanced operations.
func (b *Browser) Page() *rod.Page {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getActivePageLocked()
}

// GetActiveTabID returns the ID of the currently active tab.
func (b *Browser) GetActiveTabID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activeTabID
}

// Close closes the browser and all tabs.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tabID, page := range b.pages {
		if page != nil {
			page.Close()
		}
		delete(b.pages, tabID)
	}
	b.activeTabID = ""

	if b.rod != nil {
		err := b.rod.Close()
		b.rod = nil
		return err
	}

	return nil
}

// NewTab opens a new browser tab with the specified URL.
func (b *Browser) NewTab(ctx context.Context, url string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tabID, err := b.createTabLocked(url)
	if err != nil {
		return "", err
	}

	page := b.pages[tabID]
	if err := page.WaitLoad(); err != nil {
		return tabID, fmt.Errorf("page load failed: %w", err)
	}
	waitForStableWithTimeout(page, 300*time.Millisecond, 5*time.Second)

	return tabID, nil
}

// SwitchTab switches to a different browser tab by its ID.
func (b *Browser) SwitchTab(ctx context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, ok := b.pages[tabID]
	if !ok {
		return fmt.Errorf("tab %s not found", tabID)
	}

	b.activeTabID = tabID
	page.MustActivate()

	return nil
}

// CloseTab closes a browser tab by its ID. Cannot close the last remaining tab.
func (b *Browser) CloseTab(ctx context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, ok := b.pages[tabID]
	if !ok {
		return fmt.Errorf("tab %s not found", tabID)
	}

	if len(b.pages) <= 1 {
		return fmt.Errorf("cannot close the last tab")
	}

	page.Close()
	delete(b.pages, tabID)

	if b.activeTabID == tabID {
		for newTabID, newPage := range b.pages {
			b.activeTabID = newTabID
			newPage.MustActivate()
			break
		}
	}

	return nil
}

// ListTabs returns information about all open tabs.
func (b *Browser) ListTabs(ctx context.Context) []TabInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var tabs []TabInfo
	for tabID, page := range b.pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		tabs = append(tabs, TabInfo{
			ID:    tabID,
			URL:   info.URL,
			Title: info.Title,
		})
	}
	return tabs
}
