// Package runner implements the Plan Runner (the per-step decision loop,
// variable handshake, and visual checkpoint gating) and the Action
// Interpreter that applies one validated agent.Action to a live browser.
package runner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jianyangg/show-and-tell/agent"
	"github.com/jianyangg/show-and-tell/browser"
	"github.com/jianyangg/show-and-tell/runnererr"
)

// normalizedRange is the inclusive upper bound of the agent's 0-999
// coordinate grid; it is a fixed constant, not derived from the viewport.
const normalizedRange = 999

// Viewport is the fixed context size every run uses, regardless of host
// display -- the agent's coordinate contract depends on it being constant.
var Viewport = browser.Viewport{Width: 1440, Height: 900}

// Interpreter applies validated agent.Actions to a browser. It holds no
// state of its own beyond the browser and the configured search URL.
type Interpreter struct {
	Browser         *browser.Browser
	DefaultSearchURL string
}

// NewInterpreter returns an Interpreter over b. searchURL defaults to
// Google's homepage when empty.
func NewInterpreter(b *browser.Browser, searchURL string) *Interpreter {
	if searchURL == "" {
		searchURL = "https://www.google.com/"
	}
	return &Interpreter{Browser: b, DefaultSearchURL: searchURL}
}

// CursorHint is the normalized-space pointer position published alongside
// a frame so overlays can draw a cursor.
type CursorHint struct {
	X, Y float64
}

// Apply executes a single action, returning a human-readable summary on
// success. Any failure is returned as a runnererr.ActionError (or, for
// key_combination/navigate argument problems raised directly by the
// browser package, wrapped into one), which the plan runner recovers from
// locally rather than treating as fatal.
func (interp *Interpreter) Apply(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	switch a.Name {
	case "navigate":
		return interp.navigate(ctx, a)
	case "wait_5_seconds":
		time.Sleep(5 * time.Second)
		return "wait_5_seconds", nil, nil
	case "go_back":
		return interp.goHistory(ctx, a.Name, interp.Browser.GoBack)
	case "go_forward":
		return interp.goHistory(ctx, a.Name, interp.Browser.GoForward)
	case "search":
		if err := interp.Browser.Navigate(ctx, interp.DefaultSearchURL); err != nil {
			return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
		}
		return "search", nil, nil
	case "click_at":
		return interp.clickAt(ctx, a)
	case "type_text_at":
		return interp.typeTextAt(ctx, a)
	case "hover_at":
		return interp.hoverAt(ctx, a)
	case "scroll_document":
		return interp.scrollDocument(ctx, a)
	case "scroll_at":
		return interp.scrollAt(ctx, a)
	case "drag_and_drop":
		return interp.dragAndDrop(ctx, a)
	case "key_combination":
		return interp.keyCombination(ctx, a)
	default:
		return "", nil, runnererr.ActionError{Action: a.Name, Message: "Unsupported action"}
	}
}

func (interp *Interpreter) navigate(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	url, _ := a.Args["url"].(string)
	if url == "" {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: "navigate requires a 'url' argument"}
	}
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	if err := interp.Browser.Navigate(ctx, url); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	return fmt.Sprintf("navigate %s", url), nil, nil
}

func (interp *Interpreter) goHistory(ctx context.Context, name string, fn func(context.Context) (bool, error)) (string, *CursorHint, error) {
	changed, err := fn(ctx)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: name, Message: err.Error()}
	}
	summary := name
	if !changed {
		summary += " (noop)"
	}
	return summary, nil, nil
}

func (interp *Interpreter) clickAt(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	xNorm, yNorm, err := normCoords(a.Args)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	px, py := denormalize(xNorm, yNorm)
	if err := interp.Browser.ClickAt(ctx, px, py); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	return fmt.Sprintf("click_at @%d,%d", int(px), int(py)), cursorHint(xNorm, yNorm), nil
}

func (interp *Interpreter) hoverAt(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	xNorm, yNorm, err := normCoords(a.Args)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	px, py := denormalize(xNorm, yNorm)
	if err := interp.Browser.HoverAt(ctx, px, py); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	return fmt.Sprintf("hover_at @%d,%d", int(px), int(py)), cursorHint(xNorm, yNorm), nil
}

func (interp *Interpreter) typeTextAt(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	xNorm, yNorm, err := normCoords(a.Args)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	text, _ := a.Args["text"].(string)
	pressEnter, _ := a.Args["press_enter"].(bool)
	clearBefore := true
	if v, ok := a.Args["clear_before_typing"]; ok {
		if b, ok := v.(bool); ok {
			clearBefore = b
		}
	}

	px, py := denormalize(xNorm, yNorm)

	if clearBefore {
		if err := interp.Browser.ClickAtCount(ctx, px, py, 3); err != nil {
			return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
		}
		if err := interp.Browser.KeyboardPress(ctx, "Delete"); err != nil {
			return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
		}
	} else {
		if err := interp.Browser.ClickAt(ctx, px, py); err != nil {
			return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
		}
	}

	if err := interp.Browser.Type(ctx, text); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	if pressEnter {
		if err := interp.Browser.KeyboardPress(ctx, "Enter"); err != nil {
			return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
		}
	}

	return fmt.Sprintf("type_text_at @%d,%d", int(px), int(py)), cursorHint(xNorm, yNorm), nil
}

func (interp *Interpreter) scrollDocument(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	direction, _ := a.Args["direction"].(string)
	magnitude := clampMagnitude(a.Args["magnitude"])
	dx, dy := scrollDelta(direction, magnitude)
	if err := interp.Browser.Scroll(ctx, dx, dy); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	return fmt.Sprintf("scroll_document %s", directionLabel(direction)), nil, nil
}

func (interp *Interpreter) scrollAt(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	xNorm, yNorm, err := normCoords(a.Args)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	direction, _ := a.Args["direction"].(string)
	magnitude := clampMagnitude(a.Args["magnitude"])
	dx, dy := scrollDelta(direction, magnitude)

	px, py := denormalize(xNorm, yNorm)
	if err := interp.Browser.HoverAt(ctx, px, py); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	scrolledElement, err := interp.Browser.ScrollAt(ctx, px, py, dx, dy)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	target := "document"
	if scrolledElement {
		target = "element"
	}
	return fmt.Sprintf("scroll_at %s (%s)", directionLabel(direction), target), cursorHint(xNorm, yNorm), nil
}

func (interp *Interpreter) dragAndDrop(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	xNorm, yNorm, err := normCoords(a.Args)
	if err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	dxNorm, ok1 := numArg(a.Args, "destination_x")
	dyNorm, ok2 := numArg(a.Args, "destination_y")
	if !ok1 || !ok2 {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: "drag_and_drop requires 'destination_x' and 'destination_y'"}
	}
	dxNorm, dyNorm = clampNorm(dxNorm), clampNorm(dyNorm)

	px0, py0 := denormalize(xNorm, yNorm)
	px1, py1 := denormalize(dxNorm, dyNorm)
	if err := interp.Browser.DragAndDrop(ctx, px0, py0, px1, py1, 20); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	return fmt.Sprintf("drag_and_drop @%d,%d -> @%d,%d", int(px0), int(py0), int(px1), int(py1)), cursorHint(dxNorm, dyNorm), nil
}

func (interp *Interpreter) keyCombination(ctx context.Context, a agent.Action) (string, *CursorHint, error) {
	keys, _ := a.Args["keys"].(string)
	if strings.TrimSpace(keys) == "" {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: "key_combination requires a non-empty 'keys' argument"}
	}
	if err := interp.Browser.KeyboardPress(ctx, keys); err != nil {
		return "", nil, runnererr.ActionError{Action: a.Name, Message: err.Error()}
	}
	return fmt.Sprintf("key_combination %s", keys), nil, nil
}

// normCoords reads and clamps x,y from args.
func normCoords(args map[string]any) (float64, float64, error) {
	x, okX := numArg(args, "x")
	y, okY := numArg(args, "y")
	if !okX || !okY {
		return 0, 0, fmt.Errorf("requires 'x' and 'y' arguments")
	}
	return clampNorm(x), clampNorm(y), nil
}

func numArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clampNorm(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > normalizedRange {
		return normalizedRange
	}
	return v
}

// denormalize converts a clamped normalized coordinate into pixel space
// using (dim-1) scaling, so the result always lands inside the visible
// viewport.
func denormalize(xNorm, yNorm float64) (float64, float64) {
	px := math.Round(xNorm / normalizedRange * float64(Viewport.Width-1))
	py := math.Round(yNorm / normalizedRange * float64(Viewport.Height-1))
	return px, py
}

func cursorHint(xNorm, yNorm float64) *CursorHint {
	return &CursorHint{X: xNorm / normalizedRange, Y: yNorm / normalizedRange}
}

func clampMagnitude(v any) int {
	const def = 800
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	default:
		return def
	}
	mag := int(n)
	if mag == 0 {
		return def
	}
	if mag > 2000 {
		return 2000
	}
	if mag < -2000 {
		return -2000
	}
	return mag
}

func scrollDelta(direction string, magnitude int) (float64, float64) {
	mag := math.Abs(float64(magnitude))
	switch strings.ToLower(direction) {
	case "up":
		return 0, -mag
	case "left":
		return -mag, 0
	case "right":
		return mag, 0
	default: // "down" and unrecognized default to down
		return 0, mag
	}
}

func directionLabel(direction string) string {
	if direction == "" {
		return "down"
	}
	return strings.ToLower(direction)
}
