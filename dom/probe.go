package dom

import (
	"encoding/json"
	"fmt"
)

// Locator is one candidate way to re-find an element later: by id, test id,
// qa id, role+name, or CSS path.
type Locator struct {
	Strategy string `json:"strategy"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
}

// ProbeResult is what a focus probe or click probe returns: the resolved
// element (and, for a click probe, its actionable ancestor if different),
// a chosen best selector, the ordered locator candidates, and the primary
// (first) locator.
type ProbeResult struct {
	Element            *Element   `json:"element"`
	ActionableAncestor *Element   `json:"actionableAncestor,omitempty"`
	BestSelector       string     `json:"bestSelector"`
	PrimaryLocator     string     `json:"primaryLocator"`
	SelectorCandidates []string   `json:"selectorCandidates"`
	Locators           []*Locator `json:"-"`
}

// FrameEvaluator is the minimal page/frame surface the probes need: evaluate
// JS and get back raw JSON text. The browser package's rod-backed
// implementation satisfies this by evaluating on the active page's main frame.
type FrameEvaluator interface {
	EvalJSON(script string, args ...any) (string, error)
}

// MultiFrameEvaluator runs a script against every frame of a page (main
// frame first, then descendants), stopping at the first non-null result.
type MultiFrameEvaluator interface {
	EvalJSONAllFrames(script string, args ...any) (string, error)
}

// focusProbeScript walks from document.activeElement up through parents and
// shadow hosts (at most 8 levels) and returns the descriptor (tag, role,
// name, CSS path, candidates) of the first element that is not <body> or
// <html>. Only that one element is described; the elements above it are not.
const focusProbeScript = `(function() {
	function accessibleName(el) {
		if (!el) return "";
		const ariaLabel = el.getAttribute && el.getAttribute("aria-label");
		if (ariaLabel) return ariaLabel;
		const labelledBy = el.getAttribute && el.getAttribute("aria-labelledby");
		if (labelledBy) {
			const parts = labelledBy.split(/\s+/).map(id => {
				const node = document.getElementById(id);
				return node ? node.textContent.trim() : "";
			}).filter(Boolean);
			if (parts.length) return parts.join(" ");
		}
		if (el.id) {
			const forLabel = document.querySelector("label[for='" + el.id + "']");
			if (forLabel) return forLabel.textContent.trim();
		}
		const wrapping = el.closest && el.closest("label");
		if (wrapping) return wrapping.textContent.trim();
		if (el.title) return el.title;
		if (el.placeholder) return el.placeholder;
		if (el.alt) return el.alt;
		return (el.textContent || "").trim().slice(0, 120);
	}

	function derivedRole(el) {
		const explicit = el.getAttribute && el.getAttribute("role");
		if (explicit) return explicit;
		const tag = el.tagName.toLowerCase();
		if (tag === "a" && el.hasAttribute("href")) return "link";
		if (tag === "button" || tag === "summary" || tag === "details") return "button";
		if (tag === "input" || tag === "textarea" || tag === "select") return "textbox";
		return "";
	}

	function cssPath(el) {
		if (!el || el.nodeType !== 1) return "";
		if (el.id) return "#" + el.id;
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 8) {
			let selector = node.tagName.toLowerCase();
			const parent = node.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === node.tagName);
				if (siblings.length > 1) {
					const idx = siblings.indexOf(node) + 1;
					selector += ":nth-of-type(" + idx + ")";
				}
			}
			parts.unshift(selector);
			node = parent;
		}
		return parts.join(" > ");
	}

	function candidates(el) {
		const out = [];
		if (el.id) out.push("#" + el.id);
		const testId = el.getAttribute && el.getAttribute("data-testid");
		if (testId) out.push("[data-testid='" + testId + "']");
		const qaId = el.getAttribute && el.getAttribute("data-qa");
		if (qaId) out.push("[data-qa='" + qaId + "']");
		const tag = el.tagName.toLowerCase();
		const name = el.getAttribute && el.getAttribute("name");
		if (name && (tag === "input" || tag === "select" || tag === "textarea")) {
			out.push(tag + "[name='" + name + "']");
		}
		const role = derivedRole(el);
		const accName = accessibleName(el);
		if (role && accName) out.push(role + "(" + accName + ")");
		out.push(cssPath(el));
		return out;
	}

	function describe(el) {
		return {
			tagName: el.tagName.toLowerCase(),
			role: derivedRole(el),
			name: accessibleName(el),
			text: (el.textContent || "").trim().slice(0, 200),
			type: el.getAttribute ? (el.getAttribute("type") || "") : "",
			href: el.getAttribute ? (el.getAttribute("href") || "") : "",
			placeholder: el.placeholder || "",
			value: el.value !== undefined ? String(el.value) : "",
			ariaLabel: el.getAttribute ? (el.getAttribute("aria-label") || "") : "",
			candidates: candidates(el),
		};
	}

	let node = document.activeElement;
	let depth = 0;
	while (node && depth < 8) {
		if (node.nodeType === 1 && node !== document.body && node !== document.documentElement) {
			const d = describe(node);
			const rect = node.getBoundingClientRect ? node.getBoundingClientRect() : {x:0,y:0,width:0,height:0};
			return JSON.stringify({
				element: Object.assign(d, {
					isInteractive: true,
					isVisible: !!(rect.width || rect.height),
					boundingBox: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
				}),
				bestSelector: d.candidates[0] || "",
				primaryLocator: d.candidates[0] || "",
				selectorCandidates: d.candidates,
			});
		}
		node = (node.getRootNode && node.getRootNode().host) ? node.getRootNode().host : node.parentElement;
		depth++;
	}
	return "null";
})()`

// clickProbeScript hit-tests (x,y) with elementsFromPoint and returns the
// topmost element there, plus the topmost actionable element in that hit
// stack as actionableAncestor when the two differ.
const clickProbeScript = `(function(x, y) {
	function isActionable(el) {
		if (!el) return false;
		const tag = el.tagName.toLowerCase();
		if (["button", "summary", "details", "label"].includes(tag)) return true;
		if (tag === "a" && el.hasAttribute("href")) return true;
		if (tag === "input") {
			const type = (el.getAttribute("type") || "text").toLowerCase();
			if (["button", "submit", "reset", "checkbox", "radio", "file"].includes(type)) return true;
		}
		const role = el.getAttribute && el.getAttribute("role");
		if (role && ["button", "link", "tab", "switch", "menuitem", "option", "checkbox"].includes(role)) return true;
		if (el.onclick || el.hasAttribute("onclick") || el.hasAttribute("href") || el.hasAttribute("for")) return true;
		const style = window.getComputedStyle(el);
		if (style.cursor === "pointer") return true;
		return false;
	}

	function cssPath(el) {
		if (!el || el.nodeType !== 1) return "";
		if (el.id) return "#" + el.id;
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 8) {
			let selector = node.tagName.toLowerCase();
			const parent = node.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === node.tagName);
				if (siblings.length > 1) {
					const idx = siblings.indexOf(node) + 1;
					selector += ":nth-of-type(" + idx + ")";
				}
			}
			parts.unshift(selector);
			node = parent;
		}
		return parts.join(" > ");
	}

	function candidates(el) {
		const out = [];
		if (el.id) out.push("#" + el.id);
		const testId = el.getAttribute && el.getAttribute("data-testid");
		if (testId) out.push("[data-testid='" + testId + "']");
		out.push(cssPath(el));
		return out;
	}

	function describe(el) {
		const rect = el.getBoundingClientRect();
		return {
			tagName: el.tagName.toLowerCase(),
			text: (el.textContent || "").trim().slice(0, 200),
			href: el.getAttribute ? (el.getAttribute("href") || "") : "",
			isInteractive: isActionable(el),
			isVisible: !!(rect.width || rect.height),
			boundingBox: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
			candidates: candidates(el),
		};
	}

	const stack = document.elementsFromPoint(x, y);
	if (!stack.length) return "null";
	const topmost = stack[0];
	let ancestor = null;
	for (const el of stack) {
		if (isActionable(el)) { ancestor = el; break; }
	}
	const elementDesc = describe(topmost);
	const out = {
		element: elementDesc,
		bestSelector: elementDesc.candidates[0] || "",
		primaryLocator: elementDesc.candidates[0] || "",
		selectorCandidates: elementDesc.candidates,
	};
	if (ancestor && ancestor !== topmost) {
		out.actionableAncestor = describe(ancestor);
	}
	return JSON.stringify(out);
})(%f, %f)`

type probeJSON struct {
	Element struct {
		TagName       string      `json:"tagName"`
		Role          string      `json:"role"`
		Name          string      `json:"name"`
		Text          string      `json:"text"`
		Type          string      `json:"type"`
		Href          string      `json:"href"`
		Placeholder   string      `json:"placeholder"`
		Value         string      `json:"value"`
		AriaLabel     string      `json:"ariaLabel"`
		IsInteractive bool        `json:"isInteractive"`
		IsVisible     bool        `json:"isVisible"`
		BoundingBox   BoundingBox `json:"boundingBox"`
		Candidates    []string    `json:"candidates"`
	} `json:"element"`
	ActionableAncestor *struct {
		TagName       string      `json:"tagName"`
		Text          string      `json:"text"`
		Href          string      `json:"href"`
		IsInteractive bool        `json:"isInteractive"`
		IsVisible     bool        `json:"isVisible"`
		BoundingBox   BoundingBox `json:"boundingBox"`
		Candidates    []string    `json:"candidates"`
	} `json:"actionableAncestor"`
	BestSelector       string   `json:"bestSelector"`
	PrimaryLocator     string   `json:"primaryLocator"`
	SelectorCandidates []string `json:"selectorCandidates"`
}

func parseProbeJSON(raw string) (*ProbeResult, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var parsed probeJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse probe result: %w", err)
	}
	el := &Element{
		TagName:            parsed.Element.TagName,
		Role:               parsed.Element.Role,
		Name:               parsed.Element.Name,
		Text:               parsed.Element.Text,
		Type:               parsed.Element.Type,
		Href:               parsed.Element.Href,
		Placeholder:        parsed.Element.Placeholder,
		Value:              parsed.Element.Value,
		AriaLabel:          parsed.Element.AriaLabel,
		IsInteractive:      parsed.Element.IsInteractive,
		IsVisible:          parsed.Element.IsVisible,
		BoundingBox:        parsed.Element.BoundingBox,
		SelectorCandidates: parsed.Element.Candidates,
	}
	if len(el.SelectorCandidates) > 0 {
		el.PrimaryLocator = el.SelectorCandidates[0]
		el.CSSPath = el.SelectorCandidates[len(el.SelectorCandidates)-1]
	}
	result := &ProbeResult{
		Element:            el,
		BestSelector:       parsed.BestSelector,
		PrimaryLocator:     parsed.PrimaryLocator,
		SelectorCandidates: parsed.SelectorCandidates,
	}
	if parsed.ActionableAncestor != nil {
		result.ActionableAncestor = &Element{
			TagName:            parsed.ActionableAncestor.TagName,
			Text:               parsed.ActionableAncestor.Text,
			Href:               parsed.ActionableAncestor.Href,
			IsInteractive:      parsed.ActionableAncestor.IsInteractive,
			IsVisible:          parsed.ActionableAncestor.IsVisible,
			BoundingBox:        parsed.ActionableAncestor.BoundingBox,
			SelectorCandidates: parsed.ActionableAncestor.Candidates,
		}
	}
	return result, nil
}

// RunFocusProbe executes the focus probe across every frame of ev, returning
// the first non-null result. An error on the main frame is returned; a probe
// that errors on a child frame simply yields no result from that frame.
func RunFocusProbe(ev MultiFrameEvaluator) (*ProbeResult, error) {
	raw, err := ev.EvalJSONAllFrames(focusProbeScript)
	if err != nil {
		return nil, err
	}
	return parseProbeJSON(raw)
}

// RunClickProbe executes the click probe at (x,y) across every frame of ev.
func RunClickProbe(ev MultiFrameEvaluator, x, y float64) (*ProbeResult, error) {
	script := fmt.Sprintf(clickProbeScript, x, y)
	raw, err := ev.EvalJSONAllFrames(script)
	if err != nil {
		return nil, err
	}
	return parseProbeJSON(raw)
}
