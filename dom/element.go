// Package dom provides the element-map data structures and the two
// JavaScript introspection probes (focus and click-point) that the teach
// session manager uses to attach robust locator candidates to recorded
// events.
package dom

import (
	"fmt"
	"strings"
)

// BoundingBox is the client-rect of an element in viewport pixels. Negative
// X/Y are possible for elements scrolled above/left of the viewport origin.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Element describes one DOM node surfaced by a probe or a page scan.
type Element struct {
	Index       int
	TagName     string
	Role        string
	Name        string
	Text        string
	Type        string
	Href        string
	Placeholder string
	Value       string
	AriaLabel   string

	IsInteractive bool
	IsVisible     bool
	BoundingBox   BoundingBox

	// CSSPath is the element's computed CSS path (id short-circuit,
	// :nth-of-type when siblings collide).
	CSSPath string
	// PrimaryLocator is the first candidate from SelectorCandidates.
	PrimaryLocator string
	// SelectorCandidates is ordered best-first: #id, [data-testid], [data-qa],
	// tag[name] for form fields, role(name), CSS path.
	SelectorCandidates []string
}

// ElementMap indexes a page's elements by a stable integer index so an agent
// can refer to "element 7" without re-resolving a selector each time.
type ElementMap struct {
	Elements  []*Element
	indexMap  map[int]*Element
	PageTitle string
	PageURL   string
}

// NewElementMap returns an empty map ready for Add calls.
func NewElementMap() *ElementMap {
	return &ElementMap{
		Elements: make([]*Element, 0),
		indexMap: make(map[int]*Element),
	}
}

// Add appends el and indexes it by el.Index, overwriting any prior element
// registered under the same index.
func (m *ElementMap) Add(el *Element) {
	m.Elements = append(m.Elements, el)
	m.indexMap[el.Index] = el
}

// Count returns the number of elements added, including duplicate indices.
func (m *ElementMap) Count() int {
	return len(m.Elements)
}

// ByIndex looks up the most recently added element registered under index.
func (m *ElementMap) ByIndex(index int) (*Element, bool) {
	el, ok := m.indexMap[index]
	return el, ok
}

// InteractiveElements returns elements marked both interactive and visible.
func (m *ElementMap) InteractiveElements() []*Element {
	out := make([]*Element, 0, len(m.Elements))
	for _, el := range m.Elements {
		if el.IsInteractive && el.IsVisible {
			out = append(out, el)
		}
	}
	return out
}

// ToTokenString renders visible elements as a compact, LLM-friendly listing,
// one line per element, skipping elements not currently visible.
func (m *ElementMap) ToTokenString() string {
	var b strings.Builder
	if m.PageTitle != "" || m.PageURL != "" {
		fmt.Fprintf(&b, "Page: %s (%s)\n", m.PageTitle, m.PageURL)
	}
	for _, el := range m.Elements {
		if !el.IsVisible {
			continue
		}
		label := el.Text
		if label == "" {
			label = el.AriaLabel
		}
		if label == "" {
			label = el.Placeholder
		}
		fmt.Fprintf(&b, "[%d] <%s", el.Index, el.TagName)
		if el.Type != "" {
			fmt.Fprintf(&b, " type=%s", el.Type)
		}
		if el.Href != "" {
			fmt.Fprintf(&b, " href=%s", truncate(el.Href, 60))
		}
		b.WriteString(">")
		if label != "" {
			fmt.Fprintf(&b, " %s", truncate(label, 80))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// truncate shortens s to at most maxLen bytes, replacing the tail with "..."
// when cut. Callers must pass maxLen >= 4 for strings that actually exceed it.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
