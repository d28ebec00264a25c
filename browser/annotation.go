// Package browser provides the browser automation layer using go-rod.
package browser

import (
	"context"
	"fmt"

	"github.com/jianyangg/show-and-tell/dom"
)

// AnnotationConfig controls how probed-element overlays are drawn on a live
// teach-session frame.
type AnnotationConfig struct {
	// ShowIndex displays the element's index number within the map.
	ShowIndex bool
	// ShowType displays the element type (button, input, link, etc.)
	ShowType bool
	// ShowBoundingBox draws a border around elements
	ShowBoundingBox bool
	// Opacity of the overlay (0.0 - 1.0)
	Opacity float64
}

// DefaultAnnotationConfig returns the default annotation configuration.
func DefaultAnnotationConfig() *AnnotationConfig {
	return &AnnotationConfig{
		ShowIndex:       true,
		ShowType:        true,
		ShowBoundingBox: true,
		Opacity:         0.8,
	}
}

// annotationCSS returns the CSS for probe-annotation overlays.
func annotationCSS(opacity float64) string {
	return fmt.Sprintf(`
		.probe-annotation-overlay {
			position: fixed;
			pointer-events: none;
			z-index: 2147483647;
			top: 0;
			left: 0;
			width: 100%%;
			height: 100%%;
		}
		.probe-annotation-box {
			position: absolute;
			border: 2px solid;
			box-sizing: border-box;
			pointer-events: none;
		}
		.probe-annotation-label {
			position: absolute;
			font-family: 'SF Mono', 'Monaco', 'Inconsolata', 'Fira Code', monospace;
			font-size: 10px;
			font-weight: bold;
			padding: 2px 4px;
			border-radius: 3px;
			white-space: nowrap;
			opacity: %.2f;
			pointer-events: none;
		}
		.probe-type-button { border-color: #e74c3c; }
		.probe-type-button .probe-annotation-label { background: #e74c3c; color: white; }

		.probe-type-link { border-color: #3498db; }
		.probe-type-link .probe-annotation-label { background: #3498db; color: white; }

		.probe-type-input { border-color: #2ecc71; }
		.probe-type-input .probe-annotation-label { background: #2ecc71; color: white; }

		.probe-type-select { border-color: #9b59b6; }
		.probe-type-select .probe-annotation-label { background: #9b59b6; color: white; }

		.probe-type-textarea { border-color: #1abc9c; }
		.probe-type-textarea .probe-annotation-label { background: #1abc9c; color: white; }

		.probe-type-image { border-color: #f39c12; }
		.probe-type-image .probe-annotation-label { background: #f39c12; color: white; }

		.probe-type-other { border-color: #95a5a6; }
		.probe-type-other .probe-annotation-label { background: #95a5a6; color: white; }
	`, opacity)
}

// elementTypeClass returns the CSS class for an element's tag/role.
func elementTypeClass(tagName string, el *dom.Element) string {
	switch tagName {
	case "button":
		return "probe-type-button"
	case "a":
		return "probe-type-link"
	case "input":
		if el != nil {
			switch el.Type {
			case "submit", "button":
				return "probe-type-button"
			default:
				return "probe-type-input"
			}
		}
		return "probe-type-input"
	case "select":
		return "probe-type-select"
	case "textarea":
		return "probe-type-textarea"
	case "img":
		return "probe-type-image"
	default:
		if el != nil && el.Role == "button" {
			return "probe-type-button"
		}
		return "probe-type-other"
	}
}

// ShowAnnotations draws overlay boxes over the elements a teach-session DOM
// probe resolved, so an operator watching the live frame can see exactly
// what was detected at the probed point.
func (b *Browser) ShowAnnotations(ctx context.Context, elements *dom.ElementMap, cfg *AnnotationConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	if cfg == nil {
		cfg = DefaultAnnotationConfig()
	}

	_, err := page.Eval(`() => {
		const existing = document.getElementById('probe-annotation-container');
		if (existing) existing.remove();
	}`)
	if err != nil {
		return fmt.Errorf("failed to clear existing annotations: %w", err)
	}

	css := annotationCSS(cfg.Opacity)
	_, err = page.Eval(fmt.Sprintf(`() => {
		let style = document.getElementById('probe-annotation-style');
		if (!style) {
			style = document.createElement('style');
			style.id = 'probe-annotation-style';
			document.head.appendChild(style);
		}
		style.textContent = %q;
	}`, css))
	if err != nil {
		return fmt.Errorf("failed to inject CSS: %w", err)
	}

	_, err = page.Eval(`() => {
		const container = document.createElement('div');
		container.id = 'probe-annotation-container';
		container.className = 'probe-annotation-overlay';
		document.body.appendChild(container);
	}`)
	if err != nil {
		return fmt.Errorf("failed to create overlay container: %w", err)
	}

	for _, el := range elements.Elements {
		if el.BoundingBox.Width <= 0 || el.BoundingBox.Height <= 0 {
			continue
		}

		typeClass := elementTypeClass(el.TagName, el)

		labelText := ""
		if cfg.ShowIndex {
			labelText = fmt.Sprintf("%d", el.Index)
		}
		if cfg.ShowType && el.TagName != "" {
			if labelText != "" {
				labelText += " "
			}
			labelText += el.TagName
		}

		js := fmt.Sprintf(`() => {
			const container = document.getElementById('probe-annotation-container');
			if (!container) return;

			const box = document.createElement('div');
			box.className = 'probe-annotation-box %s';
			box.style.left = '%fpx';
			box.style.top = '%fpx';
			box.style.width = '%fpx';
			box.style.height = '%fpx';

			const label = document.createElement('div');
			label.className = 'probe-annotation-label';
			label.textContent = '%s';
			label.style.left = '0';
			label.style.top = '-18px';

			box.appendChild(label);
			container.appendChild(box);
		}`,
			typeClass,
			el.BoundingBox.X,
			el.BoundingBox.Y,
			el.BoundingBox.Width,
			el.BoundingBox.Height,
			labelText,
		)

		_, err = page.Eval(js)
		if err != nil {
			continue
		}
	}

	return nil
}

// HideAnnotations removes all probe-annotation overlays from the page.
func (b *Browser) HideAnnotations(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.getActivePageLocked()
	if page == nil {
		return fmt.Errorf("no active page")
	}

	_, err := page.Eval(`() => {
		const container = document.getElementById('probe-annotation-container');
		if (container) container.remove();
		const style = document.getElementById('probe-annotation-style');
		if (style) style.remove();
	}`)
	if err != nil {
		return fmt.Errorf("failed to remove annotations: %w", err)
	}

	return nil
}

// ToggleAnnotations shows or hides the probe-annotation overlay depending on
// whether it is currently present.
func (b *Browser) ToggleAnnotations(ctx context.Context, elements *dom.ElementMap, cfg *AnnotationConfig) (bool, error) {
	b.mu.RLock()
	page := b.getActivePageLocked()
	b.mu.RUnlock()
	if page == nil {
		return false, fmt.Errorf("no active page")
	}

	result, err := page.Eval(`() => {
		return document.getElementById('probe-annotation-container') !== null;
	}`)
	if err != nil {
		return false, fmt.Errorf("failed to check annotation state: %w", err)
	}

	hasAnnotations := result.Value.Bool()

	if hasAnnotations {
		err = b.HideAnnotations(ctx)
		return false, err
	}

	err = b.ShowAnnotations(ctx, elements, cfg)
	return true, err
}
