// Package screenshot persists debug screenshots to disk and draws bounding
// box overlays for DOM probe results. It is a debugging aid for the teach
// session manager and the plan runner, not part of the action-agent loop
// (which consumes raw, unannotated screenshots per the coordinate-based
// action contract).
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jianyangg/show-and-tell/dom"
)

// AnnotationStyle controls how Annotate draws bounding boxes.
type AnnotationStyle struct {
	BoxWidth   float64
	FontSize   float64
	ShowIndex  bool
	ShowRole   bool
	BoxColor   color.Color
	LabelColor color.Color
	TextColor  color.Color
}

// DefaultAnnotationStyle returns the style Annotate uses when a Config
// doesn't specify one.
func DefaultAnnotationStyle() *AnnotationStyle {
	return &AnnotationStyle{
		BoxWidth:   2,
		FontSize:   12,
		ShowIndex:  true,
		ShowRole:   false,
		BoxColor:   color.RGBA{255, 107, 53, 255},
		LabelColor: color.RGBA{255, 107, 53, 200},
		TextColor:  color.White,
	}
}

// Config controls a Manager's behavior.
type Config struct {
	Enabled         bool
	Annotate        bool
	StorageDir      string
	MaxScreenshots  int
	ImageFormat     string
	Quality         int
	AnnotationStyle *AnnotationStyle
}

// Manager saves and annotates screenshots captured by the browser driver.
type Manager struct {
	config Config
}

// NewManager returns a Manager, filling in defaults for any zero-valued
// Config field and creating StorageDir if one was given.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.ImageFormat == "" {
		c.ImageFormat = "png"
	}
	if c.Quality == 0 {
		c.Quality = 90
	}
	if c.AnnotationStyle == nil {
		c.AnnotationStyle = DefaultAnnotationStyle()
	}
	if c.StorageDir != "" {
		_ = os.MkdirAll(c.StorageDir, 0o755)
	}
	return &Manager{config: c}
}

// Annotate draws a bounding box for each visible, non-zero-size element in
// elements. No index or role labels are drawn: the style's ShowIndex,
// ShowRole, FontSize, LabelColor and TextColor are not used. A nil or empty
// map returns data
// unchanged. Invalid image data with a nil/empty map also returns data
// unchanged; invalid data with elements present is an error.
func (m *Manager) Annotate(data []byte, elements *dom.ElementMap) ([]byte, error) {
	if elements == nil || elements.Count() == 0 {
		return data, nil
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)

	style := m.config.AnnotationStyle
	if style == nil {
		style = DefaultAnnotationStyle()
	}

	for _, el := range elements.Elements {
		if !el.IsVisible {
			continue
		}
		if el.BoundingBox.Width <= 0 || el.BoundingBox.Height <= 0 {
			continue
		}
		drawBox(rgba, el.BoundingBox, style.BoxColor, int(style.BoxWidth))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("encode annotated screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBox(img *image.RGBA, bb dom.BoundingBox, c color.Color, width int) {
	if width < 1 {
		width = 1
	}
	x0, y0 := int(bb.X), int(bb.Y)
	x1, y1 := int(bb.X+bb.Width), int(bb.Y+bb.Height)
	for w := 0; w < width; w++ {
		hLine(img, x0, x1, y0+w, c)
		hLine(img, x0, x1, y1-w, c)
		vLine(img, y0, y1, x0+w, c)
		vLine(img, y0, y1, x1-w, c)
	}
}

func hLine(img *image.RGBA, x0, x1, y int, c color.Color) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := x0; x <= x1; x++ {
		if x < b.Min.X || x >= b.Max.X {
			continue
		}
		img.Set(x, y, c)
	}
}

func vLine(img *image.RGBA, y0, y1, x int, c color.Color) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := y0; y <= y1; y++ {
		if y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		img.Set(x, y, c)
	}
}

// Save writes data to StorageDir under a sanitized, timestamped filename and
// returns the path written. It errors if no StorageDir is configured.
func (m *Manager) Save(data []byte, name string) (string, error) {
	if m.config.StorageDir == "" {
		return "", fmt.Errorf("screenshot manager has no storage dir configured")
	}
	ext := m.config.ImageFormat
	if ext == "" {
		ext = "png"
	}
	filename := fmt.Sprintf("%s_%d.%s", sanitizeFilename(name), time.Now().UnixNano(), ext)
	path := filepath.Join(m.config.StorageDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	m.cleanup()
	return path, nil
}

// List returns the paths of every screenshot file in StorageDir, oldest
// first. Returns nil without error if no StorageDir is configured.
func (m *Manager) List() ([]string, error) {
	if m.config.StorageDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.config.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	modTimes := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isScreenshotFile(e.Name()) {
			continue
		}
		p := filepath.Join(m.config.StorageDir, e.Name())
		if info, err := e.Info(); err == nil {
			modTimes[p] = info.ModTime()
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	sort.SliceStable(paths, func(i, j int) bool { return modTimes[paths[i]].Before(modTimes[paths[j]]) })
	return paths, nil
}

// Clear removes every screenshot file from StorageDir, leaving other files
// untouched.
func (m *Manager) Clear() error {
	if m.config.StorageDir == "" {
		return nil
	}
	paths, err := m.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// cleanup enforces MaxScreenshots by deleting the oldest files beyond the
// cap. A MaxScreenshots of 0 means unbounded.
func (m *Manager) cleanup() {
	if m.config.MaxScreenshots <= 0 || m.config.StorageDir == "" {
		return
	}
	paths, err := m.List()
	if err != nil {
		return
	}
	if len(paths) <= m.config.MaxScreenshots {
		return
	}
	excess := len(paths) - m.config.MaxScreenshots
	for _, p := range paths[:excess] {
		_ = os.Remove(p)
	}
}

var filenameStripRe = regexp.MustCompile(`[^A-Za-z0-9_\- ]`)

// sanitizeFilename strips characters unsafe for a filesystem path, converts
// spaces to underscores, and caps length at 50 bytes.
func sanitizeFilename(name string) string {
	if name == "" {
		return "screenshot"
	}
	cleaned := filenameStripRe.ReplaceAllString(name, "")
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if len(cleaned) > 50 {
		cleaned = cleaned[:50]
	}
	return cleaned
}

// isScreenshotFile reports whether name has a recognized (lowercase)
// screenshot extension.
func isScreenshotFile(name string) bool {
	lower := name
	return strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}
