package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Launch starts a fresh Chromium process with anti-detection and media
// playback flags, connects to it, and wraps it in a Browser sized to
// viewport. Each caller owns the returned *rod.Browser exclusively;
// Browser.Close tears down the whole process.
func Launch(headless bool, viewport Viewport) (*rod.Browser, *Browser, error) {
	l := launcher.New().
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-features", "PreloadMediaEngagementData,MediaEngagementBypassAutoplayPolicies").
		Set("enable-features", "NetworkService,NetworkServiceInProcess").
		Set("disable-background-networking").
		Set("disable-client-side-phishing-detection").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-hang-monitor").
		Set("disable-popup-blocking").
		Set("disable-prompt-on-repost").
		Set("disable-sync").
		Set("disable-translate").
		Set("metrics-recording-only").
		Set("safebrowsing-disable-auto-update").
		Set("window-size", fmt.Sprintf("%d,%d", viewport.Width, viewport.Height)).
		Headless(headless)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b := New(rb, Config{Viewport: &Viewport{Width: viewport.Width, Height: viewport.Height}})
	return rb, b, nil
}
