package agent

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Default browser viewport
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// markerRingRadius is the radius in CSS pixels of the double-click marker ring
const markerRingRadius = 15

// BrowserManager manages browser lifecycle and navigation
type BrowserManager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	width       int
	height      int
}

// NewBrowserManager creates a new browser manager with the given viewport
func NewBrowserManager(headless bool, width, height int) (*BrowserManager, error) {
	if width <= 0 || height <= 0 {
		width, height = DefaultViewportWidth, DefaultViewportHeight
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless), // Only disable GPU in headless mode
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return &BrowserManager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		width:       width,
		height:      height,
	}, nil
}

// Close shuts down the browser and cleans up resources
func (bm *BrowserManager) Close() {
	if bm.cancel != nil {
		bm.cancel()
	}
	if bm.allocCancel != nil {
		bm.allocCancel()
	}
}

// GetContext returns the browser context for running chromedp tasks
func (bm *BrowserManager) GetContext() context.Context {
	return bm.ctx
}

// NavigateWithTimeout navigates to url, sets the viewport, and waits for the body
func (bm *BrowserManager) NavigateWithTimeout(url string, timeout time.Duration) error {
	timeoutCtx, timeoutCancel := context.WithTimeout(bm.ctx, timeout)
	defer timeoutCancel()

	err := chromedp.Run(timeoutCtx,
		chromedp.EmulateViewport(int64(bm.width), int64(bm.height)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if err == context.DeadlineExceeded {
			return fmt.Errorf("timeout after %v while loading %s", timeout, url)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Capturer returns a Capturer that screenshots the current viewport
func (bm *BrowserManager) Capturer() Capturer {
	return &browserCapturer{ctx: bm.ctx}
}

// Driver returns a Driver that dispatches input events into the page
func (bm *BrowserManager) Driver() Driver {
	return &BrowserDriver{ctx: bm.ctx}
}

type browserCapturer struct {
	ctx context.Context
}

// Capture implements Capturer
func (c *browserCapturer) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf []byte
	if err := chromedp.Run(c.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode browser screenshot: %w", err)
	}
	return img, nil
}

// BrowserDriver performs pointer and keyboard actions inside a chromedp page.
// Coordinates are CSS pixels of the viewport.
type BrowserDriver struct {
	ctx context.Context
}

// MoveTo implements Driver
func (d *BrowserDriver) MoveTo(ctx context.Context, x, y int) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, float64(x), float64(y)).Do(ctx)
	}))
}

// Click implements Driver
func (d *BrowserDriver) Click(ctx context.Context, x, y int) error {
	if err := d.MoveTo(ctx, x, y); err != nil {
		return err
	}
	return d.run(ctx, chromedp.MouseClickXY(float64(x), float64(y)))
}

// DoubleClick implements Driver
func (d *BrowserDriver) DoubleClick(ctx context.Context, x, y int) error {
	return d.run(ctx, chromedp.MouseClickXY(float64(x), float64(y), chromedp.ClickCount(2)))
}

// ShowMarker draws a red ring over the page at (x, y) and removes it after duration
func (d *BrowserDriver) ShowMarker(ctx context.Context, x, y int, duration time.Duration) error {
	script := fmt.Sprintf(`
(function() {
    const r = %d;
    const el = document.createElement('div');
    el.style.cssText = 'position:fixed;pointer-events:none;z-index:2147483647;' +
        'border:2px solid red;border-radius:50%%;' +
        'left:' + (%d - r) + 'px;top:' + (%d - r) + 'px;' +
        'width:' + (2 * r) + 'px;height:' + (2 * r) + 'px;';
    document.body.appendChild(el);
    setTimeout(function() { el.remove(); }, %d);
    return true;
})();
`, markerRingRadius, x, y, duration.Milliseconds())

	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("failed to draw marker: %w", err)
	}
	return sleepCtx(ctx, duration)
}

// PressKey implements Driver
func (d *BrowserDriver) PressKey(ctx context.Context, key string) error {
	if key == KeyEnter {
		key = kb.Enter
	}
	return d.run(ctx, chromedp.KeyEvent(key))
}

// TypeRune implements Driver
func (d *BrowserDriver) TypeRune(ctx context.Context, r rune) error {
	return d.run(ctx, chromedp.KeyEvent(string(r)))
}

// run executes actions on the browser context, honouring the caller's cancellation
func (d *BrowserDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(d.ctx, actions...)
}
