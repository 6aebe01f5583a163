package desktop

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Capturer captures a full display of the local machine
type Capturer struct {
	// Display is the index of the display to capture (0 is primary)
	Display int
}

// NewCapturer creates a capturer for the primary display
func NewCapturer() *Capturer {
	return &Capturer{Display: 0}
}

// Capture implements agent.Capturer
func (c *Capturer) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n := screenshot.NumActiveDisplays(); n <= c.Display {
		return nil, fmt.Errorf("display %d not available (%d active)", c.Display, n)
	}

	bounds := screenshot.GetDisplayBounds(c.Display)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display %d: %w", c.Display, err)
	}
	return img, nil
}
