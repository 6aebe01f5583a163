package agent

import (
	"context"
	"image"
)

// Capturer grabs the current contents of the screen.
// The desktop implementation lives in internal/desktop; the browser one in browser.go.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
}
