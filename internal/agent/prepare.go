package agent

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDimension caps the larger side of a fresh capture
	DefaultMaxDimension = 2000
	// DefaultScreenshotPath is where fresh captures are persisted
	DefaultScreenshotPath = "screenshot.png"
)

// ImagePreparer captures or loads the screen image and encodes it for transport
type ImagePreparer struct {
	capturer       Capturer
	prober         DimensionProber
	maxDimension   int
	screenshotPath string
	logger         *zap.Logger
}

// PreparerOption configures an ImagePreparer
type PreparerOption func(*ImagePreparer)

// WithMaxDimension sets the downscale limit for fresh captures
func WithMaxDimension(limit int) PreparerOption {
	return func(p *ImagePreparer) {
		if limit > 0 {
			p.maxDimension = limit
		}
	}
}

// WithScreenshotPath sets where fresh captures are written
func WithScreenshotPath(path string) PreparerOption {
	return func(p *ImagePreparer) {
		if path != "" {
			p.screenshotPath = path
		}
	}
}

// WithProber replaces the dimension prober; nil forces the fallback resolution
func WithProber(prober DimensionProber) PreparerOption {
	return func(p *ImagePreparer) {
		p.prober = prober
	}
}

// NewImagePreparer creates a preparer around the given capturer
func NewImagePreparer(capturer Capturer, logger *zap.Logger, opts ...PreparerOption) *ImagePreparer {
	p := &ImagePreparer{
		capturer:       capturer,
		prober:         HeaderProber{},
		maxDimension:   DefaultMaxDimension,
		screenshotPath: DefaultScreenshotPath,
		logger:         logger.Named("preparer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare returns the screenshot to send and its base64 payload.
// An existing file at existingPath is reused byte for byte; otherwise the screen is
// captured, downscaled if needed, and persisted as PNG.
func (p *ImagePreparer) Prepare(ctx context.Context, existingPath string) (*Screenshot, *EncodedPayload, error) {
	var shot *Screenshot
	var err error

	if existingPath != "" {
		shot, err = p.loadExisting(existingPath)
		if err != nil {
			return nil, nil, err
		}
	}

	if shot == nil {
		shot, err = p.captureFresh(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	payload, err := EncodeScreenshot(shot)
	if err != nil {
		return nil, nil, NewCaptureError("failed to encode screenshot", err)
	}
	return shot, payload, nil
}

// PrepareBytes wraps image bytes received from a caller, probing their dimensions
func (p *ImagePreparer) PrepareBytes(data []byte) (*Screenshot, *EncodedPayload, error) {
	if len(data) == 0 {
		return nil, nil, NewConfigError("image data is empty")
	}

	dims, err := probeDimensions(p.prober, data, p.logger)
	if err != nil {
		return nil, nil, NewCaptureError("failed to probe uploaded image", err)
	}

	shot := &Screenshot{
		Origin:    OriginUploaded,
		Timestamp: time.Now(),
		Data:      data,
		Format:    dims.Format,
		Width:     dims.Width,
		Height:    dims.Height,
	}

	payload, err := EncodeScreenshot(shot)
	if err != nil {
		return nil, nil, NewCaptureError("failed to encode screenshot", err)
	}
	return shot, payload, nil
}

// loadExisting returns nil without error when path does not exist
func (p *ImagePreparer) loadExisting(path string) (*Screenshot, error) {
	data, ok, err := readImageFile(path)
	if err != nil {
		return nil, NewCaptureError(fmt.Sprintf("failed to read screenshot %s", path), err)
	}
	if !ok {
		p.logger.Info("Screenshot not found, capturing a new one", zap.String("path", path))
		return nil, nil
	}

	dims, err := probeDimensions(p.prober, data, p.logger)
	if err != nil {
		return nil, NewCaptureError(fmt.Sprintf("failed to probe screenshot %s", path), err)
	}

	p.logger.Info("Reusing existing screenshot",
		zap.String("path", path), zap.Int("width", dims.Width), zap.Int("height", dims.Height))

	return &Screenshot{
		Filepath:  path,
		Origin:    OriginReused,
		Timestamp: time.Now(),
		Data:      data,
		Format:    dims.Format,
		Width:     dims.Width,
		Height:    dims.Height,
	}, nil
}

func (p *ImagePreparer) captureFresh(ctx context.Context) (*Screenshot, error) {
	if p.capturer == nil {
		return nil, NewCaptureError("no screen capturer configured", nil)
	}

	img, err := p.capturer.Capture(ctx)
	if err != nil {
		return nil, NewCaptureError("failed to capture screen", err)
	}

	img = downscale(img, p.maxDimension)
	bounds := img.Bounds()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, NewCaptureError("failed to encode screenshot as PNG", err)
	}

	shot := &Screenshot{
		Origin:    OriginCaptured,
		Timestamp: time.Now(),
		Data:      buf.Bytes(),
		Format:    "png",
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}

	if err := shot.SaveTo(p.screenshotPath); err != nil {
		return nil, NewStorageError("failed to persist screenshot", err)
	}

	p.logger.Info("Screenshot saved",
		zap.String("path", shot.Filepath), zap.Int("width", shot.Width), zap.Int("height", shot.Height))
	return shot, nil
}

// ScaledSize returns the size after fitting the larger side into maxDim.
// Sizes already within the limit are returned unchanged.
func ScaledSize(width, height, maxDim int) (int, int) {
	larger := max(width, height)
	if maxDim <= 0 || larger <= maxDim {
		return width, height
	}
	return int(float64(width) * float64(maxDim) / float64(larger)),
		int(float64(height) * float64(maxDim) / float64(larger))
}

// downscale resizes img uniformly when its larger side exceeds maxDim
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxDim)
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
