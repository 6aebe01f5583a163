package agent

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	// Decoders registered for dimension probing
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go.uber.org/zap"
)

// Fallback resolution used when the image header cannot be probed
const (
	FallbackWidth  = 1920
	FallbackHeight = 1080
)

// ErrProbeUnavailable signals that no decoder can read the image header.
// It triggers the fallback resolution instead of failing the run.
var ErrProbeUnavailable = errors.New("image dimension probing unavailable")

// Dimensions is the measured size of an image
type Dimensions struct {
	Width  int
	Height int
	Format string
}

// DimensionProber reads image dimensions without decoding the pixels
type DimensionProber interface {
	Probe(r io.Reader) (Dimensions, error)
}

// HeaderProber probes dimensions with the registered image decoders
type HeaderProber struct{}

// Probe implements DimensionProber
func (HeaderProber) Probe(r io.Reader) (Dimensions, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Dimensions{}, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
		}
		return Dimensions{}, err
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// probeDimensions measures data with prober, falling back to 1920x1080 when the
// prober is missing or reports that it cannot handle the format.
func probeDimensions(prober DimensionProber, data []byte, logger *zap.Logger) (Dimensions, error) {
	if prober == nil {
		logger.Warn("No dimension prober configured, using fallback resolution",
			zap.Int("width", FallbackWidth), zap.Int("height", FallbackHeight))
		return Dimensions{Width: FallbackWidth, Height: FallbackHeight}, nil
	}

	dims, err := prober.Probe(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, ErrProbeUnavailable) {
			logger.Warn("Image dimensions unavailable, using fallback resolution",
				zap.Error(err), zap.Int("width", FallbackWidth), zap.Int("height", FallbackHeight))
			return Dimensions{Width: FallbackWidth, Height: FallbackHeight}, nil
		}
		return Dimensions{}, fmt.Errorf("failed to read image dimensions: %w", err)
	}

	if dims.Width <= 0 || dims.Height <= 0 {
		return Dimensions{}, fmt.Errorf("invalid image dimensions %dx%d", dims.Width, dims.Height)
	}
	return dims, nil
}

// readImageFile reads path and reports whether it exists
func readImageFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
