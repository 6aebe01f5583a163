package agent

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScreenshotOrigin tells whether an image was freshly captured or reused from disk
type ScreenshotOrigin string

const (
	// OriginCaptured marks an image grabbed from the screen during this run
	OriginCaptured ScreenshotOrigin = "captured"
	// OriginReused marks an image read verbatim from an existing file
	OriginReused ScreenshotOrigin = "reused"
	// OriginUploaded marks an image received over the API
	OriginUploaded ScreenshotOrigin = "uploaded"
)

// DefaultMIMEType is used whenever the image format cannot be told apart
const DefaultMIMEType = "image/png"

// Screenshot represents an image sent to the vision model, with metadata
type Screenshot struct {
	// Filepath is the local path of the image (empty for uploaded images)
	Filepath string
	// Origin indicates where the bytes came from
	Origin ScreenshotOrigin
	// Timestamp records when the image was captured or loaded
	Timestamp time.Time
	// Data contains the encoded image bytes
	Data []byte
	// Format is the image format name ("png", "jpeg", ...)
	Format string
	// Width is the image width in pixels
	Width int
	// Height is the image height in pixels
	Height int
}

// MIMEType returns the MIME type matching the image format
func (s *Screenshot) MIMEType() string {
	if s.Format == "" {
		return DefaultMIMEType
	}
	return "image/" + s.Format
}

// SaveTo writes the screenshot bytes to path and records it as the screenshot's location
func (s *Screenshot) SaveTo(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, s.Data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot to %s: %w", path, err)
	}

	s.Filepath = path
	return nil
}

// EncodedPayload is the transport form of a screenshot: base64 text plus MIME type.
// It is built once from a single screenshot and never modified afterwards.
type EncodedPayload struct {
	data     string
	mimeType string
}

// EncodeScreenshot builds the base64 payload for a screenshot
func EncodeScreenshot(s *Screenshot) (*EncodedPayload, error) {
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("screenshot data is empty")
	}

	return &EncodedPayload{
		data:     base64.StdEncoding.EncodeToString(s.Data),
		mimeType: s.MIMEType(),
	}, nil
}

// Base64 returns the encoded image text
func (p *EncodedPayload) Base64() string {
	return p.data
}

// MIMEType returns the MIME type tag of the payload
func (p *EncodedPayload) MIMEType() string {
	return p.mimeType
}

// DataURL renders the payload as an inline data reference
func (p *EncodedPayload) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.mimeType, p.data)
}

// Decode returns the original image bytes
func (p *EncodedPayload) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.data)
}
