package reporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dreamup/visionclick/internal/agent"
	"github.com/google/uuid"
)

// Run status values
const (
	StatusResolved = "resolved"
	StatusActed    = "acted"
	StatusFailed   = "failed"
)

// Report represents the record of one locate run
type Report struct {
	// ReportID is a unique identifier for this report
	ReportID string `json:"report_id"`
	// Target is the element description sent to the model
	Target string `json:"target"`
	// Model is the vision model identifier
	Model string `json:"model,omitempty"`
	// Timestamp is when the run started
	Timestamp time.Time `json:"timestamp"`
	// DurationMs is how long the run took, in milliseconds
	DurationMs int64 `json:"duration_ms"`
	// Status is resolved, acted or failed
	Status string `json:"status"`
	// Coordinate is the resolved point (nil when resolution failed)
	Coordinate *agent.Coordinate `json:"coordinate,omitempty"`
	// RawResponse is the model answer as received
	RawResponse string `json:"raw_response,omitempty"`
	// Action describes what was done at the coordinate
	Action *ActionInfo `json:"action,omitempty"`
	// Screenshot describes the image sent to the model
	Screenshot *ScreenshotInfo `json:"screenshot,omitempty"`
	// Error is the failure message, with its category
	Error         string              `json:"error,omitempty"`
	ErrorCategory agent.ErrorCategory `json:"error_category,omitempty"`
	// Metadata contains additional information
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScreenshotInfo contains metadata about a screenshot
type ScreenshotInfo struct {
	// Origin is captured, reused or uploaded
	Origin agent.ScreenshotOrigin `json:"origin"`
	// Filepath is the local path
	Filepath string `json:"filepath,omitempty"`
	// S3URL is the S3 URL (if uploaded)
	S3URL string `json:"s3_url,omitempty"`
	// Width in pixels
	Width int `json:"width"`
	// Height in pixels
	Height int `json:"height"`
}

// ActionInfo records the dispatched action
type ActionInfo struct {
	Mode  agent.ActionMode `json:"mode"`
	Typed bool             `json:"typed"`
}

// ReportBuilder helps construct reports
type ReportBuilder struct {
	target    string
	startTime time.Time
	result    *agent.LocateResult
	action    *ActionInfo
	err       error
	metadata  map[string]string
}

// NewReportBuilder creates a new report builder
func NewReportBuilder(target string) *ReportBuilder {
	return &ReportBuilder{
		target:    target,
		startTime: time.Now(),
		metadata:  make(map[string]string),
	}
}

// SetResult sets the locate result
func (rb *ReportBuilder) SetResult(result *agent.LocateResult) {
	rb.result = result
}

// SetAction records the dispatched action
func (rb *ReportBuilder) SetAction(mode agent.ActionMode, text string) {
	rb.action = &ActionInfo{Mode: mode, Typed: text != ""}
}

// SetError records the run failure
func (rb *ReportBuilder) SetError(err error) {
	rb.err = err
}

// AddMetadata adds a metadata key-value pair
func (rb *ReportBuilder) AddMetadata(key, value string) {
	rb.metadata[key] = value
}

// Build constructs the final report
func (rb *ReportBuilder) Build() *Report {
	report := &Report{
		ReportID:   uuid.New().String(),
		Target:     rb.target,
		Timestamp:  rb.startTime,
		DurationMs: time.Since(rb.startTime).Milliseconds(),
		Metadata:   rb.metadata,
	}

	if rb.result != nil {
		if rb.result.Resolution != nil {
			coord := rb.result.Coordinate()
			report.Coordinate = &coord
			report.RawResponse = rb.result.Resolution.Raw
			report.Model = rb.result.Resolution.Model
		}
		if shot := rb.result.Screenshot; shot != nil {
			report.Screenshot = &ScreenshotInfo{
				Origin:   shot.Origin,
				Filepath: shot.Filepath,
				Width:    shot.Width,
				Height:   shot.Height,
			}
		}
	}

	switch {
	case rb.err != nil:
		report.Status = StatusFailed
		report.Error = rb.err.Error()
		report.ErrorCategory = agent.CategoryOf(rb.err)
		var catErr *agent.CategorizedError
		if report.RawResponse == "" && errors.As(rb.err, &catErr) {
			report.RawResponse = catErr.Raw
		}
	case rb.action != nil:
		report.Status = StatusActed
		report.Action = rb.action
	default:
		report.Status = StatusResolved
	}

	return report
}

// SaveToFile saves the report to a JSON file
func (r *Report) SaveToFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// SaveToTemp saves the report to a temporary file
func (r *Report) SaveToTemp() (string, error) {
	filename := fmt.Sprintf("locate_report_%s_%s.json",
		time.Now().Format("20060102_150405"),
		r.ReportID[:8],
	)

	path := filepath.Join(os.TempDir(), filename)
	if err := r.SaveToFile(path); err != nil {
		return "", err
	}

	return path, nil
}
