package reporter

import (
	"github.com/dreamup/visionclick/internal/db"
)

// RunRecord converts the report into a run history row
func (r *Report) RunRecord() *db.RunRecord {
	rec := &db.RunRecord{
		ID:          r.ReportID,
		Target:      r.Target,
		Model:       r.Model,
		Status:      r.Status,
		RawResponse: r.RawResponse,
		Error:       r.Error,
		DurationMs:  r.DurationMs,
		CreatedAt:   r.Timestamp,
	}

	if r.Coordinate != nil {
		x, y := r.Coordinate.X, r.Coordinate.Y
		rec.X, rec.Y = &x, &y
	}
	if r.Action != nil {
		rec.Action = string(r.Action.Mode)
	}
	if r.Screenshot != nil {
		rec.ScreenshotPath = r.Screenshot.Filepath
		rec.Width = r.Screenshot.Width
		rec.Height = r.Screenshot.Height
	}
	return rec
}
