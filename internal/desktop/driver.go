package desktop

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/go-vgo/robotgo"
)

const (
	// markerRadius is the radius in pixels of the pointer circle drawn as a marker
	markerRadius = 15
	markerSteps  = 24
	markerLap    = 400 * time.Millisecond
)

// Driver moves the real OS pointer and sends keystrokes with robotgo
type Driver struct {
	// MoveDelay approximates a short human-like pointer travel
	MoveDelay time.Duration
}

// NewDriver creates a desktop driver
func NewDriver() *Driver {
	return &Driver{MoveDelay: 100 * time.Millisecond}
}

// MoveTo implements agent.Driver
func (d *Driver) MoveTo(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(x, y)
	return pause(ctx, d.MoveDelay)
}

// Click implements agent.Driver
func (d *Driver) Click(ctx context.Context, x, y int) error {
	if err := d.MoveTo(ctx, x, y); err != nil {
		return err
	}
	robotgo.Click("left", false)
	return nil
}

// DoubleClick implements agent.Driver
func (d *Driver) DoubleClick(ctx context.Context, x, y int) error {
	if err := d.MoveTo(ctx, x, y); err != nil {
		return err
	}
	robotgo.Click("left", true)
	return nil
}

// ShowMarker traces a small circle around (x, y) with the pointer for duration, then
// returns to the center. No overlay window is created.
func (d *Driver) ShowMarker(ctx context.Context, x, y int, duration time.Duration) error {
	path := circlePath(x, y, markerRadius, markerSteps)

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		for _, p := range path {
			robotgo.Move(p.X, p.Y)
			if err := pause(ctx, markerLap/markerSteps); err != nil {
				return err
			}
		}
	}

	robotgo.Move(x, y)
	return nil
}

// PressKey implements agent.Driver
func (d *Driver) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key %s: %w", key, err)
	}
	return nil
}

// TypeRune implements agent.Driver
func (d *Driver) TypeRune(ctx context.Context, r rune) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.TypeStr(string(r))
	return nil
}

// circlePath returns steps points on a circle of radius around (x, y)
func circlePath(x, y, radius, steps int) []image.Point {
	points := make([]image.Point, 0, steps)
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		points = append(points, image.Point{
			X: x + int(math.Round(float64(radius)*math.Cos(angle))),
			Y: y + int(math.Round(float64(radius)*math.Sin(angle))),
		})
	}
	return points
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
