package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ActionMode represents the pointer action performed at a resolved coordinate
type ActionMode string

const (
	// ActionHover moves the pointer without clicking
	ActionHover ActionMode = "hover"
	// ActionClick moves the pointer and clicks once
	ActionClick ActionMode = "click"
	// ActionDoubleClick moves, double-clicks, and shows a transient marker
	ActionDoubleClick ActionMode = "double-click"
)

// KeyEnter is the key pressed for each newline in typed text
const KeyEnter = "enter"

// DefaultMarkerDuration is how long the double-click marker stays visible
const DefaultMarkerDuration = 600 * time.Millisecond

// ParseActionMode converts a flag value to an ActionMode
func ParseActionMode(s string) (ActionMode, error) {
	switch ActionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ActionHover, "":
		return ActionHover, nil
	case ActionClick:
		return ActionClick, nil
	case ActionDoubleClick, "doubleclick", "double":
		return ActionDoubleClick, nil
	default:
		return "", fmt.Errorf("unknown action %q (want hover, click or double-click)", s)
	}
}

// ActionIntent is what the caller wants done at the coordinate
type ActionIntent struct {
	// Mode is the pointer action
	Mode ActionMode
	// Text is typed after the pointer action; "\n" presses Enter
	Text string
	// MarkerDuration is how long the double-click marker is shown
	MarkerDuration time.Duration
}

// Driver performs OS or browser level pointer and keyboard operations
type Driver interface {
	MoveTo(ctx context.Context, x, y int) error
	// Click moves to (x, y) and clicks once
	Click(ctx context.Context, x, y int) error
	DoubleClick(ctx context.Context, x, y int) error
	ShowMarker(ctx context.Context, x, y int, d time.Duration) error
	PressKey(ctx context.Context, key string) error
	TypeRune(ctx context.Context, r rune) error
}

// Dispatcher turns a resolved coordinate and an intent into driver calls
type Dispatcher struct {
	driver Driver
	logger *zap.Logger
	// SettleDelay is waited before typing starts
	SettleDelay time.Duration
	// KeyInterval is waited between typed characters
	KeyInterval time.Duration
}

// NewDispatcher creates a dispatcher with the default typing cadence
func NewDispatcher(driver Driver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		driver:      driver,
		logger:      logger.Named("dispatcher"),
		SettleDelay: 100 * time.Millisecond,
		KeyInterval: 40 * time.Millisecond,
	}
}

// Dispatch performs exactly one pointer action at coord, then types intent.Text
func (d *Dispatcher) Dispatch(ctx context.Context, coord Coordinate, intent ActionIntent) error {
	x, y := coord.X, coord.Y

	switch intent.Mode {
	case ActionHover, "":
		if err := d.driver.MoveTo(ctx, x, y); err != nil {
			return NewActionError("hover failed", err)
		}
		d.logger.Info("Hover", zap.Int("x", x), zap.Int("y", y))

	case ActionClick:
		if err := d.driver.Click(ctx, x, y); err != nil {
			return NewActionError("click failed", err)
		}
		d.logger.Info("Click", zap.Int("x", x), zap.Int("y", y))

	case ActionDoubleClick:
		if err := d.driver.MoveTo(ctx, x, y); err != nil {
			return NewActionError("hover failed", err)
		}
		if err := d.driver.DoubleClick(ctx, x, y); err != nil {
			return NewActionError("double-click failed", err)
		}
		d.logger.Info("Double-click", zap.Int("x", x), zap.Int("y", y))

		duration := intent.MarkerDuration
		if duration <= 0 {
			duration = DefaultMarkerDuration
		}
		if err := d.driver.ShowMarker(ctx, x, y, duration); err != nil {
			// The marker is visual feedback only
			d.logger.Warn("Marker unavailable", zap.Error(err))
		}

	default:
		return NewActionError(fmt.Sprintf("unknown action mode %q", intent.Mode), nil)
	}

	return d.typeText(ctx, intent.Text)
}

func (d *Dispatcher) typeText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		if text != "" {
			d.logger.Info("Blank text, nothing typed")
		}
		return nil
	}

	if err := sleepCtx(ctx, d.SettleDelay); err != nil {
		return NewActionError("typing interrupted", err)
	}

	for i, r := range text {
		if i > 0 {
			if err := sleepCtx(ctx, d.KeyInterval); err != nil {
				return NewActionError("typing interrupted", err)
			}
		}

		var err error
		if r == '\n' {
			err = d.driver.PressKey(ctx, KeyEnter)
		} else {
			err = d.driver.TypeRune(ctx, r)
		}
		if err != nil {
			return NewActionError(fmt.Sprintf("failed to type %q", r), err)
		}
	}

	d.logger.Info("Text typed", zap.String("text", text))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
