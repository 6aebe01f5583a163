package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LocateResult is everything learned while resolving one target
type LocateResult struct {
	Target     string
	Prompt     string
	Screenshot *Screenshot
	Resolution *Resolution
}

// Coordinate returns the resolved coordinate
func (r *LocateResult) Coordinate() Coordinate {
	return r.Resolution.Coordinate
}

// Locator runs the forward pipeline: prepare image, build prompt, resolve coordinate
type Locator struct {
	preparer *ImagePreparer
	resolver *VisionResolver
	logger   *zap.Logger
}

// NewLocator creates a locator. The resolver is built first by the caller, so a
// missing credential fails before anything is captured.
func NewLocator(preparer *ImagePreparer, resolver *VisionResolver, logger *zap.Logger) *Locator {
	return &Locator{
		preparer: preparer,
		resolver: resolver,
		logger:   logger.Named("locator"),
	}
}

// Locate captures (or reuses existingPath) and resolves target to a coordinate
func (l *Locator) Locate(ctx context.Context, target, existingPath string) (*LocateResult, error) {
	if err := l.validate(target); err != nil {
		return nil, err
	}

	shot, payload, err := l.preparer.Prepare(ctx, existingPath)
	if err != nil {
		return nil, err
	}

	return l.resolve(ctx, target, shot, payload)
}

// LocateImage resolves target against image bytes supplied by the caller
func (l *Locator) LocateImage(ctx context.Context, target string, data []byte) (*LocateResult, error) {
	if err := l.validate(target); err != nil {
		return nil, err
	}

	shot, payload, err := l.preparer.PrepareBytes(data)
	if err != nil {
		return nil, err
	}

	return l.resolve(ctx, target, shot, payload)
}

// Run locates target and, only when that succeeds, dispatches the intent
func (l *Locator) Run(ctx context.Context, target, existingPath string, dispatcher *Dispatcher, intent ActionIntent) (*LocateResult, error) {
	result, err := l.Locate(ctx, target, existingPath)
	if err != nil {
		return nil, err
	}

	if err := dispatcher.Dispatch(ctx, result.Coordinate(), intent); err != nil {
		return result, err
	}
	return result, nil
}

func (l *Locator) validate(target string) error {
	if l.resolver == nil {
		return NewConfigError("vision resolver not configured")
	}
	if strings.TrimSpace(target) == "" {
		return NewConfigError("target description is required")
	}
	return nil
}

func (l *Locator) resolve(ctx context.Context, target string, shot *Screenshot, payload *EncodedPayload) (*LocateResult, error) {
	prompt := BuildLocalizationPrompt(target, shot.Width, shot.Height, l.logger)

	resolution, err := l.resolver.Resolve(ctx, payload, prompt)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Coordinates resolved",
		zap.String("target", target),
		zap.Int("x", resolution.Coordinate.X),
		zap.Int("y", resolution.Coordinate.Y))

	return &LocateResult{
		Target:     target,
		Prompt:     prompt,
		Screenshot: shot,
		Resolution: resolution,
	}, nil
}
