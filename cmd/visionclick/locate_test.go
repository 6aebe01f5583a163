package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dreamup/visionclick/internal/agent"
	"github.com/dreamup/visionclick/internal/reporter"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVisionAPI answers every chat completion with answer and keeps the request bodies
type fakeVisionAPI struct {
	mu     sync.Mutex
	bodies []string
	url    string
}

func newFakeVisionAPI(t *testing.T, answer string) *fakeVisionAPI {
	t.Helper()
	f := &fakeVisionAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": answer},
					"finish_reason": "stop",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	f.url = srv.URL + "/v1"
	return f
}

func (f *fakeVisionAPI) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

type fakeCapturer struct{ calls int }

func (c *fakeCapturer) Capture(ctx context.Context) (image.Image, error) {
	c.calls++
	return image.NewGray(image.Rect(0, 0, 64, 48)), nil
}

type recordingDriver struct {
	calls []string
}

func (d *recordingDriver) MoveTo(ctx context.Context, x, y int) error {
	d.calls = append(d.calls, fmt.Sprintf("move %d,%d", x, y))
	return nil
}

func (d *recordingDriver) Click(ctx context.Context, x, y int) error {
	d.calls = append(d.calls, fmt.Sprintf("click %d,%d", x, y))
	return nil
}

func (d *recordingDriver) DoubleClick(ctx context.Context, x, y int) error {
	d.calls = append(d.calls, fmt.Sprintf("double-click %d,%d", x, y))
	return nil
}

func (d *recordingDriver) ShowMarker(ctx context.Context, x, y int, duration time.Duration) error {
	d.calls = append(d.calls, fmt.Sprintf("marker %d,%d %s", x, y, duration))
	return nil
}

func (d *recordingDriver) PressKey(ctx context.Context, key string) error {
	d.calls = append(d.calls, "key "+key)
	return nil
}

func (d *recordingDriver) TypeRune(ctx context.Context, r rune) error {
	d.calls = append(d.calls, "type "+string(r))
	return nil
}

// locateHarness holds the fakes behind one runLocate call
type locateHarness struct {
	api          *fakeVisionAPI
	capturer     *fakeCapturer
	driver       *recordingDriver
	backendCalls int
	dir          string
}

// newLocateHarness resets the locate flags and points the CLI at fakes
func newLocateHarness(t *testing.T, answer string) *locateHarness {
	t.Helper()
	h := &locateHarness{
		api:      newFakeVisionAPI(t, answer),
		capturer: &fakeCapturer{},
		driver:   &recordingDriver{},
		dir:      t.TempDir(),
	}

	prevCfg, prevBackend := cfg, selectBackend
	t.Cleanup(func() {
		cfg, selectBackend = prevCfg, prevBackend
		target, existingShot, typeText, actionName = "", "", "", string(agent.ActionHover)
		testFirefox, resolveOnly, uploadReport = false, false, false
		browserURL, reportPath = "", ""
	})

	cfg = &Config{
		APIKey:         "sk-test",
		BaseURL:        h.api.url,
		Model:          "gpt-4o",
		MaxDimension:   agent.DefaultMaxDimension,
		ScreenshotPath: filepath.Join(h.dir, "screenshot.png"),
		MarkerDuration: agent.DefaultMarkerDuration,
	}
	selectBackend = func() (agent.Capturer, agent.Driver, func(), error) {
		h.backendCalls++
		return h.capturer, h.driver, func() {}, nil
	}

	target, existingShot, typeText, actionName = "", "", "", string(agent.ActionHover)
	testFirefox, resolveOnly, uploadReport = false, false, false
	browserURL = ""
	reportPath = filepath.Join(h.dir, "report.json")
	return h
}

func (h *locateHarness) writeScreenshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(h.dir, "existing.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 800, 600))))
	return path
}

func (h *locateHarness) report(t *testing.T) reporter.Report {
	t.Helper()
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var r reporter.Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func runLocateCmd() error {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return runLocate(cmd, nil)
}

func TestRunLocate_ResolveOnlyWithExistingScreenshot(t *testing.T) {
	h := newLocateHarness(t, "x:640 y:480 center of the blue button")
	target = "Download button"
	actionName = "click"
	resolveOnly = true
	existingShot = h.writeScreenshot(t)

	require.NoError(t, runLocateCmd())

	assert.Equal(t, 0, h.capturer.calls, "existing screenshot is reused")
	assert.Empty(t, h.driver.calls, "resolve-only never moves the pointer")
	require.Len(t, h.api.requests(), 1)
	assert.Contains(t, h.api.requests()[0], "Download button")
	assert.Contains(t, h.api.requests()[0], "800x600")

	r := h.report(t)
	assert.Equal(t, reporter.StatusResolved, r.Status)
	require.NotNil(t, r.Coordinate)
	assert.Equal(t, agent.Coordinate{X: 640, Y: 480}, *r.Coordinate)
}

func TestRunLocate_FirefoxPreset(t *testing.T) {
	h := newLocateHarness(t, "x:30 y:700 the Firefox icon in the dock")
	testFirefox = true
	target = "Download button"
	actionName = "hover"
	typeText = `ignored\n`
	existingShot = h.writeScreenshot(t)

	require.NoError(t, runLocateCmd())

	require.Len(t, h.api.requests(), 1)
	assert.Contains(t, h.api.requests()[0], "Firefox icon")
	assert.NotContains(t, h.api.requests()[0], "Download button")

	assert.Equal(t, []string{
		"move 30,700",
		"double-click 30,700",
		"marker 30,700 10s",
	}, h.driver.calls, "preset double-clicks, shows a 10s marker and types nothing")

	r := h.report(t)
	assert.Equal(t, reporter.StatusActed, r.Status)
	assert.Equal(t, "Firefox icon", r.Target)
	require.NotNil(t, r.Action)
	assert.Equal(t, agent.ActionDoubleClick, r.Action.Mode)
	assert.False(t, r.Action.Typed)
}

func TestRunLocate_ClickAndType(t *testing.T) {
	h := newLocateHarness(t, "x:5 y:6")
	target = "Search field"
	actionName = "click"
	typeText = `hi\n`
	existingShot = h.writeScreenshot(t)

	require.NoError(t, runLocateCmd())
	assert.Equal(t, []string{"click 5,6", "type h", "type i", "key enter"}, h.driver.calls)
}

func TestRunLocate_MissingTarget(t *testing.T) {
	h := newLocateHarness(t, "x:1 y:1")

	err := runLocateCmd()
	require.Error(t, err)
	assert.Equal(t, agent.ErrorCategoryConfig, agent.CategoryOf(err))
	assert.Equal(t, 0, h.backendCalls)
	assert.Empty(t, h.api.requests())
}

func TestRunLocate_UnknownAction(t *testing.T) {
	h := newLocateHarness(t, "x:1 y:1")
	target = "Download button"
	actionName = "drag"

	err := runLocateCmd()
	require.Error(t, err)
	assert.Equal(t, agent.ErrorCategoryConfig, agent.CategoryOf(err))
	assert.Equal(t, 0, h.backendCalls)
}

func TestRunLocate_MissingAPIKeyStopsBeforeBackend(t *testing.T) {
	h := newLocateHarness(t, "x:1 y:1")
	cfg.APIKey = ""
	target = "Download button"

	err := runLocateCmd()
	require.Error(t, err)
	assert.Equal(t, agent.ErrorCategoryConfig, agent.CategoryOf(err))
	assert.Equal(t, 0, h.backendCalls, "no backend is opened without credentials")
	assert.Equal(t, 0, h.capturer.calls)
	assert.Empty(t, h.api.requests())
}

func TestRunLocate_ParseFailureTakesNoAction(t *testing.T) {
	h := newLocateHarness(t, "I cannot find that element.")
	target = "Download button"
	actionName = "click"
	existingShot = h.writeScreenshot(t)

	err := runLocateCmd()
	require.Error(t, err)
	assert.Equal(t, agent.ErrorCategoryParse, agent.CategoryOf(err))
	assert.Empty(t, h.driver.calls)

	r := h.report(t)
	assert.Equal(t, reporter.StatusFailed, r.Status)
	assert.Equal(t, "I cannot find that element.", r.RawResponse)
}
