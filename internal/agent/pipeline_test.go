package agent

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLocator(t *testing.T, capturer Capturer, baseURL string) *Locator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	resolver, err := NewVisionResolver(ResolverConfig{APIKey: "sk-test", BaseURL: baseURL}, logger)
	require.NoError(t, err)
	preparer := NewImagePreparer(capturer, logger, WithScreenshotPath(filepath.Join(t.TempDir(), "screenshot.png")))
	return NewLocator(preparer, resolver, logger)
}

func TestRun_EndToEnd(t *testing.T) {
	for _, mode := range []ActionMode{ActionHover, ActionClick} {
		t.Run(string(mode), func(t *testing.T) {
			fake := newFakeOpenAI(t, "x:640 y:480 — center of the blue button")
			capturer := &fakeCapturer{width: 1280, height: 720}
			driver := &recordingDriver{}

			locator := newTestLocator(t, capturer, fake.URL())
			result, err := locator.Run(context.Background(), "Download button", "",
				newTestDispatcher(t, driver), ActionIntent{Mode: mode})
			require.NoError(t, err)

			assert.Equal(t, Coordinate{X: 640, Y: 480}, result.Coordinate())
			assert.Equal(t, 1, capturer.calls)
			require.Len(t, driver.pointerCalls(), 1, "exactly one pointer action")
			assert.Contains(t, driver.pointerCalls()[0], "640,480")

			assert.Contains(t, result.Prompt, "Download button")
			assert.Contains(t, result.Prompt, "1280x720")

			parts := userParts(t, fake.Requests()[0])
			assert.Equal(t, result.Prompt, parts[0].Text)
		})
	}
}

func TestRun_MissingCredentialStopsBeforeCapture(t *testing.T) {
	logger := zaptest.NewLogger(t)
	capturer := &fakeCapturer{width: 100, height: 100}

	resolver, err := NewVisionResolver(ResolverConfig{}, logger)
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryConfig, CategoryOf(err))

	// A locator without a resolver refuses to run
	driver := &recordingDriver{}
	locator := NewLocator(NewImagePreparer(capturer, logger), resolver, logger)
	_, err = locator.Run(context.Background(), "Download button", "", newTestDispatcher(t, driver), ActionIntent{})
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryConfig, CategoryOf(err))

	assert.Equal(t, 0, capturer.calls, "capture must not occur")
	assert.Empty(t, driver.calls)
}

func TestLocate_EmptyTarget(t *testing.T) {
	fake := newFakeOpenAI(t, "x:1 y:1")
	capturer := &fakeCapturer{width: 100, height: 100}
	locator := newTestLocator(t, capturer, fake.URL())

	for _, target := range []string{"", "   "} {
		_, err := locator.Locate(context.Background(), target, "")
		require.Error(t, err)
		assert.Equal(t, ErrorCategoryConfig, CategoryOf(err))
	}
	assert.Equal(t, 0, capturer.calls)
	assert.Empty(t, fake.Requests())
}

func TestRun_ParseFailureTakesNoAction(t *testing.T) {
	fake := newFakeOpenAI(t, "I cannot find that element.")
	driver := &recordingDriver{}
	locator := newTestLocator(t, &fakeCapturer{width: 100, height: 100}, fake.URL())

	result, err := locator.Run(context.Background(), "Download button", "",
		newTestDispatcher(t, driver), ActionIntent{Mode: ActionClick, Text: "hello"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, ErrorCategoryParse, CategoryOf(err))
	assert.Empty(t, driver.calls)
}

func TestRun_TransportFailureTakesNoAction(t *testing.T) {
	fake := newFailingOpenAI(t, 500)
	driver := &recordingDriver{}
	locator := newTestLocator(t, &fakeCapturer{width: 100, height: 100}, fake.URL())

	_, err := locator.Run(context.Background(), "Download button", "",
		newTestDispatcher(t, driver), ActionIntent{Mode: ActionClick})
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryLLM, CategoryOf(err))
	assert.Empty(t, driver.calls)
}

func TestLocateImage(t *testing.T) {
	fake := newFakeOpenAI(t, "x:12 y:34")
	capturer := &fakeCapturer{}
	locator := newTestLocator(t, capturer, fake.URL())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 320, 200))))

	result, err := locator.LocateImage(context.Background(), "Search field", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Coordinate{12, 34}, result.Coordinate())
	assert.Equal(t, OriginUploaded, result.Screenshot.Origin)
	assert.Contains(t, result.Prompt, "320x200")
	assert.Equal(t, 0, capturer.calls)
}
