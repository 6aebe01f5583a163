package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// -- Fake capturer --

type fakeCapturer struct {
	width, height int
	calls         int
	err           error
}

func (c *fakeCapturer) Capture(ctx context.Context) (image.Image, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for x := 0; x < c.width; x += 7 {
		img.Set(x, x%c.height, color.RGBA{R: 200, A: 255})
	}
	return img, nil
}

// -- Recording driver --

type recordingDriver struct {
	mu     sync.Mutex
	calls  []string
	keys   []string
	failOn string
}

func (d *recordingDriver) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	if d.failOn != "" && strings.HasPrefix(call, d.failOn) {
		return fmt.Errorf("%s failed", d.failOn)
	}
	return nil
}

func (d *recordingDriver) MoveTo(ctx context.Context, x, y int) error {
	return d.record(fmt.Sprintf("move %d,%d", x, y))
}

func (d *recordingDriver) Click(ctx context.Context, x, y int) error {
	return d.record(fmt.Sprintf("click %d,%d", x, y))
}

func (d *recordingDriver) DoubleClick(ctx context.Context, x, y int) error {
	return d.record(fmt.Sprintf("double-click %d,%d", x, y))
}

func (d *recordingDriver) ShowMarker(ctx context.Context, x, y int, duration time.Duration) error {
	return d.record(fmt.Sprintf("marker %d,%d %s", x, y, duration))
}

func (d *recordingDriver) PressKey(ctx context.Context, key string) error {
	d.mu.Lock()
	d.keys = append(d.keys, "<"+strings.ToUpper(key[:1])+key[1:]+">")
	d.mu.Unlock()
	return d.record("key " + key)
}

func (d *recordingDriver) TypeRune(ctx context.Context, r rune) error {
	d.mu.Lock()
	d.keys = append(d.keys, string(r))
	d.mu.Unlock()
	return d.record("type " + string(r))
}

// pointerCalls returns recorded calls that are not keystrokes
func (d *recordingDriver) pointerCalls() []string {
	var out []string
	for _, c := range d.calls {
		if !strings.HasPrefix(c, "key ") && !strings.HasPrefix(c, "type ") {
			out = append(out, c)
		}
	}
	return out
}

// -- Fake OpenAI endpoint --

type chatPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type fakeOpenAI struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []chatRequest
}

func (f *fakeOpenAI) URL() string {
	return f.server.URL + "/v1"
}

func (f *fakeOpenAI) Requests() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.requests...)
}

// newFakeOpenAI serves chat completions answering with answer
func newFakeOpenAI(t *testing.T, answer string) *fakeOpenAI {
	t.Helper()
	return newFakeOpenAIHandler(t, func(w http.ResponseWriter) {
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
	})
}

// newFailingOpenAI rejects every call with status
func newFailingOpenAI(t *testing.T, status int) *fakeOpenAI {
	t.Helper()
	return newFakeOpenAIHandler(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Incorrect API key provided",
				"type":    "invalid_request_error",
				"code":    "invalid_api_key",
			},
		})
	})
}

func newFakeOpenAIHandler(t *testing.T, respond func(w http.ResponseWriter)) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		respond(w)
	}))
	t.Cleanup(f.server.Close)
	return f
}

// userParts decodes the multi-part content of the user message
func userParts(t *testing.T, req chatRequest) []chatPart {
	t.Helper()
	for _, m := range req.Messages {
		if m.Role == "user" {
			var parts []chatPart
			require.NoError(t, json.Unmarshal(m.Content, &parts))
			return parts
		}
	}
	t.Fatal("no user message in request")
	return nil
}

// systemText decodes the system message text
func systemText(t *testing.T, req chatRequest) string {
	t.Helper()
	for _, m := range req.Messages {
		if m.Role == "system" {
			var s string
			require.NoError(t, json.Unmarshal(m.Content, &s))
			return s
		}
	}
	t.Fatal("no system message in request")
	return ""
}
