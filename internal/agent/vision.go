package agent

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultVisionModel is the chat model used when none is configured
	DefaultVisionModel = openai.GPT4o
	// DefaultMaxTokens caps the answer: one coordinate line and a short rationale
	DefaultMaxTokens = 60
)

const visionSystemPrompt = "You are a vision assistant. Return coordinates ONLY in the format " +
	"x:<int> y:<int> followed by a short explanation, without quotation marks."

// coordinatePattern finds the first x/y integer pair anywhere in the answer
var coordinatePattern = regexp.MustCompile(`(?is)x\s*[:=]\s*(\d+).*?y\s*[:=]\s*(\d+)`)

// Coordinate is a pixel location resolved from the model answer.
// It is not clamped to the screen; callers range-check it if they need to.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Resolution is the outcome of one vision call
type Resolution struct {
	Coordinate Coordinate
	// Raw is the model answer exactly as received
	Raw   string
	Model string
}

// ResolverConfig holds what the vision resolver needs to reach the model
type ResolverConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the OpenAI endpoint (proxies, tests)
	BaseURL   string
	MaxTokens int
}

// VisionResolver asks a vision model where an element is and parses the answer
type VisionResolver struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewVisionResolver creates a resolver. A missing API key is a configuration error.
func NewVisionResolver(cfg ResolverConfig, logger *zap.Logger) (*VisionResolver, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, NewConfigError("OpenAI API key missing (use --api-key or set OPENAI_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultVisionModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &VisionResolver{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.Named("vision"),
	}, nil
}

// Model returns the configured model identifier
func (v *VisionResolver) Model() string {
	return v.model
}

// Resolve sends the screenshot and instruction to the model and extracts one coordinate
func (v *VisionResolver) Resolve(ctx context.Context, payload *EncodedPayload, prompt string) (*Resolution, error) {
	req := openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: visionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: payload.DataURL(),
						},
					},
				},
			},
		},
		MaxTokens: v.maxTokens,
		// go-openai drops a zero temperature from the request body
		Temperature: math.SmallestNonzeroFloat32,
	}

	v.logger.Debug("Calling vision model", zap.String("model", v.model), zap.Int("max_tokens", v.maxTokens))

	resp, err := v.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, NewLLMError("vision API call failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewLLMError("no response from vision API", nil)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	v.logger.Info("Vision model answered", zap.String("raw", content))

	coord, err := ParseCoordinate(content)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Coordinate: coord,
		Raw:        content,
		Model:      v.model,
	}, nil
}

// ParseCoordinate extracts the first x/y pair from a free-text answer.
// Letter case, whitespace, line breaks, and ':' or '=' separators are all accepted.
func ParseCoordinate(text string) (Coordinate, error) {
	m := coordinatePattern.FindStringSubmatch(text)
	if m == nil {
		return Coordinate{}, NewParseError("could not extract x,y coordinates from the response", text)
	}

	x, err := strconv.Atoi(m[1])
	if err != nil {
		return Coordinate{}, NewParseError("could not extract x,y coordinates from the response: x out of range", text)
	}
	y, err := strconv.Atoi(m[2])
	if err != nil {
		return Coordinate{}, NewParseError("could not extract x,y coordinates from the response: y out of range", text)
	}

	return Coordinate{X: x, Y: y}, nil
}
