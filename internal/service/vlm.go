package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/prompts"
)

// maxAltLength bounds model-generated alt text.
const maxAltLength = 120

// VisionClassifier labels images with a vision language model and falls back
// to the rule classifier whenever the model is unavailable or answers badly.
type VisionClassifier struct {
	client   *resty.Client
	model    string
	endpoint string
	rules    *RuleClassifier
}

// VLMConfig holds configuration for the vision classifier.
type VLMConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewVisionClassifier creates a new vision classifier.
// Parameters:
//   - cfg: model, API key and endpoint of an OpenAI compatible API.
//
// Returns:
//   - *VisionClassifier: initialized classifier.
func NewVisionClassifier(cfg *VLMConfig) *VisionClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &VisionClassifier{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
		rules:    NewRuleClassifier(),
	}
}

// GetModel returns the model name being used.
func (s *VisionClassifier) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type visionLabel struct {
	ImageType string `json:"image_type"`
	Alt       string `json:"alt"`
}

// Classify starts from the rule classification and overrides image type and
// alt text with the model's answer. Model failures are logged, not returned.
func (s *VisionClassifier) Classify(ctx context.Context, in *MediaInput) (*Classification, error) {
	base, _ := s.rules.Classify(ctx, in)
	if !visionSupported(in) {
		return base, nil
	}

	label, err := s.describe(ctx, in)
	if err != nil {
		logger.CtxWarn(ctx, "Vision classification failed, using rules: %v", err)
		return base, nil
	}

	if isKnownImageType(label.ImageType) {
		base.ImageType = label.ImageType
	}
	if alt := strings.TrimSpace(label.Alt); alt != "" {
		if len(alt) > maxAltLength {
			alt = strings.TrimSpace(alt[:maxAltLength])
		}
		base.Alt = alt
	}
	return base, nil
}

func (s *VisionClassifier) describe(ctx context.Context, in *MediaInput) (*visionLabel, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", in.ContentType, base64.StdEncoding.EncodeToString(in.Data))

	var property, segmentType, country string
	if in.Row != nil {
		property, segmentType, country = in.Row.PropertyName, in.Row.SegmentType, in.Row.Country
	}

	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: prompts.ClassifierSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{
						Type: "text",
						Text: prompts.ClassifierUserPrompt(property, segmentType, country),
					},
					openAIImageContent{
						Type: "image_url",
						ImageURL: openAIImageURL{
							URL:    dataURL,
							Detail: "low",
						},
					},
				},
			},
		},
		MaxTokens: 200,
	}

	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call VLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return nil, fmt.Errorf("VLM API returned error: %s", errorMsg)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("VLM API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in VLM response (status: %d)", httpResp.StatusCode())
	}

	return parseVisionLabel(resp.Choices[0].Message.Content)
}

// parseVisionLabel extracts the JSON object from a model answer, tolerating
// markdown fences and surrounding prose.
func parseVisionLabel(content string) (*visionLabel, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in VLM answer: %q", content)
	}
	var label visionLabel
	if err := json.Unmarshal([]byte(content[start:end+1]), &label); err != nil {
		return nil, fmt.Errorf("invalid VLM answer: %w", err)
	}
	label.ImageType = strings.ToLower(strings.TrimSpace(label.ImageType))
	return &label, nil
}

func isKnownImageType(t string) bool {
	for _, known := range prompts.ImageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// visionSupported reports whether the model accepts the asset format.
func visionSupported(in *MediaInput) bool {
	if in.Row != nil && in.Row.MediaType == domain.MediaTypeVideo {
		return false
	}
	switch in.ContentType {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return len(in.Data) > 0
	}
	return false
}
