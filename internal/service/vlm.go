package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/prompts"
	"github.com/timmy/docpipe/internal/recognition"
)

// VLMRecognizer transcribes document images with an OpenAI-compatible
// vision chat completion endpoint.
type VLMRecognizer struct {
	client   *resty.Client
	model    string
	endpoint string
}

// VLMConfig holds configuration for the VLM recognizer.
type VLMConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewVLMRecognizer creates a new VLM recognizer.
// Parameters:
//   - cfg: VLM configuration including model, API key and base URL.
//
// Returns:
//   - *VLMRecognizer: initialized client wrapper.
func NewVLMRecognizer(cfg *VLMConfig) *VLMRecognizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &VLMRecognizer{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// GetModel returns the model name being used.
func (s *VLMRecognizer) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
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

// Recognize transcribes an image. Vision models do not accept PDFs, so a
// PDF yields an empty result with zero confidence.
// The endpoint reports no confidence; the text is scored heuristically.
func (s *VLMRecognizer) Recognize(ctx context.Context, data []byte, mimeType string) (*recognition.Result, error) {
	if mimeType == "application/pdf" {
		logger.CtxInfo(ctx, "Skipping VLM transcription for PDF")
		return &recognition.Result{Method: "vlm"}, nil
	}

	start := time.Now()
	text, err := s.transcribe(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}

	text = recognition.Normalize(text)
	conf := recognition.HeuristicConfidence(text)
	logger.With(logger.Fields{"chars": len(text), "model": s.model}).
		WithDuration(time.Since(start)).
		Info(ctx, "VLM transcription finished")

	return &recognition.Result{
		Text:       text,
		Confidence: conf,
		Regions:    recognition.LineRegions(text, conf),
		Method:     "vlm",
	}, nil
}

func (s *VLMRecognizer) transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: prompts.TranscribeSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{
						Type: "text",
						Text: prompts.TranscribeUserPrompt,
					},
					openAIImageContent{
						Type: "image_url",
						ImageURL: openAIImageURL{
							URL:    dataURL,
							Detail: "high",
						},
					},
				},
			},
		},
		MaxTokens: prompts.TranscribeMaxTokens,
	}

	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call VLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("VLM API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("VLM API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in VLM response (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}
