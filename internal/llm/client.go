package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	client   *resty.Client
	endpoint string
}

// ClientConfig holds connection settings for the chat completion API.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a chat completion client.
// Parameters:
//   - cfg: connection settings including API key and base URL.
// Returns:
//   - *Client: initialized client wrapper.
func NewClient(cfg *ClientConfig) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		client:   client,
		endpoint: baseURL + "/chat/completions",
	}
}

// Message is one chat turn. Content is a string for plain text or a slice
// of content parts for multimodal turns.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageContent struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []Message              `json:"messages"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
}

type chatResponse struct {
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

// ExtractRequest describes one structured extraction call.
type ExtractRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Schema       map[string]interface{}
	Options      map[string]interface{}
}

// Extract sends a chat completion constrained to the JSON schema and returns
// the parsed object.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: extraction request with prompts and target schema.
// Returns:
//   - map[string]interface{}: parsed structured output.
//   - error: *APIError on provider failure.
func (c *Client) Extract(ctx context.Context, req *ExtractRequest) (map[string]interface{}, error) {
	var messages []Message
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	if req.UserPrompt != "" {
		messages = append(messages, Message{Role: "user", Content: req.UserPrompt})
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: messages,
		ResponseFormat: map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "extraction",
				"strict": true,
				"schema": req.Schema,
			},
		},
	}
	if req.Options != nil {
		if v, ok := req.Options["max_tokens"].(float64); ok {
			body.MaxTokens = int(v)
		}
		if v, ok := req.Options["temperature"].(float64); ok {
			body.Temperature = &v
		}
	}

	content, err := c.complete(ctx, &body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, &APIError{
			Kind:    KindAPIError,
			Message: fmt.Sprintf("model returned invalid JSON: %v", err),
		}
	}
	return result, nil
}

// TranscribeImage extracts text from an image using a vision model.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - model: vision-capable model name.
//   - imageData: raw image bytes.
//   - mimeType: image MIME type (image/png, image/jpeg, ...).
// Returns:
//   - string: transcribed text (may be empty).
//   - error: *APIError on provider failure.
func (c *Client) TranscribeImage(ctx context.Context, model string, imageData []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	body := chatRequest{
		Model: model,
		Messages: []Message{
			{
				Role:    "system",
				Content: "You are a precise OCR engine. Transcribe all visible text from the image. Preserve reading order and line breaks. Output only the transcribed text.",
			},
			{
				Role: "user",
				Content: []interface{}{
					textContent{Type: "text", Text: "Transcribe the text in this image."},
					imageContent{
						Type: "image_url",
						ImageURL: imageURL{
							URL:    dataURL,
							Detail: "auto",
						},
					},
				},
			},
		},
		MaxTokens: 4096,
	}

	return c.complete(ctx, &body)
}

// Probe sends a minimal completion to verify the model and credentials are
// usable before a batch run starts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - model: model name to verify.
// Returns:
//   - error: *APIError describing why the model is unusable, nil if usable.
func (c *Client) Probe(ctx context.Context, model string) error {
	body := chatRequest{
		Model: model,
		Messages: []Message{
			{Role: "user", Content: "ping"},
		},
		MaxTokens: 1,
	}
	_, err := c.complete(ctx, &body)
	return err
}

func (c *Client) complete(ctx context.Context, body *chatRequest) (string, error) {
	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		SetError(&resp).
		Post(c.endpoint)

	if err != nil {
		return "", &APIError{
			Kind:    ClassifyErr(err),
			Message: err.Error(),
		}
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &APIError{
			Kind:       Classify(httpResp.StatusCode(), msg),
			StatusCode: httpResp.StatusCode(),
			Message:    msg,
		}
	}

	if resp.Error != nil {
		return "", &APIError{
			Kind:       Classify(0, resp.Error.Message),
			StatusCode: httpResp.StatusCode(),
			Message:    resp.Error.Message,
		}
	}

	if len(resp.Choices) == 0 {
		return "", &APIError{
			Kind:       KindAPIError,
			StatusCode: httpResp.StatusCode(),
			Message:    "no choices in response",
		}
	}

	return resp.Choices[0].Message.Content, nil
}
