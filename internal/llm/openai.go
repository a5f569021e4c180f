package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

// NewOpenAI builds a client. An empty apiKey falls back to OPENAI_API_KEY.
// baseURL may name the server root, its /v1 prefix or the full endpoint.
func NewOpenAI(apiKey, baseURL string, client HTTPClient) *OpenAI {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = openaiAPIURL
	} else {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/chat/completions") {
			if strings.HasSuffix(baseURL, "/v1") {
				baseURL += "/chat/completions"
			} else {
				baseURL += "/v1/chat/completions"
			}
		}
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAI{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (o *OpenAI) Name() string { return "openai" }

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Create sends req and returns its delta stream.
func (o *OpenAI) Create(ctx context.Context, req Request) (*Stream, error) {
	body := openaiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(o.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(o.Name(), resp)
	}

	if !req.Stream {
		defer resp.Body.Close()
		var out openaiChunk
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, classifyTransport(o.Name(), err)
		}
		text := ""
		if len(out.Choices) > 0 {
			text = out.Choices[0].Message.Content
		}
		return StreamOf([]string{text}, nil), nil
	}

	return newSSEStream(resp.Body, parseOpenAIChunk, func(err error) error {
		return classifyTransport(o.Name(), err)
	}), nil
}

func parseOpenAIChunk(data string) (string, bool, error) {
	var chunk openaiChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, nil
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}
