package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// ChatConfig configures the OpenAI-compatible chat provider.
// DeepSeek, OpenAI, and local OpenAI-compatible servers all speak this
// wire format.
type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds each call. A hanging oracle call must not stall a
	// batch, so zero falls back to 60s rather than no timeout.
	Timeout     time.Duration
	Temperature float64
}

// ChatProvider implements Provider over an OpenAI-compatible
// /chat/completions endpoint.
type ChatProvider struct {
	client *http.Client
	config ChatConfig
}

var _ Provider = (*ChatProvider)(nil)

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewChatProvider creates a chat provider.
func NewChatProvider(cfg ChatConfig) *ChatProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ChatProvider{
		client: &http.Client{},
		config: cfg,
	}
}

// Call sends messages and returns the first choice's text.
func (p *ChatProvider) Call(ctx context.Context, messages []Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       p.config.Model,
		Messages:    messages,
		Temperature: p.config.Temperature,
	})
	if err != nil {
		return "", cerr.New(cerr.ErrCodeInternal, "cannot marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", cerr.New(cerr.ErrCodeInternal, "cannot build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", cerr.New(cerr.ErrCodeOracleUnreachable, "oracle request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", cerr.New(cerr.ErrCodeOracleUnreachable,
			fmt.Sprintf("oracle returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", cerr.New(cerr.ErrCodeOracleMalformed, "cannot decode oracle response", err)
	}
	if parsed.Error != nil {
		return "", cerr.New(cerr.ErrCodeOracleUnreachable, "oracle error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", cerr.New(cerr.ErrCodeOracleMalformed, "oracle returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
