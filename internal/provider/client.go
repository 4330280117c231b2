package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/ratelimit"
)

var log = logging.GetLogger("provider")

// Client is the model provider contract (§6): a single chatCompletion call.
type Client interface {
	ChatCompletion(ctx context.Context, req Request) (Response, error)
}

// HTTPClient calls an OpenAI/Ollama-shaped chat endpoint over HTTP, gated
// by a token-bucket limiter so extraction bursts can't overrun the
// provider.
type HTTPClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Limiter *ratelimit.Limiter
}

// NewHTTPClient builds an HTTPClient. A nil cfg.Limiter disables rate
// limiting.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

type chatRequestBody struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponseBody struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// ChatCompletion posts req to the provider's chat endpoint and returns its
// content field, rate-limited under the "chat_completion" bucket.
func (c *HTTPClient) ChatCompletion(ctx context.Context, req Request) (Response, error) {
	if result := c.limiter.Allow("chat_completion"); !result.Allowed {
		return Response{}, engineerr.New("provider.ChatCompletion", engineerr.Store,
			fmt.Sprintf("provider rate limit exceeded, retry after %s", result.RetryAfter))
	}

	body := chatRequestBody{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, engineerr.Wrap("provider.ChatCompletion", engineerr.Validation, "marshal request failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, engineerr.Wrap("provider.ChatCompletion", engineerr.Store, "build request failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, engineerr.Wrap("provider.ChatCompletion", engineerr.Store, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Response{}, engineerr.New("provider.ChatCompletion", engineerr.Store,
			fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var decoded chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, engineerr.Wrap("provider.ChatCompletion", engineerr.Parse, "response undecodable", err)
	}

	return Response{Content: decoded.Message.Content}, nil
}
