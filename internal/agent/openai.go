package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// Default configuration values.
const (
	defaultBaseURL       = "https://api.openai.com"
	defaultModel         = "gpt-4.1"
	defaultMaxTokens     = 1024
	defaultTimeout       = 60 * time.Second
	defaultMaxRetries    = 2
	defaultBaseBackoff   = 1 * time.Second
	defaultMaxInputBytes = 48 * 1024
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Config holds configuration for the OpenAI agent.
type Config struct {
	// APIKey is the OpenAI API key. Required.
	APIKey string

	// BaseURL overrides the API base URL (for compatible servers).
	BaseURL string

	// Model is the chat model name.
	Model string

	// MaxTokens bounds the model's response length.
	MaxTokens int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// retryable failures.
	MaxRetries int

	// MaxInputBytes caps how much document text is sent per prompt.
	// Longer documents are truncated deterministically.
	MaxInputBytes int
}

// openAIAgent implements Agent against the OpenAI chat completions API.
type openAIAgent struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewOpenAIAgent creates an Agent backed by OpenAI chat completions.
func NewOpenAIAgent(cfg Config, logger *zap.Logger) (Agent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxInputBytes == 0 {
		cfg.MaxInputBytes = defaultMaxInputBytes
	}

	return &openAIAgent{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:     logger,
	}, nil
}

// chatRequest is the request format for the chat completions API.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response format for the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// documentInfo is the expected JSON shape of the extraction response.
type documentInfo struct {
	PatientName  string `json:"patient_name"`
	DateOfBirth  string `json:"date_of_birth"`
	ProviderName string `json:"provider_name"`
}

// ExtractFields extracts patient and provider identifiers via the LLM.
// Unparsable model output is retried once before surfacing ErrExtraction.
func (a *openAIAgent) ExtractFields(ctx context.Context, text string) (fields.Extracted, error) {
	doc := a.truncate(text)

	var info documentInfo
	var lastErr error
	for parseAttempt := 0; parseAttempt < 2; parseAttempt++ {
		content, err := a.chat(ctx, extractSystemPrompt, doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		if err := json.Unmarshal([]byte(stripFences(content)), &info); err != nil {
			lastErr = err
			a.logger.Warn("unparsable extraction response, retrying",
				zap.Error(err),
			)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: unparsable model output: %v", ErrExtraction, lastErr)
	}

	out := fields.NewExtracted()
	out.Set(fields.PatientName, strings.TrimSpace(info.PatientName))
	out.Set(fields.ProviderName, strings.TrimSpace(info.ProviderName))
	if dob, ok := fields.NormalizeDOB(strings.TrimSpace(info.DateOfBirth)); ok {
		out.Set(fields.DateOfBirth, dob)
	}
	return out, nil
}

// ClassifyDocument classifies the document type and extracts the sender.
// The two calls degrade independently: a subtype failure still returns
// the classified doc type alongside the error.
func (a *openAIAgent) ClassifyDocument(ctx context.Context, text string) (string, string, error) {
	doc := a.truncate(text)

	rawType, err := a.chat(ctx, docTypeSystemPrompt, doc)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	docType := fields.NormalizeDocType(rawType)
	if docType == fields.DocTypeUnknown {
		a.logger.Warn("unmapped doc type answer", zap.String("answer", strings.TrimSpace(rawType)))
	}

	rawSubtype, err := a.chat(ctx, subtypeSystemPrompt, doc)
	if err != nil {
		return docType, "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return docType, strings.TrimSpace(rawSubtype), nil
}

// GenerateComment produces a reviewer-facing summary.
func (a *openAIAgent) GenerateComment(ctx context.Context, text string) (string, error) {
	content, err := a.chat(ctx, commentSystemPrompt, a.truncate(text))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return strings.TrimSpace(content), nil
}

// truncate caps document text at MaxInputBytes on a rune boundary. The
// same input always yields the same truncation.
func (a *openAIAgent) truncate(text string) string {
	max := a.config.MaxInputBytes
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// chat performs one completion with bounded retries and backoff.
func (a *openAIAgent) chat(ctx context.Context, system, user string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req := chatRequest{
		Model:       a.config.Model,
		MaxTokens:   a.config.MaxTokens,
		Temperature: 0, // deterministic as the API allows
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, err := a.doRequest(ctx, req)
		if err == nil {
			return content, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the HTTP request to the chat completions API.
func (a *openAIAgent) doRequest(ctx context.Context, req chatRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from API")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Ensure openAIAgent implements Agent.
var _ Agent = (*openAIAgent)(nil)
