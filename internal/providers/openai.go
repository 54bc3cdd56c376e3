package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mikann-OMO/bot/internal/metrics"
)

var tracer = otel.Tracer("github.com/mikann-OMO/bot/internal/providers")

// DefaultARKBase is the Volcengine ARK OpenAI-compatible endpoint.
const DefaultARKBase = "https://ark.cn-beijing.volces.com/api/v3"

// OpenAIProvider implements Provider for OpenAI-compatible chat-completion
// APIs (Volcengine ARK, OpenAI, DeepSeek, etc.)
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	chatPath     string // defaults to "/chat/completions"
	defaultModel string
	client       *http.Client
	retryConfig  RetryConfig
}

// NewOpenAIProvider creates a provider. timeout bounds each HTTP attempt.
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string, timeout time.Duration) *OpenAIProvider {
	if apiBase == "" {
		apiBase = DefaultARKBase
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		chatPath:     "/chat/completions",
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
		retryConfig:  DefaultRetryConfig(),
	}
}

// WithRetry replaces the retry policy.
func (p *OpenAIProvider) WithRetry(cfg RetryConfig) *OpenAIProvider {
	p.retryConfig = cfg
	return p
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }
func (p *OpenAIProvider) APIBase() string      { return p.apiBase }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "ai.chat")
	defer span.End()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	span.SetAttributes(
		attribute.String("ai.provider", p.name),
		attribute.String("ai.model", model),
		attribute.Int("ai.messages", len(req.Messages)),
	)
	body := p.buildRequestBody(model, req)

	start := time.Now()
	resp, err := RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		raw, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return p.parseResponse(raw)
	})
	metrics.AIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		class := Classify(err)
		metrics.AIRequests.WithLabelValues(string(class)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(class))
		return nil, err
	}
	metrics.AIRequests.WithLabelValues("ok").Inc()
	return resp, nil
}

func (p *OpenAIProvider) buildRequestBody(model string, req ChatRequest) map[string]any {
	body := map[string]any{
		"model":    model,
		"messages": req.Messages,
	}
	for _, k := range []string{OptMaxCompletionTokens, OptReasoningEffort, OptTemperature} {
		if v, ok := req.Options[k]; ok {
			body[k] = v
		}
	}
	return body
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+p.chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", p.name, truncate(string(respBody), 512)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return respBody, nil
}

// parseResponse requires choices[0].message.content to be a string; any
// other shape is ErrMalformedResponse.
func (p *OpenAIProvider) parseResponse(raw []byte) (*ChatResponse, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s: %w: invalid JSON", p.name, ErrMalformedResponse)
	}
	doc := gjson.ParseBytes(raw)
	content := doc.Get("choices.0.message.content")
	if content.Type != gjson.String {
		return nil, fmt.Errorf("%s: %w: %s", p.name, ErrMalformedResponse, truncate(doc.Raw, 256))
	}

	result := &ChatResponse{
		Content:      content.String(),
		FinishReason: doc.Get("choices.0.finish_reason").String(),
	}
	if u := doc.Get("usage"); u.Exists() {
		result.Usage = &Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		}
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
