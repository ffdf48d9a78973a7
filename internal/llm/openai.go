package llm

import (
	"context"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIClient 基于OpenAI兼容接口的对话客户端
type OpenAIClient struct {
	client *openai.Client
	config *Config
	logger *logrus.Logger
}

// NewOpenAIClient 创建OpenAI对话客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, "OPENAI_API_KEY is not set")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logger,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Generate 以单条用户消息发送提示词
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...RequestOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 发送消息列表并返回模型回复
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...RequestOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	opts := applyRequestOptions(options)
	req := c.buildRequest(messages, opts)

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"model":   c.config.Model,
				"error":   lastErr,
			}).Warn("Retrying chat completion")

			select {
			case <-ctx.Done():
				return nil, WrapError(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := c.complete(ctx, req)
		if err == nil {
			return c.toResponse(messages, resp)
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return resp, WrapError(err)
	}
	return resp, nil
}

func (c *OpenAIClient) buildRequest(messages []Message, opts *RequestOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	maxTokens := c.config.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	temperature := c.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	// temperature 字段带omitempty，0会被省略成服务端默认值1
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	req.Temperature = temperature

	return req
}

func (c *OpenAIClient) toResponse(messages []Message, resp openai.ChatCompletionResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	c.logger.WithFields(logrus.Fields{
		"model":         resp.Model,
		"total_tokens":  resp.Usage.TotalTokens,
		"finish_reason": choice.FinishReason,
	}).Debug("Chat completion finished")

	history := append(append([]Message{}, messages...), Message{Role: RoleAssistant, Content: text})
	return &Response{
		Text:         text,
		Messages:     history,
		TokenCount:   resp.Usage.TotalTokens,
		ModelName:    resp.Model,
		FinishReason: string(choice.FinishReason),
		FinishTime:   time.Now(),
	}, nil
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
