package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SummaryTemplate 文档摘要的系统提示词模板
// 包含变量：{{.Context}} - 检索到的片段
// 不含 {{.Question}} 的模板作为系统消息发送，问题作为用户消息单独发送
const SummaryTemplate = `You are a helpful assistant that creates concise and accurate summaries of documents. Use the following context to create a summary. If you don't know the answer, just say that you don't know.

Context: {{.Context}}

Please provide a clear and concise summary of the document.`

// QATemplate 问答提示词模板，整段作为一条用户消息发送
// 包含变量：{{.Question}} - 用户问题，{{.Context}} - 编号后的上下文
const QATemplate = `Answer the question using only the numbered context passages below.
If the context does not contain enough information, say that you don't know instead of guessing.

Context:
{{.Context}}

Question: {{.Question}}

Answer directly without repeating the question.`

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 提示词模板
	Template string
	// 上下文片段之间的分隔符
	Separator string
	// 是否给片段编号
	NumberContexts bool
	// 最大Token数，0表示不限制
	MaxTokens int
	// 温度参数
	Temperature float32
	// 超时时间
	Timeout time.Duration
}

// DefaultRAGConfig 默认RAG配置，生成文档摘要
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:       SummaryTemplate,
		Separator:      "\n\n",
		NumberContexts: false,
		MaxTokens:      0,
		Temperature:    0,
		Timeout:        2 * time.Minute,
	}
}

// RAGService 实现检索增强生成服务
type RAGService struct {
	Client
	config RAGConfig
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithQuestionAnswering 使用编号上下文的问答模板
func WithQuestionAnswering() RAGOption {
	return func(c *RAGConfig) {
		c.Template = QATemplate
		c.NumberContexts = true
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: *cfg,
	}
}

// Answer 根据上下文和问题生成回答
func (r *RAGService) Answer(ctx context.Context, question string, contexts []string) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	cfg := r.config
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	prompt := buildPrompt(&cfg, question, contexts)

	opts := []RequestOption{
		WithRequestMaxTokens(cfg.MaxTokens),
		WithRequestTemperature(cfg.Temperature),
	}
	var (
		response *Response
		err      error
	)
	if strings.Contains(cfg.Template, "{{.Question}}") {
		response, err = r.Client.Generate(ctx, prompt, opts...)
	} else {
		response, err = r.Client.Chat(ctx, []Message{
			{Role: RoleSystem, Content: prompt},
			{Role: RoleUser, Content: question},
		}, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", WrapError(err))
	}
	if strings.TrimSpace(response.Text) == "" {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	return &RAGResponse{
		Answer:     response.Text,
		Prompt:     prompt,
		TokenCount: response.TokenCount,
	}, nil
}

// buildPrompt 构建增强提示词
func buildPrompt(cfg *RAGConfig, question string, contexts []string) string {
	prompt := strings.ReplaceAll(cfg.Template, "{{.Question}}", question)
	return strings.ReplaceAll(prompt, "{{.Context}}", formatContext(contexts, cfg.Separator, cfg.NumberContexts))
}

// formatContext 拼接上下文片段
func formatContext(contexts []string, separator string, numbered bool) string {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		if numbered {
			parts[i] = fmt.Sprintf("[%d] %s", i+1, c)
		} else {
			parts[i] = c
		}
	}
	return strings.Join(parts, separator)
}
