package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/sirupsen/logrus"
)

// Config arXiv客户端配置
type Config struct {
	BaseURL    string        // Atom API地址，例如 http://export.arxiv.org/api
	PDFBaseURL string        // 找不到PDF链接时使用的下载地址前缀
	UserAgent  string        // User-Agent
	Timeout    time.Duration // 单次请求超时
	HTTPClient *http.Client  // 自定义HTTP客户端(可选)
	Logger     *logrus.Logger
}

// Option 配置选项函数
type Option func(*Config)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://export.arxiv.org/api",
		PDFBaseURL: "https://arxiv.org/pdf",
		UserAgent:  "paper-rag/1.0",
		Timeout:    2 * time.Minute,
	}
}

// WithBaseURL 设置API地址
func WithBaseURL(baseURL string) Option {
	return func(c *Config) {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithPDFBaseURL 设置PDF下载地址前缀
func WithPDFBaseURL(baseURL string) Option {
	return func(c *Config) {
		c.PDFBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithUserAgent 设置User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithTimeout 设置请求超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithHTTPClient 设置HTTP客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLogger 设置日志器
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// HTTPSource 基于arXiv Atom API的论文源
type HTTPSource struct {
	config *Config
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPSource 创建arXiv论文源
func NewHTTPSource(opts ...Option) *HTTPSource {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &HTTPSource{config: cfg, client: client, logger: logger}
}

// Lookup 查询论文元数据
func (s *HTTPSource) Lookup(ctx context.Context, id string) (*Paper, error) {
	id = NormalizeID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrPaperNotFound)
	}

	query := url.Values{}
	query.Set("id_list", id)
	query.Set("max_results", "1")
	endpoint := s.config.BaseURL + "/query?" + query.Encode()

	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to query arxiv: %w", err)
	}
	defer body.Close()

	feed, err := (&atom.Parser{}).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode arxiv response: %w", err)
	}

	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPaperNotFound, id)
	}
	entry := feed.Entries[0]
	// 格式错误的标识符会返回一条标题为Error的条目
	if strings.Contains(entry.ID, "/api/errors") || strings.TrimSpace(entry.Title) == "Error" {
		return nil, fmt.Errorf("%w: %s: %s", ErrPaperNotFound, id, collapseSpaces(entry.Summary))
	}

	paper := &Paper{
		ID:      id,
		Title:   collapseSpaces(entry.Title),
		Summary: strings.TrimSpace(entry.Summary),
	}
	if entry.PublishedParsed != nil {
		paper.Published = *entry.PublishedParsed
	}
	for _, a := range entry.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
		}
	}
	paper.PDFURL = pdfLink(entry.Links)
	if paper.PDFURL == "" {
		paper.PDFURL = s.config.PDFBaseURL + "/" + stripVersion(id)
	}

	s.logger.WithFields(logrus.Fields{
		"paper_id": id,
		"title":    paper.Title,
		"pdf_url":  paper.PDFURL,
	}).Debug("Resolved arxiv paper")

	return paper, nil
}

// Download 下载论文PDF
func (s *HTTPSource) Download(ctx context.Context, paper *Paper, w io.Writer) error {
	if paper == nil || paper.PDFURL == "" {
		return fmt.Errorf("paper has no pdf url")
	}

	body, err := s.get(ctx, paper.PDFURL)
	if err != nil {
		return fmt.Errorf("failed to download pdf: %w", err)
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return fmt.Errorf("failed to download pdf: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"paper_id": paper.ID,
		"bytes":    n,
	}).Debug("Downloaded pdf")
	return nil
}

// get 发送GET请求，非200状态码视为错误
func (s *HTTPSource) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

// pdfLink 返回条目中指向PDF的链接
func pdfLink(links []*atom.Link) string {
	for _, link := range links {
		if link != nil && (link.Title == "pdf" || link.Type == "application/pdf") {
			return link.Href
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
