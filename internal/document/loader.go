package document

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrParse 文档无法解析(损坏、非PDF等)
	ErrParse = errors.New("failed to parse document")
	// ErrUnsupportedType 不支持的文档类型
	ErrUnsupportedType = fmt.Errorf("%w: unsupported document type", ErrParse)
)

// Page 文档中的一页文本
type Page struct {
	Text   string // 页面文本
	Source string // 来源文件路径
	Index  int    // 页码，从0开始
}

// Loader 文档加载器接口
// 负责将不同格式的文档读取为按页组织的文本
type Loader interface {
	// Load 读取文件，按文档顺序返回页面
	Load(filePath string) ([]Page, error)

	// LoadReader 从Reader读取文档，name用于标记来源
	LoadReader(r io.Reader, name string) ([]Page, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// LoaderFactory 根据文件类型创建对应的加载器
// 扩展名无法识别时按文件内容判断，读取文件失败时原样返回错误
func LoaderFactory(filePath string) (Loader, error) {
	contentType := DetectContentType(filePath)
	if contentType == Unknown {
		sniffed, err := SniffContentType(filePath)
		if err != nil {
			return nil, err
		}
		contentType = sniffed
	}

	switch contentType {
	case PDF:
		return NewPDFLoader(), nil
	case Markdown:
		return NewMarkdownLoader(), nil
	case PlainText:
		return NewPlainTextLoader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(filePath))
	}
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// SniffContentType 根据文件头检测内容类型
func SniffContentType(filePath string) (ContentType, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return Unknown, err
	}

	switch {
	case mtype.Is("application/pdf"):
		return PDF, nil
	case mtype.Is("text/plain"):
		return PlainText, nil
	default:
		return Unknown, nil
	}
}
