package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFLoader PDF文档加载器，每页生成一个Page
type PDFLoader struct{}

// NewPDFLoader 创建一个新的PDF加载器
func NewPDFLoader() Loader {
	return &PDFLoader{}
}

// Load 读取PDF文件并逐页提取文本
// 文件不存在等IO错误原样返回，内容无法解析时返回ErrParse
func (l *PDFLoader) Load(filePath string) (pages []Page, err error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filePath)
	}

	// ledongthuc/pdf 遇到损坏的文件可能panic
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, pdfParseError(filePath, fmt.Errorf("%v", r))
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, pdfParseError(filePath, err)
	}
	defer f.Close()

	pages, err = readPages(reader, filePath)
	if err != nil {
		return nil, pdfParseError(filePath, err)
	}
	return pages, nil
}

// LoadReader 从Reader读取PDF内容
func (l *PDFLoader) LoadReader(r io.Reader, name string) (pages []Page, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf content: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, pdfParseError("", fmt.Errorf("%s: %v", name, rec))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, pdfParseError("", fmt.Errorf("%s: %w", name, err))
	}
	pages, err = readPages(reader, name)
	if err != nil {
		return nil, pdfParseError("", fmt.Errorf("%s: %w", name, err))
	}
	return pages, nil
}

// readPages 按页码顺序提取文本
func readPages(reader *pdf.Reader, source string) ([]Page, error) {
	total := reader.NumPage()
	if total == 0 {
		return nil, errors.New("document has no pages")
	}

	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		var text string
		if !p.V.IsNull() {
			t, err := p.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", i, err)
			}
			text = t
		}
		pages = append(pages, Page{Text: text, Source: source, Index: i - 1})
	}
	return pages, nil
}

// pdfParseError 构造解析错误，附带pdfcpu的校验结果便于定位问题
func pdfParseError(filePath string, cause error) error {
	if filePath != "" {
		if verr := api.ValidateFile(filePath, model.NewDefaultConfiguration()); verr != nil {
			return fmt.Errorf("%w: %s: %v (validation: %v)", ErrParse, filePath, cause, verr)
		}
		return fmt.Errorf("%w: %s: %v", ErrParse, filePath, cause)
	}
	return fmt.Errorf("%w: %v", ErrParse, cause)
}
