package document

import (
	"fmt"
	"io"
	"os"
)

// PlainTextLoader 纯文本加载器，整个文件作为一页
type PlainTextLoader struct{}

// NewPlainTextLoader 创建一个新的纯文本加载器
func NewPlainTextLoader() Loader {
	return &PlainTextLoader{}
}

// Load 读取纯文本文件
func (l *PlainTextLoader) Load(filePath string) ([]Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return l.LoadReader(file, filePath)
}

// LoadReader 从Reader读取纯文本
func (l *PlainTextLoader) LoadReader(r io.Reader, name string) ([]Page, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text content: %w", err)
	}
	return []Page{{Text: string(content), Source: name, Index: 0}}, nil
}
