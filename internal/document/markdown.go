package document

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownLoader Markdown文档加载器
type MarkdownLoader struct{}

// NewMarkdownLoader 创建新的Markdown加载器
func NewMarkdownLoader() Loader {
	return &MarkdownLoader{}
}

// Load 读取Markdown文件并提取文本内容
func (l *MarkdownLoader) Load(filePath string) ([]Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return l.LoadReader(file, filePath)
}

// LoadReader 从Reader读取Markdown内容
func (l *MarkdownLoader) LoadReader(r io.Reader, name string) ([]Page, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %w", err)
	}
	return []Page{{Text: StripMarkup(string(content)), Source: name, Index: 0}}, nil
}

// StripMarkup 将Markdown文本转换为纯文本，保留段落结构
// 只去掉解析器识别出的标记，有序列表编号和正文里的尖括号原样保留
func StripMarkup(text string) string {
	doc := parser.NewWithExtensions(markupExtensions).Parse([]byte(text))

	var buf bytes.Buffer
	var counters []int
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				buf.WriteString(stdhtml.UnescapeString(string(n.Literal)))
			}
		case *ast.Code:
			if entering {
				buf.Write(n.Literal)
			}
		case *ast.CodeBlock:
			if entering {
				endBlock(&buf)
				buf.Write(n.Literal)
				endBlock(&buf)
			}
		case *ast.HTMLSpan:
			if entering && !htmlTag.Match(n.Literal) {
				buf.Write(n.Literal)
			}
		case *ast.HTMLBlock:
			if entering {
				endBlock(&buf)
				buf.Write(htmlTagInBlock.ReplaceAll(n.Literal, nil))
				endBlock(&buf)
			}
		case *ast.Hardbreak, *ast.Softbreak:
			if entering {
				buf.WriteByte('\n')
			}
		case *ast.HorizontalRule:
			if entering {
				endBlock(&buf)
			}
		case *ast.Paragraph:
			if entering {
				break
			}
			if _, inItem := n.Parent.(*ast.ListItem); inItem {
				trimTrailing(&buf)
				buf.WriteByte('\n')
			} else {
				endBlock(&buf)
			}
		case *ast.Heading, *ast.Table:
			if !entering {
				endBlock(&buf)
			}
		case *ast.TableCell:
			if !entering {
				buf.WriteByte(' ')
			}
		case *ast.TableRow:
			if !entering {
				trimTrailing(&buf)
				buf.WriteByte('\n')
			}
		case *ast.List:
			_, nested := n.Parent.(*ast.ListItem)
			if entering {
				if nested {
					trimTrailing(&buf)
					buf.WriteByte('\n')
				}
				start := n.Start
				if start <= 0 {
					start = 1
				}
				counters = append(counters, start)
				break
			}
			counters = counters[:len(counters)-1]
			if !nested {
				endBlock(&buf)
			}
		case *ast.ListItem:
			if !entering {
				trimTrailing(&buf)
				buf.WriteByte('\n')
				break
			}
			switch {
			case n.ListFlags&(ast.ListTypeTerm|ast.ListTypeDefinition) != 0:
			case n.ListFlags&ast.ListTypeOrdered != 0 && len(counters) > 0:
				fmt.Fprintf(&buf, "%d. ", counters[len(counters)-1])
				counters[len(counters)-1]++
			default:
				buf.WriteString("- ")
			}
		}
		return ast.GoToNext
	})

	return normalizeWhitespace(buf.String())
}

// markupExtensions 不解析MathJax，正文里的 "$" 保持原样
const markupExtensions = (parser.CommonExtensions | parser.OrderedListStart) &^ parser.MathJax

var (
	// htmlTag 完整的单个HTML标签，属性必须带值，"<b and c>" 这类比较表达式不算
	htmlTag = regexp.MustCompile(`^(?:<!--[\s\S]*?-->|</?[A-Za-z][A-Za-z0-9]*(?:\s+[A-Za-z_:][-A-Za-z0-9_:.]*\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'=<>` + "`" + `]+))*\s*/?>)$`)
	// htmlTagInBlock HTML块中的标签
	htmlTagInBlock = regexp.MustCompile(`<!--[\s\S]*?-->|</?[A-Za-z][A-Za-z0-9]*(?:\s+[A-Za-z_:][-A-Za-z0-9_:.]*\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'=<>` + "`" + `]+))*\s*/?>`)
)

// endBlock 结束当前块，块之间保留一个空行
func endBlock(buf *bytes.Buffer) {
	trimTrailing(buf)
	if buf.Len() > 0 {
		buf.WriteString("\n\n")
	}
}

// trimTrailing 去掉末尾的空白
func trimTrailing(buf *bytes.Buffer) {
	buf.Truncate(len(bytes.TrimRight(buf.Bytes(), " \t\n")))
}

// normalizeWhitespace 折叠行内空白，最多保留一个空行
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
