package document

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// SplitType 文本分段的类型，决定寻找边界时使用的分隔符
type SplitType string

const (
	// ByParagraph 优先段落，其次换行、句子、单词
	ByParagraph SplitType = "paragraph"
	// BySentence 优先句子，其次换行、单词
	BySentence SplitType = "sentence"
	// ByLength 只按字符长度切分
	ByLength SplitType = "length"
)

// separatorSets 各分割类型的边界分隔符，按优先级排列
var separatorSets = map[SplitType][]string{
	ByParagraph: {"\n\n", "\n", ". ", "! ", "? ", "; ", " "},
	BySentence:  {". ", "! ", "? ", "; ", "\n", " "},
	ByLength:    nil,
}

// SplitterConfig 分段器配置，长度均按字符(rune)计
type SplitterConfig struct {
	SplitType    SplitType // 分割类型
	ChunkSize    int       // 分块大小
	ChunkOverlap int       // 相邻分块的重叠大小
	MaxChunks    int       // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		SplitType:    ByParagraph,
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MaxChunks:    0,
	}
}

// Validate 校验分段配置
func (c SplitterConfig) Validate() error {
	if _, ok := separatorSets[c.SplitType]; !ok {
		return fmt.Errorf("unknown split type: %s", c.SplitType)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Content 文本片段
// Start/End 是片段在拼接后全文中的字符偏移，Text == 全文[Start:End]
type Content struct {
	Text   string // 片段文本
	Index  int    // 片段序号
	Start  int    // 起始偏移(含)
	End    int    // 结束偏移(不含)
	Page   int    // Start所在页码
	Source string // 来源文件
}

// Splitter 文本分段器接口
type Splitter interface {
	// Split 将文本分割成片段
	Split(text string) ([]Content, error)
	// SplitPages 拼接页面文本后分割，片段保留页码
	SplitPages(pages []Page) ([]Content, error)
}

// TextSplitter 滑动窗口分段器
// 每个片段不超过ChunkSize，相邻片段恰好重叠ChunkOverlap，片段首尾相接覆盖全文。
// 片段结尾优先落在窗口后半段的自然边界上，找不到时在窗口末尾硬切。
type TextSplitter struct {
	config     SplitterConfig
	separators [][]rune
}

// NewTextSplitter 创建新的文本分段器
func NewTextSplitter(config SplitterConfig) *TextSplitter {
	seps := separatorSets[config.SplitType]
	runes := make([][]rune, 0, len(seps))
	for _, sep := range seps {
		runes = append(runes, []rune(sep))
	}
	return &TextSplitter{config: config, separators: runes}
}

// Split 将文本分割成片段
func (s *TextSplitter) Split(text string) ([]Content, error) {
	return s.split([]rune(text), nil, "")
}

// pageSeparator 拼接页面时使用的分隔符
const pageSeparator = "\n\n"

// pageOffset 页面在全文中的起始偏移
type pageOffset struct {
	start int
	page  int
}

// SplitPages 按顺序拼接页面(跳过空白页)后分割
func (s *TextSplitter) SplitPages(pages []Page) ([]Content, error) {
	var (
		b       strings.Builder
		offsets []pageOffset
		source  string
		pos     int
	)
	for _, p := range pages {
		if source == "" {
			source = p.Source
		}
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageSeparator)
			pos += utf8.RuneCountInString(pageSeparator)
		}
		offsets = append(offsets, pageOffset{start: pos, page: p.Index})
		b.WriteString(p.Text)
		pos += utf8.RuneCountInString(p.Text)
	}
	return s.split([]rune(b.String()), offsets, source)
}

func (s *TextSplitter) split(runes []rune, offsets []pageOffset, source string) ([]Content, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	total := len(runes)
	if total == 0 {
		return []Content{}, nil
	}

	contents := make([]Content, 0, total/(s.config.ChunkSize-s.config.ChunkOverlap)+1)
	start := 0
	for {
		end := total
		if total-start > s.config.ChunkSize {
			end = s.boundary(runes, start, start+s.config.ChunkSize)
		}

		contents = append(contents, Content{
			Text:   string(runes[start:end]),
			Index:  len(contents),
			Start:  start,
			End:    end,
			Page:   pageAt(offsets, start),
			Source: source,
		})

		if end == total {
			break
		}
		if s.config.MaxChunks > 0 && len(contents) >= s.config.MaxChunks {
			break
		}
		start = end - s.config.ChunkOverlap
	}

	return contents, nil
}

// boundary 在 [start+max(size/2, overlap+1), limit] 内从后往前找最后一个分隔符
// 下界保证下一个窗口至少前进一个字符
func (s *TextSplitter) boundary(runes []rune, start, limit int) int {
	lower := start + s.config.ChunkSize/2
	if floor := start + s.config.ChunkOverlap + 1; floor > lower {
		lower = floor
	}

	for _, sep := range s.separators {
		for end := limit; end >= lower; end-- {
			if endsWith(runes, end, sep) {
				return end
			}
		}
	}
	return limit
}

// endsWith 判断 runes[:end] 是否以sep结尾
func endsWith(runes []rune, end int, sep []rune) bool {
	if end < len(sep) {
		return false
	}
	for i, r := range sep {
		if runes[end-len(sep)+i] != r {
			return false
		}
	}
	return true
}

// pageAt 返回偏移所在的页码，落在页面分隔符上时归属前一页
func pageAt(offsets []pageOffset, pos int) int {
	if len(offsets) == 0 {
		return 0
	}
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i].start > pos })
	if i == 0 {
		return offsets[0].page
	}
	return offsets[i-1].page
}
