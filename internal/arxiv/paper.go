package arxiv

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrPaperNotFound 论文源中没有与标识符匹配的论文
var ErrPaperNotFound = errors.New("paper not found")

// Paper arXiv论文元数据
type Paper struct {
	ID        string    // arXiv标识符(不含版本号)
	Title     string    // 标题
	Authors   []string  // 作者
	Summary   string    // 摘要
	Published time.Time // 首次提交时间
	PDFURL    string    // 主PDF地址
}

// Source 论文源接口
type Source interface {
	// Lookup 按标识符精确查询一篇论文，无结果时返回ErrPaperNotFound
	Lookup(ctx context.Context, id string) (*Paper, error)

	// Download 将论文的主PDF写入w
	Download(ctx context.Context, paper *Paper, w io.Writer) error
}

// NormalizeID 去掉标识符两端空白和 arXiv: 前缀
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 6 && strings.EqualFold(id[:6], "arxiv:") {
		id = id[6:]
	}
	return id
}

// stripVersion 去掉 v2 之类的版本后缀
func stripVersion(id string) string {
	i := strings.LastIndex(id, "v")
	if i <= 0 || i == len(id)-1 {
		return id
	}
	for _, r := range id[i+1:] {
		if r < '0' || r > '9' {
			return id
		}
	}
	return id[:i]
}
