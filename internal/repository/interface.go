package repository

import "github.com/fyerfyer/paper-rag/internal/models"

// PaperRepository 论文处理记录仓储接口
type PaperRepository interface {
	// Upsert 创建或更新论文记录
	Upsert(paper *models.Paper) error

	// GetByID 根据arXiv ID获取论文记录
	GetByID(id string) (*models.Paper, error)

	// List 按更新时间倒序列出论文记录，status为空时不过滤
	List(offset, limit int, status models.PaperStatus) ([]*models.Paper, int64, error)

	// UpdateStatus 更新处理状态和当前阶段
	UpdateStatus(id string, status models.PaperStatus, stage models.ProcessStage, errorMsg string) error

	// MarkCompleted 标记处理完成并记录片段数量
	MarkCompleted(id string, segmentCount int, metadata []byte) error
}
