package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/paper-rag/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paperRepository 论文记录仓储实现
type paperRepository struct {
	db *gorm.DB // 数据库连接
}

// NewPaperRepository 使用指定的数据库连接创建论文仓储
func NewPaperRepository(db *gorm.DB) PaperRepository {
	return &paperRepository{db: db}
}

// Upsert 创建或更新论文记录，保留首次创建时间和已有的片段数量
func (r *paperRepository) Upsert(paper *models.Paper) error {
	if paper.ID == "" {
		return errors.New("paper ID cannot be empty")
	}
	paper.UpdatedAt = time.Now()

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "authors", "pdf_path", "file_size", "status",
			"stage", "error", "run_id", "fetched_at", "updated_at",
		}),
	}).Create(paper).Error
}

// GetByID 根据ID获取论文记录
func (r *paperRepository) GetByID(id string) (*models.Paper, error) {
	var paper models.Paper
	err := r.db.Where("id = ?", id).First(&paper).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrPaperNotFound, id)
		}
		return nil, err
	}
	return &paper, nil
}

// List 列出论文记录，按更新时间倒序
func (r *paperRepository) List(offset, limit int, status models.PaperStatus) ([]*models.Paper, int64, error) {
	var papers []*models.Paper
	var total int64

	query := r.db.Model(&models.Paper{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&papers).Error
	return papers, total, err
}

// UpdateStatus 更新处理状态和当前阶段
func (r *paperRepository) UpdateStatus(id string, status models.PaperStatus, stage models.ProcessStage, errorMsg string) error {
	switch status {
	case models.PaperStatusProcessing, models.PaperStatusCompleted, models.PaperStatusFailed:
	default:
		return fmt.Errorf("%w: %s", models.ErrInvalidPaperStatus, status)
	}

	result := r.db.Model(&models.Paper{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"stage":      stage,
		"error":      errorMsg,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrPaperNotFound, id)
	}
	return nil
}

// MarkCompleted 标记处理完成
func (r *paperRepository) MarkCompleted(id string, segmentCount int, metadata []byte) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":        models.PaperStatusCompleted,
		"stage":         models.StageCompleted,
		"segment_count": segmentCount,
		"error":         "",
		"processed_at":  &now,
		"updated_at":    now,
	}
	if len(metadata) > 0 {
		updates["metadata"] = datatypes.JSON(metadata)
	}

	result := r.db.Model(&models.Paper{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrPaperNotFound, id)
	}
	return nil
}
