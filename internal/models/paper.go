package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaperStatus 论文处理状态类型
type PaperStatus string

const (
	// PaperStatusProcessing 处理中
	PaperStatusProcessing PaperStatus = "processing"
	// PaperStatusCompleted 处理完成
	PaperStatusCompleted PaperStatus = "completed"
	// PaperStatusFailed 处理失败
	PaperStatusFailed PaperStatus = "failed"
)

// ProcessStage 论文处理阶段
type ProcessStage string

const (
	// StageAcquiring 获取PDF
	StageAcquiring ProcessStage = "acquiring"
	// StageParsing 解析阶段
	StageParsing ProcessStage = "parsing"
	// StageChunking 分块阶段
	StageChunking ProcessStage = "chunking"
	// StageVectorizing 向量化阶段
	StageVectorizing ProcessStage = "vectorizing"
	// StageSummarizing 检索并生成摘要
	StageSummarizing ProcessStage = "summarizing"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Paper 论文处理记录
// 每次运行都会更新同一条记录，保存最近一次的结果
type Paper struct {
	ID           string         `gorm:"primaryKey;size:64"` // arXiv ID
	Title        string         `gorm:"type:text"`          // 标题
	Authors      string         `gorm:"type:text"`          // 作者，逗号分隔
	PDFPath      string         `gorm:"size:512"`           // 本地PDF路径
	FileSize     int64          `gorm:"not null;default:0"` // 文件大小（字节）
	Status       PaperStatus    `gorm:"size:20;index"`      // 处理状态
	Stage        ProcessStage   `gorm:"size:20"`            // 当前处理阶段
	SegmentCount int            `gorm:"not null;default:0"` // 入库的片段数量
	Error        string         `gorm:"type:text"`          // 错误信息
	RunID        string         `gorm:"size:36;index"`      // 最近一次运行ID
	FetchedAt    *time.Time     // PDF下载时间
	ProcessedAt  *time.Time     `gorm:"index"`     // 处理完成时间
	CreatedAt    time.Time      // 创建时间
	UpdatedAt    time.Time      `gorm:"index"`     // 更新时间
	Metadata     datatypes.JSON `gorm:"type:json"` // 附加信息，如摘要长度、模型名称
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (p *Paper) BeforeUpdate(tx *gorm.DB) (err error) {
	p.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Paper) TableName() string {
	return "papers"
}
