package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/paper-rag/internal/arxiv"
	"github.com/fyerfyer/paper-rag/internal/models"
	"github.com/fyerfyer/paper-rag/internal/repository"
	"github.com/sirupsen/logrus"
)

// PaperStatusTracker 在论文记录中跟踪一次运行的进度
// 记录失败只写日志，不影响流水线本身
type PaperStatusTracker struct {
	repo   repository.PaperRepository
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewPaperStatusTracker 创建状态跟踪器，repo为nil时所有操作为空操作
func NewPaperStatusTracker(repo repository.PaperRepository, logger *logrus.Logger) *PaperStatusTracker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PaperStatusTracker{repo: repo, logger: logger}
}

// Start 标记运行开始
func (t *PaperStatusTracker) Start(paperID, runID, path string) {
	if t.repo == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	paper := &models.Paper{
		ID:      paperID,
		PDFPath: path,
		Status:  models.PaperStatusProcessing,
		Stage:   models.StageAcquiring,
		RunID:   runID,
	}
	if existing, err := t.repo.GetByID(paperID); err == nil {
		paper.Title = existing.Title
		paper.Authors = existing.Authors
		paper.FileSize = existing.FileSize
		paper.FetchedAt = existing.FetchedAt
	} else if !errors.Is(err, models.ErrPaperNotFound) {
		t.warn(paperID, err, "Failed to read paper record")
	}

	if err := t.repo.Upsert(paper); err != nil {
		t.warn(paperID, err, "Failed to record run start")
	}
}

// Acquired 记录获取到的PDF信息
func (t *PaperStatusTracker) Acquired(paperID string, result *arxiv.Result, size int64) {
	if t.repo == nil || result == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	paper, err := t.repo.GetByID(paperID)
	if err != nil {
		t.warn(paperID, err, "Failed to read paper record")
		return
	}
	paper.PDFPath = result.Path
	paper.FileSize = size
	paper.Stage = models.StageParsing
	if result.Paper != nil {
		now := time.Now()
		paper.Title = result.Paper.Title
		paper.Authors = strings.Join(result.Paper.Authors, ", ")
		paper.FetchedAt = &now
	}
	if err := t.repo.Upsert(paper); err != nil {
		t.warn(paperID, err, "Failed to record acquired paper")
	}
}

// Stage 记录当前阶段
func (t *PaperStatusTracker) Stage(paperID string, stage models.ProcessStage) {
	if t.repo == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.repo.UpdateStatus(paperID, models.PaperStatusProcessing, stage, ""); err != nil {
		t.warn(paperID, err, "Failed to record stage")
	}
}

// Failed 标记运行失败
func (t *PaperStatusTracker) Failed(paperID string, stage models.ProcessStage, cause error) {
	if t.repo == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.repo.UpdateStatus(paperID, models.PaperStatusFailed, stage, cause.Error()); err != nil {
		t.warn(paperID, err, "Failed to record failure")
	}
}

// Completed 标记运行完成
func (t *PaperStatusTracker) Completed(paperID string, segmentCount int, metadata map[string]interface{}) {
	if t.repo == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var raw []byte
	if len(metadata) > 0 {
		var err error
		if raw, err = json.Marshal(metadata); err != nil {
			t.warn(paperID, err, "Failed to encode run metadata")
			raw = nil
		}
	}
	if err := t.repo.MarkCompleted(paperID, segmentCount, raw); err != nil {
		t.warn(paperID, err, "Failed to record completion")
	}
}

func (t *PaperStatusTracker) warn(paperID string, err error, msg string) {
	t.logger.WithFields(logrus.Fields{
		"paper_id": paperID,
		"error":    err,
	}).Warn(msg)
}
