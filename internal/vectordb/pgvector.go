package vectordb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/paper-rag/internal/database"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgSegmentRow pgvector片段表记录
type pgSegmentRow struct {
	ID        string            `gorm:"primaryKey"`
	FileID    string            `gorm:"column:file_id"`
	FileName  string            `gorm:"column:file_name"`
	Position  int               `gorm:"column:position"`
	Text      string            `gorm:"column:text"`
	Embedding pgvector.Vector   `gorm:"column:embedding"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt time.Time         `gorm:"column:created_at"`
}

// TableName 指定表名
func (pgSegmentRow) TableName() string {
	return "segments"
}

// pgSearchRow 带距离的查询结果
type pgSearchRow struct {
	pgSegmentRow `gorm:"embedded"`
	Distance     float64 `gorm:"column:distance"`
}

func (r pgSegmentRow) toDocument() Document {
	return Document{
		ID:        r.ID,
		FileID:    r.FileID,
		FileName:  r.FileName,
		Position:  r.Position,
		Text:      r.Text,
		Vector:    r.Embedding.Slice(),
		CreatedAt: r.CreatedAt,
		Metadata:  map[string]interface{}(r.Metadata),
	}
}

// PgVectorRepository 基于PostgreSQL pgvector扩展的向量存储
type PgVectorRepository struct {
	db        *gorm.DB
	dimension int
	distType  DistanceType
	logger    *logrus.Logger
}

// NewPgVectorRepository 连接PostgreSQL并确保表结构存在
func NewPgVectorRepository(config Config) (Repository, error) {
	if config.DSN == "" {
		return nil, errors.New("pgvector store requires a dsn")
	}
	if config.Dimension <= 0 {
		return nil, errors.New("pgvector store requires a positive dimension")
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := database.Open(&database.Config{Type: "postgres", DSN: config.DSN}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open pgvector store: %w", err)
	}

	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL,
			file_name TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			text TEXT,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ
		)`, config.Dimension),
		"CREATE INDEX IF NOT EXISTS idx_segments_file_id ON segments (file_id)",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to prepare pgvector schema: %w", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	return &PgVectorRepository{
		db:        db,
		dimension: config.Dimension,
		distType:  distType,
		logger:    logger,
	}, nil
}

// Add 添加单个文档
func (r *PgVectorRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 在一个事务中批量写入文档
func (r *PgVectorRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]pgSegmentRow, 0, len(docs))
	for _, doc := range docs {
		if err := validateDocument(doc, r.dimension); err != nil {
			return err
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		rows = append(rows, pgSegmentRow{
			ID:        doc.ID,
			FileID:    doc.FileID,
			FileName:  doc.FileName,
			Position:  doc.Position,
			Text:      doc.Text,
			Embedding: pgvector.NewVector(doc.Vector),
			Metadata:  datatypes.JSONMap(doc.Metadata),
			CreatedAt: doc.CreatedAt,
		})
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(rows, 100).Error
	})
}

// Get 获取单个文档
func (r *PgVectorRepository) Get(id string) (Document, error) {
	var row pgSegmentRow
	err := r.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return row.toDocument(), nil
}

// Delete 删除单个文档
func (r *PgVectorRepository) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&pgSegmentRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteByFileID 删除指定论文的所有片段
func (r *PgVectorRepository) DeleteByFileID(fileID string) error {
	return r.db.Where("file_id = ?", fileID).Delete(&pgSegmentRow{}).Error
}

// distanceExpr 返回距离表达式和排序方向
func (r *PgVectorRepository) distanceExpr() (string, string, error) {
	switch r.distType {
	case Cosine:
		return "embedding <=> ?", "ASC", nil
	case Euclidean:
		return "embedding <-> ?", "ASC", nil
	case DotProduct:
		// <#> 返回负内积
		return "(embedding <#> ?) * -1", "DESC", nil
	default:
		return "", "", fmt.Errorf("unsupported distance type: %s", r.distType)
	}
}

// Search 由数据库完成距离计算和排序
func (r *PgVectorRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	expr, direction, err := r.distanceExpr()
	if err != nil {
		return nil, err
	}

	query := r.db.Model(&pgSegmentRow{}).
		Select("*, "+expr+" AS distance", pgvector.NewVector(vector))
	if len(filter.FileIDs) > 0 {
		query = query.Where("file_id IN ?", filter.FileIDs)
	}
	if len(filter.Metadata) > 0 {
		meta, err := json.Marshal(filter.Metadata)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata filter: %w", err)
		}
		query = query.Where("metadata @> ?::jsonb", string(meta))
	}
	query = query.Order("distance " + direction).Order("position ASC").Order("id ASC")
	if filter.MaxResults > 0 {
		query = query.Limit(filter.MaxResults)
	}

	var rows []pgSearchRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search segments: %w", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		dist := float32(row.Distance)
		score := DistanceToScore(dist, r.distType)
		if filter.MinScore > 0 && score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: row.toDocument(),
			Score:    score,
			Distance: dist,
		})
	}
	SortSearchResults(results)
	return results, nil
}

// Count 获取文档总数
func (r *PgVectorRepository) Count() (int, error) {
	var count int64
	if err := r.db.Model(&pgSegmentRow{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// GetDimension 返回向量维数
func (r *PgVectorRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭数据库连接
func (r *PgVectorRepository) Close() error {
	return database.Close(r.db)
}

func init() {
	RegisterRepository("pgvector", NewPgVectorRepository)
}
