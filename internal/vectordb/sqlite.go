package vectordb

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyerfyer/paper-rag/internal/database"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sqliteFileName 存储目录下的数据库文件名
const sqliteFileName = "vectors.db"

// segmentRow 片段表记录
type segmentRow struct {
	ID        string            `gorm:"primaryKey;size:191"`
	FileID    string            `gorm:"index;size:191;not null"`
	FileName  string            `gorm:"size:512"`
	Position  int               `gorm:"index"`
	Text      string            `gorm:"type:text"`
	Vector    []float32         `gorm:"serializer:json;type:text;not null"`
	Dimension int               `gorm:"not null"`
	Metadata  datatypes.JSONMap `gorm:"type:json"`
	CreatedAt time.Time
}

// TableName 指定表名
func (segmentRow) TableName() string {
	return "segments"
}

func newSegmentRow(doc Document) segmentRow {
	return segmentRow{
		ID:        doc.ID,
		FileID:    doc.FileID,
		FileName:  doc.FileName,
		Position:  doc.Position,
		Text:      doc.Text,
		Vector:    doc.Vector,
		Dimension: len(doc.Vector),
		Metadata:  datatypes.JSONMap(doc.Metadata),
		CreatedAt: doc.CreatedAt,
	}
}

func (r segmentRow) toDocument() Document {
	return Document{
		ID:        r.ID,
		FileID:    r.FileID,
		FileName:  r.FileName,
		Position:  r.Position,
		Text:      r.Text,
		Vector:    r.Vector,
		CreatedAt: r.CreatedAt,
		Metadata:  map[string]interface{}(r.Metadata),
	}
}

// SQLiteRepository 基于SQLite的持久化向量存储
// 数据保存在 <Path>/vectors.db，重启后可继续使用
type SQLiteRepository struct {
	db        *gorm.DB
	dimension int
	distType  DistanceType
	logger    *logrus.Logger
}

// NewSQLiteRepository 打开或创建SQLite向量存储
func NewSQLiteRepository(config Config) (Repository, error) {
	if config.Path == "" {
		return nil, errors.New("sqlite vector store requires a path")
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := database.Open(&database.Config{
		Type:         "sqlite",
		DSN:          filepath.Join(config.Path, sqliteFileName),
		MaxOpenConns: 1,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	if err := database.Migrate(db, &segmentRow{}); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	logger.WithFields(logrus.Fields{
		"path":      config.Path,
		"dimension": config.Dimension,
		"distance":  distType,
	}).Debug("Opened sqlite vector store")

	return &SQLiteRepository{
		db:        db,
		dimension: config.Dimension,
		distType:  distType,
		logger:    logger,
	}, nil
}

// Add 添加单个文档
func (r *SQLiteRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 在一个事务中批量写入文档，ID已存在时覆盖
func (r *SQLiteRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]segmentRow, 0, len(docs))
	for _, doc := range docs {
		if err := validateDocument(doc, r.dimension); err != nil {
			return err
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		rows = append(rows, newSegmentRow(doc))
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(rows, 100).Error
	})
}

// Get 获取单个文档
func (r *SQLiteRepository) Get(id string) (Document, error) {
	var row segmentRow
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
func (r *SQLiteRepository) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&segmentRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteByFileID 删除指定论文的所有片段
func (r *SQLiteRepository) DeleteByFileID(fileID string) error {
	result := r.db.Where("file_id = ?", fileID).Delete(&segmentRow{})
	if result.Error != nil {
		return result.Error
	}
	r.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"deleted": result.RowsAffected,
	}).Debug("Cleared segments")
	return nil
}

// Search 加载候选片段并在内存中计算距离
func (r *SQLiteRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	query := r.db.Model(&segmentRow{}).Where("dimension = ?", len(vector))
	if len(filter.FileIDs) > 0 {
		query = query.Where("file_id IN ?", filter.FileIDs)
	}

	var rows []segmentRow
	if err := query.Order("position, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = row.toDocument()
	}
	return rankDocuments(vector, docs, filter, r.distType)
}

// Count 获取文档总数
func (r *SQLiteRepository) Count() (int, error) {
	var count int64
	if err := r.db.Model(&segmentRow{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// GetDimension 返回向量维数
func (r *SQLiteRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭数据库连接
func (r *SQLiteRepository) Close() error {
	return database.Close(r.db)
}

func init() {
	RegisterRepository("sqlite", NewSQLiteRepository)
}
