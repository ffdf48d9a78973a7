package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// ComputeDistance 计算两个向量间的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// cosineDistance 计算余弦距离
func cosineDistance(v1, v2 []float32) float32 {
	// 余弦距离 = 1 - 点积 / (||v1|| * ||v2||)
	dot := dotProduct(v1, v2)
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)

	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dot / (norm1 * norm2)
	// 处理浮点精度问题
	if similarity > 1.0 {
		similarity = 1.0
	}

	return 1.0 - similarity
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

// euclideanDistance 计算欧几里德距离
func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// matchFileIDs 检查论文ID是否在过滤列表中
func matchFileIDs(fileID string, fileIDs []string) bool {
	if len(fileIDs) == 0 {
		return true
	}
	for _, id := range fileIDs {
		if id == fileID {
			return true
		}
	}
	return false
}

// matchMetadata 检查文档元数据是否匹配过滤条件
// 按字符串形式比较，JSON往返后int会变成float64
func matchMetadata(docMeta map[string]interface{}, filterMeta map[string]interface{}) bool {
	if len(filterMeta) == 0 {
		return true
	}

	for key, filterValue := range filterMeta {
		docValue, exists := docMeta[key]
		if !exists || fmt.Sprint(docValue) != fmt.Sprint(filterValue) {
			return false
		}
	}

	return true
}

// SortSearchResults 按得分降序排序，得分相同时按片段位置和ID排序
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Document.Position != b.Document.Position {
			return a.Document.Position < b.Document.Position
		}
		return a.Document.ID < b.Document.ID
	})
}

// DistanceToScore 将距离转换为评分
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// 归一化向量的点积在[-1, 1]之间
		return (distance + 1) / 2
	case Euclidean:
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}

	return nil
}

// validateDocument 校验待写入的文档
func validateDocument(doc Document, dim int) error {
	if doc.ID == "" {
		return ErrInvalidID
	}
	return ValidateVector(doc.Vector, dim)
}

// rankDocuments 对候选文档打分、过滤、排序并截断
func rankDocuments(vector []float32, docs []Document, filter SearchFilter, distType DistanceType) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		if !matchFileIDs(doc.FileID, filter.FileIDs) || !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}
		dist, err := ComputeDistance(vector, doc.Vector, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to score document %s: %w", doc.ID, err)
		}
		score := DistanceToScore(dist, distType)
		if filter.MinScore > 0 && score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{Document: doc, Score: score, Distance: dist})
	}

	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}
