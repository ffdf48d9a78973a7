package services

import "errors"

// 流水线错误分类，用errors.Is判断
var (
	ErrNotFound         = errors.New("paper not found")
	ErrParse            = errors.New("document parse error")
	ErrEmbeddingService = errors.New("embedding service error")
	ErrGeneration       = errors.New("generation error")
	ErrIO               = errors.New("io error")
)

// Stage 流水线阶段
type Stage string

const (
	StageAcquire Stage = "acquire"
	StageLoad    Stage = "load"
	StageSplit   Stage = "split"
	StageIndex   Stage = "index"
	StageAnswer  Stage = "answer"
)

// PipelineError 某个阶段失败时返回的错误
// Kind 是上面的分类之一，Err 是带上下文的底层错误
type PipelineError struct {
	Stage Stage
	Kind  error
	Err   error
}

// Error 实现error接口，只输出底层错误信息
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

// Is 按错误分类匹配
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap 返回底层错误
func (e *PipelineError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, kind error, err error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: kind, Err: err}
}
