package models

import "errors"

var (
	// ErrPaperNotFound 论文记录不存在
	ErrPaperNotFound = errors.New("paper not found")

	// ErrInvalidPaperStatus 无效的论文状态
	ErrInvalidPaperStatus = errors.New("invalid paper status")
)
