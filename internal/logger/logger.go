package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别：trace, debug, info, warn, error
	File       string // 日志文件路径，为空时输出到Output
	MaxSize    int    // 单个日志文件最大大小(MB)
	MaxBackups int    // 保留的旧文件数量
	MaxAge     int    // 旧文件保留天数
	Output     io.Writer
}

// 常用日志字段
const (
	FieldRunID   = "run_id"   // 运行ID
	FieldPaperID = "paper_id" // 论文ID
	FieldStage   = "stage"    // 处理阶段
	FieldError   = "error"    // 错误信息
)

// New 创建logrus日志器
// stdout 留给进度信息和摘要输出，日志默认写到stderr
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if os.Getenv("DEBUG") == "true" {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		// 文件日志使用JSON格式并按大小轮转
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		return log
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return log
}

// Discard 返回丢弃所有输出的日志器，用于测试和未注入日志器的组件
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
