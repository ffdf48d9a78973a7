package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/paper-rag/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Result 获取结果
type Result struct {
	Path       string // 本地文件路径
	Paper      *Paper // 论文元数据，仅在从arXiv下载时有值
	Cached     bool   // 本地文件已存在，未做任何网络操作
	FromMirror bool   // 从镜像存储恢复
}

// Acquirer 确保论文PDF存在于本地路径
type Acquirer struct {
	source   Source
	mirror   storage.Storage
	progress io.Writer
	logger   *logrus.Logger
}

// AcquirerOption 获取器选项
type AcquirerOption func(*Acquirer)

// WithMirror 设置论文镜像存储
func WithMirror(mirror storage.Storage) AcquirerOption {
	return func(a *Acquirer) {
		a.mirror = mirror
	}
}

// WithProgress 设置进度输出
func WithProgress(w io.Writer) AcquirerOption {
	return func(a *Acquirer) {
		a.progress = w
	}
}

// WithAcquirerLogger 设置日志器
func WithAcquirerLogger(logger *logrus.Logger) AcquirerOption {
	return func(a *Acquirer) {
		a.logger = logger
	}
}

// NewAcquirer 创建获取器
func NewAcquirer(source Source, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		source:   source,
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logrus.New()
		a.logger.SetOutput(io.Discard)
	}
	return a
}

// EnsureDocument 确保dest处有论文PDF
// 已存在时不访问网络；否则依次尝试镜像存储和arXiv
func (a *Acquirer) EnsureDocument(ctx context.Context, id, dest string) (*Result, error) {
	id = NormalizeID(id)
	log := a.logger.WithFields(logrus.Fields{"paper_id": id, "path": dest})

	present, err := fileExists(dest)
	if err != nil {
		return nil, err
	}
	if present {
		log.Debug("Local document found, skipping download")
		return &Result{Path: dest, Cached: true}, nil
	}

	if ok, err := a.restoreFromMirror(id, dest); err != nil {
		log.WithError(err).Warn("Failed to restore paper from mirror")
	} else if ok {
		log.Info("Paper restored from mirror")
		return &Result{Path: dest, FromMirror: true}, nil
	}

	fmt.Fprintf(a.progress, "Downloading paper %s...\n", id)
	paper, err := a.source.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.progress, "Downloading: %s\n", paper.Title)

	if err := writeAtomically(dest, func(w io.Writer) error {
		return a.source.Download(ctx, paper, w)
	}); err != nil {
		return nil, err
	}
	fmt.Fprintf(a.progress, "PDF saved to %s\n", dest)
	log.WithField("title", paper.Title).Info("Paper downloaded")

	a.saveToMirror(id, dest)

	return &Result{Path: dest, Paper: paper}, nil
}

// MirrorKey 论文在镜像存储中的键
// 旧式标识符(cs/0112017)中的斜杠保留为目录
func MirrorKey(id string) string {
	return strings.TrimSpace(id) + ".pdf"
}

func (a *Acquirer) restoreFromMirror(id, dest string) (bool, error) {
	if a.mirror == nil {
		return false, nil
	}
	key := MirrorKey(id)
	exists, err := a.mirror.Exists(key)
	if err != nil || !exists {
		return false, err
	}

	rc, err := a.mirror.Get(key)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	if err := writeAtomically(dest, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	}); err != nil {
		return false, err
	}
	return true, nil
}

// saveToMirror 上传到镜像存储，失败只记录日志
func (a *Acquirer) saveToMirror(id, path string) {
	if a.mirror == nil {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to open paper for mirroring")
		return
	}
	defer file.Close()

	info, err := a.mirror.Save(MirrorKey(id), file)
	if err != nil {
		a.logger.WithError(err).WithField("paper_id", id).Warn("Failed to mirror paper")
		return
	}
	a.logger.WithFields(logrus.Fields{"paper_id": id, "key": info.Key, "size": info.Size}).Debug("Paper mirrored")
}

// fileExists 判断路径上是否已有普通文件
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

// writeAtomically 写入同目录下的临时文件，成功后重命名为dest
// 中途失败不会留下会被误认为缓存的文件
func writeAtomically(dest string, write func(io.Writer) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	err = write(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}
