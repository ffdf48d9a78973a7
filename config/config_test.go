package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp 切换到临时目录，避免读取工作目录下的config.yaml
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadDefaults 测试默认配置
func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "2210.03629", cfg.Paper.ID)
	assert.Equal(t, "./react.pdf", cfg.Paper.DocumentPath)
	assert.Equal(t, "Please provide a comprehensive summary of this document.", cfg.Paper.Query)
	assert.Equal(t, "./db", cfg.VectorDB.Path)
	assert.Equal(t, "sqlite", cfg.VectorDB.Type)
	assert.Equal(t, 0, cfg.VectorDB.Dim)
	assert.Equal(t, "summary", cfg.LLM.Template)
	assert.Equal(t, "paragraph", cfg.Document.SplitType)
	assert.Equal(t, "text-embedding-3-small", cfg.Embed.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, float32(0), cfg.LLM.Temperature)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, 200, cfg.Document.ChunkOverlap)
	assert.Equal(t, 3, cfg.Search.Limit)
	assert.Equal(t, 2*time.Minute, cfg.ArXiv.Timeout)

	// ${OPENAI_API_KEY} 被展开
	assert.Equal(t, "sk-test", cfg.Embed.APIKey)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

// TestLoadFromFile 测试从文件加载配置
func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
paper:
  id: "1706.03762"
  document_path: ./attention.pdf
document:
  chunk_size: 500
  chunk_overlap: 50
search:
  limit: 5
cache:
  enable: false
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "1706.03762", cfg.Paper.ID)
	assert.Equal(t, "./attention.pdf", cfg.Paper.DocumentPath)
	assert.Equal(t, 500, cfg.Document.ChunkSize)
	assert.Equal(t, 50, cfg.Document.ChunkOverlap)
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.False(t, cfg.Cache.Enable)
	// 未设置的项保留默认值
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

// TestLoadMissingExplicitFile 测试显式指定的配置文件不存在
func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

// TestEnvironmentOverride 测试环境变量覆盖
func TestEnvironmentOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("SEARCH_LIMIT", "7")
	t.Setenv("EMBED_API_KEY", "sk-embed")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Search.Limit)
	assert.Equal(t, "sk-embed", cfg.Embed.APIKey)
}

// TestFlagOverride 测试命令行参数覆盖
func TestFlagOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SEARCH_LIMIT", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("paper", "2210.03629", "")
	flags.Int("k", 3, "")
	flags.Int("chunk-size", 1000, "")
	require.NoError(t, flags.Parse([]string{"--paper", "2305.10601", "--k", "4"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "2305.10601", cfg.Paper.ID)
	assert.Equal(t, 4, cfg.Search.Limit)
	// 未修改的参数不覆盖默认值
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
}

// TestFlagOverrideGeneration 测试模板、分块方式和向量维度参数
func TestFlagOverrideGeneration(t *testing.T) {
	chdirTemp(t)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("template", "summary", "")
	flags.String("split-type", "paragraph", "")
	flags.Int("dim", 0, "")
	require.NoError(t, flags.Parse([]string{"--template", "qa", "--split-type", "sentence", "--dim", "3072"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "qa", cfg.LLM.Template)
	assert.Equal(t, "sentence", cfg.Document.SplitType)
	assert.Equal(t, 3072, cfg.VectorDB.Dim)
}

// TestValidate 测试配置校验
func TestValidate(t *testing.T) {
	t.Run("overlap must be smaller than chunk size", func(t *testing.T) {
		path := writeConfigFile(t, `
document:
  chunk_size: 100
  chunk_overlap: 100
`)
		_, err := Load(path, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ChunkOverlap")
	})

	t.Run("unknown vector store type", func(t *testing.T) {
		path := writeConfigFile(t, `
vectordb:
  type: faiss
`)
		_, err := Load(path, nil)
		assert.Error(t, err)
	})

	t.Run("pgvector needs dsn", func(t *testing.T) {
		path := writeConfigFile(t, `
vectordb:
  type: pgvector
`)
		_, err := Load(path, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dsn")
	})

	t.Run("unknown template", func(t *testing.T) {
		path := writeConfigFile(t, `
llm:
  template: chat
`)
		_, err := Load(path, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Template")
	})

	t.Run("unknown split type", func(t *testing.T) {
		path := writeConfigFile(t, `
document:
  split_type: semantic
`)
		_, err := Load(path, nil)
		assert.Error(t, err)
	})

	t.Run("negative dimension", func(t *testing.T) {
		path := writeConfigFile(t, `
vectordb:
  dim: -1
`)
		_, err := Load(path, nil)
		assert.Error(t, err)
	})

	t.Run("retrieval k must be positive", func(t *testing.T) {
		path := writeConfigFile(t, `
search:
  limit: 0
`)
		_, err := Load(path, nil)
		assert.Error(t, err)
	})
}
