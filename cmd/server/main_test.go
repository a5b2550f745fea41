package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cdas-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolatedEnv 把所有存储路径指向临时目录，并关闭外部服务。
func isolatedEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("CDAS_DATABASE_DRIVER", "sqlite")
	t.Setenv("CDAS_DATABASE_DSN", filepath.Join(root, "cdas.db"))
	t.Setenv("CDAS_STORAGE_BACKEND", "local")
	t.Setenv("CDAS_STORAGE_DOCUMENTS_DIR", filepath.Join(root, "documents"))
	t.Setenv("CDAS_VECTOR_STORE_BACKEND", "local")
	t.Setenv("CDAS_VECTOR_STORE_PERSIST_DIR", filepath.Join(root, "chroma"))
	t.Setenv("CDAS_EMBEDDING_API_KEY", "")
	t.Setenv("CDAS_EMBEDDING_DIMENSIONS", "16")
	t.Setenv("CDAS_RERANK_API_KEY", "")
	t.Setenv("CDAS_DATABASE_REDIS_ADDR", "")
	t.Setenv("CDAS_KAFKA_BROKERS", "")
	t.Setenv("CDAS_LOG_LEVEL", "error")
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestSeedThenQuery(t *testing.T) {
	root := isolatedEnv(t)
	seedDir := filepath.Join(root, "seed")
	require.NoError(t, os.MkdirAll(seedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "课标_数学.txt"), []byte("数与代数 图形与几何 统计与概率"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "notes.md"), []byte("ignored"), 0o644))

	out, err := execute(t, "seed", seedDir)
	require.NoError(t, err)
	assert.Contains(t, out, "imported=1 skipped=0 failed=0")
	assert.Contains(t, out, "课标_数学.txt ready")

	out, err = execute(t, "seed", seedDir)
	require.NoError(t, err)
	assert.Contains(t, out, "imported=0 skipped=1 failed=0")

	out, err = execute(t, "query", "图形与几何", "--limit", "3")
	require.NoError(t, err)
	var records []model.ChunkRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "1-1-0", records[0].ID)
	assert.Equal(t, "数学", records[0].SubjectName)
}

func TestSeed_RequiresDirectory(t *testing.T) {
	isolatedEnv(t)
	t.Setenv("CDAS_SEED_DIR", "")
	_, err := execute(t, "seed")
	assert.Error(t, err)
}

func TestQuery_RequiresText(t *testing.T) {
	isolatedEnv(t)
	_, err := execute(t, "query")
	assert.Error(t, err)
}
