package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_SuccessReplaceAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "cache", "report.json")

	require.NoError(t, WriteFileAtomic(dst, []byte("hello")))
	require.NoError(t, WriteFileAtomic(dst, []byte("world")))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".report.json.tmp-"), "临时文件未清理：%q", e.Name())
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	old := renameFunc
	renameFunc = func(string, string) error { return errors.New("boom") }
	t.Cleanup(func() { renameFunc = old })

	require.Error(t, WriteFileAtomic(dst, []byte("new")))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b), "失败时原文件不应被修改")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomic_DirConflict(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	err := WriteFileAtomic(dst, []byte("x"))
	require.Error(t, err)
	assert.True(t, IsPathTypeConflict(err))
}
