package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeThemeIndex 写出测试用的主题索引文件对。
func writeThemeIndex(t *testing.T, dir, theme string, vectors [][]float32, ids []int64) {
	t.Helper()

	f, err := os.Create(filepath.Join(dir, theme+vectorFileExt))
	require.NoError(t, err)
	defer f.Close()

	dim := uint32(0)
	if len(vectors) > 0 {
		dim = uint32(len(vectors[0]))
	}
	require.NoError(t, binary.Write(f, binary.LittleEndian, dim))
	require.NoError(t, binary.Write(f, binary.LittleEndian, uint32(len(vectors))))
	for _, vec := range vectors {
		require.NoError(t, binary.Write(f, binary.LittleEndian, vec))
	}

	data, err := json.Marshal(ids)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, theme+idsFileExt), data, 0o644))
}

func TestFlatStoreSearchOrdering(t *testing.T) {
	dir := t.TempDir()
	// 三个向量与查询 (1,0) 的余弦相似度分别为 1.0、0.0、~0.707
	writeThemeIndex(t, dir, "billing", [][]float32{
		{1, 0},
		{0, 1},
		{5, 5},
	}, []int64{10, 20, 30})

	s, err := NewFlatStore(dir)
	require.NoError(t, err)

	hits, err := s.Search(context.Background(), "billing", []float32{2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, int64(10), hits[0].UtteranceID)
	assert.Equal(t, int64(30), hits[1].UtteranceID)
	assert.Equal(t, int64(20), hits[2].UtteranceID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)
	assert.InDelta(t, 0.7071, float64(hits[1].Score), 1e-3)
}

func TestFlatStoreTopKLimit(t *testing.T) {
	dir := t.TempDir()
	writeThemeIndex(t, dir, "support", [][]float32{
		{1, 0},
		{0, 1},
		{1, 1},
	}, []int64{1, 2, 3})

	s, err := NewFlatStore(dir)
	require.NoError(t, err)

	hits, err := s.Search(context.Background(), "support", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestFlatStoreUnknownTheme(t *testing.T) {
	dir := t.TempDir()
	writeThemeIndex(t, dir, "billing", [][]float32{{1, 0}}, []int64{1})

	s, err := NewFlatStore(dir)
	require.NoError(t, err)

	// 冷主题不是错误，按无命中处理
	hits, err := s.Search(context.Background(), "nonexistent", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatStoreCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	// 两个向量但只有一个 ID
	writeThemeIndex(t, dir, "billing", [][]float32{
		{1, 0},
		{0, 1},
	}, []int64{1})

	_, err := NewFlatStore(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestFlatStoreTruncatedVectorFile(t *testing.T) {
	dir := t.TempDir()
	// 头部声明 2 个向量，但实际只写了 1 个
	f, err := os.Create(filepath.Join(dir, "billing"+vectorFileExt))
	require.NoError(t, err)
	require.NoError(t, binary.Write(f, binary.LittleEndian, uint32(2)))
	require.NoError(t, binary.Write(f, binary.LittleEndian, uint32(2)))
	require.NoError(t, binary.Write(f, binary.LittleEndian, []float32{1, 0}))
	require.NoError(t, f.Close())

	data, err := json.Marshal([]int64{1, 2})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing"+idsFileExt), data, 0o644))

	_, err = NewFlatStore(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestFlatStoreDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	writeThemeIndex(t, dir, "billing", [][]float32{{1, 0}}, []int64{1})

	s, err := NewFlatStore(dir)
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "billing", []float32{1, 0, 0}, 5)
	assert.Error(t, err)
}

func TestFlatStoreThemesAndStats(t *testing.T) {
	dir := t.TempDir()
	writeThemeIndex(t, dir, "support", [][]float32{{1, 0}}, []int64{1})
	writeThemeIndex(t, dir, "billing", [][]float32{{1, 0}, {0, 1}}, []int64{1, 2})

	s, err := NewFlatStore(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"billing", "support"}, s.Themes())

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "billing", stats[0].Theme)
	assert.Equal(t, 2, stats[0].VectorCount)
}
