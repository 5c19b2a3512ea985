package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kart-io/logger"
)

const (
	vectorFileExt = ".vec"
	idsFileExt    = ".ids.json"
)

// themeIndex 单个主题的平铺内积索引。
// 向量在加载时做 L2 归一化，内积即余弦相似度。
type themeIndex struct {
	dim     int
	vectors [][]float32
	ids     []int64
}

// FlatStore 实现基于本地文件的向量存储。
//
// 每个主题对应一对文件：<theme>.vec 二进制向量块和 <theme>.ids.json
// 有序 ID 列表。两个文件必须由外部索引任务一起重建，长度不一致
// 视为损坏，加载时报 ErrCorruptIndex。
type FlatStore struct {
	indexes map[string]*themeIndex
}

// NewFlatStore 从目录加载全部主题索引。
func NewFlatStore(dir string) (*FlatStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read index directory %s: %w", dir, err)
	}

	s := &FlatStore{indexes: make(map[string]*themeIndex)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, vectorFileExt) {
			continue
		}
		theme := strings.TrimSuffix(name, vectorFileExt)
		idx, err := loadThemeIndex(
			filepath.Join(dir, name),
			filepath.Join(dir, theme+idsFileExt),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load index for theme %q: %w", theme, err)
		}
		s.indexes[theme] = idx
		logger.Infow("theme index loaded", "theme", theme, "vectors", len(idx.ids), "dim", idx.dim)
	}

	if len(s.indexes) == 0 {
		logger.Warnw("no theme indexes found", "dir", dir)
	}
	return s, nil
}

// loadThemeIndex 加载一对向量/ID 文件并校验一致性。
func loadThemeIndex(vecPath, idsPath string) (*themeIndex, error) {
	f, err := os.Open(vecPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var header struct {
		Dim   uint32
		Count uint32
	}
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read vector file header: %w", err)
	}
	if header.Dim == 0 {
		return nil, fmt.Errorf("vector file %s declares zero dimension", vecPath)
	}

	vectors := make([][]float32, header.Count)
	buf := make([]float32, header.Dim)
	for i := range vectors {
		if err := binary.Read(f, binary.LittleEndian, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrCorruptIndex
			}
			return nil, fmt.Errorf("failed to read vector %d: %w", i, err)
		}
		vec := make([]float32, header.Dim)
		copy(vec, buf)
		normalizeL2(vec)
		vectors[i] = vec
	}

	idsData, err := os.ReadFile(idsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read id list: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(idsData, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse id list: %w", err)
	}

	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors, %d ids", ErrCorruptIndex, len(vectors), len(ids))
	}

	return &themeIndex{
		dim:     int(header.Dim),
		vectors: vectors,
		ids:     ids,
	}, nil
}

// Search 在指定主题内执行暴力内积搜索。
// 主题不存在返回空结果，调用方按"无命中"处理。
func (s *FlatStore) Search(_ context.Context, theme string, vector []float32, topK int) ([]ScoredID, error) {
	idx, ok := s.indexes[theme]
	if !ok {
		logger.Warnw("no index for theme, returning empty result", "theme", theme)
		return nil, nil
	}
	if topK <= 0 || len(idx.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != idx.dim {
		return nil, fmt.Errorf("query vector dimension %d does not match index dimension %d", len(vector), idx.dim)
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeL2(query)

	scored := make([]ScoredID, len(idx.vectors))
	for i, vec := range idx.vectors {
		scored[i] = ScoredID{UtteranceID: idx.ids[i], Score: dotProduct(query, vec)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// Themes 返回已加载的主题列表。
func (s *FlatStore) Themes() []string {
	themes := make([]string, 0, len(s.indexes))
	for theme := range s.indexes {
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	return themes
}

// Stats 返回每个主题的向量数。
func (s *FlatStore) Stats(_ context.Context) ([]ThemeStats, error) {
	stats := make([]ThemeStats, 0, len(s.indexes))
	for _, theme := range s.Themes() {
		stats = append(stats, ThemeStats{
			Theme:       theme,
			VectorCount: len(s.indexes[theme].ids),
		})
	}
	return stats, nil
}

// Close 实现 VectorStore 接口，平铺索引无需释放资源。
func (s *FlatStore) Close(_ context.Context) error {
	return nil
}

// normalizeL2 原地做 L2 归一化，零向量保持不变。
func normalizeL2(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// 确保 FlatStore 实现了 VectorStore 接口。
var _ VectorStore = (*FlatStore)(nil)
