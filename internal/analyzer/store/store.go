package store

import (
	"context"
	"errors"
)

// AllTheme 是聚合全部话题的合成主题名。
const AllTheme = "all"

// ErrCorruptIndex 表示索引文件与 ID 列表长度不一致，加载时立即失败。
var ErrCorruptIndex = errors.New("vector index and id list disagree in length")

// ScoredID 表示一条相似度搜索命中。
type ScoredID struct {
	// UtteranceID 命中的话语 ID。
	UtteranceID int64
	// Score 内积相似度分数（向量已归一化，等价于余弦相似度）。
	Score float32
}

// ThemeStats 单个主题索引的统计信息。
type ThemeStats struct {
	// Theme 主题名。
	Theme string `json:"theme"`
	// VectorCount 向量数量。
	VectorCount int `json:"vector_count"`
}

// VectorStore 定义按主题分区的向量检索接口。
//
// 索引与 ID 列表由外部批处理任务整体重建，请求路径只读。
// 查询一个不存在的主题返回空结果而不是错误，这是可恢复的冷启动状态。
type VectorStore interface {
	// Search 在指定主题内执行 top-k 相似度搜索。
	Search(ctx context.Context, theme string, vector []float32, topK int) ([]ScoredID, error)

	// Themes 返回已加载索引的主题列表。
	Themes() []string

	// Stats 返回每个主题的索引统计。
	Stats(ctx context.Context) ([]ThemeStats, error)

	// Close 释放底层资源。
	Close(ctx context.Context) error
}
