package store

import (
	"context"
	"fmt"

	"github.com/kart-io/callinsight/pkg/component/milvus"
)

// MilvusStore 实现基于 Milvus 的向量存储，用于大语料部署。
//
// 全部话语存放在单一集合中，theme 作为标量过滤字段，
// utterance_id 标识向量对应的话语。合成主题 "all" 不加过滤。
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, collection string) *MilvusStore {
	return &MilvusStore{client: client, collection: collection}
}

// Search 执行向量相似度搜索，按主题过滤。
func (s *MilvusStore) Search(ctx context.Context, theme string, vector []float32, topK int) ([]ScoredID, error) {
	expr := ""
	if theme != AllTheme {
		expr = fmt.Sprintf("theme == %q", theme)
	}

	hits, err := s.client.SearchWithFilter(ctx, s.collection, vector, expr, topK, []string{"utterance_id"})
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	results := make([]ScoredID, 0, len(hits))
	for _, hit := range hits {
		uttID, ok := hit.Fields["utterance_id"].(int64)
		if !ok {
			continue
		}
		results = append(results, ScoredID{UtteranceID: uttID, Score: hit.Score})
	}
	return results, nil
}

// Themes Milvus 后端不预加载主题清单，返回合成主题。
func (s *MilvusStore) Themes() []string {
	return []string{AllTheme}
}

// Stats 返回集合整体统计。
func (s *MilvusStore) Stats(ctx context.Context) ([]ThemeStats, error) {
	count, err := s.client.GetCollectionStats(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	return []ThemeStats{{Theme: AllTheme, VectorCount: int(count)}}, nil
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)
