package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/callinsight/internal/analyzer/metrics"
	"github.com/kart-io/callinsight/internal/analyzer/store"
	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/enhancer"
	"github.com/kart-io/callinsight/pkg/llm"
)

// Retriever 按主题检索与问题相关的话语候选。
//
// 流程：可选的 HyDE 扩展 → 向量化 → 主题分区检索 → 目录水合 →
// 可选重排。任何阶段的软失败都退化为保守行为而不是报错：
// 空主题返回空结果，重排失败返回原始排序。
type Retriever struct {
	embedding llm.EmbeddingProvider
	vectors   store.VectorStore
	catalog   *store.Catalog
	enhancer  *enhancer.Enhancer
	metrics   *metrics.AnalyzerMetrics
}

// NewRetriever 创建检索器。enh 可以为 nil，此时不做扩展与重排。
func NewRetriever(embedding llm.EmbeddingProvider, vectors store.VectorStore, catalog *store.Catalog, enh *enhancer.Enhancer) *Retriever {
	return &Retriever{
		embedding: embedding,
		vectors:   vectors,
		catalog:   catalog,
		enhancer:  enh,
		metrics:   metrics.GetAnalyzerMetrics(),
	}
}

// Retrieve 返回与问题最相关的 topK 条候选，按展示分数降序。
// 未命中任何话语时返回空切片而非错误。
func (r *Retriever) Retrieve(ctx context.Context, question, theme string, topK int) ([]*model.RetrievalCandidate, error) {
	start := time.Now()
	candidates, err := r.retrieve(ctx, question, theme, topK)
	r.metrics.RecordRetrieval(time.Since(start), err)
	return candidates, err
}

func (r *Retriever) retrieve(ctx context.Context, question, theme string, topK int) ([]*model.RetrievalCandidate, error) {
	if theme == "" {
		theme = store.AllTheme
	}
	if topK < 1 {
		topK = 1
	}

	searchText := question
	if r.enhancer != nil {
		searchText = r.enhancer.Expand(ctx, question)
	}

	vector, err := r.embedding.EmbedSingle(ctx, searchText)
	if err != nil {
		// 向量化失败是检索层的软失败：记录并返回空结果，
		// 让上层策略以"没有数据"路径继续。
		logger.Errorw("failed to embed query, returning empty result",
			"theme", theme, "error", err.Error())
		return []*model.RetrievalCandidate{}, nil
	}

	hits, err := r.vectors.Search(ctx, theme, vector, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		logger.Debugw("no hits for theme", "theme", theme)
		return []*model.RetrievalCandidate{}, nil
	}

	ids := make([]int64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.UtteranceID
	}

	hydrated, err := r.catalog.GetUtterances(ctx, ids)
	if err != nil {
		return nil, err
	}

	// 按命中顺序组装候选，目录里缺失的 ID 直接丢弃。
	candidates := make([]*model.RetrievalCandidate, 0, len(hits))
	for _, hit := range hits {
		cand, ok := hydrated[hit.UtteranceID]
		if !ok {
			continue
		}
		cand.SimilarityScore = hit.Score
		candidates = append(candidates, cand)
	}

	if r.enhancer != nil {
		candidates = r.enhancer.Rerank(ctx, question, candidates)
	}

	return candidates, nil
}
