// Package enhancer 提供检索增强功能。
//
// 实现两种可选增强：
//   - HyDE（假设文档嵌入）: 用 LLM 生成的假设答案代替原始问题做嵌入，
//     弥合口语化提问与通话转写用语之间的词汇差异
//   - Reranking（重排序）: 对检索结果按 (query, text) 成对相关性重新打分
//
// 两者都遵循 fail-open 语义：任何 LLM 错误都退化为未增强路径，
// 不向调用方抛出。
package enhancer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/textutil"
	"github.com/kart-io/callinsight/pkg/llm"
)

// Config 增强器配置。
type Config struct {
	// EnableHyDE 是否启用 HyDE（假设文档嵌入）。
	EnableHyDE bool `mapstructure:"enable_hyde"`

	// EnableRerank 是否启用重排序。
	EnableRerank bool `mapstructure:"enable_rerank"`

	// RerankTopK 重排序后保留的候选数量，0 表示全部保留。
	RerankTopK int `mapstructure:"rerank_top_k"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		EnableHyDE:   true,
		EnableRerank: false, // 重排序逐条调用 LLM，默认关闭
		RerankTopK:   0,
	}
}

// Enhancer 提供检索增强功能。
type Enhancer struct {
	chatProvider llm.ChatProvider
	config       Config
}

// New 创建新的增强器。
func New(chatProvider llm.ChatProvider, config Config) *Enhancer {
	return &Enhancer{
		chatProvider: chatProvider,
		config:       config,
	}
}

// Expand 将用户问题扩写为假设性答案文本，仅用作嵌入输入。
// 任何失败都原样返回问题，调用方无需感知。
func (e *Enhancer) Expand(ctx context.Context, question string) string {
	if !e.config.EnableHyDE {
		return question
	}

	prompt := fmt.Sprintf(`Ты — эксперт по анализу диалогов call-центра.
Напиши короткий гипотетический ответ на вопрос так, как он мог бы звучать
во фрагменте реального диалога между клиентом и оператором.
Не добавляй пояснений, выведи только сам текст ответа.

Вопрос: %s

Гипотетический ответ:`, question)

	response, err := e.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		logger.Warnw("HyDE expansion failed, falling back to original question", "error", err.Error())
		return question
	}

	expansion := strings.TrimSpace(response)
	if expansion == "" {
		return question
	}

	logger.Debugw("question expanded via HyDE", "question_len", len(question), "expansion_len", len(expansion))
	return expansion
}

// Rerank 对候选列表按 (query, text) 成对相关性重新打分并降序排序。
// 禁用或任何评分错误都返回输入列表本身，保持原有顺序。
// 重排后 SimilarityScore 保留以供审计。
func (e *Enhancer) Rerank(ctx context.Context, query string, candidates []*model.RetrievalCandidate) []*model.RetrievalCandidate {
	if !e.config.EnableRerank || len(candidates) == 0 {
		return candidates
	}

	reranked := make([]*model.RetrievalCandidate, len(candidates))
	for i, cand := range candidates {
		score, err := e.scoreRelevance(ctx, query, cand.Utterance.Text)
		if err != nil {
			logger.Warnw("reranking failed, keeping original order", "error", err.Error())
			return candidates
		}
		clone := *cand
		clone.RerankScore = &score
		reranked[i] = &clone
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return *reranked[i].RerankScore > *reranked[j].RerankScore
	})

	if e.config.RerankTopK > 0 && len(reranked) > e.config.RerankTopK {
		reranked = reranked[:e.config.RerankTopK]
	}

	logger.Debugw("reranking complete", "original_count", len(candidates), "final_count", len(reranked))
	return reranked
}

// scoreRelevance 使用 LLM 评估文本与查询的相关性。
func (e *Enhancer) scoreRelevance(ctx context.Context, query, text string) (float64, error) {
	truncated := textutil.TruncateString(text, 2000)

	prompt := fmt.Sprintf(`Оцени релевантность фрагмента диалога запросу.

Запрос: %s

Фрагмент: %s

Верни только одно число от 0 до 1:
- 1.0: полностью релевантен, напрямую отвечает на запрос
- 0.7-0.9: высокая релевантность
- 0.4-0.6: частичная релевантность
- 0.1-0.3: низкая релевантность
- 0.0: не релевантен

Оценка:`, query, truncated)

	response, err := e.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		return 0, err
	}

	return parseScore(response), nil
}

// parseScore 从 LLM 响应中解析分数，失败时返回中等分数。
func parseScore(response string) float64 {
	response = strings.TrimSpace(response)

	var score float64
	if _, err := fmt.Sscanf(response, "%f", &score); err == nil {
		if score >= 0 && score <= 1 {
			return score
		}
	}

	for _, part := range strings.Fields(response) {
		if _, err := fmt.Sscanf(part, "%f", &score); err == nil {
			if score >= 0 && score <= 1 {
				return score
			}
		}
	}

	return 0.5
}
