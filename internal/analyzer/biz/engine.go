package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/callinsight/internal/analyzer/metrics"
	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/phrasebook"
	"github.com/kart-io/callinsight/internal/pkg/textutil"
	"github.com/kart-io/callinsight/pkg/llm"
)

// Progress 接收粗粒度的进度通知，仅用于可观测，可以为 nil。
type Progress func(status string)

// report 安全地上报进度。
func report(p Progress, format string, args ...any) {
	if p == nil {
		return
	}
	p(fmt.Sprintf(format, args...))
}

// Strategy 定义一种分块分析策略。
//
// 所有策略共享同一契约：候选按既有排序切分为连续分块，单个分块的
// LLM 失败以内联错误标记记录并继续处理，Context 轨迹独立于 LLM
// 成败始终构建。
type Strategy interface {
	// Name 返回策略名。
	Name() string

	// Run 对排序后的候选执行分析。
	Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error)
}

// 各策略的候选文本截断预算（Unicode 字符数）。
const (
	hierarchicalSnippetLen   = 800
	rollingSnippetLen        = 500
	factsSnippetLen          = 1000
	classificationSnippetLen = 800
	contextSnippetLen        = 300
)

// Engine 管理全部分析策略并提供共享的 LLM 调用设施。
type Engine struct {
	chat       llm.ChatProvider
	dictionary *phrasebook.Dictionary
	metrics    *metrics.AnalyzerMetrics
	strategies map[string]Strategy
	order      []string
}

// NewEngine 创建分析引擎并注册全部策略。
// dictionary 可以为 nil，此时快速分类器退化为全部类别 4。
func NewEngine(chat llm.ChatProvider, dictionary *phrasebook.Dictionary) *Engine {
	e := &Engine{
		chat:       chat,
		dictionary: dictionary,
		metrics:    metrics.GetAnalyzerMetrics(),
		strategies: make(map[string]Strategy),
	}

	e.register(&hierarchicalStrategy{engine: e})
	e.register(&rollingStrategy{engine: e})
	e.register(&factsStrategy{engine: e})
	e.register(&classificationStrategy{engine: e})
	e.register(&callbackStrategy{engine: e})
	e.register(&fastPhraseStrategy{engine: e})

	return e
}

func (e *Engine) register(s Strategy) {
	e.strategies[s.Name()] = s
	e.order = append(e.order, s.Name())
}

// Strategy 按名称查找策略。
func (e *Engine) Strategy(name string) (Strategy, error) {
	s, ok := e.strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown analysis method: %s", name)
	}
	return s, nil
}

// Methods 返回已注册的策略名列表，按注册顺序。
func (e *Engine) Methods() []string {
	methods := make([]string, len(e.order))
	copy(methods, e.order)
	return methods
}

// generate 执行一次 LLM 调用并记录指标。
// 重试由外层的韧性 ChatProvider 包装完成。
func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	response, err := e.chat.Generate(ctx, prompt, "")
	e.metrics.RecordLLMCall(time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// chunkCandidates 将候选按既有排序切分为连续分块。
// 切分穷尽且不重叠，块边界不会切断单条候选。
func chunkCandidates(candidates []*model.RetrievalCandidate, chunkSize int) [][]*model.RetrievalCandidate {
	if chunkSize < 1 {
		chunkSize = 1
	}
	var chunks [][]*model.RetrievalCandidate
	for i := 0; i < len(candidates); i += chunkSize {
		end := i + chunkSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunks = append(chunks, candidates[i:end])
	}
	return chunks
}

// displayScore 返回用于展示的分数：有重排分数用重排分数，否则用相似度。
func displayScore(c *model.RetrievalCandidate) float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return float64(c.SimilarityScore)
}

// chunkContext 将一个分块格式化为提示词上下文。
func chunkContext(chunk []*model.RetrievalCandidate, snippetLen int) string {
	parts := make([]string, len(chunk))
	for i, cand := range chunk {
		snippet := textutil.TruncateWithEllipsis(cand.Utterance.Text, snippetLen)
		parts[i] = fmt.Sprintf("[Схожесть: %.4f] ID: %d\n%s", displayScore(cand), cand.Utterance.ID, snippet)
	}
	return strings.Join(parts, "\n---\n")
}

// contextTrail 构建可审计的上下文轨迹。
// 不依赖任何 LLM 调用结果，即使分析完全失败也可用。
func contextTrail(header string, candidates []*model.RetrievalCandidate) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "ID: %d\nСхожесть: %.4f\nТекст: %s...\n---\n",
			cand.Utterance.ID, displayScore(cand), textutil.TruncateString(cand.Utterance.Text, contextSnippetLen))
	}
	return sb.String()
}

// dedupeByDialog 按 dialog_id 去重，保留首次出现的完整对话文本。
// 返回按首次出现顺序排列的对话列表，每个对话只产生一次判定。
func dedupeByDialog(candidates []*model.RetrievalCandidate) []*model.RetrievalCandidate {
	seen := make(map[int64]struct{}, len(candidates))
	var dialogs []*model.RetrievalCandidate
	for _, cand := range candidates {
		if _, ok := seen[cand.Utterance.DialogID]; ok {
			continue
		}
		seen[cand.Utterance.DialogID] = struct{}{}
		dialogs = append(dialogs, cand)
	}
	return dialogs
}

// logChunkError 记录分块处理错误。
func logChunkError(strategy string, chunkNum int, err error) {
	logger.Errorw("chunk processing failed, continuing with next chunk",
		"strategy", strategy, "chunk", chunkNum, "error", err.Error())
}
