package biz

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/callinsight/internal/analyzer/metrics"
	"github.com/kart-io/callinsight/internal/analyzer/store"
	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/phrasebook"
	"github.com/kart-io/callinsight/internal/pkg/textutil"
	"github.com/kart-io/callinsight/pkg/infra/pool"
)

// AnalysisRequest 一次分析请求的全部参数。
type AnalysisRequest struct {
	Question  string
	Theme     string
	Method    string
	ChunkSize int
	TopK      int
	Progress  Progress
}

// Service 定义对话分析服务接口。
type Service interface {
	// Analyze 执行完整的检索加分块分析流程。
	Analyze(ctx context.Context, req *AnalysisRequest) (*model.AnalysisResult, error)
	// Search 仅执行检索，返回候选列表。
	Search(ctx context.Context, question, theme string, topK int) ([]*model.RetrievalCandidate, error)
	// Methods 返回可用的分析方法名列表。
	Methods() []string
	// History 返回最近的问答记录。
	History(ctx context.Context, limit int) ([]model.QARecord, error)
	// AggregateDictionary 从目录里的已验证短语重建词典并落盘。
	AggregateDictionary(ctx context.Context) (*phrasebook.Dictionary, error)
	// Stats 返回服务统计信息。
	Stats(ctx context.Context) (map[string]any, error)
}

// AnalyzerService 组合检索器、分析引擎与缓存提供完整服务。
type AnalyzerService struct {
	retriever      *Retriever
	engine         *Engine
	cache          *AnalysisCache
	catalog        *store.Catalog
	vectors        store.VectorStore
	dictionaryPath string
	metrics        *metrics.AnalyzerMetrics
}

// NewAnalyzerService 创建分析服务实例。
func NewAnalyzerService(
	retriever *Retriever,
	engine *Engine,
	cache *AnalysisCache,
	catalog *store.Catalog,
	vectors store.VectorStore,
	dictionaryPath string,
) *AnalyzerService {
	return &AnalyzerService{
		retriever:      retriever,
		engine:         engine,
		cache:          cache,
		catalog:        catalog,
		vectors:        vectors,
		dictionaryPath: dictionaryPath,
		metrics:        metrics.GetAnalyzerMetrics(),
	}
}

// Analyze 执行分析：缓存优先，未命中走检索加策略，成功后异步记账。
func (s *AnalyzerService) Analyze(ctx context.Context, req *AnalysisRequest) (*model.AnalysisResult, error) {
	strategy, err := s.engine.Strategy(req.Method)
	if err != nil {
		s.metrics.RecordAnalysis(req.Method, false, err)
		return nil, err
	}

	if cached, cacheErr := s.cache.Get(ctx, req.Question, req.Theme, req.Method, req.ChunkSize, req.TopK); cacheErr == nil && cached != nil {
		s.metrics.RecordAnalysis(req.Method, true, nil)
		return cached, nil
	}

	candidates, err := s.retriever.Retrieve(ctx, req.Question, req.Theme, req.TopK)
	if err != nil {
		s.metrics.RecordAnalysis(req.Method, false, err)
		return nil, err
	}

	result, err := strategy.Run(ctx, req.Question, candidates, req.ChunkSize, req.Progress)
	if err != nil {
		s.metrics.RecordAnalysis(req.Method, false, err)
		return nil, err
	}
	s.metrics.RecordAnalysis(req.Method, false, nil)

	if cacheErr := s.cache.Set(ctx, req.Question, req.Theme, req.Method, req.ChunkSize, req.TopK, result); cacheErr != nil {
		logger.Warnw("failed to cache analysis result", "method", req.Method, "error", cacheErr.Error())
	}

	s.recordQAAsync(req, result)

	return result, nil
}

// recordQAAsync 在后台把问答落入目录，不阻塞请求路径。
func (s *AnalyzerService) recordQAAsync(req *AnalysisRequest, result *model.AnalysisResult) {
	record := &model.QARecord{
		ID:             newULID(),
		Question:       req.Question,
		Theme:          req.Theme,
		Method:         req.Method,
		Parameters:     fmt.Sprintf(`{"chunk_size":%d,"top_k":%d}`, req.ChunkSize, req.TopK),
		Answer:         result.Answer,
		ContextSummary: textutil.TruncateString(result.Context, 2000),
		CreatedAt:      time.Now(),
	}

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.catalog.SaveQARecord(ctx, record); err != nil {
			logger.Warnw("failed to persist QA record", "id", record.ID, "error", err.Error())
		}
	}

	if err := pool.SubmitToType(pool.BackgroundPool, task); err != nil {
		// 池不可用时退化为裸 goroutine，记录不能丢。
		logger.Debugw("background pool unavailable, falling back to goroutine", "error", err.Error())
		go task()
	}
}

// Search 仅执行检索。
func (s *AnalyzerService) Search(ctx context.Context, question, theme string, topK int) ([]*model.RetrievalCandidate, error) {
	return s.retriever.Retrieve(ctx, question, theme, topK)
}

// Methods 返回可用的分析方法名列表。
func (s *AnalyzerService) Methods() []string {
	return s.engine.Methods()
}

// History 返回最近的问答记录。
func (s *AnalyzerService) History(ctx context.Context, limit int) ([]model.QARecord, error) {
	return s.catalog.ListQARecords(ctx, limit)
}

// AggregateDictionary 从目录里的已验证短语重建词典并写回词典文件。
func (s *AnalyzerService) AggregateDictionary(ctx context.Context) (*phrasebook.Dictionary, error) {
	phrases, err := s.catalog.VerifiedPhrases(ctx)
	if err != nil {
		return nil, err
	}

	dict := phrasebook.Aggregate(phrases)
	if err := dict.Save(s.dictionaryPath); err != nil {
		return nil, err
	}

	logger.Infow("dictionary aggregated", "path", s.dictionaryPath, "phrases", len(phrases))
	return dict, nil
}

// Stats 返回服务统计信息：业务指标、主题分布与向量库状态。
func (s *AnalyzerService) Stats(ctx context.Context) (map[string]any, error) {
	stats := map[string]any{
		"metrics": s.metrics.Stats(),
	}

	if themes, err := s.catalog.DialogCountByTheme(ctx); err == nil {
		stats["dialogs_by_theme"] = themes
	} else {
		logger.Warnw("failed to collect theme stats", "error", err.Error())
	}

	if vectorStats, err := s.vectors.Stats(ctx); err == nil {
		stats["vector_index"] = vectorStats
	} else {
		logger.Warnw("failed to collect vector index stats", "error", err.Error())
	}

	if cacheStats, err := s.cache.GetStats(ctx); err == nil {
		stats["cache"] = cacheStats
	}

	return stats, nil
}

// 使用单调熵源确保同一毫秒内生成的 ID 也是有序的
var (
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
	ulidMu      sync.Mutex
)

func newULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
