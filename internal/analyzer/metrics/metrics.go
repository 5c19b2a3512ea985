// Package metrics 提供对话分析服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// AnalyzerMetrics 对话分析服务业务指标。
type AnalyzerMetrics struct {
	// 分析请求指标
	analysesTotal      uint64 // 总分析次数
	analysesCacheHits  uint64 // 缓存命中次数
	analysesCacheMisses uint64 // 缓存未命中次数
	analysesErrors     uint64 // 分析错误次数

	// 按方法的分析计数
	methodCounts sync.Map // method -> *uint64

	// 检索指标
	retrievalTotal    uint64  // 总检索次数
	retrievalDuration float64 // 检索总耗时（秒）
	retrievalErrors   uint64  // 检索错误次数

	// LLM 调用指标
	llmCallsTotal    uint64  // LLM 总调用次数
	llmCallsDuration float64 // LLM 调用总耗时（秒）
	llmCallsErrors   uint64  // LLM 调用错误次数

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalAnalyzerMetrics *AnalyzerMetrics
	analyzerMetricsOnce   sync.Once
)

// GetAnalyzerMetrics 获取全局指标实例。
func GetAnalyzerMetrics() *AnalyzerMetrics {
	analyzerMetricsOnce.Do(func() {
		globalAnalyzerMetrics = &AnalyzerMetrics{
			startTime: time.Now(),
		}
	})
	return globalAnalyzerMetrics
}

// RecordAnalysis 记录一次分析请求。
func (m *AnalyzerMetrics) RecordAnalysis(method string, cacheHit bool, err error) {
	atomic.AddUint64(&m.analysesTotal, 1)
	m.incrMethod(method)
	if err != nil {
		atomic.AddUint64(&m.analysesErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.analysesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.analysesCacheMisses, 1)
	}
}

func (m *AnalyzerMetrics) incrMethod(method string) {
	if method == "" {
		return
	}
	counter, _ := m.methodCounts.LoadOrStore(method, new(uint64))
	atomic.AddUint64(counter.(*uint64), 1)
}

// RecordRetrieval 记录检索操作。
func (m *AnalyzerMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall 记录 LLM 调用。
// 上游聊天 Provider 不统一暴露 token 用量，这里只记次数与耗时。
func (m *AnalyzerMetrics) RecordLLMCall(duration time.Duration, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// Export 导出 Prometheus 格式指标。
func (m *AnalyzerMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	sb.WriteString(fmt.Sprintf("# HELP %s_analyses_total Total number of analysis requests.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_analyses_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_analyses_total %d\n", prefix, atomic.LoadUint64(&m.analysesTotal)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_analyses_cache_hits_total Number of cache hits.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_analyses_cache_hits_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_analyses_cache_hits_total %d\n", prefix, atomic.LoadUint64(&m.analysesCacheHits)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_analyses_cache_misses_total Number of cache misses.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_analyses_cache_misses_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_analyses_cache_misses_total %d\n", prefix, atomic.LoadUint64(&m.analysesCacheMisses)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_analyses_errors_total Number of analysis errors.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_analyses_errors_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_analyses_errors_total %d\n", prefix, atomic.LoadUint64(&m.analysesErrors)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_analyses_by_method_total Analysis requests by method.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_analyses_by_method_total counter\n", prefix))
	for method, count := range m.methodSnapshot() {
		sb.WriteString(fmt.Sprintf("%s_analyses_by_method_total{method=%q} %d\n", prefix, method, count))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_total Total number of retrievals.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_total %d\n", prefix, atomic.LoadUint64(&m.retrievalTotal)))
	sb.WriteString("\n")

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_duration_seconds_total Total retrieval duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_duration_seconds_total %.6f\n", prefix, retrievalDuration))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_errors_total Number of retrieval errors.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_errors_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_errors_total %d\n", prefix, atomic.LoadUint64(&m.retrievalErrors)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_total Total number of LLM calls.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_total %d\n", prefix, atomic.LoadUint64(&m.llmCallsTotal)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_duration_seconds_total Total LLM call duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_duration_seconds_total %.6f\n", prefix, llmDuration))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_errors_total Number of LLM call errors.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_errors_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_errors_total %d\n", prefix, atomic.LoadUint64(&m.llmCallsErrors)))
	sb.WriteString("\n")

	uptime := time.Since(m.startTime).Seconds()
	sb.WriteString(fmt.Sprintf("# HELP %s_uptime_seconds Service uptime in seconds.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_uptime_seconds gauge\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_uptime_seconds %.2f\n", prefix, uptime))
	sb.WriteString("\n")

	return sb.String()
}

func (m *AnalyzerMetrics) methodSnapshot() map[string]uint64 {
	snapshot := make(map[string]uint64)
	m.methodCounts.Range(func(key, value any) bool {
		snapshot[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return snapshot
}

// Stats 返回当前统计信息（用于 API）。
func (m *AnalyzerMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	analysesTotal := atomic.LoadUint64(&m.analysesTotal)
	cacheHits := atomic.LoadUint64(&m.analysesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.analysesCacheMisses)
	cacheTotal := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if cacheTotal > 0 {
		cacheHitRate = float64(cacheHits) / float64(cacheTotal)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	return map[string]interface{}{
		"analyses": map[string]interface{}{
			"total":          analysesTotal,
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"errors":         atomic.LoadUint64(&m.analysesErrors),
			"by_method":      m.methodSnapshot(),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"llm": map[string]interface{}{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *AnalyzerMetrics) Reset() {
	atomic.StoreUint64(&m.analysesTotal, 0)
	atomic.StoreUint64(&m.analysesCacheHits, 0)
	atomic.StoreUint64(&m.analysesCacheMisses, 0)
	atomic.StoreUint64(&m.analysesErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.llmCallsDuration = 0
	m.durationMu.Unlock()

	m.methodCounts.Range(func(key, _ any) bool {
		m.methodCounts.Delete(key)
		return true
	})

	m.startTime = time.Now()
}
