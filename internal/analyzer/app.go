package app

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/callinsight/internal/analyzer/biz"
	"github.com/kart-io/callinsight/internal/analyzer/handler"
	"github.com/kart-io/callinsight/internal/analyzer/router"
	"github.com/kart-io/callinsight/internal/analyzer/store"
	"github.com/kart-io/callinsight/internal/pkg/enhancer"
	"github.com/kart-io/callinsight/internal/pkg/phrasebook"
	"github.com/kart-io/callinsight/pkg/component/milvus"
	"github.com/kart-io/callinsight/pkg/infra/app"
	"github.com/kart-io/callinsight/pkg/infra/pool"
	"github.com/kart-io/callinsight/pkg/llm"
	"github.com/kart-io/callinsight/pkg/llm/resilience"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/callinsight/pkg/llm/ollama"
)

const (
	appName        = "callinsight"
	appDescription = `CallInsight Dialog Analyzer

Analytical service over call-center dialog transcripts.

This server provides:
  - Theme-partitioned semantic retrieval over dialog utterances
  - Chunked LLM analysis in several strategies (hierarchical, rolling,
    facts, classification, callback auditing)
  - Dictionary-based fast classification without LLM calls`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run runs the analyzer service with the given options.
func Run(opts *Options) error {
	printBanner(opts)

	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting analyzer service...")

	// 2. 初始化协程池
	if err := pool.InitGlobal(); err != nil {
		return fmt.Errorf("failed to initialize worker pools: %w", err)
	}
	defer func() { _ = pool.CloseGlobal() }()

	// 3. 初始化向量存储
	vectors, cleanup, err := newVectorStore(opts)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Infow("Vector store initialized", "backend", opts.Analyzer.VectorBackend)

	// 4. 初始化话语目录
	catalog, err := store.NewCatalog(opts.Analyzer.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	logger.Infow("Catalog initialized", "path", opts.Analyzer.CatalogPath)

	// 5. 初始化 Redis 缓存（不可用时降级为直通）
	cache, redisClient, redisClose := newAnalysisCache(opts)
	defer redisClose()

	// 6. 初始化 LLM 供应商（带瞬时故障重试包装）
	rawEmbed, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	var embedProvider llm.EmbeddingProvider = resilience.NewResilientEmbeddingProvider(rawEmbed, retryConfig(opts.Embedding.MaxRetries))
	if redisClient != nil {
		// Embedding 结果稳定，叠一层 Redis 缓存减少重复向量化
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisClient, nil)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	rawChat, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatProvider := resilience.NewResilientChatProvider(rawChat, retryConfig(opts.Chat.MaxRetries))
	logger.Infow("Chat provider initialized",
		"provider", opts.Chat.Provider,
		"model", opts.Chat.Model,
	)

	// 7. 加载回访短语词典（缺失时快速分类器退化为类别 4）
	dictionary, err := phrasebook.Load(opts.Analyzer.DictionaryPath)
	if err != nil {
		logger.Warnw("callback phrase dictionary unavailable, fast classifier degrades to category 4",
			"path", opts.Analyzer.DictionaryPath, "error", err.Error())
		dictionary = nil
	}

	// 8. 初始化 Biz 层
	enh := enhancer.New(chatProvider, enhancer.Config{
		EnableHyDE:   opts.Enhancer.EnableHyDE,
		EnableRerank: opts.Enhancer.EnableRerank,
		RerankTopK:   opts.Enhancer.RerankTopK,
	})
	retriever := biz.NewRetriever(embedProvider, vectors, catalog, enh)
	engine := biz.NewEngine(chatProvider, dictionary)
	service := biz.NewAnalyzerService(retriever, engine, cache, catalog, vectors, opts.Analyzer.DictionaryPath)
	logger.Infow("Analyzer service initialized",
		"cache.enabled", opts.Cache.Enabled,
		"enhancer.hyde", opts.Enhancer.EnableHyDE,
		"enhancer.rerank", opts.Enhancer.EnableRerank,
		"methods", engine.Methods(),
	)

	// 9. 初始化 Handler 层并注册路由
	analyzerHandler := handler.NewAnalyzerHandler(service, &handler.HandlerConfig{
		DefaultMethod:    opts.Analyzer.DefaultMethod,
		DefaultChunkSize: opts.Analyzer.ChunkSize,
		DefaultTopK:      opts.Analyzer.TopK,
		DictionaryPath:   opts.Analyzer.DictionaryPath,
		Timeout:          opts.GetTimeout(),
	})

	// 10. 启动 HTTP 服务器
	srv := NewServer(opts.HTTP)
	router.Register(srv.Engine(), analyzerHandler)

	logger.Info("Analyzer service is ready")
	return srv.Run()
}

// newVectorStore 根据配置选择向量检索后端。
func newVectorStore(opts *Options) (store.VectorStore, func(), error) {
	switch opts.Analyzer.VectorBackend {
	case VectorBackendMilvus:
		client, err := milvus.New(opts.Milvus)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		vs := store.NewMilvusStore(client, opts.Analyzer.Collection)
		return vs, func() { _ = vs.Close(context.Background()) }, nil
	default:
		vs, err := store.NewFlatStore(opts.Analyzer.IndexDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load vector index: %w", err)
		}
		return vs, func() { _ = vs.Close(context.Background()) }, nil
	}
}

// newAnalysisCache 初始化 Redis 缓存，连接失败时禁用缓存继续运行。
func newAnalysisCache(opts *Options) (*biz.AnalysisCache, *goredis.Client, func()) {
	noop := func() {}

	if !opts.Cache.Enabled {
		logger.Info("Cache is disabled")
		return biz.NewAnalysisCache(nil, nil), nil, noop
	}

	redisOpts := opts.Cache.Redis
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisOpts.Host, redisOpts.Port),
		Password:     redisOpts.Password,
		DB:           redisOpts.Database,
		MaxRetries:   redisOpts.MaxRetries,
		PoolSize:     redisOpts.PoolSize,
		MinIdleConns: redisOpts.MinIdleConns,
	})

	// 测试 Redis 连接
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		_ = redisClient.Close()
		return biz.NewAnalysisCache(nil, nil), nil, noop
	}

	cache := biz.NewAnalysisCache(redisClient, &biz.AnalysisCacheConfig{
		Enabled:   true,
		TTL:       opts.Cache.TTL,
		KeyPrefix: opts.Cache.KeyPrefix,
	})
	logger.Infow("Redis cache initialized",
		"host", redisOpts.Host,
		"port", redisOpts.Port,
		"ttl", opts.Cache.TTL,
	)
	return cache, redisClient, func() { _ = redisClient.Close() }
}

// retryConfig 把配置的最大重试次数映射到重试策略，非正数时用默认策略。
func retryConfig(maxRetries int) *resilience.RetryConfig {
	if maxRetries <= 0 {
		return nil
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = maxRetries
	return cfg
}

func printBanner(_ *Options) {
	fmt.Printf("Starting %s...\n", appName)
}
