// Package app provides the dialog analyzer service application.
package app

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	appopts "github.com/kart-io/callinsight/pkg/options/app"
	logopts "github.com/kart-io/callinsight/pkg/options/logger"
	milvusopts "github.com/kart-io/callinsight/pkg/options/milvus"
	httpopts "github.com/kart-io/callinsight/pkg/options/server/http"
)

// 向量检索后端。
const (
	VectorBackendFlat   = "flat"
	VectorBackendMilvus = "milvus"
)

// Options contains all analyzer service options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains Milvus database configuration (used when vector backend is milvus).
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Embedding contains embedding provider configuration.
	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *LLMProviderOptions `json:"chat" mapstructure:"chat"`

	// Analyzer contains analysis-specific configuration.
	Analyzer *AnalyzerOptions `json:"analyzer" mapstructure:"analyzer"`

	// Enhancer contains retrieval enhancement configuration.
	Enhancer *EnhancerOptions `json:"enhancer" mapstructure:"enhancer"`

	// Cache contains result cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`
}

// LLMProviderOptions 定义 LLM 供应商配置。
type LLMProviderOptions struct {
	// Provider 供应商名称。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`


	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

}

// NewLLMProviderOptions 创建默认 LLM 供应商配置。
func NewLLMProviderOptions() *LLMProviderOptions {
	return &LLMProviderOptions{
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"embed_model": o.Model,
		"chat_model":  o.Model,
		"timeout":     o.Timeout,
	}
}

// AnalyzerOptions contains analysis-specific configuration.
type AnalyzerOptions struct {
	// VectorBackend 向量检索后端（flat 或 milvus）。
	VectorBackend string `json:"vector-backend" mapstructure:"vector-backend"`

	// IndexDir flat 后端的向量索引目录。
	IndexDir string `json:"index-dir" mapstructure:"index-dir"`

	// Collection milvus 后端使用的集合名。
	Collection string `json:"collection" mapstructure:"collection"`

	// CatalogPath 话语目录 SQLite 数据库路径。
	CatalogPath string `json:"catalog-path" mapstructure:"catalog-path"`

	// DictionaryPath 回访短语词典文件路径。
	DictionaryPath string `json:"dictionary-path" mapstructure:"dictionary-path"`

	// DefaultMethod 默认分析方法。
	DefaultMethod string `json:"default-method" mapstructure:"default-method"`

	// ChunkSize 每个分析分块的候选条数。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// TopK 检索返回的候选条数。
	TopK int `json:"top-k" mapstructure:"top-k"`
}

// NewAnalyzerOptions creates new AnalyzerOptions with defaults.
func NewAnalyzerOptions() *AnalyzerOptions {
	return &AnalyzerOptions{
		VectorBackend:  VectorBackendFlat,
		IndexDir:       "_output/index",
		Collection:     "dialog_utterances",
		CatalogPath:    "_output/catalog.db",
		DictionaryPath: "_output/callback_phrases.json",
		DefaultMethod:  "hierarchical",
		ChunkSize:      10,
		TopK:           30,
	}
}

// EnhancerOptions 检索增强配置。
type EnhancerOptions struct {
	// EnableHyDE 是否启用 HyDE（假设答案嵌入）。
	EnableHyDE bool `json:"enable-hyde" mapstructure:"enable-hyde"`

	// EnableRerank 是否启用重排序。
	EnableRerank bool `json:"enable-rerank" mapstructure:"enable-rerank"`

	// RerankTopK 重排序后保留的候选数量，0 表示不截断。
	RerankTopK int `json:"rerank-top-k" mapstructure:"rerank-top-k"`
}

// NewEnhancerOptions 创建默认增强器配置。
func NewEnhancerOptions() *EnhancerOptions {
	return &EnhancerOptions{
		EnableHyDE:   true,
		EnableRerank: false, // 重排逐条调 LLM，默认关闭
		RerankTopK:   0,
	}
}

// CacheOptions 分析结果缓存配置。
type CacheOptions struct {
	// Enabled 是否启用缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis Redis 连接配置。
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`
}

// RedisOptions Redis 配置。
type RedisOptions struct {
	// Host Redis 主机地址。
	Host string `json:"host" mapstructure:"host"`

	// Port Redis 端口。
	Port int `json:"port" mapstructure:"port"`

	// Password Redis 密码。
	Password string `json:"password" mapstructure:"password"`

	// Database Redis 数据库编号。
	Database int `json:"database" mapstructure:"database"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// PoolSize 连接池大小。
	PoolSize int `json:"pool-size" mapstructure:"pool-size"`

	// MinIdleConns 最小空闲连接数。
	MinIdleConns int `json:"min-idle-conns" mapstructure:"min-idle-conns"`
}

// NewCacheOptions 创建默认缓存配置。
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "analyzer:result:",
		Redis:     NewRedisOptions(),
	}
}

// NewRedisOptions 创建默认 Redis 配置。
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		Database:     0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	// 默认 embedding 配置
	embeddingOpts := NewLLMProviderOptions()
	embeddingOpts.Model = "nomic-embed-text"

	// 默认 chat 配置
	chatOpts := NewLLMProviderOptions()
	chatOpts.Model = "deepseek-r1:7b"

	return &Options{
		HTTP:      httpopts.NewOptions(),
		Log:       logopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Embedding: embeddingOpts,
		Chat:      chatOpts,
		Analyzer:  NewAnalyzerOptions(),
		Enhancer:  NewEnhancerOptions(),
		Cache:     NewCacheOptions(),
	}
}

// Flags returns the flags grouped into named flag sets.
func (o *Options) Flags() appopts.NamedFlagSets {
	var fss appopts.NamedFlagSets
	o.HTTP.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	o.Milvus.AddFlags(fss.FlagSet("milvus"))
	o.addEmbeddingFlags(fss.FlagSet("embedding"))
	o.addChatFlags(fss.FlagSet("chat"))
	o.addAnalyzerFlags(fss.FlagSet("analyzer"))
	o.addCacheFlags(fss.FlagSet("cache"))
	return fss
}

func (o *Options) addEmbeddingFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Embedding.Provider, "embedding.provider", o.Embedding.Provider, "Embedding provider (ollama)")
	fs.StringVar(&o.Embedding.BaseURL, "embedding.base-url", o.Embedding.BaseURL, "Embedding API base URL")
	fs.StringVar(&o.Embedding.Model, "embedding.model", o.Embedding.Model, "Embedding model name")
	fs.DurationVar(&o.Embedding.Timeout, "embedding.timeout", o.Embedding.Timeout, "Embedding request timeout")
	fs.IntVar(&o.Embedding.MaxRetries, "embedding.max-retries", o.Embedding.MaxRetries, "Embedding max retries")
}

func (o *Options) addChatFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Chat.Provider, "chat.provider", o.Chat.Provider, "Chat provider (ollama)")
	fs.StringVar(&o.Chat.BaseURL, "chat.base-url", o.Chat.BaseURL, "Chat API base URL")
	fs.StringVar(&o.Chat.Model, "chat.model", o.Chat.Model, "Chat model name")
	fs.DurationVar(&o.Chat.Timeout, "chat.timeout", o.Chat.Timeout, "Chat request timeout")
	fs.IntVar(&o.Chat.MaxRetries, "chat.max-retries", o.Chat.MaxRetries, "Chat max retries")
}

func (o *Options) addAnalyzerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Analyzer.VectorBackend, "analyzer.vector-backend", o.Analyzer.VectorBackend, "Vector search backend (flat, milvus)")
	fs.StringVar(&o.Analyzer.IndexDir, "analyzer.index-dir", o.Analyzer.IndexDir, "Directory with per-theme vector index files (flat backend)")
	fs.StringVar(&o.Analyzer.Collection, "analyzer.collection", o.Analyzer.Collection, "Milvus collection name (milvus backend)")
	fs.StringVar(&o.Analyzer.CatalogPath, "analyzer.catalog-path", o.Analyzer.CatalogPath, "Path to the utterance catalog SQLite database")
	fs.StringVar(&o.Analyzer.DictionaryPath, "analyzer.dictionary-path", o.Analyzer.DictionaryPath, "Path to the callback phrase dictionary file")
	fs.StringVar(&o.Analyzer.DefaultMethod, "analyzer.default-method", o.Analyzer.DefaultMethod, "Default analysis method")
	fs.IntVar(&o.Analyzer.ChunkSize, "analyzer.chunk-size", o.Analyzer.ChunkSize, "Number of candidates per analysis chunk")
	fs.IntVar(&o.Analyzer.TopK, "analyzer.top-k", o.Analyzer.TopK, "Number of candidates from similarity search")

	// 增强器配置
	fs.BoolVar(&o.Enhancer.EnableHyDE, "analyzer.enhancer.enable-hyde", o.Enhancer.EnableHyDE, "Enable HyDE (Hypothetical Answer Embeddings)")
	fs.BoolVar(&o.Enhancer.EnableRerank, "analyzer.enhancer.enable-rerank", o.Enhancer.EnableRerank, "Enable result reranking")
	fs.IntVar(&o.Enhancer.RerankTopK, "analyzer.enhancer.rerank-top-k", o.Enhancer.RerankTopK, "Number of candidates to keep after reranking (0 = keep all)")
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable analysis result cache")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Cache TTL duration")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Cache key prefix")
	fs.StringVar(&o.Cache.Redis.Host, "cache.redis.host", o.Cache.Redis.Host, "Redis host")
	fs.IntVar(&o.Cache.Redis.Port, "cache.redis.port", o.Cache.Redis.Port, "Redis port")
	fs.StringVar(&o.Cache.Redis.Password, "cache.redis.password", o.Cache.Redis.Password, "Redis password")
	fs.IntVar(&o.Cache.Redis.Database, "cache.redis.database", o.Cache.Redis.Database, "Redis database number")
	fs.IntVar(&o.Cache.Redis.MaxRetries, "cache.redis.max-retries", o.Cache.Redis.MaxRetries, "Redis max retries")
	fs.IntVar(&o.Cache.Redis.PoolSize, "cache.redis.pool-size", o.Cache.Redis.PoolSize, "Redis connection pool size")
	fs.IntVar(&o.Cache.Redis.MinIdleConns, "cache.redis.min-idle-conns", o.Cache.Redis.MinIdleConns, "Redis minimum idle connections")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if errs := o.HTTP.Validate(); len(errs) > 0 {
		return errs[0]
	}
	switch o.Analyzer.VectorBackend {
	case VectorBackendFlat:
		if o.Analyzer.IndexDir == "" {
			return fmt.Errorf("analyzer.index-dir is required for flat backend")
		}
	case VectorBackendMilvus:
		if errs := o.Milvus.Validate(); len(errs) > 0 {
			return errs[0]
		}
		if o.Analyzer.Collection == "" {
			return fmt.Errorf("analyzer.collection is required for milvus backend")
		}
	default:
		return fmt.Errorf("unknown vector backend: %s", o.Analyzer.VectorBackend)
	}
	if o.Analyzer.CatalogPath == "" {
		return fmt.Errorf("analyzer.catalog-path is required")
	}
	if err := o.validateLLMProvider(o.Embedding, "embedding"); err != nil {
		return err
	}
	if err := o.validateLLMProvider(o.Chat, "chat"); err != nil {
		return err
	}
	if o.Analyzer.ChunkSize <= 0 {
		return fmt.Errorf("analyzer.chunk-size must be positive")
	}
	if o.Analyzer.TopK <= 0 {
		return fmt.Errorf("analyzer.top-k must be positive")
	}
	return nil
}

func (o *Options) validateLLMProvider(opts *LLMProviderOptions, prefix string) error {
	if opts.Provider == "" {
		return fmt.Errorf("%s.provider is required", prefix)
	}
	if opts.BaseURL == "" {
		return fmt.Errorf("%s.base-url is required", prefix)
	}
	if opts.Model == "" {
		return fmt.Errorf("%s.model is required", prefix)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	return nil
}

// GetTimeout returns a reasonable timeout for analysis operations.
func (o *Options) GetTimeout() time.Duration {
	// 使用较长的超时时间
	if o.Chat.Timeout > o.Embedding.Timeout {
		return o.Chat.Timeout
	}
	return o.Embedding.Timeout
}
