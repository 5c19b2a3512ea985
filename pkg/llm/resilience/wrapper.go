package resilience

import (
	"context"

	"github.com/kart-io/callinsight/pkg/llm"
)

// ResilientEmbeddingProvider 给 Embedding Provider 加上瞬时故障重试。
type ResilientEmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
}

// NewResilientEmbeddingProvider 包装 Embedding Provider。
// retryConfig 为 nil 时使用默认配置。
func NewResilientEmbeddingProvider(provider llm.EmbeddingProvider, retryConfig *RetryConfig) *ResilientEmbeddingProvider {
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}
	return &ResilientEmbeddingProvider{provider: provider, retry: retryConfig}
}

// Embed 带重试地为多个文本生成向量。
func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		var callErr error
		result, callErr = r.provider.Embed(ctx, texts)
		return callErr
	})
	return result, err
}

// EmbedSingle 带重试地为单个文本生成向量。
func (r *ResilientEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		var callErr error
		result, callErr = r.provider.EmbedSingle(ctx, text)
		return callErr
	})
	return result, err
}

// Name 返回带后缀的供应商名称。
func (r *ResilientEmbeddingProvider) Name() string {
	return r.provider.Name() + "-resilient"
}

// ResilientChatProvider 给 Chat Provider 加上瞬时故障重试。
type ResilientChatProvider struct {
	provider llm.ChatProvider
	retry    *RetryConfig
}

// NewResilientChatProvider 包装 Chat Provider。
// retryConfig 为 nil 时使用默认配置。
func NewResilientChatProvider(provider llm.ChatProvider, retryConfig *RetryConfig) *ResilientChatProvider {
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}
	return &ResilientChatProvider{provider: provider, retry: retryConfig}
}

// Chat 带重试地进行多轮对话。
func (r *ResilientChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var result string
	err := RetryWithBackoff(ctx, r.retry, func() error {
		var callErr error
		result, callErr = r.provider.Chat(ctx, messages)
		return callErr
	})
	return result, err
}

// Generate 带重试地生成单轮文本。
func (r *ResilientChatProvider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	var result string
	err := RetryWithBackoff(ctx, r.retry, func() error {
		var callErr error
		result, callErr = r.provider.Generate(ctx, prompt, systemPrompt)
		return callErr
	})
	return result, err
}

// Name 返回带后缀的供应商名称。
func (r *ResilientChatProvider) Name() string {
	return r.provider.Name() + "-resilient"
}

var (
	_ llm.EmbeddingProvider = (*ResilientEmbeddingProvider)(nil)
	_ llm.ChatProvider      = (*ResilientChatProvider)(nil)
)
