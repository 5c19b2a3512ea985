package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kart-io/callinsight/pkg/llm"
)

// fastRetryConfig 测试用的极短延迟配置
func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Retryable:    func(error) bool { return true },
	}
}

func TestRetryWithBackoffSuccess(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("成功调用不应报错: %v", err)
	}
	if calls != 1 {
		t.Errorf("成功后不应重试: 调用了 %d 次", calls)
	}
}

func TestRetryWithBackoffEventualSuccess(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("временный сбой")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("第三次成功不应报错: %v", err)
	}
	if calls != 3 {
		t.Errorf("期望 3 次调用, 实际 %d", calls)
	}
}

func TestRetryWithBackoffMaxAttempts(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		return errors.New("постоянный сбой")
	})
	if err == nil {
		t.Fatal("耗尽尝试后必须报错")
	}
	if calls != 3 {
		t.Errorf("期望 3 次调用, 实际 %d", calls)
	}
	if !strings.Contains(err.Error(), "max retry attempts") {
		t.Errorf("错误应带尝试耗尽标记: %v", err)
	}
}

func TestRetryWithBackoffNonRetryable(t *testing.T) {
	config := fastRetryConfig()
	config.Retryable = func(error) bool { return false }

	calls := 0
	err := RetryWithBackoff(context.Background(), config, func() error {
		calls++
		return errors.New("плохой запрос")
	})
	if err == nil {
		t.Fatal("不可重试错误必须直接返回")
	}
	if calls != 1 {
		t.Errorf("不可重试错误不应重试: 调用了 %d 次", calls)
	}
}

func TestRetryWithBackoffContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := RetryWithBackoff(ctx, fastRetryConfig(), func() error {
		calls++
		cancel()
		return errors.New("сбой")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if calls != 1 {
		t.Errorf("取消后不应再重试: 调用了 %d 次", calls)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"dns error", &net.DNSError{Err: "no such host"}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"server 500", fmt.Errorf("request failed with status code 500"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"bad request", errors.New("request failed with status code 400"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, 期望 %v", tt.err, got, tt.want)
			}
		})
	}
}

// flakyChatProvider 前 failures 次调用失败
type flakyChatProvider struct {
	failures int
	calls    int
}

func (f *flakyChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return f.Generate(ctx, "", "")
}

func (f *flakyChatProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("request failed with status code 503")
	}
	return "ответ", nil
}

func (f *flakyChatProvider) Name() string { return "flaky" }

func TestResilientChatProviderRetries(t *testing.T) {
	inner := &flakyChatProvider{failures: 2}
	provider := NewResilientChatProvider(inner, fastRetryConfig())

	response, err := provider.Generate(context.Background(), "вопрос", "")
	if err != nil {
		t.Fatalf("两次失败后第三次成功不应报错: %v", err)
	}
	if response != "ответ" {
		t.Errorf("期望 'ответ', 实际 %q", response)
	}
	if inner.calls != 3 {
		t.Errorf("期望 3 次底层调用, 实际 %d", inner.calls)
	}
	if provider.Name() != "flaky-resilient" {
		t.Errorf("包装器名称不匹配: %s", provider.Name())
	}
}

// fixedEmbeddingProvider 总是返回同一个向量
type fixedEmbeddingProvider struct {
	calls int
}

func (f *fixedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.EmbedSingle(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fixedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("EOF")
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fixedEmbeddingProvider) Name() string { return "fixed" }

func TestResilientEmbeddingProviderRetries(t *testing.T) {
	inner := &fixedEmbeddingProvider{}
	provider := NewResilientEmbeddingProvider(inner, fastRetryConfig())

	vec, err := provider.EmbedSingle(context.Background(), "текст")
	if err != nil {
		t.Fatalf("首次失败后重试应成功: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("向量维度不匹配: %d", len(vec))
	}
	if inner.calls != 2 {
		t.Errorf("期望 2 次底层调用, 实际 %d", inner.calls)
	}
}
