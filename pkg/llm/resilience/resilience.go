// Package resilience 为 LLM 调用提供瞬时故障重试。
// 检索与分析路径上的每次模型调用都经由这里的包装器执行。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kart-io/logger"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数，含首次调用
	MaxAttempts int
	// InitialDelay 首次重试前的延迟
	InitialDelay time.Duration
	// MaxDelay 延迟上限
	MaxDelay time.Duration
	// Multiplier 每次重试延迟的倍增因子
	Multiplier float64
	// Retryable 判断错误是否值得重试，nil 时使用 IsRetryableError
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置：三次尝试，指数退避。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryWithBackoff 以指数退避重试 fn，直到成功、耗尽尝试次数、
// 遇到不可重试错误或上下文取消。
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	delay := config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt >= config.MaxAttempts {
			logger.Warnw("max retry attempts reached", "attempts", attempt, "error", err.Error())
			return fmt.Errorf("max retry attempts (%d) reached: %w", config.MaxAttempts, lastErr)
		}

		logger.Debugw("retrying after delay", "attempt", attempt, "delay", delay, "error", err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return lastErr
}

// IsRetryableError 判断错误是否为瞬时故障。
// 上下文取消永不重试；网络故障、超时、限流与 5xx 视为瞬时。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "status code 5"),
		strings.Contains(msg, "status code 408"),
		strings.Contains(msg, "status code 429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "EOF"),
		strings.Contains(msg, "connection reset"):
		return true
	}
	return false
}
