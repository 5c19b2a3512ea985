// Package httpclient 提供带 W3C Trace Context 传播的 HTTP 客户端。
// LLM 供应商的出站请求统一经由这里，重试交给上层的 resilience 包装。
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/callinsight/pkg/utils/json"
)

// Client 包装 http.Client，出站请求自动携带追踪头。
type Client struct {
	httpClient *http.Client
}

// NewClient 创建客户端，timeout 作用于整个请求。
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do 执行请求并注入追踪上下文。
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.injectTraceContext(req)
	return c.httpClient.Do(req)
}

// DoJSON 执行请求并把 JSON 响应解码到 v，v 为 nil 时只检查状态码。
// 非 2xx 状态码作为错误返回，状态码保留在错误文本里供重试层分类。
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// injectTraceContext 把当前 Span 的 W3C Trace Context 注入请求头。
// 没有传播器或活跃 Span 时静默跳过。
func (c *Client) injectTraceContext(req *http.Request) {
	if req == nil || req.Context() == nil {
		return
	}

	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return
	}
	propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}
