package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEmptyResponse 请求成功但没有可用的文本
var ErrEmptyResponse = errors.New("llm: empty response")

// TransportError 连接失败、超时等网络层错误
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError 服务端返回非成功状态码
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm upstream: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// RateLimited 是否为限流响应
func (e *UpstreamError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// MaxRetriesError 限流重试次数用尽
type MaxRetriesError struct {
	Attempts int
	Last     error
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("llm: rate limited after %d attempts: %v", e.Attempts, e.Last)
}

func (e *MaxRetriesError) Unwrap() error { return e.Last }

// Reason 给日志和运行记录使用的简短原因
func Reason(err error) string {
	var (
		transport *TransportError
		upstream  *UpstreamError
		retries   *MaxRetriesError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &retries):
		return fmt.Sprintf("max retries (%d) exhausted", retries.Attempts)
	case errors.As(err, &upstream):
		return fmt.Sprintf("upstream http %d", upstream.StatusCode)
	case errors.As(err, &transport):
		return "transport error"
	case errors.Is(err, ErrEmptyResponse):
		return "empty response"
	default:
		return "error"
	}
}
