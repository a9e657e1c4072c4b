package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// exchange 记录一次 Complete 调用中最后一个 HTTP 响应
//
// SDK 会把服务端错误包装成各自的类型，这里直接在 transport 层拿状态码和响应体。
type exchange struct {
	mu     sync.Mutex
	status int
	body   string
	err    error
}

func (ex *exchange) record(status int, body string, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.status, ex.body, ex.err = status, body, err
}

func (ex *exchange) snapshot() (int, string, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.status, ex.body, ex.err
}

type exchangeKey struct{}

func withExchange(ctx context.Context) (context.Context, *exchange) {
	ex := &exchange{}
	return context.WithValue(ctx, exchangeKey{}, ex), ex
}

// captureTransport 把状态码与错误响应体写入请求 context 中的 exchange
type captureTransport struct {
	base http.RoundTripper
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)

	ex, _ := req.Context().Value(exchangeKey{}).(*exchange)
	if ex == nil {
		return resp, err
	}
	if err != nil {
		ex.record(0, "", err)
		return resp, err
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if readErr != nil {
			ex.record(resp.StatusCode, "", readErr)
			return resp, nil
		}
		ex.record(resp.StatusCode, string(body), nil)
		return resp, nil
	}

	ex.record(resp.StatusCode, "", nil)
	return resp, nil
}

// NewHTTPClient 返回带状态捕获的 HTTP 客户端，交给各 provider SDK 使用
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &captureTransport{base: http.DefaultTransport},
	}
}
