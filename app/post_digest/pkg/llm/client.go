package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/logger"
)

const (
	defaultMaxAttempts     = 3
	defaultRetryBaseDelay  = time.Second
	defaultMaxContentChars = 8000
)

// Backend 具体 provider 的一次对话补全调用
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client 摘要生成客户端
//
// 只对限流(429)做指数退避重试，其余错误直接返回。
type Client struct {
	backend Backend
	limiter *rate.Limiter

	maxAttempts     int
	baseDelay       time.Duration
	maxContentChars int
	sleep           func(ctx context.Context, d time.Duration) error
}

// Option 定制 Client
type Option func(*Client)

// WithMaxAttempts 限流时的最大尝试次数(含第一次)，默认 3
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay 第一次退避的等待时间，之后每次翻倍
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithRPM 每分钟请求上限，<= 0 不限流
func WithRPM(rpm int) Option {
	return func(c *Client) {
		if rpm > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// WithMaxContentChars 正文截断长度(字符)
func WithMaxContentChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxContentChars = n
		}
	}
}

// WithSleeper 替换退避等待的实现(测试用)
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient 创建客户端
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:         backend,
		maxAttempts:     defaultMaxAttempts,
		baseDelay:       defaultRetryBaseDelay,
		maxContentChars: defaultMaxContentChars,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate 为一篇帖子生成原始摘要文本
func (c *Client) Generate(ctx context.Context, title, content string) (string, error) {
	user := BuildUserMessage(title, content, c.maxContentChars)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", &TransportError{Err: err}
			}
		}

		text, err := c.once(ctx, user)
		if err == nil {
			return text, nil
		}

		var upstream *UpstreamError
		if !errors.As(err, &upstream) || !upstream.RateLimited() {
			return "", err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		delay := c.baseDelay * time.Duration(1<<(attempt-1))
		logger.Log.WithFields(map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("LLM 触发限流，等待后重试")
		if err := c.sleep(ctx, delay); err != nil {
			return "", &TransportError{Err: err}
		}
	}
	return "", &MaxRetriesError{Attempts: c.maxAttempts, Last: lastErr}
}

func (c *Client) once(ctx context.Context, user string) (string, error) {
	callCtx, ex := withExchange(ctx)
	text, err := c.backend.Complete(callCtx, SystemInstruction, user)
	status, body, transportErr := ex.snapshot()

	if err == nil {
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyResponse
		}
		return strings.TrimSpace(text), nil
	}
	return "", classify(err, status, body, transportErr)
}

// classify 把 SDK 返回的错误归类
//
// 优先使用 transport 层捕获的状态码；捕获不到时退回到错误文本判断限流。
func classify(err error, status int, body string, transportErr error) error {
	switch {
	case status >= http.StatusMultipleChoices:
		return &UpstreamError{StatusCode: status, Body: body}
	case status == 0 && looksRateLimited(err):
		return &UpstreamError{StatusCode: http.StatusTooManyRequests, Body: err.Error()}
	case transportErr != nil || status == 0:
		return &TransportError{Err: err}
	default:
		// 2xx 但 SDK 无法取出文本
		return fmt.Errorf("%w: %v", ErrEmptyResponse, err)
	}
}

func looksRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
