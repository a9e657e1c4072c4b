package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iWorld-y/post_digest/app/post_digest/internal/storage"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/eligibility"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/index"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/llm"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/logger"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/parser"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/snapshot"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/writeback"
)

const (
	// DefaultBatchSize 每批默认并发数
	DefaultBatchSize = 3
	// DefaultBatchDelay 批次之间的默认等待
	DefaultBatchDelay = time.Second
)

// Store 引擎需要的快照操作
type Store interface {
	List() ([]snapshot.Handle, error)
	Load(h snapshot.Handle) (*model.Document, error)
	writeback.Updater
}

var _ Store = (*snapshot.Store)(nil)

// Generator 为一篇帖子生成原始摘要文本
type Generator interface {
	Generate(ctx context.Context, title, content string) (string, error)
}

var _ Generator = (*llm.Client)(nil)

// Journal 运行记录，可为空
type Journal interface {
	StartRun(ctx context.Context, run storage.Run) error
	RecordOutcome(ctx context.Context, runID string, o storage.Outcome) error
	FinishRun(ctx context.Context, run storage.Run) error
}

var _ Journal = (*storage.Storage)(nil)

// Failure 单篇帖子的失败原因
type Failure struct {
	PostID string
	Reason string
	Err    error
}

// Result 一次运行的统计
type Result struct {
	RunID            string
	Discovered       int
	Eligible         int
	Attempted        int
	Succeeded        int
	Failed           int
	DocumentsWritten int
	// Backfilled 用已有摘要补齐的文档数，不调用生成接口
	Backfilled int
	Failures   []Failure
}

// Fatal 有尝试且全部失败
func (r *Result) Fatal() bool {
	return r.Succeeded == 0 && r.Failed > 0
}

// Engine 核心处理引擎
type Engine struct {
	store     Store
	generator Generator
	writer    *writeback.Writer
	filter    eligibility.Filter
	journal   Journal

	batchSize  int
	batchDelay time.Duration
	limit      int
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option 定制 Engine
type Option func(*Engine)

// WithBatchSize 每批并发数量
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithBatchDelay 批次之间的等待
func WithBatchDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.batchDelay = d
		}
	}
}

// WithMinContentLength 正文最小长度
func WithMinContentLength(n int) Option {
	return func(e *Engine) {
		e.filter = eligibility.New(n)
	}
}

// WithLimit 单次最多处理的帖子数，0 表示不限
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.limit = n
		}
	}
}

// WithJournal 记录运行结果
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithSleeper 替换批次间等待，测试用
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewEngine 创建引擎实例
func NewEngine(store Store, generator Generator, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		generator:  generator,
		writer:     writeback.NewWriter(store),
		filter:     eligibility.New(eligibility.DefaultMinContentLength),
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan 读取所有快照并返回需要生成摘要的帖子，不调用生成接口
func (e *Engine) Scan(ctx context.Context) (*index.Index, []*index.Entry, error) {
	handles, err := e.store.List()
	if err != nil {
		return nil, nil, fmt.Errorf("列出快照失败: %w", err)
	}

	sources := make([]index.Source, 0, len(handles))
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		doc, err := e.store.Load(h)
		if err != nil {
			return nil, nil, err
		}
		if doc == nil {
			continue
		}
		sources = append(sources, index.Source{Handle: h, Doc: doc})
	}

	idx := index.Build(sources)
	for _, entry := range idx.Entries() {
		if entry.Divergent {
			logger.Log.WithFields(map[string]any{
				"post_id": entry.ID,
				"handles": entry.Handles,
			}).Warn("同一帖子在不同快照中的内容不一致，使用首次出现的版本")
		}
	}

	eligible := e.filter.Select(idx.Entries())
	return idx, eligible, nil
}

// Run 执行一次完整流程: 发现、筛选、分批生成并写回
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	idx, eligible, err := e.Scan(ctx)
	if err != nil {
		return nil, err
	}

	logger.Log.Infof("共发现 %d 个帖子，其中 %d 个需要生成摘要", idx.Len(), len(eligible))

	backfilled := e.backfill(ctx, idx.Entries())

	res := e.Process(ctx, eligible)
	res.Discovered = idx.Len()
	res.Eligible = len(eligible)
	res.Backfilled = backfilled
	return res, nil
}

// backfill 代表副本已有摘要、其他副本缺失时，直接复制已有摘要
//
// 上次写回部分失败时会出现这种情况。失败只记录日志，下次运行再补。
func (e *Engine) backfill(ctx context.Context, entries []*index.Entry) int {
	total := 0
	for _, entry := range entries {
		if !entry.Unsummarized || !entry.Post.HasSummary() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		written, err := e.writer.Fill(ctx, entry.ID, writeback.FromPost(entry.Post), entry.Handles)
		if err != nil {
			logger.Log.WithField("post_id", entry.ID).Warnf("补齐摘要失败: %v", err)
		}
		if written > 0 {
			logger.Log.WithField("post_id", entry.ID).Infof("已用现有摘要补齐 %d 个文档", written)
		}
		total += written
	}
	return total
}

// Process 按批次处理条目
//
// 每批最多 batchSize 个并发任务，本批全部结束后才开始下一批，
// 批次之间等待 batchDelay。单个任务失败不影响其他任务。
func (e *Engine) Process(ctx context.Context, entries []*index.Entry) *Result {
	res := &Result{
		RunID:    uuid.NewString(),
		Eligible: len(entries),
	}
	if e.limit > 0 && len(entries) > e.limit {
		logger.Log.Infof("本次最多处理 %d 个帖子，剩余 %d 个留待下次", e.limit, len(entries)-e.limit)
		entries = entries[:e.limit]
	}

	log := logger.Log.WithField("run_id", res.RunID)
	e.startRun(ctx, res)

	var mu sync.Mutex
	total := len(entries)
	for start := 0; start < total; start += e.batchSize {
		if ctx.Err() != nil {
			log.Warnf("运行被取消，跳过剩余 %d 个帖子", total-start)
			break
		}
		end := min(start+e.batchSize, total)
		batch := entries[start:end]
		log.Infof("处理第 %d 批 (%d-%d/%d)", start/e.batchSize+1, start+1, end, total)

		var wg sync.WaitGroup
		for _, entry := range batch {
			wg.Add(1)
			go func(entry *index.Entry) {
				defer wg.Done()
				outcome, failure := e.processOne(ctx, entry)

				mu.Lock()
				res.Attempted++
				if failure != nil {
					res.Failed++
					res.Failures = append(res.Failures, *failure)
				} else {
					res.Succeeded++
				}
				res.DocumentsWritten += outcome.Documents
				mu.Unlock()

				e.recordOutcome(ctx, res.RunID, outcome)
			}(entry)
		}
		wg.Wait()

		if end < total {
			if err := e.sleep(ctx, e.batchDelay); err != nil {
				log.Warnf("运行被取消，跳过剩余 %d 个帖子", total-end)
				break
			}
		}
	}

	e.finishRun(ctx, res)
	log.Infof("运行结束: 尝试 %d，成功 %d，失败 %d，写入文档 %d 次",
		res.Attempted, res.Succeeded, res.Failed, res.DocumentsWritten)
	return res
}

func (e *Engine) processOne(ctx context.Context, entry *index.Entry) (storage.Outcome, *Failure) {
	log := logger.Log.WithField("post_id", entry.ID)
	outcome := storage.Outcome{PostID: entry.ID, Status: storage.StatusFailed}

	raw, err := e.generator.Generate(ctx, entry.Post.Title, entry.Post.Content)
	if err != nil {
		reason := llm.Reason(err)
		log.Errorf("生成摘要失败 (%s): %v", reason, err)
		outcome.Reason = reason
		outcome.At = e.now()
		return outcome, &Failure{PostID: entry.ID, Reason: reason, Err: err}
	}

	// 生成结果已经拿到，写回不再受取消影响
	payload := writeback.NewPayload(raw, parser.Parse(raw))
	written, err := e.writer.Apply(context.WithoutCancel(ctx), entry.ID, payload, entry.Handles)
	outcome.Documents = written
	outcome.At = e.now()
	if err != nil {
		outcome.Reason = "write-back failed"
		return outcome, &Failure{PostID: entry.ID, Reason: outcome.Reason, Err: err}
	}

	log.Infof("摘要已写入 %d 个文档", written)
	outcome.Status = storage.StatusSucceeded
	return outcome, nil
}

func (e *Engine) startRun(ctx context.Context, res *Result) {
	if e.journal == nil {
		return
	}
	if err := e.journal.StartRun(ctx, storage.Run{ID: res.RunID, StartedAt: e.now()}); err != nil {
		logger.Log.Errorf("无法创建运行记录: %v", err)
	}
}

func (e *Engine) recordOutcome(ctx context.Context, runID string, o storage.Outcome) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordOutcome(context.WithoutCancel(ctx), runID, o); err != nil {
		logger.Log.Errorf("保存处理结果失败 [%s]: %v", o.PostID, err)
	}
}

func (e *Engine) finishRun(ctx context.Context, res *Result) {
	if e.journal == nil {
		return
	}
	err := e.journal.FinishRun(context.WithoutCancel(ctx), storage.Run{
		ID:               res.RunID,
		FinishedAt:       e.now(),
		Eligible:         res.Eligible,
		Attempted:        res.Attempted,
		Succeeded:        res.Succeeded,
		Failed:           res.Failed,
		DocumentsWritten: res.DocumentsWritten,
	})
	if err != nil {
		logger.Log.Errorf("更新运行记录失败: %v", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
