package writeback

import (
	"context"
	"errors"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/logger"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/parser"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/snapshot"
)

// Updater 快照的读-改-写入口，由 snapshot.Store 实现
type Updater interface {
	Update(ctx context.Context, h snapshot.Handle, fn func(doc *model.Document) (bool, error)) (bool, error)
}

var _ Updater = (*snapshot.Store)(nil)

// Payload 写入帖子的摘要负载
type Payload struct {
	Summary string
	TitleZh string
	TitleEn string
}

// NewPayload 由解析结果生成负载
//
// 中英文摘要都存在时合并，否则保存未解析的原文。
func NewPayload(raw string, res model.SummaryResult) Payload {
	p := Payload{Summary: raw}
	if res.SummaryZh != nil && res.SummaryEn != nil {
		p.Summary = parser.Combine(*res.SummaryZh, *res.SummaryEn)
	}
	if res.TitleZh != nil {
		p.TitleZh = *res.TitleZh
	}
	if res.TitleEn != nil {
		p.TitleEn = *res.TitleEn
	}
	return p
}

// FromPost 以已有摘要的帖子作为负载来源
func FromPost(post *model.Post) Payload {
	return Payload{Summary: post.Summary, TitleZh: post.TitleZh, TitleEn: post.TitleEn}
}

// Apply 把负载写到帖子上，返回是否有字段变化
func (p Payload) Apply(post *model.Post) bool {
	changed := false
	if post.Summary != p.Summary {
		post.Summary = p.Summary
		changed = true
	}
	if p.TitleZh != "" && post.TitleZh != p.TitleZh {
		post.TitleZh = p.TitleZh
		changed = true
	}
	if p.TitleEn != "" && post.TitleEn != p.TitleEn {
		post.TitleEn = p.TitleEn
		changed = true
	}
	return changed
}

// Writer 把生成结果写回所有包含该帖子的快照
type Writer struct {
	store Updater
}

// NewWriter 创建 Writer
func NewWriter(store Updater) *Writer {
	return &Writer{store: store}
}

// Apply 逐个文档重新读取并写入，只有实际发生变化的文档才会保存
//
// 单个文档读写失败不影响其他文档，所有错误合并后返回。
func (w *Writer) Apply(ctx context.Context, id string, payload Payload, handles []snapshot.Handle) (int, error) {
	return w.update(ctx, id, handles, payload.Apply)
}

// Fill 只给还没有摘要的副本补上负载，已有摘要的副本保持不变
func (w *Writer) Fill(ctx context.Context, id string, payload Payload, handles []snapshot.Handle) (int, error) {
	return w.update(ctx, id, handles, func(post *model.Post) bool {
		if post.HasSummary() {
			return false
		}
		return payload.Apply(post)
	})
}

func (w *Writer) update(ctx context.Context, id string, handles []snapshot.Handle, apply func(post *model.Post) bool) (int, error) {
	written := 0
	var errs []error

	for _, h := range handles {
		changed, err := w.store.Update(ctx, h, func(doc *model.Document) (bool, error) {
			changed := false
			doc.Feeds.Each(func(_ string, post *model.Post) {
				if post.ID == id && apply(post) {
					changed = true
				}
			})
			return changed, nil
		})
		if err != nil {
			logger.Log.WithFields(map[string]any{
				"post_id": id,
				"handle":  h,
			}).Errorf("写回快照失败: %v", err)
			errs = append(errs, err)
			continue
		}
		if changed {
			written++
		}
	}
	return written, errors.Join(errs...)
}
