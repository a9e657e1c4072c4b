package index

import (
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/snapshot"
)

// Source 一份已加载的快照
type Source struct {
	Handle snapshot.Handle
	Doc    *model.Document
}

// Entry 一个帖子在所有快照中的汇总
type Entry struct {
	ID string
	// Post 第一次出现时的副本，作为生成输入
	Post *model.Post
	// Handles 包含该帖子的文档，按首次出现顺序去重
	Handles []snapshot.Handle
	// Occurrences 出现总次数(跨分组、跨文档)
	Occurrences int
	// Divergent 后续出现的标题或正文与代表快照不一致
	Divergent bool
	// Unsummarized 至少有一处副本还没有摘要
	Unsummarized bool
}

// Index 按帖子 id 去重的索引
type Index struct {
	entries []*Entry
	byID    map[string]*Entry
}

// Build 依次遍历文档、hot -> top -> new 分组、组内顺序建立索引
//
// 没有 id 的帖子直接跳过。
func Build(sources []Source) *Index {
	idx := &Index{byID: make(map[string]*Entry)}
	for _, src := range sources {
		if src.Doc == nil {
			continue
		}
		src.Doc.Feeds.Each(func(_ string, p *model.Post) {
			if p.ID == "" {
				return
			}
			idx.add(src.Handle, p)
		})
	}
	return idx
}

func (idx *Index) add(h snapshot.Handle, p *model.Post) {
	e, ok := idx.byID[p.ID]
	if !ok {
		e = &Entry{ID: p.ID, Post: p.Clone()}
		idx.byID[p.ID] = e
		idx.entries = append(idx.entries, e)
	} else if p.Title != e.Post.Title || p.Content != e.Post.Content {
		e.Divergent = true
	}
	if !p.HasSummary() {
		e.Unsummarized = true
	}
	e.Occurrences++
	if n := len(e.Handles); n == 0 || e.Handles[n-1] != h {
		e.Handles = append(e.Handles, h)
	}
}

// Entries 按首次出现顺序返回所有条目
func (idx *Index) Entries() []*Entry {
	return idx.entries
}

// Get 按 id 查找
func (idx *Index) Get(id string) (*Entry, bool) {
	e, ok := idx.byID[id]
	return e, ok
}

// Len 不同帖子的数量
func (idx *Index) Len() int {
	return len(idx.entries)
}
