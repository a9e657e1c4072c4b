package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 三个 feed 分组，按索引顺序遍历
const (
	BucketHot = "hot"
	BucketTop = "top"
	BucketNew = "new"
)

// Buckets 分组遍历顺序: hot -> top -> new
var Buckets = []string{BucketHot, BucketTop, BucketNew}

// Post 论坛帖子
//
// 除摘要相关字段外其余字段只读；未识别的 JSON 字段原样保留，
// 写回时保持原有的字段顺序。
type Post struct {
	ID      string
	Title   string
	Content string

	// 摘要负载: 中英文合并摘要 + 可选的中英文标题
	Summary string
	TitleZh string
	TitleEn string

	raw fields
}

// HasSummary 是否已经生成过摘要
func (p *Post) HasSummary() bool {
	return strings.TrimSpace(p.Summary) != ""
}

// Clone 复制一份帖子，用作索引中的代表快照
func (p *Post) Clone() *Post {
	c := *p
	c.raw = p.raw.clone()
	return &c
}

// UnmarshalJSON 实现 json.Unmarshaler
func (p *Post) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("decode post: %w", err)
	}
	*p = Post{raw: f}
	p.ID = f.str("id")
	p.Title = f.str("title")
	p.Content = f.str("content")
	p.Summary = f.str("summary")
	p.TitleZh = f.str("titleZh")
	p.TitleEn = f.str("titleEn")
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (p *Post) MarshalJSON() ([]byte, error) {
	f := p.raw.clone()
	f.setString("id", p.ID)
	f.setString("title", p.Title)
	f.setString("content", p.Content)
	f.setString("summary", p.Summary)
	f.setString("titleZh", p.TitleZh)
	f.setString("titleEn", p.TitleEn)
	return f.encode()
}

// Feeds 一次抓取中的三个分组
type Feeds struct {
	Hot []*Post
	Top []*Post
	New []*Post

	raw fields
}

// Bucket 按名称返回分组
func (f *Feeds) Bucket(name string) []*Post {
	switch name {
	case BucketHot:
		return f.Hot
	case BucketTop:
		return f.Top
	case BucketNew:
		return f.New
	}
	return nil
}

// Each 按 hot -> top -> new 及组内顺序遍历所有帖子
func (f *Feeds) Each(fn func(bucket string, p *Post)) {
	for _, name := range Buckets {
		for _, p := range f.Bucket(name) {
			if p != nil {
				fn(name, p)
			}
		}
	}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (f *Feeds) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("decode feeds: %w", err)
	}
	*f = Feeds{raw: raw}
	for _, name := range Buckets {
		v, ok := raw.get(name)
		if !ok || isNull(v) {
			continue
		}
		var posts []*Post
		if err := json.Unmarshal(v, &posts); err != nil {
			return fmt.Errorf("decode feeds.%s: %w", name, err)
		}
		switch name {
		case BucketHot:
			f.Hot = posts
		case BucketTop:
			f.Top = posts
		case BucketNew:
			f.New = posts
		}
	}
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (f *Feeds) MarshalJSON() ([]byte, error) {
	out := f.raw.clone()
	for _, name := range Buckets {
		posts := f.Bucket(name)
		if posts == nil {
			continue
		}
		v, err := marshalNoEscape(posts)
		if err != nil {
			return nil, err
		}
		out.set(name, v)
	}
	return out.encode()
}

// Document 一份快照文档: latest.json 或 archive/<date>.json
type Document struct {
	Date      string
	FetchedAt string
	Feeds     Feeds

	raw fields
}

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Document) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	*d = Document{raw: raw}
	d.Date = raw.str("date")
	d.FetchedAt = raw.str("fetchedAt")
	if v, ok := raw.get("feeds"); ok && !isNull(v) {
		if err := json.Unmarshal(v, &d.Feeds); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	out := d.raw.clone()
	out.setString("date", d.Date)
	out.setString("fetchedAt", d.FetchedAt)
	v, err := marshalNoEscape(&d.Feeds)
	if err != nil {
		return nil, err
	}
	out.set("feeds", v)
	return out.encode()
}

// SummaryResult 解析后的双语生成结果，任何字段都可能缺失
type SummaryResult struct {
	TitleZh   *string
	SummaryZh *string
	TitleEn   *string
	SummaryEn *string
}
