package eligibility

import (
	"unicode/utf8"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/index"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
)

// DefaultMinContentLength 默认最小正文长度(字符数)
const DefaultMinContentLength = 50

// Filter 判断帖子是否需要生成摘要
type Filter struct {
	MinContentLength int
}

// New 创建过滤器，minLen <= 0 时使用默认值
func New(minLen int) Filter {
	if minLen <= 0 {
		minLen = DefaultMinContentLength
	}
	return Filter{MinContentLength: minLen}
}

// IsEligible 尚无摘要、有正文且正文长度不小于阈值
func (f Filter) IsEligible(p *model.Post) bool {
	if p == nil || p.HasSummary() || p.Content == "" {
		return false
	}
	return utf8.RuneCountInString(p.Content) >= f.MinContentLength
}

// Select 按原顺序挑出需要生成的条目
func (f Filter) Select(entries []*index.Entry) []*index.Entry {
	var out []*index.Entry
	for _, e := range entries {
		if f.IsEligible(e.Post) {
			out = append(out, e)
		}
	}
	return out
}
