package parser

import (
	"regexp"
	"strings"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
)

// Separator 各段之间独占一行的分隔符
const Separator = "---"

// joiner 合并摘要与回拼多余分段时使用
const joiner = "\n" + Separator + "\n"

var separatorLine = regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(Separator) + `[ \t\r]*$`)

// Split 按独占一行的分隔符切分，每段去掉首尾空白
func Split(raw string) []string {
	parts := separatorLine.Split(raw, -1)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Parse 把生成结果拆成中英文标题与摘要
//
//   - 4 段及以上: 中文标题、中文摘要、英文标题、英文摘要(其余段回拼进英文摘要)
//   - 2~3 段: 中文摘要、英文摘要(旧格式，没有标题)
//   - 少于 2 段: 全文作为英文摘要
//
// 空段视为缺失。
func Parse(raw string) model.SummaryResult {
	parts := Split(raw)

	switch {
	case len(parts) >= 4:
		return model.SummaryResult{
			TitleZh:   present(parts[0]),
			SummaryZh: present(parts[1]),
			TitleEn:   present(parts[2]),
			SummaryEn: present(strings.Join(parts[3:], joiner)),
		}
	case len(parts) >= 2:
		return model.SummaryResult{
			SummaryZh: present(parts[0]),
			SummaryEn: present(strings.Join(parts[1:], joiner)),
		}
	default:
		return model.SummaryResult{
			SummaryEn: present(strings.TrimSpace(raw)),
		}
	}
}

// Combine 合并中英文摘要，写回快照时使用
func Combine(zh, en string) string {
	return zh + joiner + en
}

func present(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
