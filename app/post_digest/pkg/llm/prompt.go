package llm

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
)

// SystemInstruction 固定的系统提示词
const SystemInstruction = `You summarize forum posts for a bilingual (Chinese / English) daily digest.

Reply with exactly four sections, separated by a line that contains only "---":
1. A concise Chinese title (at most 30 characters).
2. A Chinese summary of 2-4 sentences.
3. A concise English title (at most 12 words).
4. An English summary of 2-4 sentences.

Do not number the sections, do not add labels, and do not wrap the reply in markdown.
Use only the information in the post.`

var htmlTag = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

// readability 需要一个基准地址来补全相对链接
var contentBaseURL = &url.URL{Scheme: "https", Host: "forum.invalid", Path: "/"}

// BuildUserMessage 构造用户消息: 标题 + 正文(HTML 转纯文本后按字符截断)
func BuildUserMessage(title, content string, maxChars int) string {
	text := PlainText(content)
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			text = string(r[:maxChars])
		}
	}
	return fmt.Sprintf("Title: %s\n\nContent:\n%s", strings.TrimSpace(title), text)
}

// PlainText 正文包含 HTML 标签时用 readability 提取纯文本，失败则保留原文
func PlainText(content string) string {
	content = strings.TrimSpace(content)
	if !htmlTag.MatchString(content) {
		return content
	}

	article, err := readability.FromReader(strings.NewReader(content), contentBaseURL)
	if err != nil {
		return content
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return content
	}
	return text
}
