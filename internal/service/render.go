package service

import (
	"bytes"

	"draftsmith-backend/pkg/logger"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// sanitizePolicy 在 UGC 策略上放开配图槽位用到的属性和内联图
var sanitizePolicy = buildSanitizePolicy()

func buildSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("figure", "figcaption")
	p.AllowAttrs("id", "class").OnElements("figure", "figcaption", "img", "div", "span")
	p.AllowAttrs("data-kind").OnElements("figure")
	p.AllowDataURIImages()
	return p
}

// RenderMarkdown Markdown → 消毒后的 HTML，纯函数，每次正文变化时调用
func RenderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		// goldmark 对任意输入都不应失败，出错时退回原文由策略兜底
		logger.Errorf("markdown convert failed: %v", err)
		return sanitizePolicy.Sanitize(md)
	}
	return sanitizePolicy.Sanitize(buf.String())
}
