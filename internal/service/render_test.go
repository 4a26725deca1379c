package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdownBasics(t *testing.T) {
	html := RenderMarkdown("# Title\n\nSome **bold** text.")

	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "Title")
	assert.Contains(t, html, "<strong>bold</strong>")
}

func TestRenderMarkdownGFMTable(t *testing.T) {
	md := "| a | b |\n|---|---|\n| 1 | 2 |"

	html := RenderMarkdown(md)
	assert.Contains(t, html, "<table")
	assert.Contains(t, html, "<td>1</td>")
}

func TestRenderMarkdownStripsScript(t *testing.T) {
	html := RenderMarkdown("hello <script>alert(1)</script> world")

	assert.NotContains(t, html, "<script")
	assert.NotContains(t, html, "alert(1)")
	assert.Contains(t, html, "hello")
	assert.Contains(t, html, "world")
}

func TestRenderMarkdownKeepsLinks(t *testing.T) {
	html := RenderMarkdown("[site](https://example.com)")

	assert.Contains(t, html, `href="https://example.com"`)
	assert.Contains(t, html, ">site</a>")
}

func TestSanitizeKeepsSlotAnchors(t *testing.T) {
	anchor := loadingAnchor(PlaceholderToken{Kind: "Image", Caption: "wiring", Ordinal: 3})

	clean := sanitizePolicy.Sanitize(anchor)
	assert.Contains(t, clean, `id="img-slot-3"`)
	assert.Contains(t, clean, `data-kind="Image"`)
	assert.Contains(t, clean, "<figcaption>wiring</figcaption>")
}

func TestSanitizeKeepsDataURIImage(t *testing.T) {
	in := `<img src="data:image/png;base64,QUJD" alt="x"/>`
	clean := sanitizePolicy.Sanitize(in)
	assert.Contains(t, clean, "data:image/png;base64,QUJD")
}

func TestRenderMarkdownPlaceholderSurvives(t *testing.T) {
	// 占位符是普通文本，渲染后必须原样保留给锚点注入用
	html := RenderMarkdown("intro\n\n[Image: a rooftop array]\n\noutro")
	assert.Contains(t, html, "[Image: a rooftop array]")
}
