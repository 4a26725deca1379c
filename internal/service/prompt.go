package service

import (
	"fmt"
	"strings"

	"draftsmith-backend/internal/model"
)

// BlockKind 模型被要求内嵌输出的隐藏元数据块类别
type BlockKind string

const (
	BlockSchema  BlockKind = "schema"  // JSON-LD 结构化数据
	BlockSummary BlockKind = "summary" // 摘要/meta description
)

// 分隔符为不会出现在正文里的固定标记，由提示词约定而非解析器强制
const (
	SchemaStartDelim  = "%%SCHEMA-START%%"
	SchemaEndDelim    = "%%SCHEMA-END%%"
	SummaryStartDelim = "%%SUMMARY-START%%"
	SummaryEndDelim   = "%%SUMMARY-END%%"
)

// PlaceholderKinds 配图占位符的封闭集合，顺序即扫描优先级
var PlaceholderKinds = []string{"Featured Image", "Image", "Infographic", "Diagram"}

// CompilePrompt 把表单配置编译成发给文本模型的指令，纯函数、无 I/O
func CompilePrompt(cfg model.GenerationConfig) string {
	var sb strings.Builder

	sb.WriteString("Write a complete, publication-ready article in Markdown.\n\n")
	sb.WriteString(fmt.Sprintf("Primary keyword: %q. Use it naturally in the title and body.\n", cfg.Keyword))

	if cfg.Tone != "" {
		sb.WriteString(fmt.Sprintf("Tone: %s.\n", cfg.Tone))
	}
	if cfg.Audience != "" {
		sb.WriteString(fmt.Sprintf("Target audience: %s.\n", cfg.Audience))
	}
	if cfg.Language != "" {
		sb.WriteString(fmt.Sprintf("Write in %s.\n", cfg.Language))
	}
	if cfg.WordCount > 0 {
		sb.WriteString(fmt.Sprintf("Target length: about %d words (±15%% is fine).\n", cfg.WordCount))
	}

	sb.WriteString("\nStructure requirements:\n")
	sb.WriteString("- Start with a single H1 title.\n")
	sb.WriteString("- Use H2/H3 subheadings, short paragraphs and lists where they help.\n")

	if cfg.IncludeLinks {
		if cfg.SiteURL != "" {
			sb.WriteString(fmt.Sprintf("- Include a few relevant outbound links, and link to %s where it fits naturally.\n", cfg.SiteURL))
		} else {
			sb.WriteString("- Include a few relevant outbound links to authoritative sources.\n")
		}
	}
	for _, aff := range cfg.Affiliates {
		if aff.Name == "" || aff.URL == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("- When mentioning %s, link it to %s.\n", aff.Name, aff.URL))
	}
	if cfg.UseGrounding {
		sb.WriteString("- Ground factual claims in verifiable sources and cite them.\n")
	}

	// 隐藏元数据块：各自独立的分隔符对，要求不嵌套、全文只出现一次
	sb.WriteString("\nHidden metadata (emit exactly once each, anywhere in the response, never nested):\n")
	sb.WriteString(fmt.Sprintf("- A JSON-LD Article schema block wrapped between %s and %s.\n", SchemaStartDelim, SchemaEndDelim))
	sb.WriteString(fmt.Sprintf("- A meta description of at most 160 characters wrapped between %s and %s.\n", SummaryStartDelim, SummaryEndDelim))
	sb.WriteString("Everything outside those two wrapped blocks must be plain article Markdown.\n")

	writePlaceholderDirective(&sb, cfg)

	return sb.String()
}

// writePlaceholderDirective 配图占位符指令；总数为 0 时整段省略
func writePlaceholderDirective(sb *strings.Builder, cfg model.GenerationConfig) {
	if cfg.PlaceholderTotal() == 0 {
		return
	}

	sb.WriteString("\nVisual placeholders — mark every insertion point with a literal bracket token\n")
	sb.WriteString("of the form [<Kind>: <caption>], where the caption describes the visual and\n")
	sb.WriteString("never contains a `]` character. Use exactly:\n")

	if cfg.FeaturedImage {
		sb.WriteString("- 1 [Featured Image: ...] token, directly under the H1 title.\n")
	}
	if cfg.ImageCount > 0 {
		sb.WriteString(fmt.Sprintf("- %d [Image: ...] token(s) spread through the body.\n", cfg.ImageCount))
	}
	if cfg.InfographicCnt > 0 {
		sb.WriteString(fmt.Sprintf("- %d [Infographic: ...] token(s) where data deserves a visual summary.\n", cfg.InfographicCnt))
	}
	if cfg.DiagramCount > 0 {
		sb.WriteString(fmt.Sprintf("- %d [Diagram: ...] token(s) where a process or relationship needs illustration.\n", cfg.DiagramCount))
	}
}
