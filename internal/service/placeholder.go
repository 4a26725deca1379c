package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"draftsmith-backend/internal/config"
	"draftsmith-backend/internal/model"
	"draftsmith-backend/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

// placeholderRe 匹配 [<Kind>: <caption>]，Kind 为封闭集合，caption 不含 ]
var placeholderRe = regexp.MustCompile(`\[(Featured Image|Image|Infographic|Diagram):\s*([^\]]+)\]`)

// PlaceholderToken 渲染结果中的一个配图插入点
type PlaceholderToken struct {
	Kind    string
	Caption string
	Ordinal int // 出现顺序，用于配对槽位覆盖提示词
}

// SlotID 槽位的稳定标识，按出现顺序编号，与完成顺序无关
func SlotID(ordinal int) string {
	return fmt.Sprintf("img-slot-%d", ordinal)
}

// ScanPlaceholders 按文本顺序提取全部占位符
func ScanPlaceholders(markup string) []PlaceholderToken {
	matches := placeholderRe.FindAllStringSubmatch(markup, -1)
	tokens := make([]PlaceholderToken, 0, len(matches))
	for i, m := range matches {
		tokens = append(tokens, PlaceholderToken{
			Kind: m[1],
			// 渲染后的标记已做实体转义，还原成原文再入库，
			// 输出时统一重新转义，配图提示词拿到的是干净文本
			Caption: strings.TrimSpace(html.UnescapeString(m[2])),
			Ordinal: i,
		})
	}
	return tokens
}

// InjectAnchors 把每个占位符原地替换为带稳定 id 的加载态锚点。
// 锚点占住原文位置，之后无论配图以什么顺序完成都落回正确位置。
func InjectAnchors(markup string) (string, []PlaceholderToken) {
	tokens := ScanPlaceholders(markup)
	if len(tokens) == 0 {
		return markup, nil
	}

	ordinal := 0
	out := placeholderRe.ReplaceAllStringFunc(markup, func(string) string {
		tok := tokens[ordinal]
		ordinal++
		return loadingAnchor(tok)
	})
	return out, tokens
}

func loadingAnchor(tok PlaceholderToken) string {
	return fmt.Sprintf(
		`<figure id="%s" class="image-slot image-slot-loading" data-kind="%s"><figcaption>%s</figcaption></figure>`,
		SlotID(tok.Ordinal), html.EscapeString(tok.Kind), html.EscapeString(tok.Caption))
}

// ApplySlotOutcome 用最终结果替换对应锚点，锚点按 id 定位
func ApplySlotOutcome(markup string, st model.ImageSlotState) string {
	open := fmt.Sprintf(`<figure id="%s"`, st.SlotID)
	start := strings.Index(markup, open)
	if start < 0 {
		return markup
	}
	end := strings.Index(markup[start:], "</figure>")
	if end < 0 {
		return markup
	}
	end += start + len("</figure>")

	var replacement string
	if st.Status == "resolved" {
		replacement = fmt.Sprintf(
			`<figure id="%s" class="image-slot image-slot-resolved"><img src="data:image/png;base64,%s" alt="%s"/><figcaption>%s</figcaption></figure>`,
			st.SlotID, st.Data, html.EscapeString(st.Caption), html.EscapeString(st.Caption))
	} else {
		replacement = fmt.Sprintf(
			`<figure id="%s" class="image-slot image-slot-failed"><figcaption>%s（%s）</figcaption></figure>`,
			st.SlotID, html.EscapeString(st.Caption), failureLabel(st.Reason))
	}

	return markup[:start] + replacement + markup[end:]
}

func failureLabel(reason string) string {
	switch model.ImageFailureReason(reason) {
	case model.ImageFailRateLimited:
		return "生成失败：触发限流"
	case model.ImageFailContentFiltered:
		return "生成失败：内容安全拦截"
	case model.ImageFailNoData:
		return "生成失败：服务未返回图片"
	default:
		return "生成失败"
	}
}

// ImageFiller 有界并发地为占位符生成配图：
// 限流错误线性退避重试到上限，其余错误立即失败；槽位之间互不影响。
type ImageFiller struct {
	synth      model.ImageSynthesizer
	workers    int
	stagger    time.Duration
	maxRetries int
	retryBase  time.Duration

	sleepFn func(time.Duration) // 测试替换点
}

func NewImageFiller(synth model.ImageSynthesizer, cfg config.ImageConfig) *ImageFiller {
	return &ImageFiller{
		synth:      synth,
		workers:    cfg.Workers,
		stagger:    cfg.Stagger,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBaseDelay,
		sleepFn:    time.Sleep,
	}
}

// Resolve 为每个占位符发起配图请求，结果按完成顺序写入返回通道。
// tokens 为空时立即返回已关闭的通道，不发起任何网络请求。
func (f *ImageFiller) Resolve(ctx context.Context, tokens []PlaceholderToken, gen model.GenerationConfig) <-chan model.ImageSlotState {
	results := make(chan model.ImageSlotState, len(tokens))
	if len(tokens) == 0 {
		close(results)
		return results
	}

	jobs := make(chan PlaceholderToken, len(tokens))
	for _, tok := range tokens {
		jobs <- tok
	}
	close(jobs)

	workers := f.workers
	if workers > len(tokens) {
		workers = len(tokens)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tok := range jobs {
				results <- f.resolveOne(ctx, tok, gen)
				if f.stagger > 0 {
					f.sleepFn(f.stagger)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// resolveOne 单个槽位的完整生命周期，返回终态（resolved 或 failed）
func (f *ImageFiller) resolveOne(ctx context.Context, tok PlaceholderToken, gen model.GenerationConfig) model.ImageSlotState {
	st := model.ImageSlotState{
		SlotID:  SlotID(tok.Ordinal),
		Ordinal: tok.Ordinal,
		Kind:    tok.Kind,
		Caption: tok.Caption,
	}

	prompt := buildImagePrompt(tok, gen)
	size := imageSizeFor(tok.Kind)

	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		st.Attempt = attempt

		data, err := f.synth.GenerateImage(ctx, prompt, size)
		if err == nil {
			st.Status = "resolved"
			st.Data = data
			return st
		}
		lastErr = err

		var ie *model.ImageError
		if !errors.As(err, &ie) || !ie.Retryable() {
			// 不可重试的失败只尝试一次
			break
		}
		if attempt < f.maxRetries {
			logger.Warnf("image slot %s rate limited, retrying (attempt %d/%d)", st.SlotID, attempt, f.maxRetries)
			f.sleepFn(time.Duration(attempt) * f.retryBase)
		}
	}

	st.Status = "failed"
	st.Reason = string(model.FailureReasonOf(lastErr))
	logger.Errorf("image slot %s failed after %d attempt(s): %v", st.SlotID, st.Attempt, lastErr)
	return st
}

// buildImagePrompt 合成配图提示词：槽位覆盖 > 原始 caption，再叠加全局风格；
// Featured Image 额外加强调。caption 的语义始终保留并传给配图服务。
func buildImagePrompt(tok PlaceholderToken, gen model.GenerationConfig) string {
	seed := tok.Caption
	if tok.Ordinal < len(gen.SlotPrompts) && strings.TrimSpace(gen.SlotPrompts[tok.Ordinal]) != "" {
		seed = strings.TrimSpace(gen.SlotPrompts[tok.Ordinal])
	}

	var sb strings.Builder
	switch tok.Kind {
	case "Featured Image":
		sb.WriteString("Striking hero image, high visual impact: ")
	case "Infographic":
		sb.WriteString("Clean infographic visualization: ")
	case "Diagram":
		sb.WriteString("Simple explanatory diagram: ")
	}
	sb.WriteString(seed)

	if gen.ImageStyle != "" {
		sb.WriteString(", ")
		sb.WriteString(gen.ImageStyle)
	}
	return sb.String()
}

func imageSizeFor(kind string) string {
	if kind == "Featured Image" {
		return openai.CreateImageSize1792x1024
	}
	return openai.CreateImageSize1024x1024
}
