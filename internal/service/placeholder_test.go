package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"draftsmith-backend/internal/config"
	"draftsmith-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSynth 可编程的配图生成桩
type fakeSynth struct {
	mu      sync.Mutex
	calls   []string
	respond func(prompt string, call int) (string, error)
}

func (f *fakeSynth) GenerateImage(ctx context.Context, prompt, size string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	n := len(f.calls)
	f.mu.Unlock()
	return f.respond(prompt, n)
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestFiller(synth model.ImageSynthesizer) *ImageFiller {
	filler := NewImageFiller(synth, config.ImageConfig{
		Workers:        2,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
	})
	filler.sleepFn = func(time.Duration) {}
	return filler
}

func TestScanPlaceholders(t *testing.T) {
	markup := `<h1>Title</h1>
[Featured Image: a sunny rooftop]
<p>body</p>
[Image: close-up of panel wiring]
[Diagram: energy flow from panel to grid]`

	tokens := ScanPlaceholders(markup)
	require.Len(t, tokens, 3)

	assert.Equal(t, "Featured Image", tokens[0].Kind)
	assert.Equal(t, "a sunny rooftop", tokens[0].Caption)
	assert.Equal(t, 0, tokens[0].Ordinal)
	assert.Equal(t, "Image", tokens[1].Kind)
	assert.Equal(t, "Diagram", tokens[2].Kind)
	assert.Equal(t, 2, tokens[2].Ordinal)
}

func TestScanPlaceholdersIgnoresUnknownKind(t *testing.T) {
	tokens := ScanPlaceholders("[Video: intro clip] [Image: ok]")
	require.Len(t, tokens, 1)
	assert.Equal(t, "Image", tokens[0].Kind)
}

func TestScanPlaceholdersUnescapesEntities(t *testing.T) {
	// 扫描对象是渲染后的 HTML，caption 里的实体要还原成原文
	tokens := ScanPlaceholders("<p>[Image: cats &amp; dogs]</p>")
	require.Len(t, tokens, 1)
	assert.Equal(t, "cats & dogs", tokens[0].Caption)
}

func TestInjectAnchorsNoDoubleEscape(t *testing.T) {
	out, tokens := InjectAnchors(RenderMarkdown("[Image: cats & dogs]"))
	require.Len(t, tokens, 1)

	assert.Equal(t, "cats & dogs", tokens[0].Caption)
	assert.Contains(t, out, "<figcaption>cats &amp; dogs</figcaption>")
	assert.NotContains(t, out, "&amp;amp;")

	// 配图提示词拿到的也是未转义的原文
	prompt := buildImagePrompt(tokens[0], model.GenerationConfig{})
	assert.Contains(t, prompt, "cats & dogs")
	assert.NotContains(t, prompt, "&amp;")
}

func TestInjectAnchors(t *testing.T) {
	markup := "<p>a</p>[Image: first]<p>b</p>[Infographic: second]"

	out, tokens := InjectAnchors(markup)
	require.Len(t, tokens, 2)

	assert.Contains(t, out, `<figure id="img-slot-0"`)
	assert.Contains(t, out, `<figure id="img-slot-1"`)
	assert.Contains(t, out, `data-kind="Infographic"`)
	assert.NotContains(t, out, "[Image:")
	assert.NotContains(t, out, "[Infographic:")
}

func TestInjectAnchorsNoTokens(t *testing.T) {
	markup := "<p>plain article</p>"
	out, tokens := InjectAnchors(markup)
	assert.Equal(t, markup, out)
	assert.Nil(t, tokens)
}

func TestApplySlotOutcomeResolved(t *testing.T) {
	out, _ := InjectAnchors("<p>a</p>[Image: cap]<p>b</p>")

	patched := ApplySlotOutcome(out, model.ImageSlotState{
		SlotID:  "img-slot-0",
		Caption: "cap",
		Status:  "resolved",
		Data:    "QUJD",
	})

	assert.Contains(t, patched, `src="data:image/png;base64,QUJD"`)
	assert.Contains(t, patched, "image-slot-resolved")
	assert.NotContains(t, patched, "image-slot-loading")
	// 锚点前后的正文不受影响
	assert.True(t, strings.HasPrefix(patched, "<p>a</p>"))
	assert.True(t, strings.HasSuffix(patched, "<p>b</p>"))
}

func TestApplySlotOutcomeFailedKeepsCaption(t *testing.T) {
	out, _ := InjectAnchors("[Image: wiring detail]")

	patched := ApplySlotOutcome(out, model.ImageSlotState{
		SlotID:  "img-slot-0",
		Caption: "wiring detail",
		Status:  "failed",
		Reason:  string(model.ImageFailContentFiltered),
	})

	assert.Contains(t, patched, "image-slot-failed")
	assert.Contains(t, patched, "wiring detail")
	assert.Contains(t, patched, "内容安全拦截")
	assert.NotContains(t, patched, "<img")
}

func TestApplySlotOutcomeOutOfOrder(t *testing.T) {
	out, _ := InjectAnchors("[Image: one][Image: two][Image: three]")

	// 按 2, 0, 1 的完成顺序打补丁，各自落到正确的锚点上
	out = ApplySlotOutcome(out, model.ImageSlotState{SlotID: "img-slot-2", Caption: "three", Status: "resolved", Data: "Cg=="})
	out = ApplySlotOutcome(out, model.ImageSlotState{SlotID: "img-slot-0", Caption: "one", Status: "failed", Reason: "unknown"})
	out = ApplySlotOutcome(out, model.ImageSlotState{SlotID: "img-slot-1", Caption: "two", Status: "resolved", Data: "Cg=="})

	i0 := strings.Index(out, `id="img-slot-0"`)
	i1 := strings.Index(out, `id="img-slot-1"`)
	i2 := strings.Index(out, `id="img-slot-2"`)
	require.True(t, i0 >= 0 && i1 >= 0 && i2 >= 0)
	// 文本顺序保持原样
	assert.Less(t, i0, i1)
	assert.Less(t, i1, i2)

	first := out[i0:i1]
	assert.Contains(t, first, "image-slot-failed")
}

func TestApplySlotOutcomeUnknownSlotNoop(t *testing.T) {
	markup := "<p>no anchors here</p>"
	patched := ApplySlotOutcome(markup, model.ImageSlotState{SlotID: "img-slot-9", Status: "resolved", Data: "x"})
	assert.Equal(t, markup, patched)
}

func TestResolveEmptyTokensNoRequests(t *testing.T) {
	synth := &fakeSynth{respond: func(string, int) (string, error) {
		return "", fmt.Errorf("must not be called")
	}}
	filler := newTestFiller(synth)

	results := filler.Resolve(context.Background(), nil, model.GenerationConfig{})

	_, open := <-results
	assert.False(t, open)
	assert.Equal(t, 0, synth.callCount())
}

func TestResolveAllSlotsReachTerminalState(t *testing.T) {
	synth := &fakeSynth{respond: func(prompt string, _ int) (string, error) {
		if strings.Contains(prompt, "bad") {
			return "", &model.ImageError{Reason: model.ImageFailContentFiltered}
		}
		return "aW1n", nil
	}}
	filler := newTestFiller(synth)

	tokens := []PlaceholderToken{
		{Kind: "Image", Caption: "good photo", Ordinal: 0},
		{Kind: "Image", Caption: "bad photo", Ordinal: 1},
		{Kind: "Diagram", Caption: "good chart", Ordinal: 2},
	}

	byID := map[string]model.ImageSlotState{}
	for st := range filler.Resolve(context.Background(), tokens, model.GenerationConfig{}) {
		byID[st.SlotID] = st
	}

	require.Len(t, byID, 3)
	assert.Equal(t, "resolved", byID["img-slot-0"].Status)
	assert.Equal(t, "aW1n", byID["img-slot-0"].Data)
	assert.Equal(t, "failed", byID["img-slot-1"].Status)
	assert.Equal(t, string(model.ImageFailContentFiltered), byID["img-slot-1"].Reason)
	assert.Equal(t, "resolved", byID["img-slot-2"].Status)
}

func TestResolveNonRetryableSingleAttempt(t *testing.T) {
	synth := &fakeSynth{respond: func(string, int) (string, error) {
		return "", &model.ImageError{Reason: model.ImageFailContentFiltered}
	}}
	filler := newTestFiller(synth)

	tokens := []PlaceholderToken{{Kind: "Image", Caption: "x", Ordinal: 0}}
	var final model.ImageSlotState
	for st := range filler.Resolve(context.Background(), tokens, model.GenerationConfig{}) {
		final = st
	}

	// 不可重试：只发一次请求
	assert.Equal(t, 1, synth.callCount())
	assert.Equal(t, "failed", final.Status)
	assert.Equal(t, 1, final.Attempt)
}

func TestResolveRateLimitRetriesToCap(t *testing.T) {
	synth := &fakeSynth{respond: func(string, int) (string, error) {
		return "", &model.ImageError{Reason: model.ImageFailRateLimited}
	}}

	var slept []time.Duration
	filler := NewImageFiller(synth, config.ImageConfig{
		Workers:        1,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
	})
	filler.sleepFn = func(d time.Duration) { slept = append(slept, d) }

	tokens := []PlaceholderToken{{Kind: "Image", Caption: "x", Ordinal: 0}}
	var final model.ImageSlotState
	for st := range filler.Resolve(context.Background(), tokens, model.GenerationConfig{}) {
		final = st
	}

	assert.Equal(t, 3, synth.callCount())
	assert.Equal(t, "failed", final.Status)
	assert.Equal(t, string(model.ImageFailRateLimited), final.Reason)
	assert.Equal(t, 3, final.Attempt)
	// 线性退避：1s, 2s
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestResolveRateLimitThenSuccess(t *testing.T) {
	synth := &fakeSynth{respond: func(_ string, call int) (string, error) {
		if call < 2 {
			return "", &model.ImageError{Reason: model.ImageFailRateLimited}
		}
		return "b2s=", nil
	}}
	filler := NewImageFiller(synth, config.ImageConfig{Workers: 1, MaxRetries: 3, RetryBaseDelay: time.Second})
	filler.sleepFn = func(time.Duration) {}

	tokens := []PlaceholderToken{{Kind: "Image", Caption: "x", Ordinal: 0}}
	var final model.ImageSlotState
	for st := range filler.Resolve(context.Background(), tokens, model.GenerationConfig{}) {
		final = st
	}

	assert.Equal(t, "resolved", final.Status)
	assert.Equal(t, "b2s=", final.Data)
	assert.Equal(t, 2, final.Attempt)
}

func TestBuildImagePromptSlotOverride(t *testing.T) {
	gen := model.GenerationConfig{
		ImageStyle:  "watercolor",
		SlotPrompts: []string{"", "custom close-up of cells"},
	}

	// 无覆盖：用 caption
	p0 := buildImagePrompt(PlaceholderToken{Kind: "Image", Caption: "rooftop array", Ordinal: 0}, gen)
	assert.Contains(t, p0, "rooftop array")
	assert.Contains(t, p0, "watercolor")

	// 槽位覆盖优先于 caption
	p1 := buildImagePrompt(PlaceholderToken{Kind: "Image", Caption: "ignored", Ordinal: 1}, gen)
	assert.Contains(t, p1, "custom close-up of cells")
	assert.NotContains(t, p1, "ignored")
}

func TestBuildImagePromptKindPrefix(t *testing.T) {
	gen := model.GenerationConfig{}

	hero := buildImagePrompt(PlaceholderToken{Kind: "Featured Image", Caption: "c"}, gen)
	assert.Contains(t, hero, "hero image")

	info := buildImagePrompt(PlaceholderToken{Kind: "Infographic", Caption: "c"}, gen)
	assert.Contains(t, info, "infographic")
}

func TestImageSizeFor(t *testing.T) {
	assert.Equal(t, "1792x1024", imageSizeFor("Featured Image"))
	assert.Equal(t, "1024x1024", imageSizeFor("Image"))
	assert.Equal(t, "1024x1024", imageSizeFor("Diagram"))
}
