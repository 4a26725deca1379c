package service

import (
	"testing"

	"draftsmith-backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCompilePromptBasics(t *testing.T) {
	cfg := model.GenerationConfig{
		Keyword:   "solar panels for home",
		Tone:      "practical",
		Audience:  "homeowners",
		WordCount: 1200,
	}

	prompt := CompilePrompt(cfg)

	assert.Contains(t, prompt, `"solar panels for home"`)
	assert.Contains(t, prompt, "Tone: practical.")
	assert.Contains(t, prompt, "Target audience: homeowners.")
	assert.Contains(t, prompt, "about 1200 words")
	assert.Contains(t, prompt, SchemaStartDelim)
	assert.Contains(t, prompt, SchemaEndDelim)
	assert.Contains(t, prompt, SummaryStartDelim)
	assert.Contains(t, prompt, SummaryEndDelim)
}

func TestCompilePromptNoPlaceholderSection(t *testing.T) {
	cfg := model.GenerationConfig{Keyword: "tea brewing"}

	prompt := CompilePrompt(cfg)

	// 配图总数为 0 时整段指令省略
	assert.NotContains(t, prompt, "Visual placeholders")
	assert.NotContains(t, prompt, "[Featured Image:")
}

func TestCompilePromptPlaceholderCounts(t *testing.T) {
	cfg := model.GenerationConfig{
		Keyword:        "solar panels",
		FeaturedImage:  true,
		ImageCount:     3,
		InfographicCnt: 1,
	}

	prompt := CompilePrompt(cfg)

	assert.Contains(t, prompt, "Visual placeholders")
	assert.Contains(t, prompt, "1 [Featured Image: ...] token")
	assert.Contains(t, prompt, "3 [Image: ...] token(s)")
	assert.Contains(t, prompt, "1 [Infographic: ...] token(s)")
	assert.NotContains(t, prompt, "[Diagram: ...]")
}

func TestCompilePromptLinksAndAffiliates(t *testing.T) {
	cfg := model.GenerationConfig{
		Keyword:      "running shoes",
		IncludeLinks: true,
		SiteURL:      "https://example.com",
		Affiliates: []model.AffiliateLink{
			{Name: "SpeedFeet", URL: "https://speedfeet.example/ref"},
			{Name: "", URL: "https://ignored.example"},
		},
	}

	prompt := CompilePrompt(cfg)

	assert.Contains(t, prompt, "link to https://example.com")
	assert.Contains(t, prompt, "When mentioning SpeedFeet, link it to https://speedfeet.example/ref")
	assert.NotContains(t, prompt, "ignored.example")
}

func TestCompilePromptGrounding(t *testing.T) {
	with := CompilePrompt(model.GenerationConfig{Keyword: "k", UseGrounding: true})
	without := CompilePrompt(model.GenerationConfig{Keyword: "k"})

	assert.Contains(t, with, "cite")
	assert.NotContains(t, without, "cite")
}

func TestPlaceholderTotal(t *testing.T) {
	cfg := model.GenerationConfig{
		FeaturedImage:  true,
		ImageCount:     2,
		InfographicCnt: 1,
		DiagramCount:   1,
	}
	assert.Equal(t, 5, cfg.PlaceholderTotal())

	empty := model.GenerationConfig{}
	assert.Equal(t, 0, empty.PlaceholderTotal())
}
