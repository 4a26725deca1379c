package service

import (
	"regexp"
	"strings"

	"draftsmith-backend/internal/model"
)

// 质量分各项权重，总分封顶 100
const (
	scoreHeading = 25
	scoreKeyword = 25
	scoreVisual  = 25
	scoreLength  = 15
	scoreLinks   = 10

	minBodyWords = 300
)

var (
	h1Re       = regexp.MustCompile(`(?m)^#\s+\S`)
	htmlH1Re   = regexp.MustCompile(`<h1[\s>]`)
	htmlImgRe  = regexp.MustCompile(`<img[\s>]|image-slot`)
	htmlLinkRe = regexp.MustCompile(`<a\s`)
	mdLinkRe   = regexp.MustCompile(`\]\(https?://`)
)

// EstimateReadability 近似阅读年级（Flesch–Kincaid 风格）：
// 词数、句数（.!? 连续串为句界）加元音连段音节启发式，下限 0。
// 空文本或过短文本直接返回 0。
func EstimateReadability(text string) float64 {
	words := strings.Fields(text)
	if len(words) < 5 {
		return 0
	}

	sentences := countSentences(text)
	if sentences == 0 {
		sentences = 1
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	grade := 0.39*(float64(len(words))/float64(sentences)) +
		11.8*(float64(syllables)/float64(len(words))) - 15.59
	if grade < 0 {
		return 0
	}
	return grade
}

// countSentences 把 .!? 的连续串视作一个句界
func countSentences(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if !inRun {
				count++
				inRun = true
			}
		} else {
			inRun = false
		}
	}
	return count
}

// countSyllables 元音连段计数，每个词至少算 1 个音节
func countSyllables(word string) int {
	count := 0
	inVowelRun := false
	for _, r := range strings.ToLower(word) {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !inVowelRun {
			count++
		}
		inVowelRun = isVowel
	}
	if count == 0 {
		return 1
	}
	return count
}

// EstimateQualityScore 加法式内容质量启发分：
// 有一级标题、正文含主关键词、至少一张嵌入配图、正文足长或含链接。
// 每项满足只加分不减分（单调），总分截断在 [0,100]。
func EstimateQualityScore(text, markup string, cfg model.GenerationConfig) int {
	score := 0

	if h1Re.MatchString(text) || htmlH1Re.MatchString(markup) {
		score += scoreHeading
	}

	if cfg.Keyword != "" &&
		strings.Contains(strings.ToLower(text), strings.ToLower(cfg.Keyword)) {
		score += scoreKeyword
	}

	if htmlImgRe.MatchString(markup) {
		score += scoreVisual
	}

	if len(strings.Fields(text)) >= minBodyWords {
		score += scoreLength
	}

	if htmlLinkRe.MatchString(markup) || mdLinkRe.MatchString(text) {
		score += scoreLinks
	}

	if score > 100 {
		score = 100
	}
	return score
}
