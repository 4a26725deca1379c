package service

import (
	"context"
	"strings"
	"testing"

	"draftsmith-backend/internal/config"
	"draftsmith-backend/internal/model"
	"draftsmith-backend/internal/storage"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel 按预置分片回放的流式模型桩
type fakeChatModel struct {
	fragments []string
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return &schema.Message{Role: schema.Assistant, Content: strings.Join(f.fragments, "")}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	reader, writer := schema.Pipe[*schema.Message](len(f.fragments))
	go func() {
		defer writer.Close()
		for _, fr := range f.fragments {
			writer.Send(&schema.Message{Role: schema.Assistant, Content: fr}, nil)
		}
	}()
	return reader, nil
}

func (f *fakeChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func newStreamTestService(t *testing.T, fragments []string) *ArticleService {
	t.Helper()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Init())
	cfg := &config.Config{Article: config.ArticleConfig{MaxPlaceholder: 10}}
	return NewArticleServiceWithDeps(store, &fakeChatModel{fragments: fragments}, nil, cfg)
}

func newValidationService() *ArticleService {
	return &ArticleService{
		config: &config.Config{
			Article: config.ArticleConfig{MaxPlaceholder: 10},
		},
	}
}

func TestValidateConfigKeywordRequired(t *testing.T) {
	s := newValidationService()

	assert.Error(t, s.ValidateConfig(model.GenerationConfig{}))
	assert.Error(t, s.ValidateConfig(model.GenerationConfig{Keyword: "   "}))
	assert.NoError(t, s.ValidateConfig(model.GenerationConfig{Keyword: "solar"}))
}

func TestValidateConfigNegativeCounts(t *testing.T) {
	s := newValidationService()

	assert.Error(t, s.ValidateConfig(model.GenerationConfig{Keyword: "k", WordCount: -1}))
	assert.Error(t, s.ValidateConfig(model.GenerationConfig{Keyword: "k", ImageCount: -1}))
	assert.Error(t, s.ValidateConfig(model.GenerationConfig{Keyword: "k", DiagramCount: -2}))
}

func TestValidateConfigPlaceholderLimit(t *testing.T) {
	s := newValidationService()

	ok := model.GenerationConfig{Keyword: "k", FeaturedImage: true, ImageCount: 9}
	assert.NoError(t, s.ValidateConfig(ok))

	over := model.GenerationConfig{Keyword: "k", FeaturedImage: true, ImageCount: 10}
	assert.Error(t, s.ValidateConfig(over))
}

func TestCollectSourcesDedupes(t *testing.T) {
	seen := map[string]bool{}
	var sources []model.Source

	collectSources(&schema.Message{Extra: map[string]any{
		"citations": []any{
			map[string]any{"url": "https://a.example", "title": "A"},
			map[string]any{"url": "https://b.example"},
		},
	}}, seen, &sources)

	collectSources(&schema.Message{Extra: map[string]any{
		"references": []any{
			map[string]any{"url": "https://a.example", "title": "dup"},
			map[string]any{"title": "no url, skipped"},
		},
	}}, seen, &sources)

	require.Len(t, sources, 2)
	assert.Equal(t, "https://a.example", sources[0].URL)
	assert.Equal(t, "A", sources[0].Title)
	assert.Equal(t, "https://b.example", sources[1].URL)
}

func TestCollectSourcesNilSafe(t *testing.T) {
	seen := map[string]bool{}
	var sources []model.Source

	collectSources(nil, seen, &sources)
	collectSources(&schema.Message{}, seen, &sources)
	collectSources(&schema.Message{Extra: map[string]any{"citations": "not a list"}}, seen, &sources)

	assert.Empty(t, sources)
}

func TestMetaBlocksOf(t *testing.T) {
	d := NewStreamDemux()
	d.Feed("%%SUMMARY-START%%desc%%SUMMARY-END%%body")

	meta := metaBlocksOf(d)
	assert.True(t, meta.SummaryAvailable)
	assert.Equal(t, "desc", meta.Summary)
	// schema 始终未到齐，降级为不可用
	assert.False(t, meta.SchemaAvailable)
	assert.Empty(t, meta.Schema)
}

func TestStreamArticleDeltaCarriesOnlyDisplayProse(t *testing.T) {
	s := newStreamTestService(t, []string{
		"%%SUMMARY-START%%Great guide%%SUMMARY-END%%# Title\nBody ",
		"text here.",
	})
	session, err := s.CreateSession("")
	require.NoError(t, err)

	respChan, errChan := s.StreamArticle(session.ID, model.GenerationConfig{Keyword: "solar"})

	var rebuilt strings.Builder
	var meta *model.MetaBlocks
	for resp := range respChan {
		switch resp.Type {
		case "message":
			// 增量里不允许出现分隔符或隐藏块内容
			assert.NotContains(t, resp.Delta, "%%")
			assert.NotContains(t, resp.Delta, "Great guide")
			rebuilt.WriteString(resp.Delta)
		case "meta":
			meta = resp.Meta
		}
	}
	require.NoError(t, <-errChan)

	// 增量拼接后恰好还原正文，既不泄漏也不丢字
	assert.Equal(t, "# Title\nBody text here.", rebuilt.String())

	require.NotNil(t, meta)
	assert.True(t, meta.SummaryAvailable)
	assert.Equal(t, "Great guide", meta.Summary)
}

func TestStreamArticleDeltaSplitDelimiter(t *testing.T) {
	// 分隔符被任意切断时增量同样不泄漏
	s := newStreamTestService(t, []string{
		"intro %%SUM", "MARY-START%%hidden", "%%SUMMARY-END%% outro",
	})
	session, err := s.CreateSession("")
	require.NoError(t, err)

	respChan, errChan := s.StreamArticle(session.ID, model.GenerationConfig{Keyword: "solar"})

	var rebuilt strings.Builder
	for resp := range respChan {
		if resp.Type == "message" {
			assert.NotContains(t, resp.Delta, "%%")
			assert.NotContains(t, resp.Delta, "hidden")
			rebuilt.WriteString(resp.Delta)
		}
	}
	require.NoError(t, <-errChan)
	assert.Equal(t, "intro  outro", rebuilt.String())
}

func TestTruncateString(t *testing.T) {
	s := &ArticleService{}

	assert.Equal(t, "short", s.truncateString("short", 30))
	assert.Equal(t, "太阳能板...", s.truncateString("太阳能板安装指南", 4))
}
